package jobscout

import (
	"context"
	"log/slog"
	"time"

	"jobscout-backend/lib/scrapers/linkedin/listing"
	"jobscout-backend/lib/scrapers/linkedin/posting"
	"jobscout-backend/services/jobscout/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("services/jobscout")

// Collector walks one search query across listing pages.
type Collector interface {
	Collect(ctx context.Context, query listing.SearchQuery, maxPages, maxJobs int) ([]listing.CandidateJob, error)
}

// Fetcher retrieves and parses one job's detail page.
type Fetcher interface {
	Fetch(ctx context.Context, candidate listing.CandidateJob) (posting.JobRecord, error)
}

type Options struct {
	Paginator Collector
	Extractor Fetcher
	// default queries used when a run request doesn't carry its own
	Queries         []listing.SearchQuery
	MaxPages        int
	MaxJobsPerQuery int
	FilterEasyApply bool
	// optional run-history persistence
	Store *store.Store
	// optional post-run email digest
	Digest *Digest
}

type Service struct {
	opts Options
}

func NewService(opts Options) *Service {
	return &Service{opts: opts}
}

type RunRequest struct {
	// empty means the configured default queries
	Queries         []listing.SearchQuery
	MaxPages        int
	MaxJobsPerQuery int
	FilterEasyApply bool
}

// QueryStats reports what one query surfaced: JobsFound is the raw
// listing count, UniqueJobs the records this query actually contributed
// after global deduplication and fetching.
type QueryStats struct {
	Name       string `json:"name"`
	Keywords   string `json:"keywords"`
	Location   string `json:"location"`
	JobsFound  int    `json:"jobs_found"`
	UniqueJobs int    `json:"unique_jobs"`
}

type RunResult struct {
	Jobs            []posting.JobRecord
	Queries         []QueryStats
	TotalUnique     int
	TotalDuplicates int
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Run executes every query in sequence: paginate, deduplicate, fetch
// details, aggregate. A query's failure never aborts the run; only
// cancellation stops it early, and even then whatever was already
// collected is returned.
func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "service:Run")
	defer span.End()

	queries := req.Queries
	if len(queries) == 0 {
		queries = s.opts.Queries
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = s.opts.MaxPages
	}
	maxJobs := req.MaxJobsPerQuery
	if maxJobs == 0 {
		maxJobs = s.opts.MaxJobsPerQuery
	}
	filterEasyApply := req.FilterEasyApply || s.opts.FilterEasyApply

	result := RunResult{StartedAt: time.Now()}
	seen := NewSeenSet()

	var runErr error
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		stats := s.runQuery(ctx, query, maxPages, maxJobs, filterEasyApply, seen, &result)
		result.Queries = append(result.Queries, stats)
		slog.InfoContext(ctx, "query finished",
			"query", query.Name,
			"jobs_found", stats.JobsFound,
			"unique_jobs", stats.UniqueJobs,
		)
	}

	AnnotateExperienceLevels(result.Jobs)
	result.TotalUnique = len(result.Jobs)
	result.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.Int("total_unique", result.TotalUnique),
		attribute.Int("total_duplicates", result.TotalDuplicates),
	)

	s.persist(ctx, &result)
	s.digest(ctx, &result)

	return result, runErr
}

func (s *Service) runQuery(
	ctx context.Context,
	query listing.SearchQuery,
	maxPages, maxJobs int,
	filterEasyApply bool,
	seen *SeenSet,
	result *RunResult,
) QueryStats {
	ctx, span := tracer.Start(ctx, "service:runQuery")
	defer span.End()
	span.SetAttributes(attribute.String("query", query.Name))

	stats := QueryStats{
		Name:     query.Name,
		Keywords: query.Keywords,
		Location: query.Location,
	}

	candidates, err := s.opts.Paginator.Collect(ctx, query, maxPages, maxJobs)
	if err != nil {
		// fail-soft: whatever the paginator managed to collect still counts
		span.RecordError(err)
		slog.WarnContext(ctx, "pagination ended with error",
			"query", query.Name, "collected", len(candidates), "err", err)
	}
	stats.JobsFound = len(candidates)

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return stats
		}
		if !seen.MarkSeen(candidate.JobID) {
			result.TotalDuplicates++
			continue
		}

		record, err := s.opts.Extractor.Fetch(ctx, candidate)
		if err != nil {
			// per-job miss, the id stays claimed
			slog.WarnContext(ctx, "job skipped",
				"query", query.Name, "job_id", candidate.JobID, "err", err)
			continue
		}
		if filterEasyApply && !record.EasyApply {
			continue
		}

		result.Jobs = append(result.Jobs, record)
		stats.UniqueJobs++
	}

	return stats
}

func (s *Service) persist(ctx context.Context, result *RunResult) {
	if s.opts.Store == nil {
		return
	}
	queries := make([]store.QueryStats, len(result.Queries))
	for i, q := range result.Queries {
		queries[i] = store.QueryStats{
			Name:       q.Name,
			Keywords:   q.Keywords,
			Location:   q.Location,
			JobsFound:  q.JobsFound,
			UniqueJobs: q.UniqueJobs,
		}
	}
	err := s.opts.Store.SaveRun(ctx, result.StartedAt, result.FinishedAt,
		result.TotalUnique, result.TotalDuplicates, queries, result.Jobs)
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist run")
		slog.ErrorContext(ctx, "failed to persist run", "err", err)
	}
}

func (s *Service) digest(ctx context.Context, result *RunResult) {
	if s.opts.Digest == nil || len(result.Jobs) == 0 {
		return
	}
	err := s.opts.Digest.Send(ctx, result.Jobs)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send digest email", "err", err)
	}
}
