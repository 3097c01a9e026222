package posting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/htmlutil"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/scrapers/linkedin/listing"
	"jobscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/linkedin/posting")

// Unknown is the explicit sentinel for any field whose selectors all
// came up empty. Downstream consumers rely on every column existing.
const Unknown = "N/A"

// ErrPostingGone marks a posting that was removed upstream: a
// definitive miss, not a retryable failure.
var ErrPostingGone = fmt.Errorf("job posting no longer exists")

// JobRecord is the structured result of one detail page. Every string
// field defaults to the Unknown sentinel, never empty.
type JobRecord struct {
	JobID            string
	JobURL           string
	Title            string
	Company          string
	PostedAgo        string
	Applicants       string
	Location         string
	DatePosted       string
	Description      string
	ExperienceNeeded string
	ExperienceLevel  string
	EasyApply        bool
	ApplicationType  string
}

func (r JobRecord) Empty() bool {
	return r.JobID == ""
}

// Field maps an output-field name onto its value, for tabular export
// driven by a configured column list.
func (r JobRecord) Field(name string) (string, bool) {
	switch name {
	case "job_id":
		return r.JobID, true
	case "job_url":
		return r.JobURL, true
	case "job_title":
		return r.Title, true
	case "company_name":
		return r.Company, true
	case "time_posted":
		return r.PostedAgo, true
	case "num_applicants":
		return r.Applicants, true
	case "job_location":
		return r.Location, true
	case "date_posted":
		return r.DatePosted, true
	case "description_content":
		return r.Description, true
	case "experience_needed":
		return r.ExperienceNeeded, true
	case "experience_level":
		return r.ExperienceLevel, true
	case "easy_apply":
		return fmt.Sprint(r.EasyApply), true
	case "application_type":
		return r.ApplicationType, true
	}
	return "", false
}

// OutputFields is every column name Field understands, in canonical order.
var OutputFields = []string{
	"job_id",
	"job_url",
	"job_title",
	"company_name",
	"time_posted",
	"num_applicants",
	"job_location",
	"date_posted",
	"description_content",
	"experience_needed",
	"experience_level",
	"easy_apply",
	"application_type",
}

// ordered selector chains per semantic field: the first selector is
// the guest-view markup, the rest are authenticated-view and A/B
// variants. evaluated generically so new variants are additive.
var fieldSelectors = map[string][]string{
	"title":       {"h2.topcard__title", "h1.top-card-layout__title", "h1.topcard__title"},
	"company":     {"a.topcard__org-name-link", "span.topcard__flavor a", "a.top-card-layout__company-url"},
	"postedAgo":   {"span.posted-time-ago__text", "span.posted-time-ago__text--new"},
	"applicants":  {"span.num-applicants__caption", "figcaption.num-applicants__caption"},
	"location":    {"span.topcard__flavor--bullet", "span.top-card-layout__flavor--bullet"},
	"description": {"div.description__text", "div.show-more-less-html__markup", "section.description"},
}

// experienceKeywords drive the best-effort description scan when no
// dedicated experience field exists on the page.
var experienceKeywords = []string{"experience", "qualifications", "requirements"}

const experienceWindow = 100

type Options struct {
	Client *core.Client
	// printf template for a job id -> detail page url
	BaseJobURL string
	// printf template for a job id -> canonical posting url
	ViewURL        string
	Policy         backoff.Policy
	Identities     *identity.Pool
	ReplenishCount int
	MaxAttempts    int
	Sleep          backoff.Sleeper
}

// Extractor fetches single job detail pages and parses structured
// fields out of whichever markup variant comes back.
type Extractor struct {
	opts Options
}

func NewExtractor(opts Options) *Extractor {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.ReplenishCount == 0 {
		opts.ReplenishCount = 5
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Extractor{opts: opts}
}

// Fetch retrieves and parses one job's detail page. A removed posting
// returns ErrPostingGone after exactly one attempt; other failures are
// retried up to MaxAttempts with policy-driven waits. A non-nil error
// is always a per-job miss, never run-fatal.
func (e *Extractor) Fetch(ctx context.Context, candidate listing.CandidateJob) (JobRecord, error) {
	ctx, span := tracer.Start(ctx, "extractor:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", candidate.JobID))

	detailUrl := fmt.Sprintf(e.opts.BaseJobURL, candidate.JobID)
	lastOutcome := backoff.NetworkFailure

	for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return JobRecord{}, err
		}
		if attempt == e.opts.MaxAttempts-1 {
			// maximize the odds of the last try
			e.opts.Identities.Replenish(e.opts.ReplenishCount)
		}

		res, err := e.opts.Client.Request(ctx, detailUrl, nil)
		if err != nil {
			lastOutcome = backoff.NetworkFailure
			slog.WarnContext(ctx, "detail page unreachable",
				"job_id", candidate.JobID, "attempt", attempt+1, "err", err)
			e.opts.Sleep(e.opts.Policy.Wait(lastOutcome, attempt))
			continue
		}

		outcome := backoff.Classify(res.StatusCode(), nil)
		switch outcome {
		case backoff.Success:
			doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
			if err != nil {
				lastOutcome = backoff.TransientServerError
				slog.WarnContext(ctx, "failed to parse detail page",
					"job_id", candidate.JobID, "err", err)
				e.opts.Sleep(e.opts.Policy.Wait(lastOutcome, attempt))
				continue
			}
			return e.parse(doc, candidate), nil

		case backoff.PermanentClientError:
			// the posting was removed, retrying cannot bring it back
			slog.InfoContext(ctx, "posting gone",
				"job_id", candidate.JobID, "status", res.StatusCode())
			return JobRecord{}, ErrPostingGone

		case backoff.RateLimited:
			lastOutcome = outcome
			wait := e.opts.Policy.Wait(outcome, attempt)
			slog.WarnContext(ctx, "detail page rate limited",
				"job_id", candidate.JobID, "attempt", attempt+1, "wait", wait)
			e.opts.Sleep(wait)

		default:
			lastOutcome = outcome
			wait := e.opts.Policy.Wait(outcome, attempt)
			slog.WarnContext(ctx, "detail page returned error status",
				"job_id", candidate.JobID, "status", res.StatusCode(), "wait", wait)
			e.opts.Sleep(wait)
		}
	}

	err := fmt.Errorf("detail fetch for job %s exhausted %d attempts, last outcome: %s",
		candidate.JobID, e.opts.MaxAttempts, lastOutcome)
	span.SetStatus(codes.Error, err.Error())
	slog.ErrorContext(ctx, "giving up on job",
		"job_id", candidate.JobID, "last_outcome", lastOutcome.String())
	return JobRecord{}, err
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func (e *Extractor) parse(doc *goquery.Document, candidate listing.CandidateJob) JobRecord {
	record := JobRecord{
		JobID:           candidate.JobID,
		JobURL:          fmt.Sprintf(e.opts.ViewURL, candidate.JobID),
		EasyApply:       candidate.EasyApply,
		ApplicationType: candidate.ApplicationType,
		ExperienceLevel: Unknown,
		DatePosted:      Unknown,
	}

	record.Title = orUnknown(htmlutil.FirstMatch(doc, fieldSelectors["title"]))
	record.Company = orUnknown(htmlutil.FirstMatch(doc, fieldSelectors["company"]))
	record.PostedAgo = orUnknown(htmlutil.FirstMatch(doc, fieldSelectors["postedAgo"]))
	record.Applicants = orUnknown(htmlutil.FirstMatch(doc, fieldSelectors["applicants"]))
	record.Description = orUnknown(textutil.NormalizeSpace(
		htmlutil.FirstMatch(doc, fieldSelectors["description"]),
	))

	// structured JSON-LD wins for location and posting date; the
	// flavor-bullet selector is the fallback shape
	location, datePosted := extractStructuredData(doc)
	if location != "" {
		record.Location = location
	} else {
		record.Location = orUnknown(htmlutil.FirstMatch(doc, fieldSelectors["location"]))
	}
	if datePosted != "" {
		record.DatePosted = datePosted
	}

	record.ExperienceNeeded = e.extractExperience(doc, record.Description)

	return record
}

// extractExperience prefers a dedicated experience field; otherwise it
// scans the description for a keyword and takes a bounded window around
// it. The windowed form is approximate by construction.
func (e *Extractor) extractExperience(doc *goquery.Document, description string) string {
	if text := htmlutil.FirstMatch(doc, []string{"span.experience"}); text != "" {
		return text
	}
	if description == Unknown {
		return Unknown
	}
	return orUnknown(textutil.KeywordWindow(description, experienceKeywords, experienceWindow))
}

type ldAddress struct {
	AddressLocality string `json:"addressLocality"`
}

type ldLocation struct {
	Address ldAddress `json:"address"`
}

type ldJobPosting struct {
	DatePosted  string          `json:"datePosted"`
	JobLocation json.RawMessage `json:"jobLocation"`
}

// extractStructuredData reads the page's JSON-LD JobPosting block.
// Both the posting itself and its jobLocation may be served as an
// object or a single-element array.
func extractStructuredData(doc *goquery.Document) (location, datePosted string) {
	script := doc.Find(`script[type="application/ld+json"]`)
	if len(script.Nodes) == 0 {
		return "", ""
	}
	raw := strings.TrimSpace(htmlutil.GetText(script.Nodes[0]))
	if raw == "" {
		return "", ""
	}

	var posting ldJobPosting
	if strings.HasPrefix(raw, "[") {
		var postings []ldJobPosting
		if err := json.Unmarshal([]byte(raw), &postings); err != nil || len(postings) == 0 {
			return "", ""
		}
		posting = postings[0]
	} else if err := json.Unmarshal([]byte(raw), &posting); err != nil {
		return "", ""
	}

	if len(posting.JobLocation) > 0 {
		var loc ldLocation
		if err := json.Unmarshal(posting.JobLocation, &loc); err != nil {
			var locs []ldLocation
			if err := json.Unmarshal(posting.JobLocation, &locs); err == nil && len(locs) > 0 {
				loc = locs[0]
			}
		}
		location = loc.Address.AddressLocality
	}
	return location, posting.DatePosted
}
