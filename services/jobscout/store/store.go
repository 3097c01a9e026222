package store

import (
	"context"
	"database/sql"
	"time"

	"jobscout-backend/lib/scrapers/linkedin/posting"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Store keeps run history: one row per run, its per-query stats, and
// every job record ever collected. Job rows are keyed by the
// site-assigned id, so re-surfacing postings don't duplicate.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

type QueryStats struct {
	Name       string
	Keywords   string
	Location   string
	JobsFound  int
	UniqueJobs int
}

type RunSummary struct {
	ID              int64
	StartedAt       time.Time
	FinishedAt      time.Time
	TotalUnique     int
	TotalDuplicates int
}

func (s Store) SaveRun(
	ctx context.Context,
	startedAt, finishedAt time.Time,
	totalUnique, totalDuplicates int,
	queries []QueryStats,
	jobs []posting.JobRecord,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, finished_at, total_unique, total_duplicates)
		VALUES (?, ?, ?, ?)`,
		startedAt.Unix(), finishedAt.Unix(), totalUnique, totalDuplicates,
	)
	if err != nil {
		return err
	}
	runId, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, q := range queries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_queries (run_id, name, keywords, location, jobs_found, unique_jobs)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runId, q.Name, q.Keywords, q.Location, q.JobsFound, q.UniqueJobs,
		)
		if err != nil {
			return err
		}
	}

	for _, job := range jobs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO jobs (
				job_id, job_url, title, company, posted_ago, applicants,
				location, date_posted, description, experience_needed,
				experience_level, easy_apply, application_type, first_seen_run
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.JobID, job.JobURL, job.Title, job.Company, job.PostedAgo,
			job.Applicants, job.Location, job.DatePosted, job.Description,
			job.ExperienceNeeded, job.ExperienceLevel, job.EasyApply,
			job.ApplicationType, runId,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s Store) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, total_unique, total_duplicates
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var started, finished int64
		err := rows.Scan(&run.ID, &started, &finished, &run.TotalUnique, &run.TotalDuplicates)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(started, 0)
		run.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s Store) RunQueries(ctx context.Context, runId int64) ([]QueryStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, keywords, location, jobs_found, unique_jobs
		FROM run_queries WHERE run_id = ?`, runId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []QueryStats
	for rows.Next() {
		var q QueryStats
		err := rows.Scan(&q.Name, &q.Keywords, &q.Location, &q.JobsFound, &q.UniqueJobs)
		if err != nil {
			return nil, err
		}
		stats = append(stats, q)
	}
	return stats, rows.Err()
}

// Jobs returns the most recently collected records, newest run first.
func (s Store) Jobs(ctx context.Context, limit int) ([]posting.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, job_url, title, company, posted_ago, applicants,
			location, date_posted, description, experience_needed,
			experience_level, easy_apply, application_type
		FROM jobs ORDER BY first_seen_run DESC, job_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []posting.JobRecord
	for rows.Next() {
		var job posting.JobRecord
		err := rows.Scan(
			&job.JobID, &job.JobURL, &job.Title, &job.Company, &job.PostedAgo,
			&job.Applicants, &job.Location, &job.DatePosted, &job.Description,
			&job.ExperienceNeeded, &job.ExperienceLevel, &job.EasyApply,
			&job.ApplicationType,
		)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UniqueJobCount is the all-time number of distinct postings collected.
func (s Store) UniqueJobCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, err
}
