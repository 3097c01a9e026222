package store

import (
	"context"
	"testing"
	"time"

	"jobscout-backend/lib/scrapers/linkedin/posting"
	"jobscout-backend/lib/sqliteutil"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) Store {
	db, err := sqliteutil.OpenDB(Schema, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestSaveRunRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Minute)
	queries := []QueryStats{
		{Name: "backend", Keywords: "go engineer", Location: "Berlin", JobsFound: 30, UniqueJobs: 28},
		{Name: "platform", Keywords: "platform", JobsFound: 12, UniqueJobs: 5},
	}
	jobs := []posting.JobRecord{
		{JobID: "100", Title: "Go Engineer", Company: "Acme", EasyApply: true, ApplicationType: "easy_apply"},
		{JobID: "200", Title: "SRE", Company: "Beta"},
	}

	err := store.SaveRun(ctx, started, finished, 33, 9, queries, jobs)
	require.NoError(t, err)

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, started.Unix(), runs[0].StartedAt.Unix())
	require.Equal(t, finished.Unix(), runs[0].FinishedAt.Unix())
	require.Equal(t, 33, runs[0].TotalUnique)
	require.Equal(t, 9, runs[0].TotalDuplicates)

	gotQueries, err := store.RunQueries(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Equal(t, queries, gotQueries)

	gotJobs, err := store.Jobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, gotJobs, 2)
	require.Equal(t, "100", gotJobs[0].JobID)
	require.True(t, gotJobs[0].EasyApply)
}

func TestResurfacedJobsDontDuplicate(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	job := posting.JobRecord{JobID: "100", Title: "Go Engineer"}
	now := time.Now()

	err := store.SaveRun(ctx, now, now, 1, 0, nil, []posting.JobRecord{job})
	require.NoError(t, err)

	// same posting comes back in a later run, even with changed fields
	job.Title = "Go Engineer (Senior)"
	err = store.SaveRun(ctx, now.Add(time.Hour), now.Add(time.Hour), 1, 0, nil, []posting.JobRecord{job})
	require.NoError(t, err)

	count, err := store.UniqueJobCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	jobs, err := store.Jobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	// the first-seen record wins
	require.Equal(t, "Go Engineer", jobs[0].Title)
}

func TestRunsOrderedNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := store.SaveRun(ctx, base.Add(time.Duration(i)*time.Hour), base.Add(time.Duration(i)*time.Hour), i, 0, nil, nil)
		require.NoError(t, err)
	}

	runs, err := store.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Greater(t, runs[0].ID, runs[1].ID)
	require.Equal(t, 2, runs[0].TotalUnique)
}
