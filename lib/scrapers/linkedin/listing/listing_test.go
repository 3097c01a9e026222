package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const authenticatedFeed = `<html><head><meta name="isGuest" content="false"></head><body>feed</body></html>`

func listingPage(startID, count int) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b,
			`<li><div data-entity-urn="urn:li:jobPosting:%d"><span>Some Job</span><span>Easy Apply</span></div></li>`,
			startID+i,
		)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

// loggedInClient builds a core client authenticated against the given
// test server via its cookie fast path.
func loggedInClient(t *testing.T, serverURL string, pool *identity.Pool) *core.Client {
	t.Helper()
	client, err := core.NewClient(context.Background(), core.ClientOptions{
		BaseUrl:           serverURL,
		Credentials:       core.Credentials{LiAt: "test-session"},
		Identities:        pool,
		Policy:            backoff.Policy{},
		MaxAttempts:       3,
		Timeout:           time.Second * 5,
		RequestsPerSecond: 1000,
		Sleep:             func(time.Duration) {},
	})
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))
	return client
}

// feedOr wraps a handler so the auth probe endpoint always verifies.
func feedOr(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed/" {
			fmt.Fprint(w, authenticatedFeed)
			return
		}
		next(w, r)
	}
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	var mu sync.Mutex
	var starts []string
	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()

		if start == "0" {
			fmt.Fprint(w, listingPage(1000, 25))
			return
		}
		fmt.Fprint(w, "<html><body><ul></ul></body></html>")
	}))
	defer server.Close()

	pool := identity.New(3)
	paginator := NewPaginator(Options{
		Client:      loggedInClient(t, server.URL, pool),
		BaseListURL: server.URL + "/jobs-guest/jobs/api/seeMoreJobPostings/search",
		Identities:  pool,
		Sleep:       func(time.Duration) {},
	})

	candidates, err := paginator.Collect(context.Background(),
		SearchQuery{Name: "engineer", Keywords: "engineer"}, 5, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 25)
	require.Equal(t, []string{"0", "25"}, starts, "must stop after the empty page, never requesting page 2")
}

func TestCollectRetriesRateLimitedPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		mu.Lock()
		hits++
		first := hits == 1
		mu.Unlock()

		if first {
			require.Equal(t, "0", start)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if start == "0" {
			fmt.Fprint(w, listingPage(2000, 3))
			return
		}
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer server.Close()

	pool := identity.New(3)
	var waits []time.Duration
	paginator := NewPaginator(Options{
		Client:         loggedInClient(t, server.URL, pool),
		BaseListURL:    server.URL + "/list",
		Policy:         backoff.Policy{RateLimitBase: time.Second * 7},
		Identities:     pool,
		ReplenishCount: 4,
		MaxAttempts:    3,
		Sleep:          func(d time.Duration) { waits = append(waits, d) },
	})

	candidates, err := paginator.Collect(context.Background(), SearchQuery{Name: "retry"}, 3, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	require.Contains(t, waits, time.Second*7, "rate limit wait must come from the policy")
	require.Equal(t, 7, pool.Size(), "identities must be replenished after a 429")
}

func TestCollectStopsOnServerError(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	var mu sync.Mutex
	var starts []string
	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()

		if start == "0" {
			fmt.Fprint(w, listingPage(3000, 25))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pool := identity.New(3)
	paginator := NewPaginator(Options{
		Client:      loggedInClient(t, server.URL, pool),
		BaseListURL: server.URL + "/list",
		Policy:      backoff.Policy{ServerErrorWait: time.Millisecond},
		Identities:  pool,
		Sleep:       func(time.Duration) {},
	})

	// fail-soft: page 0 survives even though page 1 errored
	candidates, err := paginator.Collect(context.Background(), SearchQuery{Name: "failsoft"}, 5, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 25)
	require.Equal(t, []string{"0", "25"}, starts)
}

func TestCollectHonorsJobCap(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage(4000, 25))
	}))
	defer server.Close()

	pool := identity.New(3)
	paginator := NewPaginator(Options{
		Client:      loggedInClient(t, server.URL, pool),
		BaseListURL: server.URL + "/list",
		Identities:  pool,
		Sleep:       func(time.Duration) {},
	})

	candidates, err := paginator.Collect(context.Background(), SearchQuery{Name: "capped"}, 10, 30)
	require.NoError(t, err)
	require.Len(t, candidates, 30)
}

func TestCollectRewritesStartOnFullURL(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	var mu sync.Mutex
	var queries []string
	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		if r.URL.Query().Get("start") == "0" {
			fmt.Fprint(w, listingPage(5000, 25))
			return
		}
		fmt.Fprint(w, "<html></html>")
	}))
	defer server.Close()

	pool := identity.New(3)
	paginator := NewPaginator(Options{
		Client:     loggedInClient(t, server.URL, pool),
		Identities: pool,
		Sleep:      func(time.Duration) {},
	})

	query := SearchQuery{
		Name: "url query",
		URL:  server.URL + "/jobs/search/?f_E=2&f_TPR=r3600&keywords=golang&start=999",
	}
	candidates, err := paginator.Collect(context.Background(), query, 2, 0)
	require.NoError(t, err)
	require.Len(t, candidates, 25)

	for _, q := range queries {
		require.Contains(t, q, "keywords=golang", "original parameters must survive the start rewrite")
	}
	require.Contains(t, queries[0], "start=0")
	require.Contains(t, queries[1], "start=25")
}

func TestCollectCancellation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	server := httptest.NewServer(feedOr(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage(6000, 25))
	}))
	defer server.Close()

	pool := identity.New(3)
	ctx, cancel := context.WithCancel(context.Background())

	pages := 0
	paginator := NewPaginator(Options{
		Client:      loggedInClient(t, server.URL, pool),
		BaseListURL: server.URL + "/list",
		Identities:  pool,
		Sleep: func(time.Duration) {
			// cancel between pages, after the first page landed
			pages++
			cancel()
		},
	})

	candidates, err := paginator.Collect(ctx, SearchQuery{Name: "cancelled"}, 10, 0)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, candidates, 25, "already-collected candidates survive cancellation")
}

func TestExtractCandidatesFallbackAnchors(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	page := `<html><body>
	<li><a href="https://www.linkedin.com/jobs/view/111222333?tracking=x">Backend Engineer</a>
	<span>Be an early applicant</span></li>
	<li><a href="/jobs/view/444555666/">Platform Engineer</a><span>Easy Apply</span></li>
	<a href="/jobs/collections/recommended">not a job link</a>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	candidates := ExtractCandidates(doc)
	require.Len(t, candidates, 2)

	require.Equal(t, "111222333", candidates[0].JobID)
	require.False(t, candidates[0].EasyApply)
	require.Equal(t, ApplicationTypeExternal, candidates[0].ApplicationType)

	require.Equal(t, "444555666", candidates[1].JobID)
	require.True(t, candidates[1].EasyApply)
	require.Equal(t, ApplicationTypeEasyApply, candidates[1].ApplicationType)
}

func TestExtractCandidatesPrefersEntityUrns(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/linkedin/listing")
	defer cleanup()

	page := `<html><body><ul>
	<li><div data-entity-urn="urn:li:jobPosting:777"><span>Job A</span></div>
	<a href="/jobs/view/777/">Job A</a></li>
	</ul></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	candidates := ExtractCandidates(doc)
	require.Len(t, candidates, 1)
	require.Equal(t, "777", candidates[0].JobID)
	require.Equal(t, ApplicationTypeUnknown, candidates[0].ApplicationType)
}
