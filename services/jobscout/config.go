package jobscout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/scrapers/linkedin/core"
	"jobscout-backend/lib/scrapers/linkedin/listing"
	"jobscout-backend/lib/scrapers/linkedin/posting"
	"jobscout-backend/lib/sqliteutil"
	"jobscout-backend/services/jobscout/store"
)

type StoreConfig struct {
	// local sqlite file path
	File string `json:"file"`
	// remote libsql url, takes precedence over File
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c StoreConfig) dsn() string {
	if c.Url == "" {
		return c.File
	}
	if c.AuthToken == "" {
		return c.Url
	}
	return c.Url + "?authToken=" + c.AuthToken
}

// SearchUrlConfig is a fully-formed listing url query, the shape the
// http api also accepts.
type SearchUrlConfig struct {
	Name        string `json:"name"`
	Url         string `json:"url"`
	Description string `json:"description"`
}

// Config is the static run configuration document. Every field in the
// required set must be present: partial configuration never silently
// degrades scraping behavior, it kills the process instead.
type Config struct {
	BaseUrl     string `json:"base_url"`
	BaseListUrl string `json:"base_list_url"`
	BaseJobUrl  string `json:"base_job_url"`
	JobViewUrl  string `json:"job_view_url"`

	SearchQueries []listing.SearchQuery `json:"search_queries"`
	SearchUrls    []SearchUrlConfig     `json:"search_urls"`

	MaxPagesPerSearch     int      `json:"max_pages_per_search"`
	NumJobsPerQuery       int      `json:"num_jobs_per_query"`
	RequestTimeoutSeconds int      `json:"request_timeout_seconds"`
	PageDelaySeconds      int      `json:"page_delay_seconds"`
	CsvFilename           string   `json:"csv_filename"`
	InitialIdentityCount  int      `json:"initial_identity_count"`
	ReplenishIdentityCount int     `json:"replenish_identity_count"`
	MaxAttempts           int      `json:"max_attempts"`
	RetryWait429Seconds   int      `json:"retry_wait_429_seconds"`
	RetryWaitNon429Seconds int     `json:"retry_wait_non429_seconds"`
	OutputFields          []string `json:"output_fields"`

	// optional
	FilterEasyApply        bool         `json:"filter_easy_apply"`
	ListenPort             int          `json:"listen_port"`
	RequestsPerSecond      float64      `json:"requests_per_second"`
	NetworkWaitMinSeconds  int          `json:"network_wait_min_seconds"`
	NetworkWaitMaxSeconds  int          `json:"network_wait_max_seconds"`
	Store                  *StoreConfig `json:"store"`
	Smtp                   *SmtpConfig  `json:"smtp"`
}

// Validate reports every missing required key at once, so a broken
// config is fixed in one round trip instead of key by key.
func (c Config) Validate() error {
	var missing []string

	require := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	require(c.BaseUrl != "", "base_url")
	require(c.BaseListUrl != "", "base_list_url")
	require(c.BaseJobUrl != "", "base_job_url")
	require(c.JobViewUrl != "", "job_view_url")
	require(len(c.SearchQueries) > 0 || len(c.SearchUrls) > 0, "search_queries")
	require(c.MaxPagesPerSearch > 0, "max_pages_per_search")
	require(c.NumJobsPerQuery > 0, "num_jobs_per_query")
	require(c.RequestTimeoutSeconds > 0, "request_timeout_seconds")
	require(c.PageDelaySeconds > 0, "page_delay_seconds")
	require(c.CsvFilename != "", "csv_filename")
	require(c.InitialIdentityCount > 0, "initial_identity_count")
	require(c.ReplenishIdentityCount > 0, "replenish_identity_count")
	require(c.MaxAttempts > 0, "max_attempts")
	require(c.RetryWait429Seconds > 0, "retry_wait_429_seconds")
	require(c.RetryWaitNon429Seconds > 0, "retry_wait_non429_seconds")
	require(len(c.OutputFields) > 0, "output_fields")

	if len(missing) > 0 {
		return fmt.Errorf("config missing required keys: %s", strings.Join(missing, ", "))
	}

	for _, query := range c.SearchQueries {
		if query.Name == "" {
			return fmt.Errorf("every search query needs a name")
		}
		if query.URL == "" && query.Keywords == "" && len(query.Params) == 0 {
			return fmt.Errorf("search query %q needs a url, keywords, or params", query.Name)
		}
	}
	for _, u := range c.SearchUrls {
		if u.Url == "" {
			return fmt.Errorf("search url %q needs a url", u.Name)
		}
	}

	return ValidateFields(c.OutputFields)
}

// Queries merges both query lists into the form the paginator takes.
func (c Config) Queries() []listing.SearchQuery {
	queries := make([]listing.SearchQuery, 0, len(c.SearchQueries)+len(c.SearchUrls))
	queries = append(queries, c.SearchQueries...)
	for _, u := range c.SearchUrls {
		queries = append(queries, listing.SearchQuery{Name: u.Name, URL: u.Url})
	}
	return queries
}

func (c Config) Policy() backoff.Policy {
	policy := backoff.Policy{
		RateLimitBase:   time.Duration(c.RetryWait429Seconds) * time.Second,
		ServerErrorWait: time.Duration(c.RetryWaitNon429Seconds) * time.Second,
		NetworkWaitMin:  time.Duration(c.NetworkWaitMinSeconds) * time.Second,
		NetworkWaitMax:  time.Duration(c.NetworkWaitMaxSeconds) * time.Second,
	}
	if policy.NetworkWaitMin == 0 {
		policy.NetworkWaitMin = time.Second * 2
	}
	if policy.NetworkWaitMax <= policy.NetworkWaitMin {
		policy.NetworkWaitMax = policy.NetworkWaitMin + time.Second*4
	}
	return policy
}

// Engine is everything a fully wired scraping run needs: the
// authenticated client plus the service orchestrating it.
type Engine struct {
	Client  *core.Client
	Service *Service
	Store   *store.Store
}

// NewEngine builds the scraping stack from a validated config. Login
// is left to the caller, which decides whether an auth failure is
// process-fatal.
func NewEngine(ctx context.Context, config Config, creds core.Credentials) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool := identity.New(config.InitialIdentityCount)
	policy := config.Policy()

	client, err := core.NewClient(ctx, core.ClientOptions{
		BaseUrl:           config.BaseUrl,
		Credentials:       creds,
		Identities:        pool,
		Policy:            policy,
		MaxAttempts:       config.MaxAttempts,
		ReplenishCount:    config.ReplenishIdentityCount,
		Timeout:           time.Duration(config.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond: config.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize client: %w", err)
	}

	paginator := listing.NewPaginator(listing.Options{
		Client:         client,
		BaseListURL:    config.BaseListUrl,
		Policy:         policy,
		Identities:     pool,
		ReplenishCount: config.ReplenishIdentityCount,
		MaxAttempts:    config.MaxAttempts,
		PageDelay:      time.Duration(config.PageDelaySeconds) * time.Second,
	})

	extractor := posting.NewExtractor(posting.Options{
		Client:         client,
		BaseJobURL:     config.BaseJobUrl,
		ViewURL:        config.JobViewUrl,
		Policy:         policy,
		Identities:     pool,
		ReplenishCount: config.ReplenishIdentityCount,
		MaxAttempts:    config.MaxAttempts,
	})

	opts := Options{
		Paginator:       paginator,
		Extractor:       extractor,
		Queries:         config.Queries(),
		MaxPages:        config.MaxPagesPerSearch,
		MaxJobsPerQuery: config.NumJobsPerQuery,
		FilterEasyApply: config.FilterEasyApply,
	}

	var st *store.Store
	if config.Store != nil && config.Store.dsn() != "" {
		db, err := sqliteutil.OpenDB(store.Schema, config.Store.dsn())
		if err != nil {
			return nil, fmt.Errorf("open run-history store: %w", err)
		}
		s := store.NewStore(db)
		st = &s
		opts.Store = st
	}

	if config.Smtp != nil && config.Smtp.Server != "" {
		opts.Digest = NewDigest(*config.Smtp)
	}

	return &Engine{
		Client:  client,
		Service: NewService(opts),
		Store:   st,
	}, nil
}
