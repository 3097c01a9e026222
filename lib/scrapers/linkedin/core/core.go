package core

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/linkedin/core")

var ErrLoginFailed = fmt.Errorf("Failed to login to your account.")
var ErrAuthNotEstablished = fmt.Errorf("no authenticated session has been established")

// State tracks the authentication machine. Transitions only move
// forward; StateAuthenticated and StateFailed are terminal for a run.
type State int

const (
	StateUnauthenticated State = iota
	StateCookieAttempted
	StateCredentialAttempted
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCookieAttempted:
		return "cookie_attempted"
	case StateCredentialAttempted:
		return "credential_attempted"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Credentials struct {
	Email    string
	Password string
	// pre-exported session cookies, tried before the credential path
	LiAt       string
	JSessionID string
}

// CredentialsFromEnv reads the account and optional session cookie
// values the way the deployment supplies them.
func CredentialsFromEnv() Credentials {
	return Credentials{
		Email:      os.Getenv("LINKEDIN_EMAIL"),
		Password:   os.Getenv("LINKEDIN_PASSWORD"),
		LiAt:       os.Getenv("LINKEDIN_LI_AT"),
		JSessionID: os.Getenv("LINKEDIN_JSESSIONID"),
	}
}

type ClientOptions struct {
	BaseUrl     string
	Credentials Credentials
	Identities  *identity.Pool
	Policy      backoff.Policy
	// attempts per Request call before giving up on network failures
	MaxAttempts int
	// identities appended on the final retry attempt
	ReplenishCount    int
	Timeout           time.Duration
	RequestsPerSecond float64
	// injected in tests so retry loops don't actually suspend
	Sleep backoff.Sleeper
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	identities  *identity.Pool
	policy      backoff.Policy
	maxAttempts int
	replenish   int
	creds       Credentials
	sleep       backoff.Sleeper
	jar         http.CookieJar
	state       State
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	// one shared pacer across every outbound request, whatever
	// component issues it
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(rps), 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, "scrapers/linkedin/http")

	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	replenish := opts.ReplenishCount
	if replenish == 0 {
		replenish = 5
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	identities := opts.Identities
	if identities == nil {
		identities = identity.New(10)
	}

	c := &Client{
		BaseUrl:     baseUrl,
		Http:        client,
		identities:  identities,
		policy:      opts.Policy,
		maxAttempts: maxAttempts,
		replenish:   replenish,
		creds:       opts.Credentials,
		sleep:       sleep,
		jar:         jar,
		state:       StateUnauthenticated,
	}
	return c, nil
}

func (c *Client) State() State {
	return c.state
}

// Login runs the authentication machine to a terminal state: the
// cookie fast path when session cookies were supplied, then the
// credential path, then StateFailed. It is run once per process; a
// session that silently dies later surfaces as extraction misses, not
// as a re-login.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	if c.state != StateUnauthenticated {
		return fmt.Errorf("login already attempted, state: %s", c.state)
	}

	if c.creds.LiAt != "" {
		c.state = StateCookieAttempted
		ok, err := c.loginWithCookies(ctx)
		if err != nil {
			slog.WarnContext(ctx, "cookie auth request failed", "err", err)
		}
		if ok {
			c.state = StateAuthenticated
			slog.InfoContext(ctx, "authenticated via session cookies")
			return nil
		}
		slog.InfoContext(ctx, "session cookies rejected, falling back to credentials")
	}

	c.state = StateCredentialAttempted
	ok, err := c.loginWithCredentials(ctx)
	if err != nil {
		c.state = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential login failed")
		return err
	}
	if !ok {
		c.state = StateFailed
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return ErrLoginFailed
	}

	c.state = StateAuthenticated
	slog.InfoContext(ctx, "authenticated via credentials")
	return nil
}

func (c *Client) loginWithCookies(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:loginWithCookies")
	defer span.End()

	// host-only cookies: a Domain attribute would be rejected by the
	// jar when the base url is an ip address
	cookies := []*http.Cookie{{
		Name:  "li_at",
		Value: c.creds.LiAt,
		Path:  "/",
	}}
	if c.creds.JSessionID != "" {
		cookies = append(cookies, &http.Cookie{
			Name:  "JSESSIONID",
			Value: c.creds.JSessionID,
			Path:  "/",
		})
	}
	c.jar.SetCookies(c.BaseUrl, cookies)

	id := c.identities.Acquire()
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(id.Headers()).
		Get("/feed/")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to probe authenticated area")
		return false, err
	}

	return c.Verified(res), nil
}

func (c *Client) loginWithCredentials(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:loginWithCredentials")
	defer span.End()

	id := c.identities.Acquire()
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(id.Headers()).
		Get("/login")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login page")
		return false, err
	}

	csrf := doc.Find("input[name=loginCsrfParam]").AttrOr("value", "")
	if csrf == "" {
		span.SetStatus(codes.Error, "failed to find login csrf token")
		return false, fmt.Errorf("could not find loginCsrfParam on login page")
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetHeaders(id.Headers()).
		SetFormData(map[string]string{
			"session_key":      c.creds.Email,
			"session_password": c.creds.Password,
			"loginCsrfParam":   csrf,
		}).
		Post("/checkpoint/lg/login-submit")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return false, err
	}

	return c.Verified(res), nil
}

// Verified is the authentication predicate: a disjunction of three
// independent signals, because the server satisfies different ones
// depending on which path the response took.
func (c *Client) Verified(res *resty.Response) bool {
	if AuthenticatedURL(finalURL(res)) {
		return true
	}

	// only cookies set BY the response count: the jar also holds
	// whatever we injected ourselves, which proves nothing
	if HasSessionCookie(res.Cookies()) {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return false
	}
	return HasAuthMarker(doc)
}

func finalURL(res *resty.Response) *url.URL {
	if res.RawResponse == nil || res.RawResponse.Request == nil {
		return nil
	}
	return res.RawResponse.Request.URL
}

// AuthenticatedURL reports whether the response settled inside the
// authenticated area rather than being bounced to a login or guest page.
func AuthenticatedURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/feed")
}

// HasSessionCookie reports whether a live session token is present.
func HasSessionCookie(cookies []*http.Cookie) bool {
	for _, cookie := range cookies {
		if cookie.Name == "li_at" && cookie.Value != "" {
			return true
		}
	}
	return false
}

// HasAuthMarker reports whether the page carries DOM only rendered for
// authenticated users.
func HasAuthMarker(doc *goquery.Document) bool {
	if len(doc.Find(".global-nav__me").Nodes) > 0 {
		return true
	}
	if doc.Find("meta[name=isGuest]").AttrOr("content", "") == "false" {
		return true
	}
	return false
}

// Request issues one pre-authenticated GET with a rotated identity.
// Connection-level failures are retried here with randomized backoff;
// HTTP status interpretation is left to the caller, which knows whether
// a 429 means retry-same-page or retry-same-job.
func (c *Client) Request(ctx context.Context, rawUrl string, params map[string]string) (*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "client:Request")
	defer span.End()

	if c.state != StateAuthenticated {
		span.SetStatus(codes.Error, ErrAuthNotEstablished.Error())
		return nil, ErrAuthNotEstablished
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := c.identities.Acquire()
		res, err := c.Http.R().
			SetContext(ctx).
			SetHeaders(id.Headers()).
			SetQueryParams(params).
			Get(rawUrl)
		if err == nil {
			return res, nil
		}

		lastErr = err
		span.RecordError(err)
		slog.WarnContext(ctx, "request failed",
			"url", rawUrl,
			"attempt", attempt+1,
			"err", err,
		)

		if attempt == c.maxAttempts-1 {
			break
		}
		if attempt == c.maxAttempts-2 {
			// the next attempt is the last one, give it a materially
			// different identity set
			c.identities.Replenish(c.replenish)
		}
		c.sleep(c.policy.Wait(backoff.NetworkFailure, attempt))
	}

	span.SetStatus(codes.Error, "attempts exhausted")
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", rawUrl, c.maxAttempts, lastErr)
}
