package listing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"jobscout-backend/lib/backoff"
	"jobscout-backend/lib/htmlutil"
	"jobscout-backend/lib/identity"
	"jobscout-backend/lib/scrapers/linkedin/core"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/linkedin/listing")

// PageSize is the listing granularity the upstream service paginates by.
const PageSize = 25

const (
	ApplicationTypeEasyApply = "easy_apply"
	ApplicationTypeExternal  = "external"
	ApplicationTypeUnknown   = "unknown"
)

// SearchQuery is one configured search: either a fully-formed listing
// URL or a set of raw query parameters against the guest listing API.
type SearchQuery struct {
	Name     string            `json:"name"`
	URL      string            `json:"url"`
	Keywords string            `json:"keywords"`
	Location string            `json:"location"`
	Params   map[string]string `json:"params"`
}

// CandidateJob is a job discovered on a listing page: just the id and
// the coarse signals the card surface carries. Detail extraction comes
// later and separately.
type CandidateJob struct {
	JobID           string
	EasyApply       bool
	ApplicationType string
}

type Options struct {
	Client *core.Client
	// base url of the guest listing API, used for Params-style queries
	BaseListURL    string
	Policy         backoff.Policy
	Identities     *identity.Pool
	ReplenishCount int
	MaxAttempts    int
	// politeness pacing between successive pages
	PageDelay time.Duration
	Sleep     backoff.Sleeper
}

// Paginator walks one query across listing pages, extracting candidate
// jobs until a stop condition: page limit, empty page, or a server
// error that backoff can't fix.
type Paginator struct {
	opts Options
}

func NewPaginator(opts Options) *Paginator {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.ReplenishCount == 0 {
		opts.ReplenishCount = 5
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Paginator{opts: opts}
}

// pageURL builds the listing request for the given offset. A
// fully-formed query URL gets its `start` parameter rewritten; raw
// parameters go against the guest listing API.
func (p *Paginator) pageURL(query SearchQuery, offset int) (string, map[string]string, error) {
	if query.URL != "" {
		u, err := url.Parse(query.URL)
		if err != nil {
			return "", nil, fmt.Errorf("parse query url: %w", err)
		}
		values := u.Query()
		values.Set("start", strconv.Itoa(offset))
		u.RawQuery = values.Encode()
		return u.String(), nil, nil
	}

	params := map[string]string{}
	for k, v := range query.Params {
		params[k] = v
	}
	if query.Keywords != "" {
		params["keywords"] = query.Keywords
	}
	if query.Location != "" {
		params["location"] = query.Location
	}
	params["start"] = strconv.Itoa(offset)
	return p.opts.BaseListURL, params, nil
}

// Collect walks up to maxPages listing pages for the query. maxJobs of
// zero means no per-query cap. Errors past the first page are
// fail-soft: whatever was already collected is returned.
func (p *Paginator) Collect(ctx context.Context, query SearchQuery, maxPages, maxJobs int) ([]CandidateJob, error) {
	ctx, span := tracer.Start(ctx, "paginator:Collect")
	defer span.End()
	span.SetAttributes(attribute.String("query", query.Name))

	var collected []CandidateJob

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		pageUrl, params, err := p.pageURL(query, page*PageSize)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "bad query url")
			return collected, err
		}

		candidates, stop := p.collectPage(ctx, pageUrl, params, page)
		if len(candidates) == 0 {
			// end of results, or a page that never yielded
			slog.InfoContext(ctx, "no more candidates, stopping pagination",
				"query", query.Name, "page", page)
			return collected, nil
		}

		for _, c := range candidates {
			collected = append(collected, c)
			if maxJobs > 0 && len(collected) >= maxJobs {
				slog.InfoContext(ctx, "reached per-query job cap",
					"query", query.Name, "count", len(collected))
				return collected, nil
			}
		}
		if stop {
			return collected, nil
		}

		slog.InfoContext(ctx, "collected listing page",
			"query", query.Name, "page", page, "total", len(collected))
		p.opts.Sleep(p.opts.PageDelay)
	}

	return collected, nil
}

// collectPage fetches one listing offset, retrying rate limits in
// place. The returned stop flag means pagination should not advance
// past this page even though it yielded candidates.
func (p *Paginator) collectPage(ctx context.Context, pageUrl string, params map[string]string, page int) ([]CandidateJob, bool) {
	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		res, err := p.opts.Client.Request(ctx, pageUrl, params)
		if err != nil {
			// connection-level retries already happened inside Request;
			// a surviving error stops the whole pagination fail-soft
			slog.ErrorContext(ctx, "listing page unreachable", "page", page, "err", err)
			return nil, true
		}

		switch outcome := backoff.Classify(res.StatusCode(), nil); outcome {
		case backoff.Success:
			doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
			if err != nil {
				slog.ErrorContext(ctx, "failed to parse listing page", "page", page, "err", err)
				return nil, true
			}
			return ExtractCandidates(doc), false

		case backoff.RateLimited:
			wait := p.opts.Policy.Wait(outcome, attempt)
			slog.WarnContext(ctx, "listing page rate limited, retrying same page",
				"page", page, "attempt", attempt+1, "wait", wait)
			p.opts.Sleep(wait)
			p.opts.Identities.Replenish(p.opts.ReplenishCount)
			// retry the same offset, do not advance

		default:
			// non-429 http errors are not worth hammering: wait once,
			// then give up on the rest of this query
			wait := p.opts.Policy.Wait(backoff.TransientServerError, attempt)
			slog.ErrorContext(ctx, "listing page returned error status, stopping pagination",
				"page", page, "status", res.StatusCode(), "wait", wait)
			p.opts.Sleep(wait)
			return nil, true
		}
	}

	slog.ErrorContext(ctx, "listing page attempts exhausted", "page", page)
	return nil, true
}

var jobViewRegex = regexp.MustCompile(`/jobs/view/(\d+)`)

// ExtractCandidates pulls candidate jobs out of a listing document. Two
// markup shapes are tried in order, because the service A/B tests its
// listing DOM: entity-urn cards first, then plain job-view anchors.
func ExtractCandidates(doc *goquery.Document) []CandidateJob {
	var candidates []CandidateJob
	seen := map[string]bool{}

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		urn, ok := li.Find("div[data-entity-urn]").Attr("data-entity-urn")
		if !ok {
			return
		}
		segments := strings.Split(urn, ":")
		id := segments[len(segments)-1]
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		candidates = append(candidates, classifyCard(id, cardText(li)))
	})
	if len(candidates) > 0 {
		return candidates
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		groups := jobViewRegex.FindStringSubmatch(href)
		if len(groups) < 2 {
			return
		}
		id := groups[1]
		if seen[id] {
			return
		}
		seen[id] = true

		// classify from the enclosing card when there is one
		text := cardText(a)
		if parent := a.Closest("li"); len(parent.Nodes) > 0 {
			text = cardText(parent)
		}
		candidates = append(candidates, classifyCard(id, text))
	})

	return candidates
}

func cardText(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	return strings.ToLower(htmlutil.GetText(sel.Nodes[0]))
}

func classifyCard(id, text string) CandidateJob {
	candidate := CandidateJob{
		JobID:           id,
		ApplicationType: ApplicationTypeUnknown,
	}
	if strings.Contains(text, "easy apply") {
		candidate.EasyApply = true
		candidate.ApplicationType = ApplicationTypeEasyApply
	} else if strings.Contains(text, "be an early applicant") {
		candidate.ApplicationType = ApplicationTypeExternal
	}
	return candidate
}
