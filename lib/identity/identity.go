package identity

import (
	"fmt"
	"sync"

	"github.com/mazen160/go-random"
)

// Identity is one synthesized browser client: a user agent plus the
// header set a real install of that browser would send. Immutable once
// generated.
type Identity struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Extra          map[string]string
}

func (id Identity) Headers() map[string]string {
	headers := map[string]string{
		"User-Agent":      id.UserAgent,
		"Accept":          id.Accept,
		"Accept-Language": id.AcceptLanguage,
	}
	for k, v := range id.Extra {
		headers[k] = v
	}
	return headers
}

var platforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

// randInt returns a uniform value in [min, max]. crypto/rand read
// failures are not recoverable in any useful way here, so it degrades
// to the lower bound instead of propagating an error through every
// header synthesis call site.
func randInt(min, max int) int {
	v, err := random.IntRange(min, max+1)
	if err != nil {
		return min
	}
	return v
}

// synthesize builds one self-consistent identity: the version string
// always matches the browser family named in the user agent.
func synthesize() Identity {
	platform := platforms[randInt(0, len(platforms)-1)]

	var ua string
	if randInt(0, 1) == 0 {
		version := fmt.Sprintf(
			"%d.0.%d.%d",
			randInt(90, 115), randInt(3000, 4000), randInt(100, 200),
		)
		ua = fmt.Sprintf(
			"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
			platform, version,
		)
	} else {
		version := fmt.Sprintf("%d.0", randInt(80, 110))
		ua = fmt.Sprintf(
			"Mozilla/5.0 (%s; rv:%s) Gecko/20100101 Firefox/%s",
			platform, version, version,
		)
	}

	return Identity{
		UserAgent:      ua,
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	}
}

// Pool holds the identities available to outbound requests. It only
// grows within a run; rotating through a larger pool after errors is
// what diversifies retries.
type Pool struct {
	mu         sync.Mutex
	identities []Identity
	initial    int
}

func New(initial int) *Pool {
	p := &Pool{initial: initial}
	p.Replenish(initial)
	return p
}

// Acquire returns a uniform-random identity from the pool.
func (p *Pool) Acquire() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		for i := 0; i < p.initial; i++ {
			p.identities = append(p.identities, synthesize())
		}
	}
	return p.identities[randInt(0, len(p.identities)-1)]
}

// Replenish appends n freshly synthesized identities. Existing ones
// are never discarded.
func (p *Pool) Replenish(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < n; i++ {
		p.identities = append(p.identities, synthesize())
	}
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}
