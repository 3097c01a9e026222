package backoff

import (
	"net/http"
	"time"

	"github.com/mazen160/go-random"
)

// Outcome classifies what a single network attempt produced, which in
// turn decides whether and how long to wait before trying again.
type Outcome int

const (
	Success Outcome = iota
	RateLimited
	TransientServerError
	PermanentClientError
	NetworkFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case TransientServerError:
		return "transient_server_error"
	case PermanentClientError:
		return "permanent_client_error"
	case NetworkFailure:
		return "network_failure"
	}
	return "unknown"
}

// Retryable reports whether another attempt can change the result.
func (o Outcome) Retryable() bool {
	return o == RateLimited || o == TransientServerError || o == NetworkFailure
}

// Classify maps an attempt's error/status pair onto an Outcome. A
// transport error always wins over whatever partial response came back.
func Classify(statusCode int, err error) Outcome {
	if err != nil {
		return NetworkFailure
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return Success
	case statusCode == http.StatusTooManyRequests:
		return RateLimited
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return PermanentClientError
	default:
		return TransientServerError
	}
}

// Sleeper performs the actual suspension; tests inject a recorder so
// the policy is checked without real delays.
type Sleeper func(time.Duration)

type Policy struct {
	// base wait for rate limiting, doubled per attempt with no cap.
	// callers bound attempts, not the delay.
	RateLimitBase time.Duration
	// flat wait for any other non-2xx status
	ServerErrorWait time.Duration
	// randomized wait range for connection-level failures, so retries
	// against an unreachable host don't align into storms
	NetworkWaitMin time.Duration
	NetworkWaitMax time.Duration
}

// Wait computes how long to suspend before retrying after the given
// outcome on the given attempt index. Non-retryable outcomes wait zero.
func (p Policy) Wait(o Outcome, attempt int) time.Duration {
	switch o {
	case RateLimited:
		return p.RateLimitBase << attempt
	case TransientServerError:
		return p.ServerErrorWait
	case NetworkFailure:
		min := p.NetworkWaitMin
		max := p.NetworkWaitMax
		if max <= min {
			return min
		}
		jitter, err := random.IntRange(0, int(max-min)+1)
		if err != nil {
			return min
		}
		return min + time.Duration(jitter)
	}
	return 0
}
