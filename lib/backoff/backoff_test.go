package backoff

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"jobscout-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	cases := []struct {
		name     string
		status   int
		err      error
		expected Outcome
	}{
		{name: "ok", status: http.StatusOK, expected: Success},
		{name: "created", status: 201, expected: Success},
		{name: "rate limited", status: http.StatusTooManyRequests, expected: RateLimited},
		{name: "not found", status: http.StatusNotFound, expected: PermanentClientError},
		{name: "gone", status: http.StatusGone, expected: PermanentClientError},
		{name: "server error", status: http.StatusInternalServerError, expected: TransientServerError},
		{name: "bad gateway", status: http.StatusBadGateway, expected: TransientServerError},
		{name: "forbidden", status: http.StatusForbidden, expected: TransientServerError},
		{name: "network error", status: 0, err: fmt.Errorf("connection refused"), expected: NetworkFailure},
		{name: "error wins over status", status: http.StatusOK, err: fmt.Errorf("timeout"), expected: NetworkFailure},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, Classify(c.status, c.err))
		})
	}
}

func TestRateLimitedWaitGrowsExponentially(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	policy := Policy{RateLimitBase: time.Second * 5}

	previous := time.Duration(0)
	strictlyIncreased := false
	for attempt := 0; attempt <= 3; attempt++ {
		wait := policy.Wait(RateLimited, attempt)
		require.GreaterOrEqual(t, wait, previous, "wait must be non-decreasing in attempt index")
		if wait > previous {
			strictlyIncreased = true
		}
		previous = wait
	}
	require.True(t, strictlyIncreased, "wait must strictly increase at least once across attempts 0..3")

	require.Equal(t, time.Second*5, policy.Wait(RateLimited, 0))
	require.Equal(t, time.Second*40, policy.Wait(RateLimited, 3))
}

func TestTransientWaitIsFlat(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	policy := Policy{ServerErrorWait: time.Second * 10}
	for attempt := 0; attempt < 5; attempt++ {
		require.Equal(t, time.Second*10, policy.Wait(TransientServerError, attempt))
	}
}

func TestNetworkWaitWithinRange(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	policy := Policy{
		NetworkWaitMin: time.Second * 2,
		NetworkWaitMax: time.Second * 6,
	}
	for attempt := 0; attempt < 20; attempt++ {
		wait := policy.Wait(NetworkFailure, attempt)
		require.GreaterOrEqual(t, wait, time.Second*2)
		require.LessOrEqual(t, wait, time.Second*6)
	}

	// degenerate range collapses to the minimum
	policy.NetworkWaitMax = policy.NetworkWaitMin
	require.Equal(t, time.Second*2, policy.Wait(NetworkFailure, 0))
}

func TestNoWaitForTerminalOutcomes(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	policy := Policy{
		RateLimitBase:   time.Second,
		ServerErrorWait: time.Second,
		NetworkWaitMin:  time.Second,
		NetworkWaitMax:  time.Second * 2,
	}
	require.Equal(t, time.Duration(0), policy.Wait(Success, 0))
	require.Equal(t, time.Duration(0), policy.Wait(PermanentClientError, 0))
}

func TestRetryable(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:backoff")
	defer cleanup()

	require.True(t, RateLimited.Retryable())
	require.True(t, TransientServerError.Retryable())
	require.True(t, NetworkFailure.Retryable())
	require.False(t, Success.Retryable())
	require.False(t, PermanentClientError.Retryable())
}
