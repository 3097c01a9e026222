package identity

import (
	"strings"
	"testing"

	"jobscout-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestPoolGrowth(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:identity")
	defer cleanup()

	pool := New(5)
	require.Equal(t, 5, pool.Size())

	pool.Replenish(3)
	require.Equal(t, 8, pool.Size())

	// replenishing never shrinks or resets the pool
	pool.Replenish(0)
	require.Equal(t, 8, pool.Size())
}

func TestAcquireFromEmptyPool(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:identity")
	defer cleanup()

	pool := New(0)
	pool.initial = 4

	id := pool.Acquire()
	require.NotEmpty(t, id.UserAgent)
	require.Equal(t, 4, pool.Size())
}

func TestIdentitySelfConsistency(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:identity")
	defer cleanup()

	pool := New(100)
	for i := 0; i < 100; i++ {
		id := pool.Acquire()

		require.NotEmpty(t, id.UserAgent)
		require.Equal(t, "en-US,en;q=0.9", id.AcceptLanguage)
		require.Contains(t, id.Accept, "text/html")

		isChrome := strings.Contains(id.UserAgent, "Chrome/")
		isFirefox := strings.Contains(id.UserAgent, "Firefox/")
		require.True(t, isChrome != isFirefox, "ua must be exactly one browser family: %s", id.UserAgent)

		if isChrome {
			require.NotContains(t, id.UserAgent, "rv:")
			require.Contains(t, id.UserAgent, "Safari/537.36")
		}
		if isFirefox {
			require.Contains(t, id.UserAgent, "rv:")
			require.Contains(t, id.UserAgent, "Gecko/20100101")
		}
	}
}

func TestHeaders(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:identity")
	defer cleanup()

	id := Identity{
		UserAgent:      "test-agent",
		Accept:         "text/html",
		AcceptLanguage: "en-US",
		Extra:          map[string]string{"Referer": "https://example.com"},
	}
	headers := id.Headers()
	require.Equal(t, "test-agent", headers["User-Agent"])
	require.Equal(t, "https://example.com", headers["Referer"])
}
