package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	require.NotNil(t, su, "expected StatsUpdater to be non-nil")

	_, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	for _, m := range Metrics {
		su.RegisterMetric(m)
	}
	snap := su.Snapshot()
	for _, m := range Metrics {
		assert.Contains(t, snap, m, "expected registered metric to be reported")
		assert.Zero(t, snap[m])
	}
	assert.Contains(t, snap, uptimeKey)
}

func TestStatsUpdater_serveVars(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	for _, m := range Metrics {
		su.RegisterMetric(m)
	}
	su.Run()
	defer su.Stop()

	su.Incr(NumActiveRooms)
	su.Incr(NumActiveRooms)
	su.Decr(NumActiveRooms)
	su.Incr(NumConflicts)

	assert.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			return false
		}
		return body[NumActiveRooms] == float64(1) && body[NumConflicts] == float64(1)
	}, time.Second, 10*time.Millisecond, "expected metrics to reflect updates")
}

func TestStatsUpdater_unregisteredMetric(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.Run()
	defer su.Stop()

	su.Incr("NumSomethingElse")

	assert.Eventually(t, func() bool {
		return su.Snapshot()["NumSomethingElse"] == 1
	}, time.Second, 10*time.Millisecond, "expected counter to be created on first use")
}

func TestStatsUpdater_Stop(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.Run()
	su.Stop()
	su.Stop()

	done := make(chan struct{})
	go func() {
		// more than the buffer holds
		for range 1024 {
			su.Decr(NumActiveClients)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected updates after Stop not to block")
	}
}
