package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDispatch(t *testing.T) {
	m := New(nil)

	m.ObserveDispatch("query", "ok", 20*time.Millisecond)
	m.ObserveDispatch("query", "ok", 30*time.Millisecond)
	m.ObserveDispatch("query", "not_found", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("query", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("query", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dispatchLatency))
}

func TestObserveRequest(t *testing.T) {
	m := New(nil)

	m.ObserveRequest(http.MethodGet, "/rag/query/:name", http.StatusNotFound, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/rag/query/:name", "404")))
}

func TestHandlerExposesEndpointGauge(t *testing.T) {
	count := 3
	m := New(func() int { return count })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "phoenix_registered_endpoints 3")
	assert.Contains(t, string(body), "go_goroutines")
}
