package httpmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AlibekovAA/teamspace-realtime/internal/observability/metrics"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":              "/",
		"/health":       "/health",
		"/metrics":      "/metrics",
		"/admin/secret": "other",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollector_Wrap(t *testing.T) {
	counter := metrics.OpsRequestsTotal.WithLabelValues(http.MethodGet, "/health")
	before := testutil.ToFloat64(counter)

	handler := New().Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status to pass through, got %d", rec.Code)
	}
	if delta := testutil.ToFloat64(counter) - before; delta != 1 {
		t.Errorf("expected one counted request, got %v", delta)
	}
	if inFlight := testutil.ToFloat64(metrics.OpsRequestsInFlight); inFlight != 0 {
		t.Errorf("expected no requests in flight, got %v", inFlight)
	}
}
