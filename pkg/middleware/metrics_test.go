package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric extracts the first metric from a collector whose labels
// contain all the given pairs.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	if t != nil {
		t.Helper()
	}
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}

		match := true
		for k, v := range labels {
			found := false
			for _, lp := range d.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

// itemsRouter mounts the handler on a parameterized route, so the middleware
// sees a chi route pattern instead of a raw path.
func itemsRouter(mw func(http.Handler) http.Handler, handler http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(mw)
	r.Get("/api/v1/items/{id}", handler)
	return r
}

func TestPrometheusMetrics_CountsByRoutePattern(t *testing.T) {
	handler := itemsRouter(PrometheusMetrics("count-svc"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Different item ids must land on the same path label.
	for _, id := range []string{"trail-mix", "granola-bars", "usb-c-cable"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/"+id, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	m := collectMetric(t, httpRequestsTotal, map[string]string{
		"service": "count-svc",
		"method":  "GET",
		"path":    "/api/v1/items/{id}",
		"status":  "200",
	})
	require.NotNil(t, m, "counter should use the route pattern as the path label")
	assert.GreaterOrEqual(t, m.GetCounter().GetValue(), float64(3))
}

func TestPrometheusMetrics_ObservesDuration(t *testing.T) {
	handler := itemsRouter(PrometheusMetrics("hist-svc"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/trail-mix", nil))

	m := collectMetric(t, httpRequestDuration, map[string]string{
		"service": "hist-svc",
		"status":  "201",
	})
	require.NotNil(t, m)
	assert.GreaterOrEqual(t, m.GetHistogram().GetSampleCount(), uint64(1))
}

func TestPrometheusMetrics_InFlightGauge(t *testing.T) {
	inFlightSeen := float64(-1)
	handler := itemsRouter(PrometheusMetrics("inflight-svc"), func(w http.ResponseWriter, r *http.Request) {
		if m := collectMetric(nil, httpRequestsInFlight, map[string]string{"service": "inflight-svc"}); m != nil {
			inFlightSeen = m.GetGauge().GetValue()
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/trail-mix", nil))

	assert.GreaterOrEqual(t, inFlightSeen, float64(1), "gauge should be at least 1 while the handler runs")
}

func TestPrometheusMetrics_ImplicitOK(t *testing.T) {
	// A handler that never calls WriteHeader still counts as 200.
	handler := itemsRouter(PrometheusMetrics("implicit-svc"), func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/trail-mix", nil))

	m := collectMetric(t, httpRequestsTotal, map[string]string{"service": "implicit-svc", "status": "200"})
	require.NotNil(t, m)
}

func TestPrometheusMetrics_ErrorStatusLabel(t *testing.T) {
	handler := itemsRouter(PrometheusMetrics("error-svc"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items/sold-out", nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	m := collectMetric(t, httpRequestsTotal, map[string]string{"service": "error-svc", "status": "409"})
	require.NotNil(t, m)
}

func TestPrometheusMetrics_UnroutedPath(t *testing.T) {
	// Outside a chi router there is no route pattern; the label falls back
	// to "unknown" rather than the raw URL.
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler = PrometheusMetrics("bare-svc")(handler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whatever/res_123", nil))

	m := collectMetric(t, httpRequestsTotal, map[string]string{"service": "bare-svc", "path": "unknown"})
	require.NotNil(t, m)
}
