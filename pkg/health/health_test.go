package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

// probeReadiness runs the readiness handler once and decodes the body.
func probeReadiness(t *testing.T, h *Handler) (int, Response) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	h.ReadinessHandler().ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestLivenessHandler(t *testing.T) {
	h := NewHandler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)

	h.LivenessHandler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUp, resp.Status)
	assert.Greater(t, resp.Timestamp, int64(0))
	assert.Empty(t, resp.Checks, "liveness does not run dependency checks")
}

func TestReadinessHandler_StatusAggregation(t *testing.T) {
	tests := []struct {
		name       string
		register   func(h *Handler)
		wantCode   int
		wantStatus Status
	}{
		{
			name:       "no checks registered",
			register:   func(h *Handler) {},
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name: "all dependencies up",
			register: func(h *Handler) {
				h.RegisterCritical("database", up)
				h.RegisterNonCritical("cache", up)
				h.RegisterNonCritical("kafka", up)
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusUp,
		},
		{
			name: "critical dependency down",
			register: func(h *Handler) {
				h.RegisterCritical("database", down)
				h.RegisterNonCritical("kafka", up)
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDown,
		},
		{
			name: "non-critical dependency down",
			register: func(h *Handler) {
				h.RegisterCritical("database", up)
				h.RegisterNonCritical("kafka", down)
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "several non-critical down",
			register: func(h *Handler) {
				h.RegisterCritical("database", up)
				h.RegisterNonCritical("cache", down)
				h.RegisterNonCritical("kafka", down)
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
		},
		{
			name: "critical and non-critical both down",
			register: func(h *Handler) {
				h.RegisterCritical("database", down)
				h.RegisterNonCritical("kafka", down)
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler()
			tt.register(h)

			code, resp := probeReadiness(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestReadinessHandler_PerCheckResults(t *testing.T) {
	h := NewHandler()
	h.RegisterCritical("database", up)
	h.RegisterNonCritical("kafka", down)

	code, resp := probeReadiness(t, h)
	require.Equal(t, http.StatusOK, code)

	db := resp.Checks["database"]
	assert.Equal(t, StatusUp, db.Status)
	assert.True(t, db.Critical)
	assert.Empty(t, db.Error)

	kafka := resp.Checks["kafka"]
	assert.Equal(t, StatusDown, kafka.Status)
	assert.False(t, kafka.Critical)
	assert.Equal(t, "connection refused", kafka.Error)
}

func TestRegister_DefaultsToCritical(t *testing.T) {
	h := NewHandler()
	h.Register("database", down)

	code, resp := probeReadiness(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusDown, resp.Status)
	assert.True(t, resp.Checks["database"].Critical)
}

func TestRegister_SameNameReplacesChecker(t *testing.T) {
	h := NewHandler()
	h.Register("database", down)
	h.Register("database", up)

	code, resp := probeReadiness(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUp, resp.Checks["database"].Status)
}

func TestReadinessHandler_CheckerGetsDeadline(t *testing.T) {
	h := NewHandler()

	var hasDeadline bool
	h.RegisterCritical("database", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	code, _ := probeReadiness(t, h)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, hasDeadline, "checkers should run under a timeout")
}
