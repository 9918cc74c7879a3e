package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthHandler(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name     string
		method   string
		checks   []HealthCheck
		wantCode int
		wantBody string
	}{
		{name: "no checks", method: http.MethodGet, wantCode: http.StatusOK, wantBody: healthResponse},
		{name: "all healthy", method: http.MethodGet, checks: []HealthCheck{healthy, healthy}, wantCode: http.StatusOK, wantBody: healthResponse},
		{name: "one failing", method: http.MethodGet, checks: []HealthCheck{healthy, down}, wantCode: http.StatusServiceUnavailable, wantBody: unhealthyPayload},
		{name: "head has no body", method: http.MethodHead, checks: []HealthCheck{healthy}, wantCode: http.StatusOK},
		{name: "head failing", method: http.MethodHead, checks: []HealthCheck{down}, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/healthz", nil)

			NewRouter(RouterServices{HealthChecks: tt.checks}).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestHealthHandler_ChecksHaveDeadline(t *testing.T) {
	var hasDeadline bool
	check := func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}

	rec := httptest.NewRecorder()
	healthHandler(nil, check).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hasDeadline)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dataport_jobs_total 1\n"))
	})

	rec := httptest.NewRecorder()
	NewRouter(RouterServices{Metrics: metrics}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dataport_jobs_total 1\n", rec.Body.String())

	rec = httptest.NewRecorder()
	NewRouter(RouterServices{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
