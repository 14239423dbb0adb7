package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherlockH0olms/Intellica/backend/internal/health"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubReporter struct {
	report health.Report
}

func (s stubReporter) Report(context.Context) health.Report { return s.report }

func newTestRouter(report health.Report) *Router {
	r := NewRouter(zap.NewNop())
	r.RegisterSystemRoutes(stubReporter{report: report})
	return r
}

func pendingReport() health.Report {
	return health.Report{
		Status: health.OverallHealthy,
		Services: map[string]health.Status{
			"api":      health.StatusOperational,
			"database": health.StatusPending,
			"redis":    health.StatusPending,
			"rabbitmq": health.StatusPending,
		},
	}
}

func TestRoot(t *testing.T) {
	r := newTestRouter(pendingReport())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","message":"Intellica Backend is running","version":"1.0.0"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	r := newTestRouter(pendingReport())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "healthy",
		"services": {"api": "operational", "database": "pending", "redis": "pending", "rabbitmq": "pending"}
	}`, rec.Body.String())
}

func TestHealth_Degraded(t *testing.T) {
	report := pendingReport()
	report.Status = health.OverallDegraded
	report.Services["redis"] = health.StatusUnavailable
	r := newTestRouter(report)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, health.StatusUnavailable, body.Services["redis"])
}

func TestMethodNotAllowed(t *testing.T) {
	r := newTestRouter(pendingReport())

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Allow"))
	}
}

func TestUnknownPath(t *testing.T) {
	r := newTestRouter(pendingReport())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/machines", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	r := newTestRouter(pendingReport())

	t.Run("no origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("origin echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "DELETE")
		req.Header.Set("Access-Control-Request-Headers", "Authorization, X-Trace-Id")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "DELETE", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Authorization, X-Trace-Id", rec.Header().Get("Access-Control-Allow-Headers"))
		assert.Empty(t, rec.Body.String())
	})
}
