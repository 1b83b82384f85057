package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	cors := NewCORSMiddleware([]string{"http://localhost:3000", "*.posture.dev"}, zap.NewNop())
	handler := cors.EnableCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{origin: "http://localhost:3000", allowed: true},
		{origin: "https://app.posture.dev", allowed: true},
		{origin: "http://evil.example", allowed: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/posture/dashboard", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if tt.allowed {
			assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"), tt.origin)
		} else {
			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), tt.origin)
		}
	}
}

func TestCORSAnswersPreflight(t *testing.T) {
	called := false
	cors := NewCORSMiddleware([]string{"*"}, zap.NewNop())
	handler := cors.EnableCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/posture/records", nil)
	req.Header.Set("Origin", "http://localhost:9002")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestLoggingSetsRequestID(t *testing.T) {
	handler := NewLoggingMiddleware(zap.NewNop()).LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsLabelRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetricsMiddleware(reg)

	router := mux.NewRouter()
	router.Use(metrics.CollectMetrics)
	router.HandleFunc("/api/v1/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/items/"+id, nil))
	}

	expected := `
# HELP posture_api_requests_total Total number of requests by method, route, and status
# TYPE posture_api_requests_total counter
posture_api_requests_total{method="GET",route="/api/v1/items/{id}",status="418"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "posture_api_requests_total"))
}
