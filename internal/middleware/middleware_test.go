package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRecoveryMiddleware(t *testing.T) {
	h := NewRecoveryMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/global", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestLoggingMiddlewareKeepsStatus(t *testing.T) {
	h := NewLoggingMiddleware(zap.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("x"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRateLimitSeparatesIngestFromReads(t *testing.T) {
	m := metrics.NewMetrics("test")
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled:     true,
		IngestRPS:   0.001,
		IngestBurst: 1,
		ReadRPS:     0.001,
		ReadBurst:   2,
	}, zap.NewNop())
	rl.SetMetrics(m)
	h := rl.Handler(ok)

	do := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/v1/events"))
	assert.Equal(t, http.StatusTooManyRequests, do("/v1/events/batch"))
	assert.Equal(t, http.StatusOK, do("/v1/stats/global"))
	assert.Equal(t, http.StatusOK, do("/v1/stats/devices"))
	assert.Equal(t, http.StatusTooManyRequests, do("/v1/stats/pulse"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues(ClassIngest)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues(ClassRead)))
}

func TestRateLimitDisabled(t *testing.T) {
	h := NewRateLimitMiddleware(config.RateLimitConfig{}, zap.NewNop()).Handler(ok)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger("bogus", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestIsIngestPath(t *testing.T) {
	assert.True(t, IsIngestPath("/v1/events"))
	assert.True(t, IsIngestPath("/v1/events/batch"))
	assert.True(t, IsIngestPath("/v1/track/view"))
	assert.False(t, IsIngestPath("/v1/stats/global"))
	assert.False(t, IsIngestPath("/v1/tracker"))
}
