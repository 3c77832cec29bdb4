package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	deps := &Dependencies{
		Config: &config.Config{
			Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
			Aggregation: config.AggregationConfig{
				ResyncPageSize:  50,
				ResyncBatchSize: 10,
				LockTTL:         time.Second,
				LockWait:        time.Second,
			},
		},
		Logger:  zap.NewNop(),
		Metrics: metrics.NewMetrics("test"),
	}
	return NewServer(deps, BuildServices(deps))
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

// provision creates one customer, brand and ad over HTTP and returns the ad.
func provision(t *testing.T, h http.Handler) (*models.Brand, *models.Ad) {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/v1/customers", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c models.Customer
	decodeInto(t, rec, &c)

	rec = do(t, h, http.MethodPost, "/v1/brands", map[string]string{"customer_id": c.ID, "name": "Acme Sport"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var b models.Brand
	decodeInto(t, rec, &b)
	assert.Equal(t, "acme-sport", b.Slug)

	rec = do(t, h, http.MethodPost, "/v1/ads", map[string]string{"brand_id": b.ID, "name": "Banner", "type": "static"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a models.Ad
	decodeInto(t, rec, &a)
	return &b, &a
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{}}`, rec.Body.String())
}

func TestIngestAndReadFlow(t *testing.T) {
	h := newTestServer(t)
	brand, ad := provision(t, h)

	rec := do(t, h, http.MethodPost, "/v1/events", map[string]interface{}{"ad_id": ad.ID, "device": "desktop"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res analytics.RecordResult
	decodeInto(t, rec, &res)
	assert.True(t, res.Success)
	assert.Positive(t, res.Timestamp)

	rec = do(t, h, http.MethodPost, "/v1/events/batch", map[string]interface{}{
		"events": []map[string]interface{}{
			{"ad_id": ad.ID, "device": "mobile", "is_click": true},
			{"ad_id": "missing"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"count":1,"skipped":1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/global", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_impressions":2,"total_clicks":1,"unique_ads":0,"avg_ctr":0.5}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/devices?brand_id="+brand.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"device":"desktop","count":1},{"device":"mobile","count":1}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/campaigns/top?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var top []analytics.CampaignStats
	decodeInto(t, rec, &top)
	require.Len(t, top, 1)
	assert.Equal(t, "Banner", top[0].AdName)
	assert.Equal(t, "Acme Sport", top[0].BrandName)

	rec = do(t, h, http.MethodGet, "/v1/stats/recent?seconds=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/brands", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perf []analytics.BrandPerformance
	decodeInto(t, rec, &perf)
	require.Len(t, perf, 1)
	assert.Equal(t, int64(2), perf[0].Reach)

	rec = do(t, h, http.MethodGet, "/v1/stats/pulse", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Series []analytics.PulseSeries `json:"series"`
		Data   []map[string]float64    `json:"data"`
	}
	decodeInto(t, rec, &feed)
	require.Len(t, feed.Series, 2)
	assert.Len(t, feed.Data, 61)
	assert.Positive(t, feed.Data[60]["ts:global"])

	rec = do(t, h, http.MethodPost, "/v1/admin/resync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rs analytics.ResyncResult
	decodeInto(t, rec, &rs)
	assert.Equal(t, 2, rs.EventsApplied)

	rec = do(t, h, http.MethodGet, "/v1/stats/global", nil)
	assert.JSONEq(t, `{"total_impressions":2,"total_clicks":1,"unique_ads":1,"avg_ctr":0.5}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/admin/aggregates/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/stats/global", nil)
	assert.JSONEq(t, `{"total_impressions":0,"total_clicks":0,"unique_ads":0,"avg_ctr":0}`, rec.Body.String())
}

func TestBatchSkipsInvalidItems(t *testing.T) {
	h := newTestServer(t)
	_, ad := provision(t, h)

	rec := do(t, h, http.MethodPost, "/v1/events/batch", map[string]interface{}{
		"events": []map[string]interface{}{
			{"ad_id": ad.ID, "device": "desktop"},
			{"ad_id": ""},
			{"ad_id": ad.ID, "device": "mobile", "ip": "not-an-ip"},
			{"ad_id": ad.ID, "device": strings.Repeat("x", 65)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"count":2,"skipped":2}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/global", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_impressions":2,"total_clicks":0,"unique_ads":0,"avg_ctr":0}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/events", map[string]string{"ad_id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/events", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString("{"))
	r := httptest.NewRecorder()
	h.ServeHTTP(r, req)
	assert.Equal(t, http.StatusBadRequest, r.Code)

	rec = do(t, h, http.MethodPost, "/v1/customers", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/customers", map[string]string{"name": "acme"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/brands", map[string]string{"customer_id": "nope", "name": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/stats/recent?seconds=-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/stats/campaigns/top?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/events", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSimulationEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/admin/simulation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"stopped","intensity":5,"last_updated":0}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/admin/simulation/start", map[string]int{"intensity": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/admin/simulation/start", map[string]int{"intensity": 7})
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.SimulationState
	decodeInto(t, rec, &state)
	assert.Equal(t, models.SimulationRunning, state.Status)
	assert.Equal(t, 7, state.Intensity)

	rec = do(t, h, http.MethodPost, "/v1/admin/simulation/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &state)
	assert.Equal(t, 7, state.Intensity)

	rec = do(t, h, http.MethodPost, "/v1/admin/simulation/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &state)
	assert.Equal(t, models.SimulationStopped, state.Status)

	rec = do(t, h, http.MethodPost, "/v1/admin/chart/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &state)
	require.NotNil(t, state.ChartResetTime)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrackingBeacons(t *testing.T) {
	h := newTestServer(t)
	_, ad := provision(t, h)

	req := httptest.NewRequest(http.MethodGet, "/v1/track/view?ad_id="+ad.ID, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))

	// Unknown ads still get the pixel but are not counted.
	rec = do(t, h, http.MethodGet, "/v1/track/view?ad_id=missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/track/click?device=desktop&ad_id="+ad.ID+"&url="+url.QueryEscape("https://shop.example.com/?ad={ad_id}"), nil)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "https://shop.example.com/?ad="+ad.ID, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, "/v1/track/click?ad_id="+ad.ID+"&url=javascript:alert(1)", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/stats/global", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_impressions":2,"total_clicks":1,"unique_ads":0,"avg_ctr":0.5}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/stats/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"device":"desktop","count":1},{"device":"mobile","count":1}]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/track/urls?ad_id="+ad.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"view_url":"/v1/track/view?ad_id=`+ad.ID+`"}`, rec.Body.String())
}
