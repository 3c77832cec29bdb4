package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/radiusdt/adpulse/internal/config"
	"github.com/radiusdt/adpulse/internal/metrics"
	"github.com/radiusdt/adpulse/internal/middleware"
	"github.com/radiusdt/adpulse/internal/storage"
	"github.com/radiusdt/adpulse/internal/tracking"
	"go.uber.org/zap"
)

const (
	maxBodyBytes      = 1 << 20
	maxBatchBodyBytes = 16 << 20

	// resyncTimeout bounds an on-demand resync started over HTTP.
	resyncTimeout = 30 * time.Minute
)

var validate = validator.New()

// Server wraps HTTP handlers and analytics services.
type Server struct {
	services *Services
	deps     *Dependencies
	logger   *zap.Logger
	config   *config.Config
	metrics  *metrics.Metrics
}

type batchRequest struct {
	Events []analytics.EventInput `json:"events" validate:"required,max=10000"`
}

type startSimulationRequest struct {
	Intensity *int `json:"intensity,omitempty" validate:"omitempty,min=1,max=10"`
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies, services *Services) http.Handler {
	s := &Server{
		services: services,
		deps:     deps,
		logger:   deps.Logger,
		config:   deps.Config,
		metrics:  deps.Metrics,
	}

	r := chi.NewRouter()

	// Health check
	r.Get("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled && deps.Metrics != nil {
		r.Handle(deps.Config.Metrics.Path, deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Ingest
		r.Post("/events", s.handleRecordEvent)
		r.Post("/events/batch", s.handleRecordEventBatch)

		// Tracking beacons for ad markup
		r.Get("/track/view", s.handleTrackView)
		r.Get("/track/click", s.handleTrackClick)
		r.Get("/track/urls", s.handleTrackingURLs)

		// Aggregate reads
		r.Route("/stats", func(r chi.Router) {
			r.Get("/global", s.handleGlobalStats)
			r.Get("/brands", s.handleBrandPerformance)
			r.Get("/campaigns/top", s.handleTopCampaigns)
			r.Get("/devices", s.handleDeviceDistribution)
			r.Get("/recent", s.handleRecentImpressions)
			r.Get("/pulse", s.handlePulse)
		})

		// Administrative
		r.Route("/admin", func(r chi.Router) {
			r.Post("/aggregates/clear", s.handleClearAggregates)
			r.Post("/resync", s.handleResync)
			r.Post("/chart/reset", s.handleResetChart)
			r.Get("/simulation", s.handleSimulationState)
			r.Post("/simulation/start", s.handleStartSimulation)
			r.Post("/simulation/stop", s.handleStopSimulation)
		})

		// Provisioning
		r.Get("/customers", s.handleListCustomers)
		r.Post("/customers", s.handleCreateCustomer)
		r.Get("/brands", s.handleListBrands)
		r.Post("/brands", s.handleCreateBrand)
		r.Get("/ads", s.handleListAds)
		r.Post("/ads", s.handleCreateAd)
	})

	return r
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if s.deps.DB != nil {
		check("postgres", s.deps.DB.Health)
	}
	if s.deps.Redis != nil {
		check("redis", s.deps.Redis.Health)
	}
	if s.deps.ClickHouse != nil {
		check("clickhouse", s.deps.ClickHouse.Health)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": status, "checks": checks})
}

// ---- Ingest ----

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var in analytics.EventInput
	if !s.decode(w, r, maxBodyBytes, &in) {
		return
	}
	if in.Region == "" && in.IP == "" {
		in.IP = middleware.ClientIP(r)
	}

	res, err := s.services.Ingest.RecordEvent(r.Context(), in)
	if err != nil {
		s.handleError(w, err, "failed to record event")
		return
	}
	s.jsonResponse(w, res)
}

func (s *Server) handleRecordEventBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, maxBatchBodyBytes, &req) {
		return
	}

	res, err := s.services.Ingest.RecordEventBatch(r.Context(), req.Events)
	if err != nil {
		s.handleError(w, err, "failed to record events")
		return
	}
	s.jsonResponse(w, res)
}

// ---- Tracking ----

// handleTrackView always answers with the pixel so ad markup never shows a
// broken image; failures are only logged.
func (s *Server) handleTrackView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := &tracking.ViewParams{
		AdID:      q.Get("ad_id"),
		Device:    q.Get("device"),
		Region:    q.Get("region"),
		UserAgent: r.UserAgent(),
	}
	if params.Region == "" {
		params.IP = middleware.ClientIP(r)
	}

	if params.AdID == "" {
		s.errorResponse(w, "ad_id is required", http.StatusBadRequest)
		return
	}
	if _, err := s.services.Tracking.RegisterView(r.Context(), params); err != nil {
		if errors.Is(err, analytics.ErrNotFound) || errors.Is(err, analytics.ErrInvalidInput) {
			s.logger.Debug("view not recorded", zap.String("ad_id", params.AdID), zap.Error(err))
		} else {
			s.logger.Error("failed to record view", zap.String("ad_id", params.AdID), zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(tracking.TransparentPixel)
}

func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := &tracking.ClickParams{
		AdID:      q.Get("ad_id"),
		Device:    q.Get("device"),
		Region:    q.Get("region"),
		UserAgent: r.UserAgent(),
		TargetURL: q.Get("url"),
	}
	if params.Region == "" {
		params.IP = middleware.ClientIP(r)
	}

	if params.AdID == "" {
		s.errorResponse(w, "ad_id is required", http.StatusBadRequest)
		return
	}
	res, err := s.services.Tracking.RegisterClick(r.Context(), params)
	if err != nil {
		s.handleError(w, err, "failed to register click")
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func (s *Server) handleTrackingURLs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	adID := q.Get("ad_id")
	if adID == "" {
		s.errorResponse(w, "ad_id is required", http.StatusBadRequest)
		return
	}
	urls := map[string]string{"view_url": s.services.Tracking.BuildViewURL(adID)}
	if target := q.Get("url"); target != "" {
		urls["click_url"] = s.services.Tracking.BuildClickURL(adID, target)
	}
	s.jsonResponse(w, urls)
}

// ---- Aggregate Reads ----

func (s *Server) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := s.services.Stats.GetGlobalStats(r.Context(), q.Get("customer_id"), q.Get("brand_id"))
	if err != nil {
		s.handleError(w, err, "failed to get stats")
		return
	}
	s.jsonResponse(w, stats)
}

func (s *Server) handleBrandPerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := s.services.Stats.GetBrandPerformance(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		s.handleError(w, err, "failed to get brand performance")
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleTopCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), analytics.DefaultTopCampaigns)
	if err != nil || limit < 1 || limit > analytics.MaxTopCampaigns {
		s.errorResponse(w, "limit must be between 1 and 100", http.StatusBadRequest)
		return
	}

	rows, err := s.services.Stats.GetTopCampaigns(r.Context(), q.Get("brand_id"), limit)
	if err != nil {
		s.handleError(w, err, "failed to get top campaigns")
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleDeviceDistribution(w http.ResponseWriter, r *http.Request) {
	rows, err := s.services.Stats.GetDeviceDistribution(r.Context(), r.URL.Query().Get("brand_id"))
	if err != nil {
		s.handleError(w, err, "failed to get device distribution")
		return
	}
	s.jsonResponse(w, rows)
}

func (s *Server) handleRecentImpressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seconds, err := intParam(q.Get("seconds"), 60)
	if err != nil {
		s.errorResponse(w, "seconds must be an integer", http.StatusBadRequest)
		return
	}

	n, err := s.services.Stats.GetRecentImpressionsCount(r.Context(), int64(seconds), q.Get("brand_id"))
	if err != nil {
		s.handleError(w, err, "failed to count recent impressions")
		return
	}
	s.jsonResponse(w, map[string]int64{"count": n})
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	feed, err := s.services.Stats.GetPulseSeries(r.Context(), r.URL.Query().Get("brand_id"))
	if err != nil {
		s.handleError(w, err, "failed to get pulse series")
		return
	}
	s.jsonResponse(w, feed)
}

// ---- Administrative ----

func (s *Server) handleClearAggregates(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Resync.ClearAggregates(r.Context()); err != nil {
		s.handleError(w, err, "failed to clear aggregates")
		return
	}
	s.jsonResponse(w, map[string]bool{"success": true})
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort the rebuild halfway.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), resyncTimeout)
	defer cancel()

	res, err := s.services.Resync.Resync(ctx)
	if err != nil {
		s.handleError(w, err, "resync failed")
		return
	}
	s.jsonResponse(w, res)
}

func (s *Server) handleResetChart(w http.ResponseWriter, r *http.Request) {
	state, err := s.services.Simulation.ResetChartOrigin(r.Context())
	if err != nil {
		s.handleError(w, err, "failed to reset chart origin")
		return
	}
	s.jsonResponse(w, state)
}

func (s *Server) handleSimulationState(w http.ResponseWriter, r *http.Request) {
	state, err := s.services.Simulation.GetState(r.Context())
	if err != nil {
		s.handleError(w, err, "failed to get simulation state")
		return
	}
	s.jsonResponse(w, state)
}

func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req startSimulationRequest
	if r.ContentLength != 0 {
		if !s.decode(w, r, maxBodyBytes, &req) {
			return
		}
	}

	state, err := s.services.Simulation.Start(r.Context(), req.Intensity)
	if err != nil {
		s.handleError(w, err, "failed to start simulation")
		return
	}
	s.jsonResponse(w, state)
}

func (s *Server) handleStopSimulation(w http.ResponseWriter, r *http.Request) {
	state, err := s.services.Simulation.Stop(r.Context())
	if err != nil {
		s.handleError(w, err, "failed to stop simulation")
		return
	}
	s.jsonResponse(w, state)
}

// ---- Provisioning ----

func (s *Server) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Catalog.ListCustomers(r.Context())
	if err != nil {
		s.handleError(w, err, "failed to list customers")
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in analytics.CreateCustomerInput
	if !s.decode(w, r, maxBodyBytes, &in) {
		return
	}
	c, err := s.services.Catalog.CreateCustomer(r.Context(), in)
	if err != nil {
		s.handleError(w, err, "failed to create customer")
		return
	}
	s.created(w, c)
}

func (s *Server) handleListBrands(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Catalog.ListBrands(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		s.handleError(w, err, "failed to list brands")
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleCreateBrand(w http.ResponseWriter, r *http.Request) {
	var in analytics.CreateBrandInput
	if !s.decode(w, r, maxBodyBytes, &in) {
		return
	}
	b, err := s.services.Catalog.CreateBrand(r.Context(), in)
	if err != nil {
		s.handleError(w, err, "failed to create brand")
		return
	}
	s.created(w, b)
}

func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	list, err := s.services.Catalog.ListAds(r.Context(), r.URL.Query().Get("brand_id"))
	if err != nil {
		s.handleError(w, err, "failed to list ads")
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	var in analytics.CreateAdInput
	if !s.decode(w, r, maxBodyBytes, &in) {
		return
	}
	a, err := s.services.Catalog.CreateAd(r.Context(), in)
	if err != nil {
		s.handleError(w, err, "failed to create ad")
		return
	}
	s.created(w, a)
}

// ---- Helper Methods ----

// decode reads a JSON body into dst and validates it, writing a 400 on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		s.errorResponse(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// handleError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) handleError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, analytics.ErrNotFound):
		s.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, analytics.ErrInvalidInput):
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, analytics.ErrConflict):
		s.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, storage.ErrLockNotAcquired):
		s.errorResponse(w, "aggregates are locked by another operation", http.StatusConflict)
	default:
		s.logger.Error(message, zap.Error(err))
		s.errorResponse(w, message, http.StatusInternalServerError)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) created(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
