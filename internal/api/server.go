package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/tripweather/internal/alerting"
	"github.com/lox/tripweather/internal/store"
	"github.com/lox/tripweather/internal/weather"
)

type Server struct {
	weather  *weather.Service
	throttle *alerting.Throttle
	store    *store.Store
	port     string
	logger   *slog.Logger
}

func NewServer(svc *weather.Service, throttle *alerting.Throttle, st *store.Store, port string, logger *slog.Logger) *Server {
	return &Server{
		weather:  svc,
		throttle: throttle,
		store:    st,
		port:     port,
		logger:   logger.With("component", "api"),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/forecast", s.handleForecast)
		r.Get("/cache", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)
		r.Get("/fetch-health", s.handleFetchHealth)
		r.Get("/payloads/stats", s.handlePayloadStats)
		r.Get("/payloads/{hash}", s.handlePayload)
		r.Route("/trips/{tripID}", func(r chi.Router) {
			r.Get("/throttle", s.handleThrottle)
			r.Delete("/throttle", s.handleThrottleClear)
			r.Get("/alerts", s.handleAlerts)
			r.Delete("/baselines", s.handleBaselinesClear)
		})
	})
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api: listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status           string `json:"status"`
	MigrationVersion int    `json:"migration_version"`
	CacheEntries     int    `json:"cache_entries"`
	FetchRuns        int    `json:"fetch_runs_24h"`
	FailedFetchRuns  int    `json:"failed_fetch_runs_24h"`
	Error            string `json:"error,omitempty"`
}

// handleHealth reports degraded when every fetch in the last day failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", CacheEntries: s.weather.Cache().Stats().TotalEntries}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		health.Status = "error"
		health.Error = err.Error()
	} else {
		if v, err := s.store.MigrationVersion(); err == nil {
			health.MigrationVersion = v
		}
		if days, err := s.store.GetFetchHealth(1); err == nil {
			for _, d := range days {
				health.FetchRuns += d.TotalRuns
				health.FailedFetchRuns += d.FailedRuns
			}
			if health.FetchRuns > 0 && health.FailedFetchRuns == health.FetchRuns {
				health.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("api: write response", "error", err)
	}
}
