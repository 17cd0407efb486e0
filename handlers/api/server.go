package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/double-tu/youtube-subtitle-proxy/config"
	"github.com/double-tu/youtube-subtitle-proxy/middleware"
	"github.com/double-tu/youtube-subtitle-proxy/services/proxy"
	"github.com/double-tu/youtube-subtitle-proxy/validation"
)

type Server struct {
	subtitle  *SubtitleHandler
	admin     *AdminHandler
	service   *proxy.Service
	config    *config.Config
	logger    *logrus.Logger
	server    *http.Server
	startTime time.Time
}

type ServerOption func(*Server)

func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		config:    cfg,
		logger:    logrus.StandardLogger(),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func WithService(service *proxy.Service) ServerOption {
	return func(s *Server) {
		validator := validation.NewValidator(s.config)
		s.service = service
		s.subtitle = NewSubtitleHandler(service, validator, s.config)
		s.admin = NewAdminHandler(service, s.config.AdminToken)
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func (s *Server) Start() error {
	s.logger.WithField("port", s.config.ServerPort).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/subtitle", s.subtitle.HandleGetSubtitle)
	// Alias matching the upstream path so players can be pointed at the
	// proxy with only a host swap.
	mux.HandleFunc("GET /api/timedtext", s.subtitle.HandleGetSubtitle)

	mux.HandleFunc("GET /admin/stats", s.admin.HandleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.middleware(mux)
}

func (s *Server) middleware(handler http.Handler) http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.CORS(),
		middleware.Timeout(s.config.RequestTimeout),
	}

	if s.config.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.config.RateLimit.RequestsPerMinute,
			s.config.RateLimit.BurstSize,
		)
		middlewares = append(middlewares, rateLimiter.Middleware)
	}

	return middleware.Chain(handler, middlewares...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   s.config.Version,
		"uptime":    time.Since(s.startTime).String(),
	}

	if err := s.service.Healthy(r.Context()); err != nil {
		s.logger.WithError(err).Error("Health check failed")
		status["status"] = "degraded"
		status["database"] = err.Error()
		respondJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}

	if stats, err := s.service.Stats(r.Context()); err == nil {
		hitRate := 0.0
		if total := stats.CacheHits + stats.CacheMiss; total > 0 {
			hitRate = float64(stats.CacheHits) / float64(total)
		}
		status["jobs"] = stats.Jobs
		status["queue_depth"] = stats.Queued
		status["cache"] = map[string]interface{}{
			"hits":     stats.CacheHits,
			"misses":   stats.CacheMiss,
			"entries":  stats.LRUEntries,
			"hit_rate": hitRate,
		}
	}

	if s.config.Debug {
		status["goroutines"] = runtime.NumGoroutine()
	}

	respondJSON(w, r, http.StatusOK, status)
}
