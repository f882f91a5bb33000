package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/joeychilson/cacheurl/config"
	"github.com/joeychilson/cacheurl/logger"
	"github.com/joeychilson/cacheurl/server/middleware"
	urlpkg "github.com/joeychilson/cacheurl/url"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// RedisClient shares rate limit counters across instances (optional, in-memory if nil)
	RedisClient *redis.Client
	// RateLimitRequests is the number of requests allowed per window (default: from config, then 100)
	RateLimitRequests int
	// RateLimitWindow is the time window for rate limiting (default: from config, then 1 minute)
	RateLimitWindow time.Duration
	// APIKey protects the /v1 routes (optional, open if empty)
	APIKey string
}

// Server is the HTTP server for the API.
type Server struct {
	config      *config.Config
	transformer *urlpkg.Transformer
	logger      logger.Logger
	router      *chi.Mux
}

// New creates a new API server with chi router and middleware stack.
func New(cfg *config.Config, log logger.Logger, sc *ServerConfig) (*Server, error) {
	if log == nil {
		log = logger.Noop()
	}
	if cfg == nil {
		cfg = config.New()
	}
	if sc == nil {
		sc = &ServerConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	transformer, err := cfg.Transformer()
	if err != nil {
		return nil, err
	}

	if sc.RateLimitRequests == 0 {
		sc.RateLimitRequests = cfg.Server.RateLimit.GetRequests()
	}
	if sc.RateLimitWindow == 0 {
		sc.RateLimitWindow = cfg.Server.RateLimit.GetWindow()
	}

	s := &Server{
		config:      cfg,
		transformer: transformer,
		logger:      log,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestLimit:   sc.RateLimitRequests,
		WindowDuration: sc.RateLimitWindow,
		RedisClient:    sc.RedisClient,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(sc.APIKey))

		r.Get("/caches", s.handleCaches)
		r.Post("/cache-url", s.handleCacheURL)
		r.Get("/cache-url", s.handleCacheURLQuery)
		r.Post("/rewrite", s.handleRewrite)
	})

	s.router = r
	return s, nil
}

// Router returns the HTTP handler for the server.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartWithShutdown starts the HTTP server and shuts it down gracefully when
// ctx is cancelled.
func (s *Server) StartWithShutdown(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
