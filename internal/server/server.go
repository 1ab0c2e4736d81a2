package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hongminglow/channel-be/internal/auth"
	"github.com/hongminglow/channel-be/internal/config"
	"github.com/hongminglow/channel-be/internal/http/handlers"
	"github.com/hongminglow/channel-be/internal/logger"
	"github.com/hongminglow/channel-be/internal/media"
	"github.com/hongminglow/channel-be/internal/middleware"
	"github.com/hongminglow/channel-be/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg *config.Config, store storage.UserStore, uploader media.Uploader, log *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewHandler(cfg, store, uploader, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// NewHandler builds the routed handler chain without binding a listener.
func NewHandler(cfg *config.Config, store storage.UserStore, uploader media.Uploader, log *logger.Logger) http.Handler {
	tokens := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenSecret, cfg.RefreshTokenTTL)
	issuer := auth.NewIssuer(store, tokens, log)
	requireAuth := middleware.RequireAuth(issuer)
	optionalAuth := middleware.OptionalAuth(issuer)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(time.Now(), store, log).Register(mux)
	handlers.NewUserHandler(store, issuer, uploader, cfg, log).Register(mux, requireAuth)
	handlers.NewChannelHandler(store, log).Register(mux, requireAuth, optionalAuth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.CORS(cfg.CORSOrigins, middleware.RequestID(middleware.Logging(log, middleware.Metrics(mux))))
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
