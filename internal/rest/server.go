// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-jose/go-jose/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/pkg/correlation"
	"github.com/jeremyhahn/go-devicetrust/pkg/health"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
	"github.com/jeremyhahn/go-devicetrust/pkg/metrics"
	"github.com/jeremyhahn/go-devicetrust/pkg/ratelimit"
	webauthnhttp "github.com/jeremyhahn/go-devicetrust/pkg/webauthn/http"
)

// JWKSPath is where the session verification keys are published.
const JWKSPath = "/.well-known/jwks.json"

// KeySource publishes the keys that verify issued session tokens.
type KeySource interface {
	JWKS() jose.JSONWebKeySet
}

// Server represents the device trust HTTP server.
type Server struct {
	server    *http.Server
	router    *chi.Mux
	address   string
	tlsConfig *tls.Config
	webauthn  *webauthnhttp.Handler
	keys      KeySource
	health    *health.Checker
	limiter   *ratelimit.Limiter
	cfg       *Config
	logger    *slog.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Address is the listen address (default: ":8443")
	Address string

	// WebAuthn serves the ceremony, recovery and authenticator endpoints
	WebAuthn *webauthnhttp.Handler

	// Keys publishes the session token verification keys (optional)
	Keys KeySource

	// HealthChecker backs the /health probes (optional)
	HealthChecker *health.Checker

	// Limiter rate limits /api/v1 by client IP (optional)
	Limiter *ratelimit.Limiter

	// TrustProxy keys rate limiting by X-Forwarded-For
	TrustProxy bool

	// CORS lists the browser origins allowed to call the API
	CORS config.CORSConfig

	// MetricsPath serves Prometheus metrics when non-empty
	MetricsPath string

	// Version is reported by /health
	Version string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger defaults to a discarding logger
	Logger *slog.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.WebAuthn == nil {
		return nil, fmt.Errorf("webauthn handler is required")
	}

	if cfg.Address == "" {
		cfg.Address = ":8443"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	s := &Server{
		address:   cfg.Address,
		tlsConfig: cfg.TLSConfig,
		webauthn:  cfg.WebAuthn,
		keys:      cfg.Keys,
		health:    cfg.HealthChecker,
		limiter:   cfg.Limiter,
		cfg:       cfg,
		logger:    log,
	}
	s.router = s.setupRouter()
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		TLSConfig:         cfg.TLSConfig,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}
	return s, nil
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(CORSMiddleware(s.cfg.CORS))

	r.Get("/health", s.HealthHandler)
	r.Head("/health", s.HealthHandler)
	r.Get("/health/live", s.LivenessHandler)
	r.Get("/health/ready", s.ReadinessHandler)
	r.Get("/health/startup", s.StartupHandler)

	if s.keys != nil {
		r.Get(JWKSPath, s.JWKSHandler)
	}
	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter, s.cfg.TrustProxy))
		}
		webauthnhttp.MountChi(r, s.webauthn)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln, wrapping it in TLS when configured.
func (s *Server) Serve(ln net.Listener) error {
	if s.health != nil {
		s.health.MarkStarted()
	}

	var err error
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", slog.String("address", ln.Addr().String()))
		err = s.server.ServeTLS(ln, "", "")
	} else {
		s.logger.Info("Starting HTTP server", slog.String("address", ln.Addr().String()))
		err = s.server.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Stop fails readiness and gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	if s.health != nil {
		s.health.MarkStopping()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// JWKSHandler handles GET /.well-known/jwks.json.
func (s *Server) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, s.keys.JWKS(), http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
