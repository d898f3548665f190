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

// Package server assembles the device trust service from its configuration:
// storage, session tokens, the WebAuthn and recovery services, the HTTP
// API and the expired record janitor.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"

	"github.com/jeremyhahn/go-devicetrust/internal/config"
	"github.com/jeremyhahn/go-devicetrust/internal/janitor"
	"github.com/jeremyhahn/go-devicetrust/internal/rest"
	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/health"
	"github.com/jeremyhahn/go-devicetrust/pkg/logging"
	"github.com/jeremyhahn/go-devicetrust/pkg/metrics"
	"github.com/jeremyhahn/go-devicetrust/pkg/ratelimit"
	"github.com/jeremyhahn/go-devicetrust/pkg/recovery"
	"github.com/jeremyhahn/go-devicetrust/pkg/session"
	"github.com/jeremyhahn/go-devicetrust/pkg/storage"
	"github.com/jeremyhahn/go-devicetrust/pkg/webauthn"
	webauthnhttp "github.com/jeremyhahn/go-devicetrust/pkg/webauthn/http"
)

// Server owns every long lived component of a running service.
type Server struct {
	config  *config.Config
	mu      sync.RWMutex
	logger  *slog.Logger
	version string

	backend     storage.Backend
	ownsBackend bool

	issuer   *session.Issuer
	webauthn *webauthn.Service
	recovery *recovery.Service
	health   *health.Checker
	limiter  *ratelimit.Limiter
	janitor  *janitor.Janitor
	rest     *rest.Server

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	started      bool
	errCh        chan error
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// Option customizes New.
type Option func(*Server)

// WithLogger replaces the logger built from the logging configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithBackend uses an already opened storage backend instead of opening
// the configured one. The caller keeps ownership and must close it.
func WithBackend(b storage.Backend) Option {
	return func(s *Server) { s.backend = b }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a server from cfg. Nothing listens until Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		errCh:      make(chan error, 1),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to configure logging: %w", err)
		}
		s.logger = logger
	}
	if s.version == "" {
		s.version = BuildVersion()
	}

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	if err := s.initialize(); err != nil {
		s.closeBackend()
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize() error {
	cfg := s.config

	if s.backend == nil {
		backend, err := OpenStorage(s.ctx, cfg.Storage, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		s.backend = backend
		s.ownsBackend = true
	}

	issuer, err := session.NewIssuerFromConfig(&cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to initialize session issuer: %w", err)
	}
	s.issuer = issuer

	recorder := audit.NewRecorder(
		audit.MultiSink{s.backend.Audit(), audit.NewLogSink(s.logger)},
		s.logger,
	)

	s.webauthn, err = webauthn.NewService(webauthn.ServiceParams{
		Config:         &cfg.WebAuthn,
		UserStore:      s.backend.Users(),
		Registry:       s.backend.Authenticators(),
		ChallengeStore: s.backend.Challenges(),
		TokenIssuer:    issuer,
		Audit:          recorder,
		Logger:         s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize webauthn service: %w", err)
	}

	handler := webauthnhttp.NewHandler(s.webauthn).
		WithLogger(s.logger).
		WithTokenVerifier(issuer)

	tasks := []janitor.Task{{Name: metrics.RecordChallenge, Run: s.webauthn.Cleanup}}

	if cfg.Recovery.Enabled {
		s.recovery, err = recovery.NewService(recovery.ServiceParams{
			Config:      &cfg.Recovery.Config,
			Store:       s.backend.RecoveryKeys(),
			TokenIssuer: issuer,
			Audit:       recorder,
			Logger:      s.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize recovery service: %w", err)
		}
		handler.WithRecovery(s.recovery, s.backend.Users())
		tasks = append(tasks, janitor.Task{Name: metrics.RecordRecoveryKey, Run: s.recovery.Cleanup})
	}

	s.health = health.NewChecker()
	s.health.RegisterPinger("storage", s.backend)

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.New(&cfg.RateLimit)
	}

	tlsConfig, err := cfg.Server.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	var metricsPath string
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	s.rest, err = rest.NewServer(&rest.Config{
		Address:       cfg.Server.Address,
		WebAuthn:      handler,
		Keys:          issuer,
		HealthChecker: s.health,
		Limiter:       s.limiter,
		TrustProxy:    cfg.RateLimit.TrustProxy,
		CORS:          cfg.Server.CORS,
		MetricsPath:   metricsPath,
		Version:       s.version,
		TLSConfig:     tlsConfig,
		Logger:        s.logger,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
	})
	if err != nil {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		return fmt.Errorf("failed to initialize REST server: %w", err)
	}

	s.janitor = janitor.New(s.ctx, cfg.Cleanup.Interval, s.logger, tasks...)
	return nil
}

// BuildVersion reports the module version or VCS revision embedded by the
// Go toolchain, or "dev".
func BuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.version" {
			if setting.Value != "" && setting.Value != "devel" {
				return setting.Value
			}
		}
		if setting.Key == "vcs.revision" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned; later serve errors arrive on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Server.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.Address, err)
	}
	return s.Serve(ln)
}

// Serve starts the janitor and serves the API on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Starting device trust server",
		slog.String("version", s.version),
		slog.String("address", ln.Addr().String()),
		slog.String("storage", s.config.Storage.Backend),
		slog.Bool("recovery", s.recovery != nil))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.janitor.Start()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.rest.Serve(ln); err != nil {
			s.logger.Error("REST server failed", slog.Any("error", err))
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Run starts the server and blocks until ctx is cancelled or the server
// fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		_ = s.Shutdown()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	case runErr = <-s.errCh:
	}

	if err := s.Shutdown(); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Errors reports failures of the background HTTP server.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown stops the HTTP server and the janitor, then closes storage.
// It is safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() { err = s.shutdown() })
	return err
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if started {
		if err := s.rest.Stop(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down REST server", slog.Any("error", err))
			errs = append(errs, err)
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All components stopped")
	case <-shutdownCtx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.closeBackend(); err != nil {
		errs = append(errs, err)
	}

	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")
	return errors.Join(errs...)
}

func (s *Server) closeBackend() error {
	if s.backend == nil || !s.ownsBackend {
		return nil
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("Error closing storage", slog.Any("error", err))
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}

// WaitForShutdown blocks until Shutdown completes.
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// RESTServer returns the HTTP API server.
func (s *Server) RESTServer() *rest.Server {
	return s.rest
}

// Storage returns the storage backend.
func (s *Server) Storage() storage.Backend {
	return s.backend
}

// WebAuthn returns the ceremony service.
func (s *Server) WebAuthn() *webauthn.Service {
	return s.webauthn
}

// Recovery returns the recovery key service, or nil when recovery keys
// are disabled.
func (s *Server) Recovery() *recovery.Service {
	return s.recovery
}

// Issuer returns the session token issuer.
func (s *Server) Issuer() *session.Issuer {
	return s.issuer
}

// Janitor returns the expired record janitor.
func (s *Server) Janitor() *janitor.Janitor {
	return s.janitor
}

// Logger returns the current logger.
func (s *Server) Logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}
