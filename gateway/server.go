package gateway

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c360/docmesh/config"
	"github.com/c360/docmesh/errors"
	"github.com/c360/docmesh/pkg/tlsutil"
)

// Server runs the HTTP handler
type Server struct {
	cfg        config.ServerConfig
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	served   chan struct{}
}

// NewServer creates a server for handler. Zero timeouts in cfg fall back to
// the configuration defaults.
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	defaults := config.Defaults().Server
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: logger.With("component", "http-server"),
	}
}

// Start binds the listen address and serves in the background. Bind and
// certificate failures are returned synchronously.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "listen")
	}
	tlsConfig, err := tlsutil.ServerTLS(s.cfg.TLS)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", "listen on "+s.cfg.Addr)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	s.listener = ln
	s.served = make(chan struct{})

	// Capture references before the goroutine
	server, served := s.httpServer, s.served
	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "tls", tlsConfig != nil)
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured shutdown timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	served := s.served
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	logger := s.logger.With("operation", "http-shutdown")
	logger.Debug("Starting HTTP server shutdown", "timeout", s.cfg.ShutdownTimeout)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return errors.WrapTransient(err, "Server", "Shutdown", "graceful shutdown")
	}
	<-served

	logger.Debug("HTTP server shutdown completed",
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
