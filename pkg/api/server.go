package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/seekd/seekd/internal/logger"
	"github.com/seekd/seekd/pkg/api/auth"
	"github.com/seekd/seekd/pkg/config"
	"github.com/seekd/seekd/pkg/seekerr"
)

// Server is the operator HTTP server. It carries the JSON control API, the
// health probes, the Prometheus endpoint and the agent data endpoints.
//
// The server supports graceful shutdown with a configurable timeout.
type Server struct {
	server       *http.Server
	cfg          config.APIConfig
	shutdownOnce sync.Once
}

// NewServer creates the operator API server from configuration. The server is
// created in a stopped state; call Start to begin serving.
func NewServer(cfg config.APIConfig, svc Services) (*Server, error) {
	jwtService, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		return nil, seekerr.Wrap(seekerr.KindInvalidArgument, "api jwt configuration", err)
	}

	users := auth.NewUsers(cfg.Users)
	if users.Empty() {
		return nil, seekerr.New(seekerr.KindInvalidArgument, "api requires at least one operator user")
	}

	router := NewRouter(svc, jwtService, users)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{server: server, cfg: cfg}, nil
}

// Start serves requests until the context is cancelled or the listener fails.
// Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "port", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and safe to
// call concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown: %w", err)
		} else {
			logger.Info("API server stopped")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.cfg.Port
}
