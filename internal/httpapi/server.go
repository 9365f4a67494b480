// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
)

// Server serves the public authentication API.
type Server struct {
	cfg        *config.Config
	svc        *auth.Service
	metrics    *observability.Metrics
	logger     *slog.Logger
	engine     *gin.Engine
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the API server. metrics may be nil (disabled).
func NewServer(cfg *config.Config, svc *auth.Service, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("config is required")
	}
	if svc == nil {
		return nil, oops.Code("HTTPAPI_INVALID").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}
	s.engine = s.buildEngine()
	return s, nil
}

// buildEngine wires middleware and routes.
func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(securityHeaders())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = s.cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	engine.Use(cors.New(corsConfig))

	engine.GET("/", s.handleWelcome)

	authRoutes := engine.Group("/auth")
	{
		authRoutes.POST("/register", s.handleRegister)
		authRoutes.POST("/login", s.handleLogin)
		authRoutes.POST("/logout", s.RequireSession(), s.handleLogout)
	}

	protected := engine.Group("", s.RequireSession())
	{
		protected.GET("/users", s.handleListUsers)
		protected.GET("/me", s.handleMe)
	}

	return engine
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving the API. It returns an error channel that receives
// any serve error; the channel is closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.ListenAddr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
