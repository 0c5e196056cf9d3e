// Package server provides the gitglean HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/indexer"
	"github.com/bull/gitglean/internal/metrics"
	"github.com/bull/gitglean/internal/retriever"
)

const defaultHealthTimeout = 3 * time.Second

// Ingester runs one repository ingestion.
type Ingester interface {
	Ingest(ctx context.Context, req indexer.Request) (*indexer.Result, error)
}

// Searcher answers a query against one repository.
type Searcher interface {
	Search(ctx context.Context, query, repositoryURL string) ([]retriever.Result, error)
}

// HealthChecker reports whether the vector store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds server dependencies and settings.
type Config struct {
	Addr     string
	Ingester Ingester
	Searcher Searcher
	Health   HealthChecker
	// MCP is mounted at /mcp when set.
	MCP           http.Handler
	HealthTimeout time.Duration
}

// Server serves the ingestion, search, health, metrics and MCP endpoints.
type Server struct {
	echo   *echo.Echo
	config Config
	logger *zap.Logger
}

// New creates the HTTP server and registers its routes.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if cfg.Ingester == nil || cfg.Searcher == nil || cfg.Health == nil {
		return nil, errors.New("server: ingester, searcher and health checker are required")
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{echo: e, config: cfg, logger: logger}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/search", s.handleSearch)
	if s.config.MCP != nil {
		s.echo.Any("/mcp", echo.WrapHandler(s.config.MCP))
	}
}

// requestLogger logs every request and records the HTTP metrics.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			req := c.Request()
			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(req.Method, route).Observe(duration.Seconds())

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
