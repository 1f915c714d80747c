// Package http provides the inspection and approval API for swarmd.
//
// The server is read-mostly: it exposes session snapshots, a cancel
// endpoint, an approval-resolution endpoint for sessions paused on
// escalation, and the Prometheus scrape endpoint. It never drives the
// orchestration loop itself.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/swarmd/internal/approval"
	"github.com/fyrsmithlabs/swarmd/internal/metrics"
	"github.com/fyrsmithlabs/swarmd/internal/plan"
)

// SessionStore exposes running sessions to the API.
type SessionStore interface {
	// Snapshot returns an independent copy of the session's plan.
	Snapshot(sessionID string) (plan.Plan, bool)

	// Cancel fires the session's cancellation token. It reports
	// whether the session was found.
	Cancel(sessionID string) bool
}

// Server provides HTTP endpoints for swarmd.
type Server struct {
	echo     *echo.Echo
	sessions SessionStore
	approver *approval.Broker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(sessions SessionStore, approver *approval.Broker, m *metrics.Metrics, logger *zap.Logger, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9190,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		sessions: sessions,
		approver: approver,
		metrics:  m,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/cancel", s.handleCancelSession)
	v1.POST("/sessions/:id/approval", s.handleResolveApproval)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ApprovalRequest is the request body for POST /api/v1/sessions/:id/approval.
type ApprovalRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleGetSession(c echo.Context) error {
	sessionID := c.Param("id")

	snapshot, ok := s.sessions.Snapshot(sessionID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleCancelSession(c echo.Context) error {
	sessionID := c.Param("id")

	if !s.sessions.Cancel(sessionID) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	s.logger.Info("session cancelled via api", zap.String("session_id", sessionID))
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleResolveApproval(c echo.Context) error {
	if s.approver == nil {
		return echo.NewHTTPError(http.StatusNotFound, "approvals are not enabled")
	}

	sessionID := c.Param("id")

	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid approval request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := s.approver.Resolve(sessionID, approval.Response{
		Approved: req.Approved,
		Feedback: req.Feedback,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, "session has no pending approval")
	}

	s.logger.Info("approval resolved via api",
		zap.String("session_id", sessionID),
		zap.Bool("approved", req.Approved),
	)
	return c.NoContent(http.StatusAccepted)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
