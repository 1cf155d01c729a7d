package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bakkerme/free-game-notifier/internal/core"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// CycleRunner is the part of the runner the API drives.
type CycleRunner interface {
	Trigger(ctx context.Context, reason string) error
	Running() bool
	LastReport() *core.CycleReport
}

// Server exposes health, the last cycle report and a manual check endpoint.
type Server struct {
	name   string
	runner CycleRunner
	logger *slog.Logger
	echo   *echo.Echo
	ctx    context.Context
}

func NewServer(name string, runner CycleRunner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("api request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	server := &Server{
		name:   name,
		runner: runner,
		logger: logger,
		echo:   e,
		ctx:    context.Background(),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.POST("/check", s.handleCheck)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx ends. Cycles started through the API inherit ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.ctx = ctx
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.logger.Info("status api listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": s.name,
	})
}

type statusResponse struct {
	Running   bool              `json:"running"`
	LastCycle *core.CycleReport `json:"last_cycle"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Running:   s.runner.Running(),
		LastCycle: s.runner.LastReport(),
	})
}

func (s *Server) handleCheck(c echo.Context) error {
	err := s.runner.Trigger(s.ctx, "api")
	if errors.Is(err, core.ErrCycleInProgress) {
		return c.JSON(http.StatusConflict, map[string]any{"message": "check cycle already running"})
	}
	if errors.Is(err, core.ErrStopped) {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"message": "notifier is shutting down"})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"message": "check cycle started"})
}
