// Package server exposes the orchestration engine over HTTP.
//
// The daemon carries the five hook contracts as POST endpoints under
// /v1/hooks, a read-only session debug surface, /health, and /metrics.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/config"
	"github.com/fyrsmithlabs/atreides/internal/engine"
	"github.com/fyrsmithlabs/atreides/internal/hooks"
)

// Server is the HTTP transport for the engine.
type Server struct {
	config     *config.ServerConfig
	logger     *zap.Logger
	echo       *echo.Echo
	dispatcher *hooks.Dispatcher
	engine     *engine.Engine
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Sessions int    `json:"sessions"`
}

// New creates the HTTP server.
func New(cfg *config.ServerConfig, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		config:     cfg,
		logger:     logger.Named("server"),
		echo:       e,
		dispatcher: hooks.NewDispatcher(eng, logger),
		engine:     eng,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/v1/sessions/:id", s.handleGetSession)
	s.echo.GET("/v1/stats", s.handleStats)

	for hookType, segment := range map[hooks.Type]string{
		hooks.TypePreToolUse:       "pre-tool-use",
		hooks.TypePostToolUse:      "post-tool-use",
		hooks.TypeUserPromptSubmit: "user-prompt-submit",
		hooks.TypeStop:             "stop",
		hooks.TypePreCompact:       "pre-compact",
		hooks.TypeSessionEnd:       "session-end",
	} {
		s.echo.POST("/v1/hooks/"+segment, s.hookHandler(hookType))
	}
}

// hookHandler builds the handler for one hook endpoint. A payload that
// does not decode is answered with an allow response, not an HTTP
// error: the bridge treats non-200 as "daemon down" and fails open
// anyway, so a clean allow keeps the two paths consistent.
func (s *Server) hookHandler(hookType hooks.Type) echo.HandlerFunc {
	return func(c echo.Context) error {
		var event hooks.Event
		if err := c.Bind(&event); err != nil {
			s.logger.Warn("undecodable hook payload",
				zap.String("hook", string(hookType)), zap.Error(err))
			return c.JSON(http.StatusOK, hooks.Allow())
		}
		resp := s.dispatcher.Dispatch(c.Request().Context(), hookType, &event)
		return c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Service:  "atreides",
		Sessions: s.engine.Store().Len(),
	})
}

// handleGetSession returns a read-only snapshot for debugging.
func (s *Server) handleGetSession(c echo.Context) error {
	id := c.Param("id")
	snapshot, ok := s.engine.Store().Snapshot(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"session": snapshot,
		"todos":   s.engine.Todos().Items(id),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats := s.engine.Validator().Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"validations": map[string]any{
			"allowed":         stats.Allowed,
			"asked":           stats.Asked,
			"denied":          stats.Denied,
			"obfuscated":      stats.Obfuscated,
			"mean_latency_us": stats.MeanLatencyUS,
		},
		"sessions": s.engine.Store().Len(),
	})
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.ShutdownTimeout,
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
