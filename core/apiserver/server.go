package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piggyclaim/piggyclaim/core/progress"
	"github.com/piggyclaim/piggyclaim/core/taskengine"
	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/version"
)

const shutdownTimeout = 5 * time.Second

type HttpJsonResp[T any] struct {
	Data T `json:"data"`
}

type EngineStatus interface {
	LastSummary() *taskengine.Summary
	Running() bool
}

type StatsSource interface {
	Stats() (*progress.Stats, error)
}

type StatusResponse struct {
	Version  string              `json:"version"`
	Running  bool                `json:"running"`
	LastRun  *taskengine.Summary `json:"last_run,omitempty"`
	Progress *progress.Stats     `json:"progress,omitempty"`
}

// Server exposes prometheus metrics and run status while the bot runs.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger logger.Logger
}

func New(addr string, gatherer prometheus.Gatherer, engine EngineStatus, stats StatsSource, log logger.Logger) *Server {
	log = logger.EnsureLogger(log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "up")
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	e.GET("/status", func(c echo.Context) error {
		resp := StatusResponse{Version: version.Get()}
		if engine != nil {
			resp.Running = engine.Running()
			resp.LastRun = engine.LastSummary()
		}
		if stats != nil {
			s, err := stats.Stats()
			if err != nil {
				log.Warn("cannot load progress stats", "error", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "cannot load progress"})
			}
			resp.Progress = s
		}
		return c.JSON(http.StatusOK, &HttpJsonResp[StatusResponse]{Data: resp})
	})

	return &Server{echo: e, addr: addr, logger: log}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done. A bind failure is logged and the bot keeps
// running without the endpoint.
func (s *Server) Start(ctx context.Context) {
	if s.addr == "" {
		s.logger.Info("HTTP server disabled: no metrics_address configured")
		return
	}

	go func() {
		s.logger.Info("HTTP server listening", "address", s.addr)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("HTTP server failed to start; continuing without HTTP endpoint", "address", s.addr, "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown failed", "error", err)
		}
	}()
}
