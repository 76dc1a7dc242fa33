// Package api assembles the HTTP server: services, middleware, and routes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/config"
	"github.com/streamweave/streamweave/internal/database"
	"github.com/streamweave/streamweave/internal/events"
	"github.com/streamweave/streamweave/internal/health"
	"github.com/streamweave/streamweave/internal/overlay"
	"github.com/streamweave/streamweave/internal/overlay/cache"
	"github.com/streamweave/streamweave/internal/overlay/filter"
	"github.com/streamweave/streamweave/internal/scheduler"
	"github.com/streamweave/streamweave/internal/session"
	"github.com/streamweave/streamweave/internal/source"
	"github.com/streamweave/streamweave/internal/source/probe"
	"github.com/streamweave/streamweave/internal/source/provider"
)

// Server handles HTTP requests for the StreamWeave API.
type Server struct {
	echo   *echo.Echo
	db     *database.DB
	hub    *events.Hub
	logger zerolog.Logger
	cfg    *config.Config

	memory         *session.Memory
	sourceService  *source.Service
	overlayService *overlay.Service
	healthService  *health.Service
	scheduler      *scheduler.Scheduler
	providers      *provider.Repository
}

// NewServer creates a new API server instance with all services wired.
func NewServer(db *database.DB, hub *events.Hub, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		db:     db,
		hub:    hub,
		logger: logger,
		cfg:    cfg,
		memory: session.New(),
	}

	providers, err := provider.NewRepository(cfg.Providers.Dir, cfg.Providers.SearchTimeout(), logger)
	if err != nil {
		return nil, err
	}
	s.providers = providers

	prober := probe.New(probe.Config{
		PoolWidth: cfg.Probe.PoolWidth,
		MaxBytes:  cfg.Probe.MaxBytes,
		Timeout:   cfg.Probe.Timeout(),
	}, logger)

	s.sourceService = source.NewService(providers, prober, s.memory, hub, logger)

	upstream := overlay.NewClient(overlay.ClientConfig{
		BaseURL: cfg.Overlay.APIBase,
		Token:   cfg.Overlay.APIToken,
		Timeout: cfg.Overlay.Timeout(),
	}, logger)
	resolver := overlay.NewResolver(upstream, s.memory, logger)
	cacheStore := cache.New(db.Conn(), cfg.Overlay.CacheExpiry(), logger)
	filterEngine := filter.NewEngine(logger)

	s.overlayService = overlay.NewService(
		resolver,
		cacheStore,
		filterEngine,
		db,
		s.memory,
		hub,
		cfg.Overlay.MaxCommentCount,
		logger,
	)

	// Playback switches invalidate any resolve still running for the
	// previous episode.
	hub.SetPlaybackHandler(func(title string, episodeIndex int) {
		s.overlayService.BeginPlayback()
	})

	s.healthService = health.NewService(logger)
	s.healthService.SetBroadcaster(hub)

	sched, err := scheduler.New(logger)
	if err != nil {
		return nil, err
	}
	s.scheduler = sched

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "overlay-cache-sweep",
		Name:        "Overlay cache sweep",
		Description: "Deletes expired overlay cache entries",
		Cron:        cfg.Overlay.SweepCron,
		Func:        s.overlayService.SweepCache,
		RunOnStart:  true,
	}); err != nil {
		return nil, err
	}

	if err := sched.RegisterTask(scheduler.TaskConfig{
		ID:          "health-check",
		Name:        "Health check",
		Description: "Verifies storage, provider, and upstream availability",
		Cron:        "*/5 * * * *",
		Func:        s.runHealthChecks,
		RunOnStart:  true,
	}); err != nil {
		return nil, err
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api/v1")

	sourceHandlers := source.NewHandlers(s.sourceService)
	sourceHandlers.RegisterRoutes(api.Group("/source"))

	overlayHandlers := overlay.NewHandlers(s.overlayService)
	overlayHandlers.RegisterRoutes(api.Group("/overlay"))

	healthHandlers := health.NewHandlers(s.healthService)
	healthHandlers.RegisterRoutes(api.Group("/health"))

	api.GET("/tasks", s.listTasks)
	api.POST("/tasks/:id/run", s.runTask)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// runHealthChecks probes the dependencies playback needs and records
// their status.
func (s *Server) runHealthChecks(ctx context.Context) error {
	if err := s.db.Conn().PingContext(ctx); err != nil {
		s.healthService.SetStatus(health.CategoryStorage, "database", "Database", health.StatusError, err.Error())
	} else {
		s.healthService.SetStatus(health.CategoryStorage, "database", "Database", health.StatusOK, "")
	}

	if n := len(s.providers.Clients()); n == 0 {
		s.healthService.SetStatus(health.CategoryProviders, "definitions", "Source providers",
			health.StatusWarning, "no provider definitions loaded")
	} else {
		s.healthService.SetStatus(health.CategoryProviders, "definitions", "Source providers",
			health.StatusOK, fmt.Sprintf("%d providers loaded", n))
	}

	s.checkUpstream(ctx)
	return nil
}

func (s *Server) checkUpstream(ctx context.Context) {
	base := s.cfg.Overlay.APIBase
	if base == "" {
		s.healthService.SetStatus(health.CategoryUpstream, "comment-api", "Comment API",
			health.StatusWarning, "no upstream configured")
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base, nil)
	if err != nil {
		s.healthService.SetStatus(health.CategoryUpstream, "comment-api", "Comment API",
			health.StatusError, err.Error())
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.healthService.SetStatus(health.CategoryUpstream, "comment-api", "Comment API",
			health.StatusError, err.Error())
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		s.healthService.SetStatus(health.CategoryUpstream, "comment-api", "Comment API",
			health.StatusError, fmt.Sprintf("upstream returned %d", resp.StatusCode))
		return
	}
	s.healthService.SetStatus(health.CategoryUpstream, "comment-api", "Comment API", health.StatusOK, "")
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

func (s *Server) runTask(c echo.Context) error {
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// Start runs background components and serves HTTP on the configured
// address. It blocks until the server stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.scheduler.Start()
	return s.echo.Start(s.cfg.Server.Address())
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.scheduler.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler shutdown failed")
	}
	return s.echo.Shutdown(ctx)
}
