// Package api assembles the HTTP server and its routes.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/grabgate/grabgate/internal/config"
	"github.com/grabgate/grabgate/internal/filter"
	"github.com/grabgate/grabgate/internal/stats"
)

// Server handles HTTP requests for the grabgate API.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
	cfg    *config.Config

	filterHandlers *filter.Handlers
	statsHandlers  *stats.Handlers
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, filterHandlers *filter.Handlers, statsHandlers *stats.Handlers, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		logger:         logger,
		cfg:            cfg,
		filterHandlers: filterHandlers,
		statsHandlers:  statsHandlers,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID
	s.echo.Use(middleware.RequestID())

	// Request body size limit covers webhook payloads and .torrent uploads
	s.echo.Use(middleware.BodyLimit("1M"))

	// Request logging
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
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/", s.index)
	s.echo.GET("/health", s.healthCheck)

	s.filterHandlers.RegisterRoutes(s.echo)
	s.statsHandlers.RegisterRoutes(s.echo)
}

func (s *Server) index(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": "grabgate",
		"version": config.Version,
	})
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "grabgate",
		"version": config.Version,
	})
}

// Start starts the HTTP server.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
