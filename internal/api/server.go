package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dos-queue/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	// Handlers
	healthHandler  *HealthHandler
	messageHandler *MessageHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config         *config.ServerConfig
	Logger         *slog.Logger
	HealthHandler  *HealthHandler
	MessageHandler *MessageHandler

	// BodyLimit caps request bodies in bytes. 0 keeps the fiber default.
	BodyLimit int
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable strict routing for consistency
		StrictRouting: true,
		// Case sensitive routing
		CaseSensitive: true,
		ReadTimeout:   deps.Config.ReadTimeout,
		WriteTimeout:  deps.Config.WriteTimeout,
		IdleTimeout:   deps.Config.IdleTimeout,
		BodyLimit:     deps.BodyLimit,
		// Custom error handler
		ErrorHandler: customErrorHandler,
	})

	s := &Server{
		app:            app,
		config:         deps.Config,
		logger:         deps.Logger,
		healthHandler:  deps.HealthHandler,
		messageHandler: deps.MessageHandler,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware() {
	// Recovery middleware to handle panics
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware for tracing
	s.app.Use(requestid.New())

	// Logger middleware for request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${error}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// Health checks (outside versioned API)
	s.app.Get("/healthz", s.healthHandler.Liveness)
	s.app.Get("/healthz/queue", s.healthHandler.Queue)

	// Prometheus metrics endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.app.Group("/v1")

	v1.Post("/messages", s.messageHandler.Submit)
	v1.Get("/queue/stats", s.messageHandler.Stats)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// customErrorHandler handles errors returned from handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Check if it's a Fiber error
	var e *fiber.Error
	if errors.As(err, &e) {
		return Error(c, e.Code, codeForStatus(e.Code), e.Message)
	}

	// Default to internal server error
	return InternalError(c, fmt.Sprintf("unexpected error: %v", err))
}
