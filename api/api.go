// Package api serves the read-only transcript API for inspecting recorded
// streams.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/brookhq/brook/pkg/storage"
)

// Server is the API server for querying recorded brook streams.
type Server struct {
	config Config
	driver storage.Driver
	log    *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
// The driver is injected to allow sharing with the relay.
func NewServer(config Config, driver storage.Driver, log *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		driver: driver,
		log:    log,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/api/transcripts", s.handleListTranscripts)
	app.Get("/api/transcripts/:id", s.handleGetTranscript)
	app.Get("/api/stats", s.handleStats)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.log.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Test dispatches a request against the in-process server. Exposed for
// tests.
func (s *Server) Test(req *http.Request, timeoutMs ...int) (*http.Response, error) {
	return s.app.Test(req, timeoutMs...)
}
