// Package web provides the HTTP server and route wiring for the chat
// stream, vote, artifact and history endpoints.
package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/strandhq/strand/internal/auth"
	"github.com/strandhq/strand/internal/metrics"
	"github.com/strandhq/strand/internal/web/handlers"
)

// ServerConfig contains everything the server routes need.
type ServerConfig struct {
	Logger    *slog.Logger
	Sessions  *handlers.Sessions
	ChatStore handlers.ChatStore
	Votes     *handlers.Votes
	Pager     handlers.Pager
	Artifacts handlers.ArtifactReader
	Resolver  auth.Resolver
}

// Server is the HTTP server with all routes configured.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer wires handlers onto the route table. Returns an error if
// required configuration is missing.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("sessions registry is required")
	}
	if cfg.ChatStore == nil {
		return nil, errors.New("chat store is required")
	}
	if cfg.Votes == nil {
		return nil, errors.New("vote handler is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("auth resolver is required")
	}

	mux := http.NewServeMux()

	health := handlers.NewHealth()
	chatHandler := handlers.NewChat(handlers.ChatConfig{
		Logger:   cfg.Logger,
		Sessions: cfg.Sessions,
		Store:    cfg.ChatStore,
		Resolver: cfg.Resolver,
	})
	historyHandler := handlers.NewHistory(handlers.HistoryConfig{
		Logger:   cfg.Logger,
		Pager:    cfg.Pager,
		Resolver: cfg.Resolver,
	})
	artifactHandler := handlers.NewArtifacts(handlers.ArtifactConfig{
		Logger: cfg.Logger,
		Store:  cfg.Artifacts,
	})

	mux.HandleFunc("GET /healthz", health.Check)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /vote", cfg.Votes.List)
	mux.HandleFunc("PATCH /vote", cfg.Votes.Mutate)

	mux.HandleFunc("POST /api/chat", chatHandler.Send)
	mux.HandleFunc("POST /api/chat/{id}/stop", chatHandler.Stop)

	mux.HandleFunc("GET /api/history", historyHandler.List)

	mux.HandleFunc("GET /api/artifact/{id}", artifactHandler.Describe)
	mux.HandleFunc("GET /api/artifact/{id}/version/{seq}", artifactHandler.Version)
	mux.HandleFunc("GET /api/artifact/{id}/diff", artifactHandler.Diff)

	return &Server{mux: mux, logger: cfg.Logger}, nil
}

// ServeHTTP implements http.Handler with the middleware stack:
// Recovery catches panics, Logging tracks requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")

	var handler http.Handler = s.mux
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler.ServeHTTP(w, r)
}

// Handler returns the server as an http.Handler for mounting.
func (s *Server) Handler() http.Handler {
	return s
}
