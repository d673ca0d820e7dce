// Package web implements the HTTP surface: the /v1 JSON facade over
// the gateway service, the streamable-HTTP MCP endpoint, and the
// embedded live-chat widget with its websocket transcript stream.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/parleygate/parley/internal/buildinfo"
	"github.com/parleygate/parley/internal/gateway"
)

// Server is the HTTP server.
type Server struct {
	address    string
	port       int
	svc        *gateway.Service
	mcpHandler http.Handler
	logger     *slog.Logger
	server     *http.Server
}

// NewServer creates the HTTP server. mcpHandler is mounted at /mcp and
// may be nil to disable the MCP endpoint.
func NewServer(address string, port int, svc *gateway.Service, mcpHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:    address,
		port:       port,
		svc:        svc,
		mcpHandler: mcpHandler,
		logger:     logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Session and conversation facade
	mux.HandleFunc("POST /v1/sessions", s.handleStartSession)
	mux.HandleFunc("POST /v1/sessions/{sessionId}/conversations", s.handleCreateConversation)
	mux.HandleFunc("POST /v1/sessions/{sessionId}/conversations/{conversationId}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /v1/sessions/{sessionId}/conversations/{conversationId}/entries", s.handleListEntries)
	mux.HandleFunc("GET /v1/sessions/{sessionId}/conversations/{conversationId}/routing-status", s.handleRoutingStatus)
	mux.HandleFunc("GET /v1/sessions/{sessionId}/conversations/{conversationId}/surface", s.handleSurface)
	mux.HandleFunc("DELETE /v1/sessions/{sessionId}/conversations/{conversationId}", s.handleClose)

	// Live-chat widget
	registerWidgetRoutes(mux)
	mux.HandleFunc("GET /v1/widget/ws", s.handleWidgetSocket)

	// Health endpoints
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)

	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.mcpHandler)
	}

	return s.withLogging(mux)
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for polling listings
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting HTTP server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, map[string]string{
		"name":    "Parley",
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, buildinfo.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().String(),
	})
}
