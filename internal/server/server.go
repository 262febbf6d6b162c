// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/jeranaias/mindmap-editor/internal/agent"
	"github.com/jeranaias/mindmap-editor/internal/docstore"
	"github.com/jeranaias/mindmap-editor/internal/hub"
	"github.com/jeranaias/mindmap-editor/internal/locale"
	"github.com/jeranaias/mindmap-editor/internal/logging"
	"github.com/jeranaias/mindmap-editor/internal/ws"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3000"

	// MaxRequestBodySize caps JSON bodies. JSON escapes a control byte as
	// six bytes (\u0001), so a MaxDocumentSize document can be six times
	// larger on the wire. The store enforces the real limit.
	MaxRequestBodySize = 6*docstore.MaxDocumentSize + 4096

	// MaxChatMessageSize caps the assistant prompt.
	MaxChatMessageSize = 64 * 1024

	// Version is the server version.
	Version = "0.1.0"

	agentReady       = "Agent ready"
	agentMissing     = "Claude Agent SDK not available"
	agentUnavailable = "Agent not available. Install claude-agent-sdk and set ANTHROPIC_API_KEY."
)

// defaultPublicConfig is served by /api/config when no features file exists.
var defaultPublicConfig = json.RawMessage(`{"mindmap":{"maxFrItems":100,"maxDimensionItems":100,"maxDescriptionLength":200}}`)

// ============================================================================
// SERVER
// ============================================================================

// Server is the editor's HTTP API.
type Server struct {
	addr   string
	router *http.ServeMux
	server *http.Server

	store      *docstore.Store
	hub        *hub.Hub
	agent      *agent.Agent
	locales    *locale.Store
	config     json.RawMessage
	staticDir  string
	cors       *CORSConfig
	limiter    *RateLimiter
	logger     *zap.Logger
	routesOnce sync.Once

	mu sync.RWMutex
}

// NewServer creates a Server over store, broadcasting through h.
func NewServer(store *docstore.Store, h *hub.Hub) *Server {
	return &Server{
		addr:    DefaultAddr,
		router:  http.NewServeMux(),
		store:   store,
		hub:     h,
		cors:    DefaultCORSConfig(),
		limiter: NewRateLimiter(10, time.Minute),
		logger:  zap.NewNop(),
	}
}

// WithAddr sets the listen address.
func (s *Server) WithAddr(addr string) *Server {
	s.addr = addr
	return s
}

// WithAgent sets the assistant.
func (s *Server) WithAgent(a *agent.Agent) *Server {
	s.agent = a
	return s
}

// WithLocales sets the locale tables.
func (s *Server) WithLocales(l *locale.Store) *Server {
	s.locales = l
	return s
}

// WithPublicConfig sets the JSON served by /api/config.
func (s *Server) WithPublicConfig(raw json.RawMessage) *Server {
	s.config = raw
	return s
}

// WithStaticDir sets the directory holding index.html and assets.
func (s *Server) WithStaticDir(dir string) *Server {
	s.staticDir = dir
	return s
}

// WithCORS sets the CORS configuration.
func (s *Server) WithCORS(c *CORSConfig) *Server {
	s.cors = c
	return s
}

// WithRateLimiter sets the limiter guarding the chat endpoint.
func (s *Server) WithRateLimiter(rl *RateLimiter) *Server {
	s.limiter = rl
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(l *zap.Logger) *Server {
	s.logger = logging.OrNop(l).Named("server")
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Documents
	s.router.HandleFunc("GET /api/files", s.handleListFiles)
	s.router.HandleFunc("GET /api/files/{path...}", s.handleReadFile)
	s.router.HandleFunc("PUT /api/files/{path...}", s.handleWriteFile)
	s.router.HandleFunc("GET /api/tree", s.handleTree)

	// Settings
	s.router.HandleFunc("GET /api/config", s.handleConfig)
	s.router.HandleFunc("GET /api/locales/{locale}", s.handleLocale)

	// Assistant
	s.router.HandleFunc("GET /api/agent/status", s.handleAgentStatus)
	s.router.Handle("POST /api/agent/chat",
		RateLimitMiddleware(s.limiter, s.logger)(http.HandlerFunc(s.handleAgentChat)))

	// Live updates
	s.router.Handle("GET /ws", ws.NewHandler(s.hub, s.store, s.cors.AllowedOrigins, s.logger))

	// Frontend
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	if s.staticDir != "" {
		s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(s.setupRoutes)
	return Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		CORSMiddleware(s.cors),
	)(s.router)
}

// ============================================================================
// DOCUMENT HANDLERS
// ============================================================================

type fileUpdate struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// handleListFiles handles GET /api/files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.store.ListFiles()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// handleReadFile handles GET /api/files/{path...}.
func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	content, err := s.store.Read(path)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path, "content": content})
}

// handleWriteFile handles PUT /api/files/{path...}. The URL path is
// authoritative; a path in the body is ignored.
func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var body fileUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Max size: %d bytes", docstore.MaxDocumentSize))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: content is required")
		return
	}

	if err := s.store.Write(r.Context(), path, *body.Content); err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

// handleTree handles GET /api/tree.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := s.store.BuildTree()
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// ============================================================================
// SETTINGS HANDLERS
// ============================================================================

// handleConfig handles GET /api/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	raw := s.config
	if len(raw) == 0 {
		raw = defaultPublicConfig
	}
	writeRawJSON(w, http.StatusOK, raw)
}

// handleLocale handles GET /api/locales/{locale}.
func (s *Server) handleLocale(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("locale")
	if !locale.Valid(tag) {
		writeError(w, http.StatusBadRequest, locale.ErrInvalidLocale.Error())
		return
	}
	if s.locales == nil {
		writeRawJSON(w, http.StatusOK, json.RawMessage(`{}`))
		return
	}
	table, err := s.locales.Lookup(tag)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeRawJSON(w, http.StatusOK, table)
}

// ============================================================================
// ASSISTANT HANDLERS
// ============================================================================

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) agentAvailable() bool {
	return s.agent != nil && s.agent.Available()
}

// handleAgentStatus handles GET /api/agent/status.
func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	available := s.agentAvailable()
	message := agentMissing
	if available {
		message = agentReady
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": available, "message": message})
}

// handleAgentChat handles POST /api/agent/chat as an SSE stream.
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxChatMessageSize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if !s.agentAvailable() {
		writeError(w, http.StatusServiceUnavailable, agentUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err := s.agent.Run(r.Context(), req.Message, func(ev agent.Event) error {
		data, err := agent.Encode(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", ulid.Make(), data); err != nil {
			return err
		}
		flusher.Flush()
		return r.Context().Err()
	})
	if err != nil {
		s.logger.Debug("CHAT_STREAM_ABANDONED", zap.Error(err))
	}
}

// ============================================================================
// FRONTEND HANDLERS
// ============================================================================

// handleIndex handles GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(s.staticDir, "index.html")
	if s.staticDir == "" {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	if _, err := os.Stat(index); err != nil {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	http.ServeFile(w, r, index)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	agentState := "unavailable"
	if s.agentAvailable() {
		agentState = s.agent.ProviderName()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     Version,
		"subscribers": s.hub.Len(),
		"agent":       agentState,
	})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: chat streams and websockets are long-lived.
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("SERVER_START", zap.String("addr", s.addr), zap.String("version", Version))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("SERVER_SHUTDOWN", zap.Int("subscribers", s.hub.Len()))
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// storeError maps a store failure to its HTTP status.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docstore.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, docstore.ErrNotAFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, docstore.ErrInvalidLine), errors.Is(err, docstore.ErrTextMismatch):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("REQUEST_FAILED", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(raw)
}

// writeError writes an error as {"detail": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
