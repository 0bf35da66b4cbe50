// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/speech"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8765"

	// MaxRequestBodySize is the maximum size for a request body (64KB).
	MaxRequestBodySize = 64 * 1024

	// MaxMessageLength is the maximum message length in characters.
	MaxMessageLength = 4000

	// DefaultKeepAlive is how often an idle event stream sends a comment.
	DefaultKeepAlive = 15 * time.Second
)

// Version is reported by /health. The CLI sets it at startup.
var Version = "dev"

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Conversation is the orchestrator surface the API exposes.
// *orchestrator.Orchestrator implements it.
type Conversation interface {
	Snapshot() orchestrator.State
	Subscribe() (<-chan struct{}, func())
	SubmitTurnAsync(text string) error
	SetInput(text string)
	HandleSendMessage() error
	CheckAvailability(ctx context.Context) model.ModelStatus
	BeginModelDownload(ctx context.Context) gateway.DownloadResult
	ResetConversation()
	ToggleMessageExpansion(id string) bool
}

// Voice is the input arbiter surface. *speech.Arbiter implements it.
type Voice interface {
	SetVoiceEnabled(on bool)
	VoiceEnabled() bool
	Recognizing() bool
	ActiveSource() speech.Source
	SubmitText(text string) error
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the local HTTP API over one conversation.
type Server struct {
	addr      string
	conv      Conversation
	voice     Voice
	logger    *zap.Logger
	limiter   *RateLimiter
	keepAlive time.Duration

	router *http.ServeMux

	mu      sync.Mutex
	server  *http.Server
	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

// WithVoice enables the voice endpoints and routes typed messages through
// the arbiter.
func WithVoice(v Voice) Option {
	return func(s *Server) { s.voice = v }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRateLimiter replaces the per-IP limiter.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) {
		if rl != nil {
			s.limiter = rl
		}
	}
}

// WithKeepAlive sets the event stream keep-alive period.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// New creates a Server for conv.
func New(conv Conversation, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      DefaultAddr,
		conv:      conv,
		logger:    zap.NewNop(),
		limiter:   DefaultRateLimiter(),
		keepAlive: DefaultKeepAlive,
		router:    http.NewServeMux(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ============================================================================
// ROUTES
// ============================================================================

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("GET /api/state", s.handleState)
	s.router.HandleFunc("GET /api/events", s.handleEvents)

	s.router.HandleFunc("POST /api/messages", s.handleSubmit)
	s.router.HandleFunc("PUT /api/input", s.handleInput)
	s.router.HandleFunc("POST /api/send", s.handleSend)
	s.router.HandleFunc("POST /api/messages/{id}/toggle", s.handleToggle)
	s.router.HandleFunc("POST /api/reset", s.handleReset)

	s.router.HandleFunc("POST /api/model/check", s.handleCheck)
	s.router.HandleFunc("POST /api/model/download", s.handleDownload)

	s.router.HandleFunc("POST /api/voice", s.handleVoice)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
	)(s.router)
}

// ============================================================================
// TYPES
// ============================================================================

// VoiceState describes the voice input toggle.
type VoiceState struct {
	Available   bool          `json:"available"`
	Enabled     bool          `json:"enabled"`
	Recognizing bool          `json:"recognizing"`
	Source      speech.Source `json:"source"`
}

// StateResponse is the body of GET /api/state and of each state event.
type StateResponse struct {
	orchestrator.State
	Voice VoiceState `json:"voice"`
}

// MessageRequest is the body of POST /api/messages and PUT /api/input.
type MessageRequest struct {
	Text string `json:"text"`
}

// VoiceRequest is the body of POST /api/voice.
type VoiceRequest struct {
	Enabled bool `json:"enabled"`
}

// DownloadResponse reports whether a download request was accepted.
type DownloadResponse struct {
	Started bool   `json:"started"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string           `json:"status"`
	Version     string           `json:"version"`
	ModelStatus model.StatusKind `json:"model_status"`
}

func (s *Server) state() StateResponse {
	resp := StateResponse{State: s.conv.Snapshot()}
	resp.Voice.Source = speech.SourceText
	if s.voice != nil {
		resp.Voice = VoiceState{
			Available:   true,
			Enabled:     s.voice.VoiceEnabled(),
			Recognizing: s.voice.Recognizing(),
			Source:      s.voice.ActiveSource(),
		}
	}
	return resp
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.conv.Snapshot().ModelStatus
	health := HealthResponse{
		Status:      "ok",
		Version:     Version,
		ModelStatus: st.Status,
	}
	switch st.Status {
	case model.StatusError, model.StatusNotAvailable:
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// handleSubmit handles POST /api/messages.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	var err error
	if s.voice != nil {
		err = s.voice.SubmitText(req.Text)
	} else {
		err = s.conv.SubmitTurnAsync(req.Text)
	}
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleInput handles PUT /api/input.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.conv.SetInput(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

// handleSend handles POST /api/send, submitting the stored input.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if s.voice != nil && s.voice.ActiveSource() == speech.SourceVoice {
		s.writeSubmitError(w, speech.ErrVoiceActive)
		return
	}
	if err := s.conv.HandleSendMessage(); err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleToggle handles POST /api/messages/{id}/toggle.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing message id")
		return
	}
	expanded := s.conv.ToggleMessageExpansion(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "expanded": expanded})
}

// handleReset handles POST /api/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.conv.ResetConversation()
	s.logger.Info("conversation reset via API", zap.String("ip", GetClientIP(r)))
	w.WriteHeader(http.StatusNoContent)
}

// handleCheck handles POST /api/model/check.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.CheckAvailability(r.Context()))
}

// handleDownload handles POST /api/model/download.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	res := s.conv.BeginModelDownload(r.Context())
	resp := DownloadResponse{Started: res.Started}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleVoice handles POST /api/voice.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.voice == nil {
		writeError(w, http.StatusNotImplemented, "voice input is not configured")
		return
	}
	var req VoiceRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.voice.SetVoiceEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, s.state().Voice)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("server started", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
	return srv.Serve(ln)
}

// Shutdown ends open event streams and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// decode reads a JSON body into v, writing a 400/413 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", MaxRequestBodySize))
			return false
		}
		s.logger.Debug("invalid request body", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid request format")
		return false
	}
	if m, ok := v.(*MessageRequest); ok && utf8.RuneCountInString(m.Text) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("message exceeds %d characters", MaxMessageLength))
		return false
	}
	return true
}

// writeSubmitError maps turn rejections to status codes.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrTurnInFlight), errors.Is(err, speech.ErrVoiceActive):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrUnavailable), errors.Is(err, orchestrator.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("submit failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": strings.TrimSpace(message),
			"code":    status,
		},
	})
}
