// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
)

// =============================================================================
// ENGINE ADAPTER
// =============================================================================

// Engine adapts a Client to engine.Engine. Sessions report an explicit
// status: available when the model is installed, downloading while a pull
// started by this Engine is running, downloadable otherwise. A daemon that
// cannot be reached fails Create with an "unavailable" error.
type Engine struct {
	client *Client
	model  string
	logger *zap.Logger

	// pulls outlive the request that started them; stop cancels them.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	pull *pullState
}

type pullState struct {
	fraction    float64
	hasFraction bool
	status      string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for pull progress and failures.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wraps client for the given model. An empty model uses the
// client's default.
func NewEngine(client *Client, model string, opts ...EngineOption) *Engine {
	if model == "" {
		model = client.Config().DefaultModel
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		client:  client,
		model:   model,
		logger:  zap.NewNop(),
		baseCtx: ctx,
		stop:    cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the model this engine serves.
func (e *Engine) Model() string { return e.model }

// SupportsStreaming implements engine.StreamingEngine.
func (e *Engine) SupportsStreaming() bool { return true }

// Close cancels any running pull and waits for it to exit.
func (e *Engine) Close() error {
	e.stop()
	e.wg.Wait()
	return nil
}

// Create implements engine.Engine.
func (e *Engine) Create(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	if err := e.client.CheckRunning(ctx); err != nil {
		return nil, fmt.Errorf("inference engine unavailable: %w", err)
	}

	s := &session{engine: e, cfg: cfg}

	if p, ok := e.pullSnapshot(); ok {
		s.status = engine.StatusDownloading
		s.fraction, s.hasFraction = p.fraction, p.hasFraction
		return s, nil
	}

	installed, err := e.client.ModelExists(ctx, e.model)
	if err != nil {
		return nil, fmt.Errorf("checking model %s: %w", e.model, err)
	}
	switch {
	case installed:
		s.status = engine.StatusAvailable
	case cfg.Acquire:
		e.startPull()
		s.status = engine.StatusDownloading
	default:
		s.status = engine.StatusDownloadable
	}
	return s, nil
}

func (e *Engine) pullSnapshot() (pullState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pull == nil {
		return pullState{}, false
	}
	return *e.pull, true
}

// startPull begins a background pull unless one is already running.
func (e *Engine) startPull() {
	e.mu.Lock()
	if e.pull != nil {
		e.mu.Unlock()
		return
	}
	e.pull = &pullState{status: "starting"}
	e.mu.Unlock()

	e.logger.Info("model pull started", zap.String("model", e.model))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.client.Pull(e.baseCtx, e.model, func(p PullProgress) {
			e.mu.Lock()
			defer e.mu.Unlock()
			if e.pull == nil {
				return
			}
			e.pull.status = p.Status
			if f, ok := p.Fraction(); ok {
				e.pull.fraction, e.pull.hasFraction = f, true
			}
		})

		e.mu.Lock()
		e.pull = nil
		e.mu.Unlock()

		if err != nil {
			// The session reverts to downloadable so the user can retry.
			e.logger.Warn("model pull failed", zap.String("model", e.model), zap.Error(err))
			return
		}
		e.logger.Info("model pull finished", zap.String("model", e.model))
	}()
}

// =============================================================================
// SESSION
// =============================================================================

type session struct {
	engine      *Engine
	cfg         engine.SessionConfig
	status      string
	fraction    float64
	hasFraction bool
}

func (s *session) Status() string { return s.status }

func (s *session) DownloadProgress() (float64, bool) {
	if s.status != engine.StatusDownloading {
		return 0, false
	}
	return s.fraction, s.hasFraction
}

func (s *session) Prompt(ctx context.Context, text string) (string, error) {
	resp, err := s.engine.client.Chat(ctx, s.request(text))
	if err != nil {
		return "", s.wrap(err)
	}
	return resp.Message.Content, nil
}

func (s *session) PromptStreaming(ctx context.Context, text string, onChunk func(string)) (string, error) {
	var b strings.Builder
	err := s.engine.client.ChatStream(ctx, s.request(text), func(chunk StreamChunk) {
		if chunk.Content == "" {
			return
		}
		b.WriteString(chunk.Content)
		onChunk(chunk.Content)
	})
	if err != nil {
		return b.String(), s.wrap(err)
	}
	return b.String(), nil
}

func (s *session) request(text string) ChatRequest {
	req := ChatRequest{
		Model:    s.engine.model,
		Messages: []Message{NewUserMessage(text)},
		Format:   s.cfg.Format,
	}
	if s.cfg.Temperature > 0 {
		req.Options = &Options{Temperature: s.cfg.Temperature}
	}
	return req
}

// wrap words errors so callers that classify by message can tell a missing
// model from a dead daemon.
func (s *session) wrap(err error) error {
	switch {
	case IsModelNotFound(err):
		return fmt.Errorf("model %s must be downloaded first: %w", s.engine.model, err)
	case IsNotRunning(err):
		return fmt.Errorf("inference engine unavailable: %w", err)
	default:
		return err
	}
}
