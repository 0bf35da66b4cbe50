// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oaicompat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
)

// localToken is sent when no API key is configured; local servers ignore it
// but the client refuses to start without one.
const localToken = "local"

// Config configures the adapter.
type Config struct {
	BaseURL string
	Token   string
	Model   string
	Timeout time.Duration
}

// Engine is an engine.Engine over an OpenAI-compatible endpoint.
type Engine struct {
	llm    llms.Model
	model  string
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine for cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	token := cfg.Token
	if token == "" {
		token = localToken
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	llm, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI-compatible client: %w", err)
	}

	e := &Engine{llm: llm, model: cfg.Model, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Model returns the configured model name.
func (e *Engine) Model() string { return e.model }

// SupportsStreaming implements engine.StreamingEngine.
func (e *Engine) SupportsStreaming() bool { return true }

// Create implements engine.Engine. Sessions are stateless; the endpoint is
// only contacted when prompted.
func (e *Engine) Create(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	if cfg.Acquire {
		e.logger.Info("model download is not supported by OpenAI-compatible endpoints",
			zap.String("model", e.model))
	}
	return &session{engine: e, cfg: cfg}, nil
}

type session struct {
	engine *Engine
	cfg    engine.SessionConfig
}

func (s *session) Prompt(ctx context.Context, text string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, s.engine.llm, text, s.options()...)
	if err != nil {
		return "", s.wrap(err)
	}
	return out, nil
}

func (s *session) PromptStreaming(ctx context.Context, text string, onChunk func(string)) (string, error) {
	var b strings.Builder
	opts := append(s.options(), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		b.Write(chunk)
		onChunk(string(chunk))
		return nil
	}))
	if _, err := llms.GenerateFromSinglePrompt(ctx, s.engine.llm, text, opts...); err != nil {
		return b.String(), s.wrap(err)
	}
	return b.String(), nil
}

func (s *session) options() []llms.CallOption {
	var opts []llms.CallOption
	if s.cfg.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(s.cfg.Temperature))
	}
	// Most local servers accept json_object but not a full schema.
	if len(s.cfg.Format) > 0 {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

// wrap words errors for the gateway's error classification.
func (s *session) wrap(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isNetworkError(err):
		return fmt.Errorf("endpoint unavailable: %w", err)
	case strings.Contains(err.Error(), "404"):
		return fmt.Errorf("model %s not available: %w", s.engine.model, err)
	default:
		return err
	}
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}
