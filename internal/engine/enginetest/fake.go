// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package enginetest provides a scriptable engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"sync"

	"github.com/jeranaias/localtalk/internal/engine"
)

// Engine is a fake engine.Engine. Configure it through its exported fields
// under Lock/Unlock, or with the setter helpers.
type Engine struct {
	mu sync.Mutex

	// Status is reported by sessions when HasStatus is true.
	Status    string
	HasStatus bool
	Progress  float64
	// HasProgress marks Progress as reported.
	HasProgress bool

	// CreateErr fails Create.
	CreateErr error
	// PromptErr fails Prompt and PromptStreaming.
	PromptErr error

	// Reply is returned by Prompt. Chunks, when set, are streamed in order
	// and their concatenation is returned by PromptStreaming.
	Reply  string
	Chunks []string

	// Streaming enables the Streamer capability.
	Streaming bool

	// Gate, when non-nil, blocks each prompt until it receives a value or
	// the context ends.
	Gate chan struct{}

	// BeforeChunk runs before each streamed chunk is delivered.
	BeforeChunk func(i int)

	// Calls records every prompt text in order.
	Calls []string
	// Configs records every SessionConfig passed to Create.
	Configs []engine.SessionConfig

	// OnAcquire runs when a session is created with Acquire set.
	OnAcquire func(e *Engine)
}

// New returns a ready engine that replies with reply.
func New(reply string) *Engine {
	return &Engine{Status: engine.StatusAvailable, HasStatus: true, Reply: reply}
}

// SetStatus updates the reported status and progress.
func (e *Engine) SetStatus(status string, progress float64, hasProgress bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Status, e.HasStatus = status, true
	e.Progress, e.HasProgress = progress, hasProgress
}

// SetReply sets the blocking reply and clears streamed chunks.
func (e *Engine) SetReply(reply string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Reply, e.Chunks = reply, nil
}

// SetChunks sets the streamed chunks.
func (e *Engine) SetChunks(chunks ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Chunks = chunks
}

// SetPromptErr sets the prompt error.
func (e *Engine) SetPromptErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PromptErr = err
}

// Prompts returns a copy of the recorded prompt texts.
func (e *Engine) Prompts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Calls...)
}

// SessionConfigs returns a copy of the recorded session configs.
func (e *Engine) SessionConfigs() []engine.SessionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.SessionConfig(nil), e.Configs...)
}

// SupportsStreaming implements engine.StreamingEngine.
func (e *Engine) SupportsStreaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Streaming
}

// Create implements engine.Engine.
func (e *Engine) Create(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	e.mu.Lock()
	e.Configs = append(e.Configs, cfg)
	err := e.CreateErr
	acquire := e.OnAcquire
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if cfg.Acquire && acquire != nil {
		acquire(e)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	base := session{engine: e}
	if !e.HasStatus {
		return &base, nil
	}
	if e.Streaming {
		return &streamingStatusSession{statusSession{session: base, status: e.Status, progress: e.Progress, hasProgress: e.HasProgress}}, nil
	}
	return &statusSession{session: base, status: e.Status, progress: e.Progress, hasProgress: e.HasProgress}, nil
}

type session struct {
	engine *Engine
}

func (s *session) wait(ctx context.Context) error {
	s.engine.mu.Lock()
	gate := s.engine.Gate
	s.engine.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Prompt(ctx context.Context, text string) (string, error) {
	s.engine.mu.Lock()
	s.engine.Calls = append(s.engine.Calls, text)
	err, reply := s.engine.PromptErr, s.engine.Reply
	s.engine.mu.Unlock()

	if werr := s.wait(ctx); werr != nil {
		return "", werr
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

// PromptStreaming is exposed only through streamingStatusSession so the
// Streamer capability follows the Streaming flag.
func (s *session) promptStreaming(ctx context.Context, text string, onChunk func(string)) (string, error) {
	s.engine.mu.Lock()
	s.engine.Calls = append(s.engine.Calls, text)
	err := s.engine.PromptErr
	chunks := append([]string(nil), s.engine.Chunks...)
	if len(chunks) == 0 && s.engine.Reply != "" {
		chunks = []string{s.engine.Reply}
	}
	before := s.engine.BeforeChunk
	s.engine.mu.Unlock()

	if werr := s.wait(ctx); werr != nil {
		return "", werr
	}

	var full string
	for i, c := range chunks {
		if before != nil {
			before(i)
		}
		if ctx.Err() != nil {
			return full, ctx.Err()
		}
		full += c
		onChunk(c)
	}
	if err != nil {
		return full, err
	}
	return full, nil
}

type statusSession struct {
	session
	status      string
	progress    float64
	hasProgress bool
}

func (s *statusSession) Status() string { return s.status }

func (s *statusSession) DownloadProgress() (float64, bool) {
	return s.progress, s.hasProgress
}

type streamingStatusSession struct {
	statusSession
}

func (s *streamingStatusSession) PromptStreaming(ctx context.Context, text string, onChunk func(string)) (string, error) {
	return s.promptStreaming(ctx, text, onChunk)
}

// ErrBoom is a generic engine failure for tests.
var ErrBoom = errors.New("engine exploded")
