// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the single point of contact with the inference engine.
//
// It turns whatever the engine exposes (an explicit status field, or only
// error text) into a model.ModelStatus through one translation table, and
// wraps prompt failures in the ErrEngineUnavailable / ErrDownloadRequired /
// ErrEngineError taxonomy. It never retries.
package gateway

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/model"
)

// ProbeText is the prompt issued to engines that expose no status field.
const ProbeText = "テスト"

const tracerName = "github.com/jeranaias/localtalk/internal/gateway"

// Gateway wraps an engine.Engine. A nil engine is valid and reports
// not-available.
type Gateway struct {
	engine    engine.Engine
	streaming bool
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithStreaming enables or disables streaming even if the engine supports it.
func WithStreaming(on bool) Option {
	return func(g *Gateway) { g.streaming = on }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// New creates a Gateway around e.
func New(e engine.Engine, opts ...Option) *Gateway {
	g := &Gateway{
		engine:    e,
		streaming: true,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Present reports whether an engine is configured.
func (g *Gateway) Present() bool {
	return g.engine != nil
}

// SupportsStreaming reports whether PromptStream delivers incremental
// chunks.
func (g *Gateway) SupportsStreaming() bool {
	if !g.streaming || g.engine == nil {
		return false
	}
	se, ok := g.engine.(engine.StreamingEngine)
	return ok && se.SupportsStreaming()
}

// =============================================================================
// STATUS
// =============================================================================

// CheckStatus determines the model's availability for language.
func (g *Gateway) CheckStatus(ctx context.Context, language string) model.ModelStatus {
	ctx, span := g.tracer.Start(ctx, "gateway.CheckStatus",
		trace.WithAttributes(attribute.String("language", language)))
	defer span.End()

	status := g.checkStatus(ctx, language)
	span.SetAttributes(attribute.String("status", status.Status.String()))
	g.logger.Debug("model status checked",
		zap.String("status", status.Status.String()),
		zap.String("message", status.Message))
	return status
}

func (g *Gateway) checkStatus(ctx context.Context, language string) model.ModelStatus {
	if g.engine == nil {
		return model.ModelStatus{Status: model.StatusNotAvailable, Message: MsgEngineAbsent}
	}

	session, err := g.engine.Create(ctx, engine.SessionConfig{Language: language})
	if err != nil {
		kind := StatusFromError(err)
		g.logger.Warn("session create failed during status check",
			zap.String("status", kind.String()), zap.Error(err))
		st := describe(kind)
		if kind == model.StatusError {
			st.Message = MsgCheckFailed
		}
		return st
	}

	if sr, ok := session.(engine.StatusReporter); ok {
		kind := StatusFromField(sr.Status())
		st := describe(kind)
		if kind == model.StatusDownloading {
			if p, ok := sr.DownloadProgress(); ok {
				st = st.WithProgress(p)
			}
		}
		return st
	}

	// No status field: a trial prompt is the only signal.
	// TODO: drop the probe once every shipped adapter reports status; it
	// doubles engine traffic on every turn that is not already ready.
	if _, err := session.Prompt(ctx, ProbeText); err != nil {
		kind := StatusFromError(err)
		g.logger.Debug("probe prompt failed", zap.String("status", kind.String()), zap.Error(err))
		return describe(kind)
	}
	return describe(model.StatusReady)
}

// =============================================================================
// DOWNLOAD
// =============================================================================

// DownloadResult reports whether a download request was accepted.
type DownloadResult struct {
	Started bool
	Err     error
}

// RequestDownload asks the engine to start acquiring its model. Failures
// are reported in the result, never returned.
func (g *Gateway) RequestDownload(ctx context.Context, language string) DownloadResult {
	ctx, span := g.tracer.Start(ctx, "gateway.RequestDownload")
	defer span.End()

	if g.engine == nil {
		span.SetStatus(codes.Error, ErrEngineUnavailable.Error())
		return DownloadResult{Err: ErrEngineUnavailable}
	}
	if _, err := g.engine.Create(ctx, engine.SessionConfig{Language: language, Acquire: true}); err != nil {
		err = ClassifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("model download request failed", zap.Error(err))
		return DownloadResult{Err: err}
	}
	g.logger.Info("model download requested", zap.String("language", language))
	return DownloadResult{Started: true}
}

// =============================================================================
// PROMPTING
// =============================================================================

// Prompt runs text in a fresh session and returns the full output.
func (g *Gateway) Prompt(ctx context.Context, cfg engine.SessionConfig, text string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.Prompt",
		trace.WithAttributes(attribute.Int("prompt.chars", len([]rune(text)))))
	defer span.End()

	session, err := g.create(ctx, cfg)
	if err != nil {
		return "", g.fail(span, err)
	}
	out, err := session.Prompt(ctx, text)
	if err != nil {
		return "", g.fail(span, err)
	}
	return out, nil
}

// PromptStream runs text and delivers output chunks to onChunk in arrival
// order. No chunk is delivered after ctx is done. Engines that cannot
// stream deliver the whole output as one chunk. The full text is returned.
func (g *Gateway) PromptStream(ctx context.Context, cfg engine.SessionConfig, text string, onChunk func(string)) (string, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.PromptStream",
		trace.WithAttributes(attribute.Int("prompt.chars", len([]rune(text)))))
	defer span.End()

	session, err := g.create(ctx, cfg)
	if err != nil {
		return "", g.fail(span, err)
	}

	// Guard delivery so a late chunk from the engine cannot land after
	// cancellation.
	var mu sync.Mutex
	chunks := 0
	deliver := func(c string) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil || c == "" {
			return
		}
		chunks++
		onChunk(c)
	}

	var out string
	if st, ok := session.(engine.Streamer); ok && g.streaming {
		out, err = st.PromptStreaming(ctx, text, deliver)
	} else {
		out, err = session.Prompt(ctx, text)
		if err == nil {
			deliver(out)
		}
	}
	if err != nil {
		return out, g.fail(span, err)
	}
	mu.Lock()
	span.SetAttributes(attribute.Int("stream.chunks", chunks))
	mu.Unlock()
	return out, nil
}

func (g *Gateway) create(ctx context.Context, cfg engine.SessionConfig) (engine.Session, error) {
	if g.engine == nil {
		return nil, ErrEngineUnavailable
	}
	return g.engine.Create(ctx, cfg)
}

func (g *Gateway) fail(span trace.Span, err error) error {
	if err != ErrEngineUnavailable {
		err = ClassifyError(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	g.logger.Warn("engine call failed", zap.Error(err))
	return err
}
