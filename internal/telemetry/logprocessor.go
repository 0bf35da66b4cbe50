// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// LogProcessor writes each finished span as one log entry: debug for
// successful spans, warn for spans ending with an error status.
type LogProcessor struct {
	logger *zap.Logger
}

var _ sdktrace.SpanProcessor = (*LogProcessor)(nil)

// NewLogProcessor returns a processor logging to logger.
func NewLogProcessor(logger *zap.Logger) *LogProcessor {
	return &LogProcessor{logger: logger.Named("trace")}
}

func (p *LogProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *LogProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := make([]zap.Field, 0, 4+len(s.Attributes()))
	fields = append(fields,
		zap.String("span", s.Name()),
		zap.String("trace_id", s.SpanContext().TraceID().String()),
		zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
	)
	for _, kv := range s.Attributes() {
		fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
	}

	if st := s.Status(); st.Code == codes.Error {
		p.logger.Warn("span failed", append(fields, zap.String("error", st.Description))...)
		return
	}
	p.logger.Debug("span finished", fields...)
}

// Shutdown syncs the logger. Sync errors on a terminal are ignored.
func (p *LogProcessor) Shutdown(context.Context) error {
	_ = p.logger.Sync()
	return nil
}

func (p *LogProcessor) ForceFlush(context.Context) error { return nil }
