// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/localtalk/internal/config"
)

// keepGlobalProvider restores the otel global after a test installs one.
func keepGlobalProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetup_Disabled(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	p, err := Setup(context.Background(), config.TelemetryConfig{}, "test", nil)
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	_, span := p.Tracer("x").Start(context.Background(), "op")
	assert.False(t, span.IsRecording())
	span.End()
	assert.Equal(t, before, otel.GetTracerProvider(), "disabled telemetry must not replace the global provider")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_LogsSpans(t *testing.T) {
	keepGlobalProvider(t)
	core, logs := observer.New(zapcore.DebugLevel)

	p, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		LogSpans:    true,
		SampleRatio: 1,
	}, "test", zap.New(core))
	require.NoError(t, err)
	require.True(t, p.Enabled())

	tracer := otel.Tracer("global")
	_, good := tracer.Start(context.Background(), "gateway.Prompt")
	good.SetAttributes(attribute.String("status", "ready"))
	good.End()

	_, bad := p.Tracer("direct").Start(context.Background(), "gateway.PromptStream")
	bad.RecordError(errors.New("engine exploded"))
	bad.SetStatus(codes.Error, "engine exploded")
	bad.End()

	require.NoError(t, p.Shutdown(context.Background()))

	finished := logs.FilterMessage("span finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, zapcore.DebugLevel, finished[0].Level)
	assert.Equal(t, "gateway.Prompt", finished[0].ContextMap()["span"])
	assert.Equal(t, "ready", finished[0].ContextMap()["status"])

	failed := logs.FilterMessage("span failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "gateway.PromptStream", failed[0].ContextMap()["span"])
	assert.Equal(t, "engine exploded", failed[0].ContextMap()["error"])
}

func TestSetup_ZeroSampleRatioDropsSpans(t *testing.T) {
	keepGlobalProvider(t)
	core, logs := observer.New(zapcore.DebugLevel)

	p, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		LogSpans: true,
	}, "test", zap.New(core))
	require.NoError(t, err)

	_, span := p.Tracer("x").Start(context.Background(), "op")
	assert.False(t, span.IsRecording())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Zero(t, logs.FilterMessage("span finished").Len())
}

func TestSetup_OTLPExporter(t *testing.T) {
	keepGlobalProvider(t)

	// No spans are recorded, so shutdown never dials the collector.
	p, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "http://127.0.0.1:4318",
		OTLPHeaders:  "authorization=Bearer x",
		SampleRatio:  1,
	}, "test", zap.NewNop())
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		endpoint string
		insecure bool
	}{
		{"127.0.0.1:4318", "127.0.0.1:4318", true},
		{"http://collector:4318", "collector:4318", true},
		{"http://collector:4318/", "collector:4318", true},
		{"https://traces.example.com", "traces.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			endpoint, insecure := normalizeEndpoint(tt.raw)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer x ,broken, =v,k=,x-tenant=home")
	assert.Equal(t, map[string]string{
		"authorization": "Bearer x",
		"x-tenant":      "home",
	}, got)
	assert.Empty(t, ParseHeaders(""))
}
