// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/engine/enginetest"
	"github.com/jeranaias/localtalk/internal/model"
)

// =============================================================================
// TRANSLATION TABLE TESTS
// =============================================================================

func TestStatusFromField(t *testing.T) {
	tests := []struct {
		field string
		want  model.StatusKind
	}{
		{engine.StatusAvailable, model.StatusReady},
		{engine.StatusDownloading, model.StatusDownloading},
		{engine.StatusDownloadable, model.StatusDownloadable},
		{engine.StatusNotAvailable, model.StatusNotAvailable},
		{"readily", model.StatusUnknown},
		{"", model.StatusUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFromField(tc.field))
		})
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		msg  string
		want model.StatusKind
	}{
		{"The model is being downloaded", model.StatusDownloading},
		{"Download in progress", model.StatusDownloading},
		{"The model is not available on this device", model.StatusNotAvailable},
		{"inference engine unavailable: connection refused", model.StatusNotAvailable},
		{"Requires a user gesture to create", model.StatusDownloadable},
		{"out of memory", model.StatusError},
	}

	for _, tc := range tests {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFromError(errors.New(tc.msg)))
		})
	}
}

func TestClassifyError(t *testing.T) {
	cause := errors.New("out of memory")
	err := ClassifyError(cause)

	assert.ErrorIs(t, err, ErrEngineError)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, ClassifyError(errors.New("engine unavailable")), ErrEngineUnavailable)
	assert.ErrorIs(t, ClassifyError(errors.New("must be downloaded first")), ErrDownloadRequired)
	assert.NoError(t, ClassifyError(nil))
}

// =============================================================================
// CHECK STATUS TESTS
// =============================================================================

func TestCheckStatus_NoEngine(t *testing.T) {
	g := New(nil)

	st := g.CheckStatus(context.Background(), "ja")

	assert.Equal(t, model.StatusNotAvailable, st.Status)
	assert.Equal(t, MsgEngineAbsent, st.Message)
	assert.False(t, g.Present())
}

func TestCheckStatus_StatusField(t *testing.T) {
	e := enginetest.New("")
	e.SetStatus(engine.StatusDownloading, 0.42, true)
	g := New(e)

	st := g.CheckStatus(context.Background(), "ja")

	assert.Equal(t, model.StatusDownloading, st.Status)
	require.NotNil(t, st.Progress)
	assert.InDelta(t, 0.42, *st.Progress, 1e-9)
	assert.Empty(t, e.Prompts(), "status field must not trigger a probe")
}

func TestCheckStatus_ProbeSuccess(t *testing.T) {
	e := &enginetest.Engine{Reply: "はい"}
	g := New(e)

	st := g.CheckStatus(context.Background(), "ja")

	assert.Equal(t, model.StatusReady, st.Status)
	assert.Equal(t, []string{ProbeText}, e.Prompts())
}

func TestCheckStatus_ProbeFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.StatusKind
	}{
		{"downloading", errors.New("model download pending"), model.StatusDownloading},
		{"gesture", errors.New("requires user gesture"), model.StatusDownloadable},
		{"other", errors.New("segfault"), model.StatusError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := &enginetest.Engine{PromptErr: tc.err}
			st := New(e).CheckStatus(context.Background(), "ja")
			assert.Equal(t, tc.want, st.Status)
		})
	}
}

func TestCheckStatus_CreateFailure(t *testing.T) {
	e := &enginetest.Engine{CreateErr: errors.New("kaboom")}

	st := New(e).CheckStatus(context.Background(), "ja")

	assert.Equal(t, model.StatusError, st.Status)
	assert.Equal(t, MsgCheckFailed, st.Message)
}

// =============================================================================
// DOWNLOAD TESTS
// =============================================================================

func TestRequestDownload(t *testing.T) {
	e := enginetest.New("")
	e.SetStatus(engine.StatusDownloadable, 0, false)
	g := New(e)

	res := g.RequestDownload(context.Background(), "ja")

	assert.True(t, res.Started)
	assert.NoError(t, res.Err)
	cfgs := e.SessionConfigs()
	require.Len(t, cfgs, 1)
	assert.True(t, cfgs[0].Acquire)
}

func TestRequestDownload_Failure(t *testing.T) {
	e := &enginetest.Engine{CreateErr: errors.New("not available")}

	res := New(e).RequestDownload(context.Background(), "ja")

	assert.False(t, res.Started)
	assert.ErrorIs(t, res.Err, ErrEngineUnavailable)
}

// =============================================================================
// PROMPT TESTS
// =============================================================================

func TestPrompt(t *testing.T) {
	e := enginetest.New(`{"answer":"こんにちは"}`)
	g := New(e)

	out, err := g.Prompt(context.Background(), engine.SessionConfig{Language: "ja"}, "hi")

	require.NoError(t, err)
	assert.Equal(t, `{"answer":"こんにちは"}`, out)
}

func TestPrompt_Error(t *testing.T) {
	e := enginetest.New("")
	e.SetPromptErr(enginetest.ErrBoom)

	_, err := New(e).Prompt(context.Background(), engine.SessionConfig{}, "hi")

	assert.ErrorIs(t, err, ErrEngineError)
	assert.ErrorIs(t, err, enginetest.ErrBoom)
}

func TestPrompt_NoEngine(t *testing.T) {
	_, err := New(nil).Prompt(context.Background(), engine.SessionConfig{}, "hi")
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestPromptStream_Chunks(t *testing.T) {
	e := enginetest.New("")
	e.Streaming = true
	e.SetChunks("a", "b", "", "c")
	g := New(e)
	require.True(t, g.SupportsStreaming())

	var got []string
	out, err := g.PromptStream(context.Background(), engine.SessionConfig{}, "hi", func(c string) {
		got = append(got, c)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, "abc", out)
}

func TestPromptStream_NonStreamingEngine(t *testing.T) {
	e := enginetest.New("whole")
	g := New(e)
	assert.False(t, g.SupportsStreaming())

	var got []string
	out, err := g.PromptStream(context.Background(), engine.SessionConfig{}, "hi", func(c string) {
		got = append(got, c)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"whole"}, got)
	assert.Equal(t, "whole", out)
}

func TestPromptStream_StopsAfterCancel(t *testing.T) {
	e := enginetest.New("")
	e.Streaming = true
	e.SetChunks("a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.BeforeChunk = func(i int) {
		if i == 1 {
			cancel()
		}
	}

	var got []string
	_, err := New(e).PromptStream(ctx, engine.SessionConfig{}, "hi", func(c string) {
		got = append(got, c)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, got)
}

func TestWithStreamingDisabled(t *testing.T) {
	e := enginetest.New("x")
	e.Streaming = true

	assert.False(t, New(e, WithStreaming(false)).SupportsStreaming())
}

// =============================================================================
// TRACING TESTS
// =============================================================================

func recordingGateway(e engine.Engine) (*Gateway, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return New(e, WithTracer(tp.Tracer(tracerName))), rec
}

func TestPromptStream_SpanRecordsFailure(t *testing.T) {
	e := enginetest.New("")
	e.Streaming = true
	e.SetPromptErr(enginetest.ErrBoom)
	g, rec := recordingGateway(e)

	_, err := g.PromptStream(context.Background(), engine.SessionConfig{}, "hi", func(string) {})
	require.ErrorIs(t, err, ErrEngineError)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gateway.PromptStream", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Status().Description, "engine exploded")
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestPromptStream_SpanCountsChunks(t *testing.T) {
	e := enginetest.New("")
	e.Streaming = true
	e.SetChunks("こん", "にちは")
	g, rec := recordingGateway(e)

	_, err := g.PromptStream(context.Background(), engine.SessionConfig{}, "hi", func(string) {})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	attrs := map[string]int64{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInt64()
	}
	assert.Equal(t, int64(2), attrs["stream.chunks"])
	assert.Equal(t, int64(2), attrs["prompt.chars"])
}

func TestCheckStatus_SpanCarriesStatus(t *testing.T) {
	e := enginetest.New("")
	e.SetStatus(engine.StatusDownloadable, 0, false)
	g, rec := recordingGateway(e)

	g.CheckStatus(context.Background(), "ja")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gateway.CheckStatus", spans[0].Name())
	var status string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "status" {
			status = kv.Value.AsString()
		}
	}
	assert.Equal(t, model.StatusDownloadable.String(), status)
}

func TestRequestDownload_SpanRecordsNoEngine(t *testing.T) {
	g, rec := recordingGateway(nil)

	res := g.RequestDownload(context.Background(), "ja")
	require.ErrorIs(t, res.Err, ErrEngineUnavailable)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
