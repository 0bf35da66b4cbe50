// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
)

// fakeServer answers /chat/completions like an OpenAI-compatible server.
type fakeServer struct {
	mu       sync.Mutex
	requests []map[string]any
	reply    string
	chunks   []string
	status   int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests = append(f.requests, body)
	status, reply, chunks := f.status, f.reply, f.chunks
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
		return
	}

	if stream, _ := body["stream"].(bool); stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			data, _ := json.Marshal(map[string]any{
				"id": "chunk", "object": "chat.completion.chunk", "created": 1, "model": "m",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": c}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id": "cmpl", "object": "chat.completion", "created": 1, "model": "m",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

func (f *fakeServer) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func newEngine(t *testing.T, f *fakeServer) *Engine {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	e, err := New(Config{BaseURL: ts.URL + "/v1", Model: "gemma3:4b"})
	require.NoError(t, err)
	return e
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{BaseURL: "http://127.0.0.1:1/v1"})
	assert.Error(t, err)
}

func TestPrompt(t *testing.T) {
	f := &fakeServer{reply: "こんにちは"}
	e := newEngine(t, f)

	sess, err := e.Create(context.Background(), engine.SessionConfig{Language: "ja"})
	require.NoError(t, err)
	_, isReporter := sess.(engine.StatusReporter)
	assert.False(t, isReporter, "OpenAI-compatible sessions expose no status field")

	out, err := sess.Prompt(context.Background(), "やあ")
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", out)

	req := f.lastRequest()
	assert.Equal(t, "gemma3:4b", req["model"])
	msgs := req["messages"].([]any)
	require.NotEmpty(t, msgs)
	assert.Contains(t, fmt.Sprint(msgs[len(msgs)-1]), "やあ")
}

func TestPrompt_JSONMode(t *testing.T) {
	f := &fakeServer{reply: `{"answer":"はい"}`}
	e := newEngine(t, f)

	sess, err := e.Create(context.Background(), engine.SessionConfig{Format: json.RawMessage(`{"type":"object"}`)})
	require.NoError(t, err)
	_, err = sess.Prompt(context.Background(), "質問")
	require.NoError(t, err)

	rf, ok := f.lastRequest()["response_format"].(map[string]any)
	require.True(t, ok, "response_format should be sent")
	assert.Equal(t, "json_object", rf["type"])
}

func TestPromptStreaming(t *testing.T) {
	f := &fakeServer{chunks: []string{"こん", "にち", "は"}}
	e := newEngine(t, f)
	assert.True(t, e.SupportsStreaming())

	sess, err := e.Create(context.Background(), engine.SessionConfig{})
	require.NoError(t, err)
	streamer, ok := sess.(engine.Streamer)
	require.True(t, ok)

	var got []string
	full, err := streamer.PromptStreaming(context.Background(), "やあ", func(c string) { got = append(got, c) })
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", full)
	assert.Equal(t, []string{"こん", "にち", "は"}, got)
}

func TestErrors_Classified(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	e, err := New(Config{BaseURL: url + "/v1", Model: "gemma3:4b"})
	require.NoError(t, err)
	sess, _ := e.Create(context.Background(), engine.SessionConfig{})
	_, err = sess.Prompt(context.Background(), "やあ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint unavailable")
	assert.Equal(t, model.StatusNotAvailable, gateway.StatusFromError(err))

	f := &fakeServer{status: http.StatusNotFound}
	e = newEngine(t, f)
	sess, _ = e.Create(context.Background(), engine.SessionConfig{})
	_, err = sess.Prompt(context.Background(), "やあ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestGateway_ProbeFallback(t *testing.T) {
	f := &fakeServer{reply: "OK"}
	gw := gateway.New(newEngine(t, f))

	st := gw.CheckStatus(context.Background(), "ja")
	assert.Equal(t, model.StatusReady, st.Status)
	assert.Equal(t, gateway.ProbeText, lastUserContent(t, f))
}

func lastUserContent(t *testing.T, f *fakeServer) string {
	t.Helper()
	msgs, _ := f.lastRequest()["messages"].([]any)
	require.NotEmpty(t, msgs)
	m, _ := msgs[len(msgs)-1].(map[string]any)
	switch c := m["content"].(type) {
	case string:
		return c
	case []any:
		for _, part := range c {
			if p, ok := part.(map[string]any); ok && p["type"] == "text" {
				return p["text"].(string)
			}
		}
	}
	return ""
}
