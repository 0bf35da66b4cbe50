// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/engine/enginetest"
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/monitor"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/schedule"
	"github.com/jeranaias/localtalk/internal/speech"
)

const reply = `{"topics":["旅行"],"answer":"いいですね！"}`

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestServer(t *testing.T, eng *enginetest.Engine, opts ...Option) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	clock := schedule.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	gw := gateway.New(eng)
	mon := monitor.New(gw, monitor.WithClock(clock))
	orch := orchestrator.New(gw, mon, orchestrator.WithClock(clock))
	orch.Start(context.Background())
	t.Cleanup(func() { _ = orch.Close() })
	return New(orch, opts...), orch
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func waitIdle(t *testing.T, orch *orchestrator.Orchestrator) {
	t.Helper()
	require.Eventually(t, func() bool { return !orch.Busy() }, 2*time.Second, 5*time.Millisecond)
}

// fakeVoice is a minimal Voice.
type fakeVoice struct {
	mu        sync.Mutex
	enabled   bool
	submitted []string
}

func (v *fakeVoice) SetVoiceEnabled(on bool) { v.mu.Lock(); v.enabled = on; v.mu.Unlock() }
func (v *fakeVoice) VoiceEnabled() bool      { v.mu.Lock(); defer v.mu.Unlock(); return v.enabled }
func (v *fakeVoice) Recognizing() bool       { return v.VoiceEnabled() }

func (v *fakeVoice) ActiveSource() speech.Source {
	if v.VoiceEnabled() {
		return speech.SourceVoice
	}
	return speech.SourceText
}

func (v *fakeVoice) SubmitText(text string) error {
	if v.VoiceEnabled() {
		return speech.ErrVoiceActive
	}
	v.mu.Lock()
	v.submitted = append(v.submitted, text)
	v.mu.Unlock()
	return nil
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New(reply))

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ready", string(health.ModelStatus))
}

func TestHandleHealth_Degraded(t *testing.T) {
	eng := enginetest.New(reply)
	eng.Status = engine.StatusNotAvailable
	s, _ := newTestServer(t, eng)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(do(t, s, http.MethodGet, "/health", "").Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)
}

func TestHandleSubmit(t *testing.T) {
	s, orch := newTestServer(t, enginetest.New(reply))

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"旅行が好きです"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitIdle(t, orch)

	state := decodeState(t, do(t, s, http.MethodGet, "/api/state", ""))
	msgs := state["messages"].([]any)
	require.Len(t, msgs, 2)
	ai := msgs[1].(map[string]any)
	assert.Equal(t, "ai", ai["sender"])
	assert.Equal(t, "いいですね！", ai["displayText"])
	assert.Equal(t, true, state["aiAvailable"])

	voice := state["voice"].(map[string]any)
	assert.Equal(t, false, voice["available"])
	assert.Equal(t, "text", voice["source"])
}

func TestHandleSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", `{"text":"   "}`, http.StatusBadRequest},
		{"invalid json", `{"text":`, http.StatusBadRequest},
		{"too long", `{"text":"` + strings.Repeat("あ", MaxMessageLength+1) + `"}`, http.StatusBadRequest},
		{"too large", `{"text":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`, http.StatusRequestEntityTooLarge},
	}

	s, _ := newTestServer(t, enginetest.New(reply))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/messages", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleSubmit_Unavailable(t *testing.T) {
	eng := enginetest.New(reply)
	eng.Status = engine.StatusNotAvailable
	s, _ := newTestServer(t, eng)

	rec := do(t, s, http.MethodPost, "/api/messages", `{"text":"こんにちは"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSubmit_InFlight(t *testing.T) {
	eng := enginetest.New(reply)
	gate := make(chan struct{})
	eng.Gate = gate
	s, orch := newTestServer(t, eng)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/messages", `{"text":"一つ目"}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/messages", `{"text":"二つ目"}`).Code)

	close(gate)
	waitIdle(t, orch)
	assert.Len(t, orch.Snapshot().Messages, 2)
}

func TestHandleInputAndSend(t *testing.T) {
	s, orch := newTestServer(t, enginetest.New(reply))

	require.Equal(t, http.StatusNoContent, do(t, s, http.MethodPut, "/api/input", `{"text":" 下書き "}`).Code)
	assert.Equal(t, " 下書き ", orch.Snapshot().Input)

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/send", "").Code)
	waitIdle(t, orch)

	snap := orch.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "下書き", snap.Messages[0].Text())
	assert.Empty(t, snap.Input)

	// Nothing left to send.
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/send", "").Code)
}

func TestHandleToggleAndReset(t *testing.T) {
	s, orch := newTestServer(t, enginetest.New(reply))

	rec := do(t, s, http.MethodPost, "/api/messages/abc/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeState(t, rec)["expanded"])

	rec = do(t, s, http.MethodPost, "/api/messages/abc/toggle", "")
	assert.Equal(t, false, decodeState(t, rec)["expanded"])

	require.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/messages", `{"text":"やあ"}`).Code)
	waitIdle(t, orch)
	require.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/reset", "").Code)
	assert.Empty(t, orch.Snapshot().Messages)
}

func TestHandleModelEndpoints(t *testing.T) {
	eng := enginetest.New(reply)
	eng.Status = engine.StatusDownloadable
	s, orch := newTestServer(t, eng)

	rec := do(t, s, http.MethodPost, "/api/model/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "downloadable", decodeState(t, rec)["status"])

	rec = do(t, s, http.MethodPost, "/api/model/download", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var dl DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dl))
	assert.True(t, dl.Started)
	assert.Empty(t, dl.Error)
	assert.Equal(t, "downloading", string(orch.Snapshot().ModelStatus.Status))
}

func TestHandleVoice(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New(reply))
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodPost, "/api/voice", `{"enabled":true}`).Code)

	voice := &fakeVoice{}
	s, _ = newTestServer(t, enginetest.New(reply), WithVoice(voice))

	rec := do(t, s, http.MethodPost, "/api/voice", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var vs VoiceState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vs))
	assert.True(t, vs.Available)
	assert.True(t, vs.Enabled)
	assert.Equal(t, speech.SourceVoice, vs.Source)

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/messages", `{"text":"入力"}`).Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/send", "").Code)

	do(t, s, http.MethodPost, "/api/voice", `{"enabled":false}`)
	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/messages", `{"text":"入力"}`).Code)
	assert.Equal(t, []string{"入力"}, voice.submitted)
}

func TestHandleEvents(t *testing.T) {
	s, orch := newTestServer(t, enginetest.New(reply))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Shutdown(context.Background())

	resp, err := http.Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan map[string]any, 8)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var v map[string]any
				if json.Unmarshal([]byte(data), &v) == nil {
					events <- v
				}
			}
		}
	}()

	next := func() map[string]any {
		select {
		case ev := <-events:
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return nil
		}
	}

	first := next()
	assert.Empty(t, first["messages"])

	orch.SetInput("タイピング中")
	for {
		ev := next()
		if ev["input"] == "タイピング中" {
			break
		}
	}
}

// =============================================================================
// MIDDLEWARE TESTS
// =============================================================================

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
	if rl.Clients() != 2 {
		t.Errorf("Clients() = %d, want 2", rl.Clients())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New(reply), WithRateLimiter(NewRateLimiter(0.001, 1)))

	if rec := do(t, s, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New(reply))
	rec := do(t, s, http.MethodGet, "/health", "")

	headers := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct", "192.168.1.5:1234", "", "", "192.168.1.5"},
		{"untrusted forwarded", "192.168.1.5:1234", "1.2.3.4", "", "192.168.1.5"},
		{"loopback proxy xff", "127.0.0.1:1234", "1.2.3.4, 10.0.0.1", "", "1.2.3.4"},
		{"loopback proxy x-real-ip", "127.0.0.1:1234", "", "5.6.7.8", "5.6.7.8"},
		{"invalid forwarded", "127.0.0.1:1234", "not-an-ip", "", "127.0.0.1"},
		{"no port", "127.0.0.1", "", "", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mw("a"), mw("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "a,b,handler" {
		t.Errorf("order = %v", order)
	}
}
