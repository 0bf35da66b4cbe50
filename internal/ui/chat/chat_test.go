// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/speech"
	"github.com/jeranaias/localtalk/internal/ui/styles"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeConversation struct {
	mu        sync.Mutex
	state     orchestrator.State
	sendErr   error
	sends     int
	resets    int
	checks    int
	downloads int
	toggled   []string
	changes   chan struct{}
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{changes: make(chan struct{}, 1)}
}

func (f *fakeConversation) Snapshot() orchestrator.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConversation) Subscribe() (<-chan struct{}, func()) {
	return f.changes, func() {}
}

func (f *fakeConversation) SetInput(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Input = text
}

func (f *fakeConversation) HandleSendMessage() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends++
	f.state.Input = ""
	return nil
}

func (f *fakeConversation) CheckAvailability(context.Context) model.ModelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return model.ModelStatus{Status: model.StatusReady}
}

func (f *fakeConversation) BeginModelDownload(context.Context) gateway.DownloadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	return gateway.DownloadResult{Started: true}
}

func (f *fakeConversation) ResetConversation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.state.Messages = nil
}

func (f *fakeConversation) ToggleMessageExpansion(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, id)
	for i, e := range f.state.Expanded {
		if e == id {
			f.state.Expanded = append(f.state.Expanded[:i], f.state.Expanded[i+1:]...)
			return false
		}
	}
	f.state.Expanded = append(f.state.Expanded, id)
	return true
}

func (f *fakeConversation) set(fn func(s *orchestrator.State)) {
	f.mu.Lock()
	fn(&f.state)
	f.mu.Unlock()
}

type fakeVoice struct {
	enabled     bool
	recognizing bool
}

func (v *fakeVoice) SetVoiceEnabled(on bool) { v.enabled = on }
func (v *fakeVoice) VoiceEnabled() bool      { return v.enabled }
func (v *fakeVoice) Recognizing() bool       { return v.recognizing }
func (v *fakeVoice) ActiveSource() speech.Source {
	if v.enabled && v.recognizing {
		return speech.SourceVoice
	}
	return speech.SourceText
}

// =============================================================================
// HELPERS
// =============================================================================

func available(on bool) *bool { return &on }

func newTestModel(t *testing.T, conv *fakeConversation, opts ...Option) Model {
	t.Helper()
	opts = append([]Option{WithTheme(styles.NewTheme())}, opts...)
	m := New(conv, opts...)
	return update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func jsonReply(display string, topics ...string) *model.Message {
	return model.NewStructuredMessage(model.SenderAI, model.StructuredPayload{
		Display:      display,
		FullResponse: `{"response": "` + display + `"}`,
		IsJSON:       true,
		Topics:       topics,
	})
}

// =============================================================================
// INPUT AND SUBMIT
// =============================================================================

func TestModel_TypingMirrorsInput(t *testing.T) {
	conv := newFakeConversation()
	m := newTestModel(t, conv)

	typeText(t, m, "こんにちは")

	assert.Equal(t, "こんにちは", conv.Snapshot().Input)
}

func TestModel_SubmitSends(t *testing.T) {
	conv := newFakeConversation()
	conv.set(func(s *orchestrator.State) { s.AIAvailable = available(true) })
	m := newTestModel(t, conv)

	m = typeText(t, m, "おはよう")
	m = update(t, m, press(tea.KeyEnter))
	assert.Equal(t, 1, conv.sends)

	// The orchestrator cleared its input; the change notification mirrors it
	m = update(t, m, stateChangedMsg{})
	assert.Empty(t, m.input.Value())
}

func TestModel_SubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		notice string
	}{
		{"empty", orchestrator.ErrEmptyInput, ""},
		{"in flight", orchestrator.ErrTurnInFlight, "応答を生成中"},
		{"unavailable", orchestrator.ErrUnavailable, "利用できない"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := newFakeConversation()
			conv.sendErr = tt.err
			m := newTestModel(t, conv)

			m = update(t, m, press(tea.KeyEnter))

			if tt.notice == "" {
				assert.Empty(t, m.notice)
			} else {
				assert.Contains(t, m.notice, tt.notice)
				assert.True(t, m.noticeWarn)
			}
		})
	}
}

func TestModel_SubmitRefusedWhileVoiceLive(t *testing.T) {
	conv := newFakeConversation()
	voice := &fakeVoice{enabled: true, recognizing: true}
	m := newTestModel(t, conv, WithVoice(voice, nil))

	m = typeText(t, m, "テキスト")
	m = update(t, m, press(tea.KeyEnter))

	assert.Zero(t, conv.sends)
	assert.Contains(t, m.notice, "音声入力中")
}

// =============================================================================
// VOICE
// =============================================================================

func TestModel_ToggleVoice(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		m := newTestModel(t, newFakeConversation())
		m = update(t, m, press(tea.KeyCtrlV))
		assert.Contains(t, m.notice, "設定されていません")
	})

	t.Run("ai unavailable", func(t *testing.T) {
		conv := newFakeConversation()
		conv.set(func(s *orchestrator.State) { s.AIAvailable = available(false) })
		voice := &fakeVoice{}
		m := newTestModel(t, conv, WithVoice(voice, nil))

		update(t, m, press(tea.KeyCtrlV))
		assert.False(t, voice.enabled)
	})

	t.Run("on and off", func(t *testing.T) {
		conv := newFakeConversation()
		conv.set(func(s *orchestrator.State) { s.AIAvailable = available(true) })
		voice := &fakeVoice{}
		m := newTestModel(t, conv, WithVoice(voice, nil))

		m = update(t, m, press(tea.KeyCtrlV))
		assert.True(t, voice.enabled)
		assert.Contains(t, m.View(), "音声 ON")

		m = update(t, m, press(tea.KeyCtrlV))
		assert.False(t, voice.enabled)
		assert.Contains(t, m.View(), "音声 OFF")
	})
}

// =============================================================================
// SELECTION AND DETAIL
// =============================================================================

func TestModel_SelectionAndDetail(t *testing.T) {
	conv := newFakeConversation()
	first := jsonReply("一つ目", "料理")
	plain := model.NewPlainMessage(model.SenderUser, "質問")
	second := jsonReply("二つ目")
	conv.set(func(s *orchestrator.State) {
		s.Messages = []*model.Message{first, plain, second}
	})
	m := newTestModel(t, conv)

	// Detail without a selection picks the newest reply
	m = update(t, m, press(tea.KeyCtrlO))
	assert.Equal(t, second.ID, m.Selected())
	assert.Equal(t, []string{second.ID}, conv.toggled)

	m = update(t, m, press(tea.KeyTab))
	assert.Equal(t, first.ID, m.Selected(), "tab wraps to the oldest reply")

	m = update(t, m, press(tea.KeyShiftTab))
	assert.Equal(t, second.ID, m.Selected())

	m = update(t, m, stateChangedMsg{})
	assert.Contains(t, m.renderConversation(), `"response"`, "expanded reply shows the full response")
	assert.Contains(t, m.renderConversation(), "[hide]")
	assert.Contains(t, m.renderConversation(), "料理")
}

func TestModel_SelectionClearedWhenMessageGone(t *testing.T) {
	conv := newFakeConversation()
	reply := jsonReply("返事")
	conv.set(func(s *orchestrator.State) { s.Messages = []*model.Message{reply} })
	m := newTestModel(t, conv)

	m = update(t, m, press(tea.KeyTab))
	require.Equal(t, reply.ID, m.Selected())

	m = update(t, m, press(tea.KeyCtrlR))
	assert.Equal(t, 1, conv.resets)
	assert.Empty(t, m.Selected())
}

// =============================================================================
// MODEL ACTIONS
// =============================================================================

func TestModel_CheckAvailability(t *testing.T) {
	conv := newFakeConversation()
	m := newTestModel(t, conv)

	next, cmd := m.Update(press(tea.KeyCtrlT))
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, availabilityMsg{}, msg)
	assert.Equal(t, 1, conv.checks)

	m = update(t, next.(Model), msg)
	assert.Contains(t, m.notice, "利用可能")
}

func TestModel_DownloadOnlyWhenDownloadable(t *testing.T) {
	conv := newFakeConversation()
	conv.set(func(s *orchestrator.State) {
		s.ModelStatus = model.ModelStatus{Status: model.StatusReady}
	})
	m := newTestModel(t, conv)

	_, cmd := m.Update(press(tea.KeyCtrlG))
	assert.Nil(t, cmd)

	conv.set(func(s *orchestrator.State) {
		s.ModelStatus = model.ModelStatus{Status: model.StatusDownloadable, Message: "モデルをダウンロードできます"}
	})
	m = update(t, m, stateChangedMsg{})
	assert.Contains(t, m.View(), "ダウンロード開始")

	next, cmd := m.Update(press(tea.KeyCtrlG))
	require.NotNil(t, cmd)
	m = update(t, next.(Model), cmd())
	assert.Equal(t, 1, conv.downloads)
	assert.Contains(t, m.notice, "開始しました")
}

// =============================================================================
// RENDERING
// =============================================================================

func TestView_Welcome(t *testing.T) {
	m := newTestModel(t, newFakeConversation())
	view := m.View()

	assert.Contains(t, view, "こんにちは")
	assert.Contains(t, view, "プログラミング")
	assert.Contains(t, view, "AI機能を確認中")
}

func TestView_ShowThinkingAndCompact(t *testing.T) {
	reply := model.NewStructuredMessage(model.SenderAI, model.StructuredPayload{
		Display:      "了解です",
		FullResponse: `{"answer": "了解です"}`,
		IsJSON:       true,
		Thinking:     []model.ThinkingEntry{{Key: "気分", Value: "上機嫌"}},
	})
	stamp := reply.Timestamp.Format("15:04:05")

	conv := newFakeConversation()
	conv.set(func(s *orchestrator.State) { s.Messages = []*model.Message{reply} })

	plain := newTestModel(t, conv)
	assert.NotContains(t, plain.renderConversation(), "上機嫌")
	assert.Contains(t, plain.renderConversation(), stamp)

	m := newTestModel(t, conv, WithShowThinking(true), WithCompact(true))
	out := m.renderConversation()
	assert.Contains(t, out, "気分: 上機嫌")
	assert.NotContains(t, out, stamp)
	assert.Contains(t, out, "[detail]")
}

func TestView_StagesAndDraft(t *testing.T) {
	conv := newFakeConversation()
	conv.set(func(s *orchestrator.State) {
		s.AIAvailable = available(true)
		s.Messages = []*model.Message{model.NewPlainMessage(model.SenderUser, "天気は？")}
		s.Ephemeral = model.EphemeralStatus{Active: true, Stage: model.StageSent}
		s.SpeechDraft = "明日の"
	})
	m := newTestModel(t, conv)

	content := m.renderConversation()
	assert.Contains(t, content, "天気は？")
	assert.Contains(t, content, "メッセージ受信")
	assert.Contains(t, content, "AIへ送信")
	assert.Contains(t, content, "思考")
	assert.Contains(t, content, "明日の")
	assert.Contains(t, content, "音声入力中...")

	stages := m.renderStages()
	assert.Contains(t, stages, "[*] AIへ送信")
	assert.Contains(t, stages, "[ ] 思考")
}

func TestView_DownloadProgress(t *testing.T) {
	conv := newFakeConversation()
	conv.set(func(s *orchestrator.State) {
		s.ModelStatus = model.ModelStatus{Status: model.StatusDownloading, Message: "モデルをダウンロード中です"}.WithProgress(0.42)
	})
	m := newTestModel(t, conv)

	line := m.renderModelStatus()
	assert.Contains(t, line, "モデルをダウンロード中です")
	assert.Contains(t, line, "(42%完了)")
}

func TestView_FitsHeight(t *testing.T) {
	conv := newFakeConversation()
	var msgs []*model.Message
	for i := 0; i < 40; i++ {
		msgs = append(msgs, model.NewPlainMessage(model.SenderAI, strings.Repeat("長い文章", 10)))
	}
	conv.set(func(s *orchestrator.State) {
		s.Messages = msgs
		s.ModelStatus = model.ModelStatus{Status: model.StatusError, Message: "エラー"}
	})
	m := newTestModel(t, conv)

	lines := strings.Split(m.View(), "\n")
	assert.LessOrEqual(t, len(lines), 30)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestModel_QuitStopsWatchers(t *testing.T) {
	conv := newFakeConversation()
	m := newTestModel(t, conv)

	wait := waitFor(m.changes, m.done, stateChangedMsg{})

	next, cmd := m.Update(press(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Nil(t, wait(), "watcher returns once the model quits")
	assert.Empty(t, next.View())

	// A second quit must not close the channel again
	assert.NotPanics(t, func() { next.Update(press(tea.KeyEsc)) })
}

func TestWaitFor_DeliversChange(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	msg := waitFor(ch, make(chan struct{}), stateChangedMsg{})()
	assert.Equal(t, stateChangedMsg{}, msg)
}

// =============================================================================
// WRAPPING
// =============================================================================

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"short", "hello", 10, "hello"},
		{"space break", "hello world foo", 11, "hello world\nfoo"},
		{"japanese", "今日はいい天気", 6, "今日は\nいい天\n気"},
		{"newlines kept", "a\nb", 5, "a\nb"},
		{"no limit", "anything", 0, "anything"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapText(tt.input, tt.width)
			assert.Equal(t, tt.want, got)
			if tt.width > 0 {
				for _, line := range strings.Split(got, "\n") {
					assert.LessOrEqual(t, runewidth.StringWidth(line), tt.width)
				}
			}
		})
	}
}
