// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/speech"
)

// Update handles messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width - 2
		m.input.Width = msg.Width - 6
		m.refresh(true)
		return m, nil

	case stateChangedMsg:
		m.syncState()
		return m, waitFor(m.changes, m.done, stateChangedMsg{})

	case voiceChangedMsg:
		m.refresh(false)
		return m, waitFor(m.voiceChanges, m.done, voiceChangedMsg{})

	case availabilityMsg:
		m.setAvailabilityNotice(msg.Status)
		return m, nil

	case downloadMsg:
		if msg.Result.Err != nil {
			m.setNotice("ダウンロードを開始できませんでした: "+msg.Result.Err.Error(), true)
		} else if msg.Result.Started {
			m.setNotice("モデルのダウンロードを開始しました", false)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.state.Ephemeral.Active {
			m.refresh(false)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleKey dispatches bound keys and feeds everything else to the input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Submit):
		m.submit()
		return m, nil

	case key.Matches(msg, m.keys.Voice):
		m.toggleVoice()
		return m, nil

	case key.Matches(msg, m.keys.Reset):
		m.conv.ResetConversation()
		m.selected = ""
		m.setNotice("会話をリセットしました", false)
		return m, nil

	case key.Matches(msg, m.keys.Check):
		m.setNotice("モデルの状態を確認しています...", false)
		return m, checkCmd(m.conv)

	case key.Matches(msg, m.keys.Download):
		if m.state.ModelStatus.Status != model.StatusDownloadable {
			m.setNotice("ダウンロードできる状態ではありません", true)
			return m, nil
		}
		return m, downloadCmd(m.conv)

	case key.Matches(msg, m.keys.Next):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Detail):
		if m.selected == "" {
			m.moveSelection(-1)
		}
		if m.selected != "" {
			m.conv.ToggleMessageExpansion(m.selected)
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.refresh(false)
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.conv.SetInput(after)
	}
	return m, cmd
}

// quit stops the change watchers and exits.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if !m.quitting {
		m.quitting = true
		close(m.done)
		m.unsubscribe()
	}
	return m, tea.Quit
}

// submit sends the typed input. Typed text is refused while a voice
// recognition session is live.
func (m *Model) submit() {
	if m.voice != nil && m.voice.ActiveSource() == speech.SourceVoice {
		m.setNotice("音声入力中はテキストを送信できません", true)
		return
	}
	m.conv.SetInput(m.input.Value())
	err := m.conv.HandleSendMessage()
	switch {
	case err == nil:
		m.notice = ""
	case errors.Is(err, orchestrator.ErrEmptyInput):
	case errors.Is(err, orchestrator.ErrTurnInFlight):
		m.setNotice("AIが応答を生成中です", true)
	case errors.Is(err, orchestrator.ErrUnavailable):
		m.setNotice("AI機能が利用できないため送信できません", true)
	default:
		m.setNotice(err.Error(), true)
	}
}

// toggleVoice flips voice input when a recognizer is configured and the AI
// is available.
func (m *Model) toggleVoice() {
	switch {
	case m.voice == nil:
		m.setNotice("音声入力は設定されていません", true)
	case m.voice.VoiceEnabled():
		m.voice.SetVoiceEnabled(false)
		m.setNotice("音声入力: OFF", false)
	case !aiAvailable(m.state):
		m.setNotice("AI機能が利用できないため音声入力は使えません", true)
	default:
		m.voice.SetVoiceEnabled(true)
		m.setNotice("音声入力: ON", false)
	}
	m.refresh(false)
}

// syncState pulls a fresh snapshot and mirrors it into the widgets.
func (m *Model) syncState() {
	prevLen := len(m.state.Messages)
	m.state = m.conv.Snapshot()

	if m.state.Input != m.input.Value() {
		m.input.SetValue(m.state.Input)
		m.input.CursorEnd()
	}
	if m.state.Loading {
		m.input.Placeholder = placeholderLoading
	} else {
		m.input.Placeholder = placeholderIdle
	}

	if m.selected != "" && !m.hasSelectable(m.selected) {
		m.selected = ""
	}

	m.refresh(len(m.state.Messages) != prevLen)
}

// moveSelection moves the reply selection by delta, wrapping around. From
// no selection, -1 picks the newest reply and +1 the oldest.
func (m *Model) moveSelection(delta int) {
	ids := m.selectableIDs()
	if len(ids) == 0 {
		m.selected = ""
		return
	}
	cur := -1
	for i, id := range ids {
		if id == m.selected {
			cur = i
		}
	}
	var next int
	switch {
	case cur < 0 && delta < 0:
		next = len(ids) - 1
	case cur < 0:
		next = 0
	default:
		next = (cur + delta + len(ids)) % len(ids)
	}
	m.selected = ids[next]
	m.refresh(false)
}

// selectableIDs lists replies that carry a structured detail view, oldest
// first.
func (m *Model) selectableIDs() []string {
	var ids []string
	for _, msg := range m.state.Messages {
		if msg.Sender == model.SenderAI && msg.IsJSON() {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

func (m *Model) hasSelectable(id string) bool {
	for _, s := range m.selectableIDs() {
		if s == id {
			return true
		}
	}
	return false
}

func (m *Model) setNotice(text string, warn bool) {
	m.notice = text
	m.noticeWarn = warn
}

func (m *Model) setAvailabilityNotice(st model.ModelStatus) {
	switch st.Status {
	case model.StatusReady:
		m.setNotice("モデルは利用可能です", false)
	case model.StatusDownloading, model.StatusDownloadable:
		m.setNotice(st.Message, false)
	default:
		m.setNotice(st.Message, true)
	}
}

// refresh re-lays out the screen and re-renders the viewport content.
// When follow is set, or the view was already at the bottom, it scrolls to
// the newest content.
func (m *Model) refresh(follow bool) {
	if m.width == 0 || m.height == 0 {
		return
	}
	atBottom := m.viewport.AtBottom()

	m.viewport.Width = m.width
	m.viewport.Height = m.viewportHeight()
	m.viewport.SetContent(m.renderConversation())

	if follow || atBottom {
		m.viewport.GotoBottom()
	}
}

func aiAvailable(s orchestrator.State) bool {
	return s.AIAvailable != nil && *s.AIAvailable
}
