// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/ui/styles"
	"github.com/jeranaias/localtalk/internal/util"
)

const (
	placeholderIdle    = "メッセージを入力してください..."
	placeholderLoading = "AIが応答を生成中..."
)

// suggestedTopics are shown on the empty screen.
var suggestedTopics = []string{"プログラミング", "料理", "映画", "音楽", "スポーツ", "旅行"}

// stageSteps are the ephemeral status steps, in order.
var stageSteps = []struct {
	stage model.Stage
	label string
}{
	{model.StageReceived, "メッセージ受信"},
	{model.StageSent, "AIへ送信"},
	{model.StageThinking, "思考"},
}

// View renders the chat screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	parts := []string{m.renderHeader(), m.viewport.View()}
	if status := m.renderModelStatus(); status != "" {
		parts = append(parts, status)
	}
	parts = append(parts, m.renderInput(), m.renderStatusBar())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// viewportHeight is what remains after the fixed rows.
func (m Model) viewportHeight() int {
	used := lipgloss.Height(m.renderHeader()) +
		lipgloss.Height(m.renderInput()) +
		lipgloss.Height(m.renderStatusBar())
	if status := m.renderModelStatus(); status != "" {
		used += lipgloss.Height(status)
	}
	h := m.height - used
	if h < 1 {
		h = 1
	}
	return h
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	t := m.theme

	title := t.HeaderTitle.Render("localtalk") + "  " + t.HeaderSubtitle.Render("ローカルAIと会話しよう")

	var badges []string
	switch {
	case m.state.AIAvailable == nil:
		badges = append(badges, t.ModelPending.Render(styles.StatusIndicators.Pending+" AI機能を確認中"))
	case *m.state.AIAvailable:
		badges = append(badges, t.AIAvailable.Render(styles.StatusIndicators.Success+" AI機能利用可能"))
	default:
		badges = append(badges, t.AIUnavailable.Render(styles.StatusIndicators.Warning+" AI機能利用不可"))
	}
	badges = append(badges, m.renderVoiceBadge())
	if m.modelName != "" {
		badges = append(badges, t.Timestamp.Render(m.modelName))
	}
	right := strings.Join(badges, "  ")

	inner := m.width - t.Header.GetHorizontalFrameSize()
	gap := inner - lipgloss.Width(title) - lipgloss.Width(right)
	line := title + "  " + right
	if gap > 0 {
		line = title + strings.Repeat(" ", gap) + right
	}
	return t.Header.Width(inner + t.Header.GetHorizontalPadding()).Render(line)
}

func (m Model) renderVoiceBadge() string {
	t := m.theme
	switch {
	case m.voice == nil:
		return t.VoiceOff.Render("音声 なし")
	case !m.voice.VoiceEnabled():
		return t.VoiceOff.Render("音声 OFF")
	case m.voice.Recognizing():
		return t.VoiceOn.Render(styles.StatusIndicators.Active + " 音声 ON")
	default:
		return t.VoiceOn.Render(styles.StatusIndicators.Pending + " 音声 ON")
	}
}

// =============================================================================
// CONVERSATION
// =============================================================================

// renderConversation renders the viewport content.
func (m Model) renderConversation() string {
	if len(m.state.Messages) == 0 && !m.state.Ephemeral.Active && m.state.SpeechDraft == "" {
		return m.renderWelcome()
	}

	var blocks []string
	for _, msg := range m.state.Messages {
		blocks = append(blocks, m.renderMessage(msg))
	}
	if m.state.Ephemeral.Active {
		blocks = append(blocks, m.renderStages())
	}
	if m.state.SpeechDraft != "" {
		blocks = append(blocks, m.renderDraft())
	}
	return strings.Join(blocks, "\n")
}

func (m Model) renderWelcome() string {
	t := m.theme
	var tags []string
	for _, topic := range suggestedTopics {
		tags = append(tags, t.TopicTag.Render(topic))
	}
	return t.Welcome.Render(lipgloss.JoinVertical(lipgloss.Left,
		"こんにちは！何でも気軽に話しかけてください。",
		t.WelcomeNote.Render("AI機能が利用できない場合は、メッセージを送信できません。"),
		"",
		"おすすめの話題:",
		strings.Join(tags, " "),
	))
}

// bubbleWidth is the wrap width for message text.
func (m Model) bubbleWidth() int {
	w := m.width * 3 / 4
	if w > m.width-6 {
		w = m.width - 6
	}
	if w < 10 {
		w = 10
	}
	return w
}

func (m Model) renderMessage(msg *model.Message) string {
	t := m.theme
	width := m.bubbleWidth()

	text := msg.Text()
	expanded := m.state.IsExpanded(msg.ID)
	sp, structured := msg.Structured()
	if structured && sp.IsJSON && expanded {
		text = sp.FullResponse
	}
	if msg.Streaming {
		text += m.spinner.View()
	}
	body := wrapText(text, width)
	if structured && sp.IsJSON && !expanded && m.showThinking && len(sp.Thinking) > 0 {
		lines := make([]string, len(sp.Thinking))
		for i, th := range sp.Thinking {
			lines[i] = th.Key + ": " + th.Value
		}
		body += "\n" + t.Timestamp.Render(wrapText(strings.Join(lines, "\n"), width))
	}

	var footer []string
	if !m.compact {
		footer = append(footer, t.Timestamp.Render(msg.Timestamp.Format("15:04:05")))
	}
	if structured {
		for _, topic := range sp.Topics {
			footer = append(footer, t.TopicTag.Render(topic))
		}
	}
	if msg.IsJSON() {
		hint := "[detail]"
		if expanded {
			hint = "[hide]"
		}
		footer = append(footer, t.DetailHint.Render(hint))
	}

	if len(footer) > 0 {
		body += "\n" + strings.Join(footer, " ")
	}

	var bubble string
	switch {
	case msg.Ephemeral:
		bubble = t.EphemeralBubble.Render(body)
	case msg.Sender == model.SenderUser:
		bubble = t.UserBubble.Render(body)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble)
	case msg.Sender == model.SenderSystem:
		bubble = t.SystemBubble.Render(body)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Center, bubble)
	default:
		bubble = t.AIBubble.Render(body)
	}

	marker := "  "
	if msg.ID == m.selected {
		marker = t.Selected.Render("> ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, marker, bubble)
}

// renderStages renders the received / sent / thinking steps. Every step up
// to the current one is active.
func (m Model) renderStages() string {
	t := m.theme
	current := -1
	for i, step := range stageSteps {
		if step.stage == m.state.Ephemeral.Stage {
			current = i
		}
	}

	steps := make([]string, 0, len(stageSteps))
	for i, step := range stageSteps {
		label := step.label
		if i == current && step.stage == model.StageThinking {
			label += " " + m.spinner.View()
		}
		if i <= current {
			steps = append(steps, t.StageActive.Render(styles.StatusIndicators.Active+" "+label))
		} else {
			steps = append(steps, t.StageIdle.Render(styles.StatusIndicators.Pending+" "+label))
		}
	}
	return "  " + t.EphemeralBubble.Render(strings.Join(steps, "  "))
}

func (m Model) renderDraft() string {
	t := m.theme
	body := wrapText(m.state.SpeechDraft, m.bubbleWidth()) + "\n" + t.Timestamp.Render("音声入力中...")
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, t.DraftBubble.Render(body))
}

// =============================================================================
// FOOTER
// =============================================================================

// renderModelStatus renders the model status line for states that need the
// user's attention. It is empty when the model is ready or being checked.
func (m Model) renderModelStatus() string {
	t := m.theme
	st := m.state.ModelStatus

	switch st.Status {
	case model.StatusDownloading:
		line := t.ModelPending.Render(st.Message)
		if st.Progress != nil {
			pct := int(math.Round(*st.Progress * 100))
			line += " " + t.ModelPending.Render(styles.RenderProgressBar(20, *st.Progress)) +
				" " + t.ModelPending.Render(fmt.Sprintf("(%d%%完了)", pct))
		}
		return " " + line
	case model.StatusDownloadable:
		return " " + t.ModelPending.Render(st.Message) + "  " +
			t.ShortcutKey.Render(m.keys.Download.Help().Key) + " " +
			t.ShortcutDesc.Render("ダウンロード開始")
	case model.StatusError, model.StatusNotAvailable:
		return " " + t.ModelError.Render(styles.StatusIndicators.Error+" "+st.Message)
	default:
		return ""
	}
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderStatusBar() string {
	t := m.theme
	room := m.width - t.StatusBar.GetHorizontalFrameSize()

	var content string
	switch {
	case m.showHelp || m.notice == "":
		content = m.help.View(m.keys)
	case m.noticeWarn:
		text := styles.StatusIndicators.Warning + " " + m.notice
		content = t.NoticeWarning.Render(util.TruncateWidth(text, room))
	default:
		content = t.Notice.Render(util.TruncateWidth(m.notice, room))
	}
	return t.StatusBar.Width(m.width).Render(content)
}
