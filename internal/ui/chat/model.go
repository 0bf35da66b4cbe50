// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/orchestrator"
	"github.com/jeranaias/localtalk/internal/speech"
	"github.com/jeranaias/localtalk/internal/ui/styles"
)

// MaxInputRunes caps the text input.
const MaxInputRunes = 4000

// actionTimeout bounds availability checks and download requests started
// from the keyboard.
const actionTimeout = 30 * time.Second

// Conversation is the orchestrator surface the screen renders and drives.
type Conversation interface {
	Snapshot() orchestrator.State
	Subscribe() (<-chan struct{}, func())
	SetInput(text string)
	HandleSendMessage() error
	CheckAvailability(ctx context.Context) model.ModelStatus
	BeginModelDownload(ctx context.Context) gateway.DownloadResult
	ResetConversation()
	ToggleMessageExpansion(id string) bool
}

// Voice is the input arbiter surface.
type Voice interface {
	SetVoiceEnabled(on bool)
	VoiceEnabled() bool
	Recognizing() bool
	ActiveSource() speech.Source
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	conv  Conversation
	voice Voice
	theme *styles.Theme
	keys  KeyMap

	modelName string

	// showThinking lists the thinking trace under collapsed replies
	showThinking bool
	// compact drops timestamps from bubbles
	compact bool

	// Latest snapshot; everything on screen is derived from it
	state orchestrator.State

	changes      <-chan struct{}
	unsubscribe  func()
	voiceChanges <-chan struct{}
	done         chan struct{}

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model

	// Dimensions
	width  int
	height int

	// selected is the ID of the reply the detail key acts on
	selected string

	notice     string
	noticeWarn bool
	showHelp   bool
	quitting   bool
}

// Option configures a Model.
type Option func(*Model)

// WithVoice enables the voice toggle. changes receives a value whenever the
// arbiter state changes; it may be nil.
func WithVoice(v Voice, changes <-chan struct{}) Option {
	return func(m *Model) {
		m.voice = v
		m.voiceChanges = changes
	}
}

// WithTheme sets the theme. The default detects the terminal.
func WithTheme(t *styles.Theme) Option {
	return func(m *Model) {
		m.theme = t
	}
}

// WithModelName sets the model name shown in the header.
func WithModelName(name string) Option {
	return func(m *Model) {
		m.modelName = name
	}
}

// WithShowThinking lists each reply's thinking trace without expanding it.
func WithShowThinking(show bool) Option {
	return func(m *Model) {
		m.showThinking = show
	}
}

// WithCompact hides message timestamps.
func WithCompact(compact bool) Option {
	return func(m *Model) {
		m.compact = compact
	}
}

// New creates a chat model subscribed to conv.
func New(conv Conversation, opts ...Option) Model {
	m := Model{
		conv: conv,
		keys: DefaultKeyMap(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.theme == nil {
		m.theme = styles.NewTheme()
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = placeholderIdle
	ti.CharLimit = MaxInputRunes
	ti.PromptStyle = m.theme.InputPrompt
	ti.PlaceholderStyle = m.theme.InputPlaceholder
	ti.Focus()
	m.input = ti

	m.spinner = spinner.New(
		spinner.WithSpinner(styles.DotsSpinner),
		spinner.WithStyle(m.theme.Spinner),
	)

	m.help = help.New()
	m.help.Styles.ShortKey = m.theme.ShortcutKey
	m.help.Styles.ShortDesc = m.theme.ShortcutDesc
	m.help.Styles.FullKey = m.theme.ShortcutKey
	m.help.Styles.FullDesc = m.theme.ShortcutDesc

	m.viewport = viewport.New(0, 0)

	m.changes, m.unsubscribe = conv.Subscribe()
	m.state = conv.Snapshot()
	m.input.SetValue(m.state.Input)

	return m
}

// Init starts the change watchers, the cursor blink and the spinner.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spinner.Tick,
		waitFor(m.changes, m.done, stateChangedMsg{}),
	}
	if m.voiceChanges != nil {
		cmds = append(cmds, waitFor(m.voiceChanges, m.done, voiceChangedMsg{}))
	}
	return tea.Batch(cmds...)
}

// waitFor blocks until ch fires and reports it as msg. It returns nil once
// done is closed so the goroutine does not outlive the program.
func waitFor(ch <-chan struct{}, done <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		select {
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return msg
		case <-done:
			return nil
		}
	}
}

// checkCmd re-runs the availability check.
func checkCmd(conv Conversation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return availabilityMsg{Status: conv.CheckAvailability(ctx)}
	}
}

// downloadCmd asks the engine to start the model download.
func downloadCmd(conv Conversation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return downloadMsg{Result: conv.BeginModelDownload(ctx)}
	}
}

// State returns the snapshot the screen last rendered.
func (m Model) State() orchestrator.State {
	return m.state
}

// Selected returns the ID of the selected reply, if any.
func (m Model) Selected() string {
	return m.selected
}
