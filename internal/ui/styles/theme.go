// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the chat screen.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style
	AIAvailable    lipgloss.Style
	AIUnavailable  lipgloss.Style
	VoiceOn        lipgloss.Style
	VoiceOff       lipgloss.Style

	// ==========================================================================
	// MESSAGE BUBBLE STYLES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AIBubble        lipgloss.Style
	SystemBubble    lipgloss.Style
	EphemeralBubble lipgloss.Style
	DraftBubble     lipgloss.Style
	Selected        lipgloss.Style
	Timestamp       lipgloss.Style
	TopicTag        lipgloss.Style
	DetailHint      lipgloss.Style
	StageActive     lipgloss.Style
	StageIdle       lipgloss.Style

	// ==========================================================================
	// WELCOME STYLES
	// ==========================================================================

	Welcome     lipgloss.Style
	WelcomeNote lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style

	// ==========================================================================
	// STATUS STYLES
	// ==========================================================================

	StatusBar     lipgloss.Style
	ModelReady    lipgloss.Style
	ModelPending  lipgloss.Style
	ModelError    lipgloss.Style
	ShortcutKey   lipgloss.Style
	ShortcutDesc  lipgloss.Style
	Spinner       lipgloss.Style
	Notice        lipgloss.Style
	NoticeWarning lipgloss.Style
}

// NewTheme creates a new theme with all styles configured.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}

	t.initStyles()
	return t
}

// ThemeFor returns the theme named by the ui.theme setting. "dark" and
// "light" pin the adaptive colors; any other name detects the terminal.
func ThemeFor(name string) *Theme {
	var dark bool
	switch name {
	case "dark":
		dark = true
	case "light":
		dark = false
	default:
		return NewTheme()
	}
	lipgloss.SetHasDarkBackground(dark)

	colorProfile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       dark,
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	// Header
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.AIAvailable = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.AIUnavailable = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.VoiceOn = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.VoiceOff = lipgloss.NewStyle().Foreground(TextMuted)

	// Message bubbles
	t.UserBubble = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1)

	t.AIBubble = lipgloss.NewStyle().
		Foreground(AIBubbleFg).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(AIBubbleBorder).
		Padding(0, 1)

	t.SystemBubble = lipgloss.NewStyle().
		Foreground(SystemBubbleFg).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(SystemBubbleBorder).
		Padding(0, 1)

	t.EphemeralBubble = lipgloss.NewStyle().
		Foreground(TextSecondary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.DraftBubble = t.UserBubble.
		Foreground(TextMuted).
		Italic(true).
		BorderForeground(Overlay)

	t.Selected = lipgloss.NewStyle().Foreground(Cyan).Bold(true)

	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.TopicTag = lipgloss.NewStyle().
		Foreground(TagFg).
		Background(TagBg).
		Padding(0, 1)

	t.DetailHint = lipgloss.NewStyle().
		Foreground(Cyan).
		Underline(true)

	t.StageActive = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	t.StageIdle = lipgloss.NewStyle().Foreground(TextMuted)

	// Welcome
	t.Welcome = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(1, 2)

	t.WelcomeNote = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	// Status
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ModelReady = lipgloss.NewStyle().Foreground(Emerald)
	t.ModelPending = lipgloss.NewStyle().Foreground(Amber)
	t.ModelError = lipgloss.NewStyle().Foreground(Rose)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().Foreground(Purple)

	t.Notice = lipgloss.NewStyle().Foreground(TextSecondary)
	t.NoticeWarning = lipgloss.NewStyle().Foreground(Amber)
}
