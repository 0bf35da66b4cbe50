// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for the line-oriented commands.

package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/ui/styles"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Width(14)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	SeparatorStyle = lipgloss.NewStyle().
			Foreground(styles.Overlay)

	// PromptStyle colors the REPL speaker labels
	PromptStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	// TopicStyle is used for topic tags under answers
	TopicStyle = lipgloss.NewStyle().
			Foreground(styles.TagFg)
)

// RenderSeparator renders a horizontal separator line of width w
// (70 when w <= 0).
func RenderSeparator(w int) string {
	if w <= 0 {
		w = 70
	}
	return SeparatorStyle.Render(strings.Repeat("─", w))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderModelStatus renders one line for a model status, with a progress
// bar while downloading.
func RenderModelStatus(st model.ModelStatus) string {
	var badge string
	switch st.Status {
	case model.StatusReady:
		badge = SuccessStyle.Render(styles.StatusIndicators.Success)
	case model.StatusDownloading, model.StatusDownloadable, model.StatusChecking:
		badge = WarningStyle.Render(styles.StatusIndicators.Warning)
	case model.StatusError, model.StatusNotAvailable:
		badge = ErrorStyle.Render(styles.StatusIndicators.Error)
	default:
		badge = DimStyle.Render(styles.StatusIndicators.Info)
	}

	line := fmt.Sprintf("%s %s %s", badge, ValueStyle.Render(st.Status.String()), DimStyle.Render(st.Message))
	if st.Status == model.StatusDownloading && st.Progress != nil {
		line += fmt.Sprintf(" %s %3.0f%%", styles.RenderProgressBar(24, *st.Progress), *st.Progress*100)
	}
	return line
}
