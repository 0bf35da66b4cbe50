// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestNewTheme(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme() returned nil")
	}

	tests := []struct {
		name  string
		style lipgloss.Style
	}{
		{"Header", theme.Header},
		{"UserBubble", theme.UserBubble},
		{"AIBubble", theme.AIBubble},
		{"SystemBubble", theme.SystemBubble},
		{"EphemeralBubble", theme.EphemeralBubble},
		{"DraftBubble", theme.DraftBubble},
		{"InputContainer", theme.InputContainer},
		{"StatusBar", theme.StatusBar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.style.Render("test"), "test") {
				t.Errorf("%s style lost its content", tt.name)
			}
		})
	}
}

func TestThemeFor(t *testing.T) {
	tests := []struct {
		name     string
		wantDark bool
	}{
		{"dark", true},
		{"light", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme := ThemeFor(tt.name)
			if theme.IsDark != tt.wantDark {
				t.Errorf("ThemeFor(%q).IsDark = %v, want %v", tt.name, theme.IsDark, tt.wantDark)
			}
			if lipgloss.HasDarkBackground() != tt.wantDark {
				t.Errorf("ThemeFor(%q) did not pin the background", tt.name)
			}
		})
	}
}

func TestBubblesHaveBorders(t *testing.T) {
	theme := NewTheme()
	for name, s := range map[string]lipgloss.Style{
		"user":   theme.UserBubble,
		"ai":     theme.AIBubble,
		"system": theme.SystemBubble,
	} {
		if lines := strings.Split(s.Render("x"), "\n"); len(lines) != 3 {
			t.Errorf("%s bubble: got %d lines, want 3 (border, text, border)", name, len(lines))
		}
	}
}

func TestRenderStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(string) string
		marker string
	}{
		{"success", RenderSuccess, StatusIndicators.Success},
		{"error", RenderError, StatusIndicators.Error},
		{"warning", RenderWarning, StatusIndicators.Warning},
		{"info", RenderInfo, StatusIndicators.Info},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.fn("モデル")
			if !strings.Contains(out, tt.marker) {
				t.Errorf("missing indicator %q in %q", tt.marker, out)
			}
			if !strings.Contains(out, "モデル") {
				t.Errorf("missing message in %q", out)
			}
		})
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		fraction float64
		want     string
	}{
		{"empty", 10, 0, "----------"},
		{"full", 10, 1, "##########"},
		{"half", 10, 0.5, "#####-----"},
		{"clamp high", 4, 2, "####"},
		{"clamp low", 4, -1, "----"},
		{"zero width", 0, 0.5, ""},
		{"negative width", -3, 0.5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderProgressBar(tt.width, tt.fraction); got != tt.want {
				t.Errorf("RenderProgressBar(%d, %v) = %q, want %q", tt.width, tt.fraction, got, tt.want)
			}
		})
	}
}

func TestRenderProgressBarWidth(t *testing.T) {
	for _, f := range []float64{0.01, 0.13, 0.37, 0.66, 0.99} {
		if got := RenderProgressBar(20, f); len(got) != 20 {
			t.Errorf("RenderProgressBar(20, %v) has length %d", f, len(got))
		}
	}
}

func TestSpinnerFrames(t *testing.T) {
	for name, s := range map[string][]string{"line": LineSpinner.Frames, "dots": DotsSpinner.Frames} {
		if len(s) == 0 {
			t.Errorf("%s spinner has no frames", name)
		}
	}
	if LineSpinner.FPS <= 0 || DotsSpinner.FPS <= 0 {
		t.Error("spinner frame interval must be positive")
	}
}
