// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// =============================================================================
// SPINNER ANIMATIONS
// =============================================================================

// LineSpinner - Simple line rotation
var LineSpinner = spinner.Spinner{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    time.Second / 10,
}

// DotsSpinner - Typing indicator for the thinking stage
var DotsSpinner = spinner.Spinner{
	Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "},
	FPS:    time.Second / 6,
}

// =============================================================================
// PROGRESS INDICATORS
// =============================================================================

var (
	ProgressFull    = "#"
	ProgressEmpty   = "-"
	ProgressPartial = []string{".", ":", "+"}
)

// RenderProgressBar creates a progress bar string of the given width for a
// fraction in [0,1]. Out-of-range fractions are clamped.
func RenderProgressBar(width int, fraction float64) string {
	if width <= 0 {
		return ""
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	filled := float64(width) * fraction
	full := int(filled)
	partial := int((filled - float64(full)) * float64(len(ProgressPartial)+1))

	// PERFORMANCE: strings.Builder avoids quadratic allocations
	var sb strings.Builder
	sb.Grow(width)

	sb.WriteString(strings.Repeat(ProgressFull, full))
	if full < width && partial > 0 {
		sb.WriteString(ProgressPartial[partial-1])
		full++
	}
	sb.WriteString(strings.Repeat(ProgressEmpty, width-full))

	return sb.String()
}
