// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for the CLI.
//
// Interactive terminals get colors and markdown rendering. Piped output
// gets plain text. NO_COLOR and FORCE_COLOR override detection.

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the stdout width, clamped to at least 40
// columns. Piped output is treated as 80 wide.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return 80
	case width < 40:
		return 40
	default:
		return width
	}
}

var colorsEnabled = sync.OnceValue(func() bool {
	return detectColors(os.Getenv, IsStdoutTTY)
})

// ColorsEnabled reports whether styled output should carry color.
// See https://no-color.org/.
func ColorsEnabled() bool {
	return colorsEnabled()
}

// detectColors decides color support. NO_COLOR wins over FORCE_COLOR,
// which wins over TTY detection.
func detectColors(getenv func(string) string, isTTY func() bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return isTTY()
}

// GetColorProfile returns the termenv profile lipgloss renders with:
// Ascii when colors are off, otherwise what the terminal supports.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// RequiresTTY returns a TTYRequiredError naming operation when stdin is
// not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}

// TTYRequiredError reports an interactive command run without a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	return "stdin is not a terminal; cannot " + e.Operation + " interactively"
}
