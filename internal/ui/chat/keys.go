// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines all keyboard bindings for the chat screen.
type KeyMap struct {
	Submit   key.Binding
	Quit     key.Binding
	Voice    key.Binding
	Reset    key.Binding
	Check    key.Binding
	Download key.Binding
	Next     key.Binding
	Prev     key.Binding
	Detail   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Help     key.Binding
}

// DefaultKeyMap returns the default key bindings. Plain letters are left to
// the text input.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "esc"),
			key.WithHelp("Esc", "quit"),
		),
		Voice: key.NewBinding(
			key.WithKeys("ctrl+v"),
			key.WithHelp("C-v", "voice"),
		),
		Reset: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "reset"),
		),
		Check: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "check model"),
		),
		Download: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "download"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "select reply"),
		),
		Prev: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-Tab", "previous reply"),
		),
		Detail: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "detail"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("F1", "help"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Voice, k.Detail, k.Reset, k.Help, k.Quit}
}

// FullHelp returns all bindings, grouped by column, for the help overlay.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Voice, k.Reset, k.Quit},
		{k.Next, k.Prev, k.Detail},
		{k.Check, k.Download},
		{k.PageUp, k.PageDown, k.Help},
	}
}
