// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen chat, the default command.
//
// Examples:
//
//	localtalk
//	localtalk --transcript /tmp/transcript.txt --voice
//
// Logs go to ~/.localtalk/localtalk.log unless logging.file is set.

package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/localtalk/internal/ui/chat"
	"github.com/jeranaias/localtalk/internal/ui/styles"
)

// HandleTUI handles the default command.
func HandleTUI(args Args) error {
	if err := RequiresTTY("run the chat screen"); err != nil {
		return fmt.Errorf("%w (use 'localtalk serve' or 'localtalk status' instead)", err)
	}

	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, appOptions{logToFile: true})
	if err != nil {
		return err
	}
	defer app.Close()

	m := chat.New(app.Conv,
		chat.WithVoice(app.Voice, app.VoiceChanges),
		chat.WithTheme(styles.ThemeFor(cfg.UI.Theme)),
		chat.WithModelName(cfg.Engine.Model),
		chat.WithShowThinking(cfg.UI.ShowThinking),
		chat.WithCompact(cfg.UI.CompactMode),
	)

	// The availability check runs behind the first frame, which shows the
	// checking state.
	app.StartAsync()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return NewCommandError("tui", "run", "terminal UI failed", err)
	}
	return nil
}
