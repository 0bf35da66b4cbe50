// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the terminal chat screen for localtalk.
//
// The screen is a presentation binding over the orchestrator: every frame is
// rendered from a State snapshot, and every key press that changes something
// is forwarded as an orchestrator action. The model never mutates
// conversation state itself.
//
// # Refresh
//
// The model subscribes to orchestrator change notifications and turns each
// one into a stateChangedMsg through a blocking tea.Cmd. Voice arbiter
// changes arrive the same way when a voice channel is configured.
//
// # Layout
//
//	+-------------------------------------------+
//	| header: title, AI status, voice, model    |
//	+-------------------------------------------+
//	| viewport: messages, stage steps, draft    |
//	+-------------------------------------------+
//	| model status line (downloads, errors)     |
//	| input                                     |
//	| status bar: notice or shortcuts           |
//	+-------------------------------------------+
//
// # Usage
//
//	m := chat.New(orch, chat.WithVoice(arbiter, voiceChanges), chat.WithModelName(name))
//	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
//	_, err := p.Run()
package chat
