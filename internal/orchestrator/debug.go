// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"fmt"
	"strings"

	"github.com/jeranaias/localtalk/internal/model"
)

// appendLog adds an ephemeral system message describing the history.
// The dump is never part of the model-facing history.
func (o *Orchestrator) appendLog() {
	o.mu.Lock()
	text := formatLog(o.history, o.summary, o.summarizing.Load())
	msg := model.NewPlainMessage(model.SenderSystem, text)
	msg.Ephemeral = true
	o.messages = append(o.messages, msg)
	o.input = ""
	o.mu.Unlock()
}

// formatLog renders history one entry per line, oldest first.
func formatLog(history []*model.Message, summary string, summarizing bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "会話履歴 (%d件):\n", len(history))
	for _, m := range history {
		text := m.Text()
		if text == "" {
			text = MsgNoMessage
		}
		b.WriteString(m.Sender.String())
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "AI応答数: %d\n", countAI(history))
	if summary != "" {
		b.WriteString("要約: ")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if summarizing {
		b.WriteString("(要約を生成中)\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
