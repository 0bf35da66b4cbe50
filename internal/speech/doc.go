// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package speech merges speech transcripts and typed text into the single
// submission channel of the conversation.
//
// A Recognizer produces ordered transcript events. The Arbiter runs it
// continuously while voice mode is on and the AI is available: interim
// text becomes the visible draft, final text is submitted as a turn. A
// recognizer that ends on its own is restarted at a throttled rate; one
// that fails turns voice mode off without affecting typed input.
//
// FileRecognizer adapts any external speech-to-text tool that appends
// tab-separated transcript lines to a file.
package speech
