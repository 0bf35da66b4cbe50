// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// =============================================================================
// PAYLOAD VARIANT
// =============================================================================

// Payload is the body of a message: either PlainPayload or
// StructuredPayload. The unexported method closes the set.
type Payload interface {
	DisplayText() string
	isPayload()
}

// PlainPayload is unstructured text.
type PlainPayload struct {
	Text string
}

// DisplayText implements Payload.
func (p PlainPayload) DisplayText() string { return p.Text }
func (PlainPayload) isPayload()            {}

// ThinkingEntry is one key/value pair of the model's reasoning trace, kept
// in the order the model emitted it.
type ThinkingEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StructuredPayload is an AI response after JSON recovery.
type StructuredPayload struct {
	// Display is the text shown in the conversation.
	Display string
	// FullResponse is the pretty-printed JSON when IsJSON, else the raw text.
	FullResponse string
	IsJSON       bool
	Topics       []string
	Thinking     []ThinkingEntry
}

// DisplayText implements Payload.
func (p StructuredPayload) DisplayText() string { return p.Display }
func (StructuredPayload) isPayload()            {}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry in the rendered conversation.
type Message struct {
	ID        string
	Sender    Sender
	Payload   Payload
	Timestamp time.Time

	// Streaming is true only while a response is still arriving.
	Streaming bool
	// Ephemeral messages are shown but never enter history.
	Ephemeral bool

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream strings.Builder
}

// NewPlainMessage creates a message with a plain text payload.
func NewPlainMessage(sender Sender, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Payload:   PlainPayload{Text: text},
		Timestamp: time.Now(),
	}
}

// NewStructuredMessage creates a message with a structured payload.
func NewStructuredMessage(sender Sender, p StructuredPayload) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Payload:   p,
		Timestamp: time.Now(),
	}
}

// NewStreamingMessage creates an empty placeholder that grows with
// AppendChunk until it is replaced.
func NewStreamingMessage(sender Sender) *Message {
	m := NewPlainMessage(sender, "")
	m.Streaming = true
	return m
}

// AppendChunk adds streamed text. It is a no-op once streaming has ended.
func (m *Message) AppendChunk(chunk string) {
	if !m.Streaming {
		return
	}
	m.stream.WriteString(chunk)
	m.Payload = PlainPayload{Text: m.stream.String()}
}

// Text returns the display text of the payload.
func (m *Message) Text() string {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.DisplayText()
}

// Structured returns the structured payload, if that is the variant held.
func (m *Message) Structured() (StructuredPayload, bool) {
	p, ok := m.Payload.(StructuredPayload)
	return p, ok
}

// IsJSON reports whether the message carries a recovered JSON response.
func (m *Message) IsJSON() bool {
	p, ok := m.Structured()
	return ok && p.IsJSON
}

// Clone returns an independent copy safe to hand to renderers.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:        m.ID,
		Sender:    m.Sender,
		Payload:   m.Payload,
		Timestamp: m.Timestamp,
		Streaming: m.Streaming,
		Ephemeral: m.Ephemeral,
	}
	if sp, ok := m.Payload.(StructuredPayload); ok {
		sp.Topics = append([]string(nil), sp.Topics...)
		sp.Thinking = append([]ThinkingEntry(nil), sp.Thinking...)
		c.Payload = sp
	}
	if m.Streaming {
		c.stream.WriteString(m.Text())
	}
	return c
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Text())
	if len(runes) <= maxLen || maxLen < 4 {
		return string(runes)
	}
	return string(runes[:maxLen-3]) + "..."
}

type messageJSON struct {
	ID           string          `json:"id"`
	Sender       Sender          `json:"sender"`
	Timestamp    time.Time       `json:"timestamp"`
	Streaming    bool            `json:"streaming,omitempty"`
	Ephemeral    bool            `json:"ephemeral,omitempty"`
	Text         *string         `json:"text,omitempty"`
	DisplayText  *string         `json:"displayText,omitempty"`
	FullResponse *string         `json:"fullResponse,omitempty"`
	IsJSON       *bool           `json:"isJson,omitempty"`
	Topics       []string        `json:"topics,omitempty"`
	Thinking     []ThinkingEntry `json:"thinking,omitempty"`
}

// MarshalJSON emits "text" for plain payloads and the displayText /
// fullResponse / isJson triple for structured ones.
func (m *Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:        m.ID,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
		Streaming: m.Streaming,
		Ephemeral: m.Ephemeral,
	}
	switch p := m.Payload.(type) {
	case StructuredPayload:
		out.DisplayText = &p.Display
		out.FullResponse = &p.FullResponse
		out.IsJSON = &p.IsJSON
		out.Topics = p.Topics
		out.Thinking = p.Thinking
	default:
		text := m.Text()
		out.Text = &text
	}
	return json.Marshal(out)
}
