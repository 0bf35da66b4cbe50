// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine defines the contract localtalk consumes from an on-device
// inference engine.
//
// An Engine hands out short-lived Sessions. Capabilities beyond a blocking
// Prompt are optional and discovered with type assertions:
//
//   - StatusReporter: the session exposes an explicit availability field
//   - Streamer: the session can deliver output incrementally
//   - StreamingEngine: the engine advertises streaming up front
//
// Callers never depend on a concrete adapter; see internal/ollama and
// internal/oaicompat for the shipped implementations.
package engine

import (
	"context"
	"encoding/json"
)

// Status field values an engine may report through StatusReporter.
const (
	StatusAvailable    = "available"
	StatusDownloading  = "downloading"
	StatusDownloadable = "downloadable"
	StatusNotAvailable = "not-available"
)

// SessionConfig configures one session.
type SessionConfig struct {
	// Language is the expected input/output language tag, e.g. "ja".
	Language string

	// Acquire asks the engine to start fetching its model if it is not yet
	// present. It stands in for an explicit user gesture and is only set
	// by the download action.
	Acquire bool

	// Format optionally constrains output to a JSON schema. Engines that
	// cannot enforce it ignore it.
	Format json.RawMessage

	// Temperature overrides the sampling temperature when > 0.
	Temperature float64
}

// Engine creates inference sessions.
type Engine interface {
	Create(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session runs prompts against a loaded model.
type Session interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// StatusReporter is implemented by sessions that know their own
// availability. Status returns one of the Status* constants; anything else
// is treated as unknown.
type StatusReporter interface {
	Status() string
	// DownloadProgress returns a fraction in [0,1] while downloading.
	DownloadProgress() (float64, bool)
}

// Streamer is implemented by sessions that can stream output. onChunk is
// called in arrival order; the returned string is the full text.
type Streamer interface {
	PromptStreaming(ctx context.Context, text string, onChunk func(string)) (string, error)
}

// StreamingEngine reports whether sessions from this engine stream.
type StreamingEngine interface {
	SupportsStreaming() bool
}
