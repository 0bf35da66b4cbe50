// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// MODEL STATUS
// =============================================================================

// StatusKind is the availability of the on-device model.
type StatusKind string

const (
	StatusChecking     StatusKind = "checking"
	StatusReady        StatusKind = "ready"
	StatusDownloading  StatusKind = "downloading"
	StatusDownloadable StatusKind = "downloadable"
	StatusNotAvailable StatusKind = "not-available"
	StatusError        StatusKind = "error"
	StatusUnknown      StatusKind = "unknown"
)

// String returns the string representation of the status.
func (k StatusKind) String() string {
	return string(k)
}

// ModelStatus describes the engine's current availability.
type ModelStatus struct {
	Status  StatusKind `json:"status"`
	Message string     `json:"message"`
	// Progress is the download fraction in [0,1], set only while
	// downloading and only when the engine reports it.
	Progress *float64 `json:"progress,omitempty"`
}

// Ready reports whether prompts can be issued.
func (s ModelStatus) Ready() bool {
	return s.Status == StatusReady
}

// Usable reports whether the conversation may accept input in this state.
// A model that is downloading or downloadable still accepts turns, which
// answer with an explanatory message.
func (s ModelStatus) Usable() bool {
	switch s.Status {
	case StatusReady, StatusDownloading, StatusDownloadable:
		return true
	default:
		return false
	}
}

// WithProgress returns a copy of s carrying progress p.
func (s ModelStatus) WithProgress(p float64) ModelStatus {
	s.Progress = &p
	return s
}

// =============================================================================
// EPHEMERAL STATUS
// =============================================================================

// Stage is the progress marker of an in-flight turn.
type Stage string

const (
	StageReceived Stage = "received"
	StageSent     Stage = "sent"
	StageThinking Stage = "thinking"
)

// EphemeralStatus is a transient indicator shown while a turn is in
// flight. It is never added to the message list.
type EphemeralStatus struct {
	Active bool  `json:"active"`
	Stage  Stage `json:"stage,omitempty"`
}
