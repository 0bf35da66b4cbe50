// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/model"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Errors returned by Prompt and PromptStream wrap the engine error with one
// of these.
var (
	// ErrEngineUnavailable: no engine, or the engine reports it cannot run.
	ErrEngineUnavailable = errors.New("inference engine unavailable")
	// ErrDownloadRequired: the model is missing or still downloading.
	ErrDownloadRequired = errors.New("model download required")
	// ErrEngineError: any other engine failure.
	ErrEngineError = errors.New("inference engine error")
)

// =============================================================================
// TRANSLATION TABLE
// =============================================================================

// Status messages shown to the user.
const (
	MsgReady          = "モデルが利用可能です"
	MsgDownloading    = "モデルをダウンロード中です"
	MsgDownloadable   = "モデルをダウンロードできます"
	MsgNotAvailable   = "モデルが利用できません"
	MsgUnknown        = "モデル状態が不明です"
	MsgProbeFailed    = "モデルでエラーが発生しました"
	MsgCheckFailed    = "モデルの状態確認でエラーが発生しました"
	MsgEngineAbsent   = "AI機能が利用できません。推論エンジンの設定を確認してください。"
	MsgCheckException = "AI機能の状態確認でエラーが発生しました。"
)

// statusFields maps an engine's explicit status field 1:1. Values not in
// the table become unknown.
var statusFields = map[string]model.StatusKind{
	engine.StatusAvailable:    model.StatusReady,
	engine.StatusDownloading:  model.StatusDownloading,
	engine.StatusDownloadable: model.StatusDownloadable,
	engine.StatusNotAvailable: model.StatusNotAvailable,
}

var statusMessages = map[model.StatusKind]string{
	model.StatusReady:        MsgReady,
	model.StatusDownloading:  MsgDownloading,
	model.StatusDownloadable: MsgDownloadable,
	model.StatusNotAvailable: MsgNotAvailable,
	model.StatusUnknown:      MsgUnknown,
	model.StatusError:        MsgProbeFailed,
}

// errorFragment maps a substring of an engine error message to a status.
// Engines that expose no status field communicate only through error text;
// the first matching row wins.
type errorFragment struct {
	fragment string
	status   model.StatusKind
	err      error
}

var errorFragments = []errorFragment{
	{"download", model.StatusDownloading, ErrDownloadRequired},
	{"not available", model.StatusNotAvailable, ErrEngineUnavailable},
	{"unavailable", model.StatusNotAvailable, ErrEngineUnavailable},
	{"user gesture", model.StatusDownloadable, ErrDownloadRequired},
}

// StatusFromField translates an explicit engine status field.
func StatusFromField(field string) model.StatusKind {
	if k, ok := statusFields[field]; ok {
		return k
	}
	return model.StatusUnknown
}

// StatusFromError classifies an engine error by its message. Unmatched
// errors are model.StatusError.
func StatusFromError(err error) model.StatusKind {
	if row, ok := matchFragment(err); ok {
		return row.status
	}
	return model.StatusError
}

// ClassifyError wraps err with the matching taxonomy sentinel.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	sentinel := ErrEngineError
	if row, ok := matchFragment(err); ok {
		sentinel = row.err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func matchFragment(err error) (errorFragment, bool) {
	if err == nil {
		return errorFragment{}, false
	}
	msg := strings.ToLower(err.Error())
	for _, row := range errorFragments {
		if strings.Contains(msg, row.fragment) {
			return row, true
		}
	}
	return errorFragment{}, false
}

// describe builds the ModelStatus for kind with its fixed message.
func describe(kind model.StatusKind) model.ModelStatus {
	return model.ModelStatus{Status: kind, Message: statusMessages[kind]}
}
