// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/localtalk/internal/gateway"
	"github.com/jeranaias/localtalk/internal/model"
)

// stateChangedMsg reports that the orchestrator state changed.
type stateChangedMsg struct{}

// voiceChangedMsg reports that the voice arbiter changed.
type voiceChangedMsg struct{}

// availabilityMsg carries the result of a re-check.
type availabilityMsg struct {
	Status model.ModelStatus
}

// downloadMsg carries the result of a download request.
type downloadMsg struct {
	Result gateway.DownloadResult
}
