// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/jeranaias/localtalk/internal/model"
)

// User-facing texts.
const (
	MsgApology       = "申し訳ございません。エラーが発生しました。"
	MsgEmptyResponse = "申し訳ございません。応答を生成できませんでした。"
	MsgDownloading   = "ダウンロード中..."
	MsgDownloadable  = "モデルをダウンロードする必要があります。ダウンロードを開始してください。"
	MsgNotAvailable  = "モデルが利用できません。推論エンジンの設定を確認してください。"
	MsgEngineFailure = "申し訳ございません。AI機能でエラーが発生しました。"
	MsgStatusUnknown = "モデルの状態を確認できませんでした。しばらくしてから再度お試しください。"
	MsgNoMessage     = "メッセージなし"
	DefaultUserLabel = "ユーザー"
	AILabel          = "AI"
)

var blockedTexts = map[model.StatusKind]string{
	model.StatusDownloadable: MsgDownloadable,
	model.StatusNotAvailable: MsgNotAvailable,
	model.StatusError:        MsgEngineFailure,
}

// statusMessage builds the AI message that answers a turn when the model
// is not ready.
func statusMessage(st model.ModelStatus) *model.Message {
	var display string
	if st.Status == model.StatusDownloading {
		display = MsgDownloading
		if st.Progress != nil && *st.Progress > 0 {
			display += fmt.Sprintf(" (%d%%完了)", int(math.Round(*st.Progress*100)))
		}
	} else if text, ok := blockedTexts[st.Status]; ok {
		display = text
	} else {
		display = MsgStatusUnknown
	}

	return model.NewStructuredMessage(model.SenderAI, model.StructuredPayload{
		Display:      display,
		FullResponse: statusJSON(st),
		IsJSON:       true,
	})
}

func statusJSON(st model.ModelStatus) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return string(st.Status)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

func apologyMessage() *model.Message {
	return model.NewPlainMessage(model.SenderAI, MsgApology)
}
