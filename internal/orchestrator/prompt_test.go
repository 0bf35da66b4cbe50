// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/model"
)

func TestBuildPrompt(t *testing.T) {
	ctx := model.ConversationContext{UserName: "花子", Topics: model.NewTopicSet("料理", "健康")}
	history := []*model.Message{
		model.NewPlainMessage(model.SenderUser, "古い"),
		model.NewPlainMessage(model.SenderAI, "古い返事"),
		model.NewPlainMessage(model.SenderUser, "新しい"),
		model.NewPlainMessage(model.SenderAI, "新しい返事"),
	}

	out := BuildPrompt(PromptInput{
		Message: "今日は何を作ろう？",
		Context: ctx,
		History: history,
		Summary: "料理の話をしていた",
	}, 2)

	assert.Contains(t, out, "花子さんと自然な日本語で会話してください")
	assert.Contains(t, out, "これまでの話題: 料理, 健康")
	assert.Contains(t, out, "これまでの会話の要約:\n料理の話をしていた")
	assert.Contains(t, out, "これまでの会話履歴:\n花子さん: 新しい\nAI: 新しい返事")
	assert.NotContains(t, out, "古い返事")
	assert.Contains(t, out, "現在の会話:\n花子さん: 今日は何を作ろう？")
	assert.Contains(t, out, "「今日は何を作ろう？」")
	assert.Contains(t, out, "スポーツ、旅行、仕事")
}

func TestBuildPrompt_Minimal(t *testing.T) {
	out := BuildPrompt(PromptInput{Message: "やあ"}, 10)

	assert.Contains(t, out, "ユーザーと自然な日本語で会話してください")
	assert.NotContains(t, out, "これまでの話題")
	assert.NotContains(t, out, "これまでの会話の要約")
	assert.NotContains(t, out, "これまでの会話履歴")
	assert.Contains(t, out, "ユーザー: やあ")
}

func TestResponseSchema(t *testing.T) {
	raw := ResponseSchema()
	require.NotEmpty(t, raw)

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "answer")
	assert.Contains(t, schema.Properties, "topics")
	assert.Contains(t, schema.Properties, "thinking")
	assert.Contains(t, string(schema.Properties["thinking"]), "エージェントへの要求")

	// Cached value is reused.
	assert.Equal(t, string(raw), string(ResponseSchema()))
}

func TestRecoverResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		display  string
		isJSON   bool
		topics   []string
		thinking []string
	}{
		{
			name:     "object",
			raw:      `{"thinking":{"b":"2","a":"1"},"topics":["旅行"],"answer":"はい"}`,
			display:  "はい",
			isJSON:   true,
			topics:   []string{"旅行"},
			thinking: []string{"b", "a"},
		},
		{
			name:    "json fence",
			raw:     "```json\n{\"answer\":\"はい\"}\n```",
			display: "はい",
			isJSON:  true,
		},
		{
			name:    "bare fence",
			raw:     "```\n{\"answer\":\"はい\"}\n```",
			display: "はい",
			isJSON:  true,
		},
		{
			name:    "object without answer",
			raw:     `{"note":"x"}`,
			display: `{"note":"x"}`,
			isJSON:  true,
		},
		{
			name:    "array",
			raw:     `[1,2]`,
			display: `[1,2]`,
			isJSON:  true,
		},
		{
			name:    "broken json",
			raw:     `{"answer": "はい"`,
			display: `{"answer": "はい"`,
		},
		{
			name:    "whitespace",
			raw:     "  \n ",
			display: MsgEmptyResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RecoverResponse(tt.raw)
			assert.Equal(t, tt.display, p.Display)
			assert.Equal(t, tt.isJSON, p.IsJSON)
			assert.Equal(t, tt.topics, p.Topics)

			var keys []string
			for _, e := range p.Thinking {
				keys = append(keys, e.Key)
			}
			assert.Equal(t, tt.thinking, keys)
		})
	}
}

func TestRecoverResponse_IndentsFullResponse(t *testing.T) {
	p := RecoverResponse(`{"answer":"はい","topics":[]}`)
	assert.Equal(t, "{\n  \"answer\": \"はい\",\n  \"topics\": []\n}", p.FullResponse)
}

func TestRecoverResponse_NonStringThinking(t *testing.T) {
	p := RecoverResponse(`{"thinking":{"score":3,"tags":["a", "b"]},"answer":"ok"}`)
	require.Len(t, p.Thinking, 2)
	assert.Equal(t, model.ThinkingEntry{Key: "score", Value: "3"}, p.Thinking[0])
	assert.Equal(t, model.ThinkingEntry{Key: "tags", Value: `["a","b"]`}, p.Thinking[1])
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		name string
		st   model.ModelStatus
		want string
	}{
		{"downloading no progress", model.ModelStatus{Status: model.StatusDownloading}, MsgDownloading},
		{"downloading zero", model.ModelStatus{Status: model.StatusDownloading}.WithProgress(0), MsgDownloading},
		{"downloading half", model.ModelStatus{Status: model.StatusDownloading}.WithProgress(0.5), "ダウンロード中... (50%完了)"},
		{"downloadable", model.ModelStatus{Status: model.StatusDownloadable}, MsgDownloadable},
		{"not available", model.ModelStatus{Status: model.StatusNotAvailable}, MsgNotAvailable},
		{"error", model.ModelStatus{Status: model.StatusError}, MsgEngineFailure},
		{"unknown", model.ModelStatus{Status: model.StatusUnknown}, MsgStatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := statusMessage(tt.st)
			assert.Equal(t, model.SenderAI, m.Sender)
			assert.Equal(t, tt.want, m.Text())
			assert.True(t, m.IsJSON())
		})
	}
}

func TestFormatLog(t *testing.T) {
	history := []*model.Message{
		model.NewPlainMessage(model.SenderUser, "こんにちは"),
		model.NewPlainMessage(model.SenderAI, ""),
	}

	out := formatLog(history, "要約です", true)
	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{
		"会話履歴 (2件):",
		"user: こんにちは",
		"ai: " + MsgNoMessage,
		"AI応答数: 1",
		"要約: 要約です",
		"(要約を生成中)",
	}, lines)

	assert.Equal(t, "会話履歴 (0件):\nAI応答数: 0", formatLog(nil, "", false))
}

// stubPrompter returns a fixed reply and records the config.
type stubPrompter struct {
	reply string
	err   error
	cfg   engine.SessionConfig
	text  string
}

func (p *stubPrompter) Prompt(ctx context.Context, cfg engine.SessionConfig, text string) (string, error) {
	p.cfg, p.text = cfg, text
	return p.reply, p.err
}

func TestLLMSummarizer(t *testing.T) {
	history := []*model.Message{
		model.NewPlainMessage(model.SenderUser, "山に行った"),
		model.NewPlainMessage(model.SenderSystem, "ログ"),
		model.NewPlainMessage(model.SenderAI, "いいですね"),
	}
	req := SummaryRequest{
		PreviousSummary: "前回",
		History:         history,
		Context:         model.ConversationContext{UserName: "太郎"},
	}

	t.Run("json", func(t *testing.T) {
		p := &stubPrompter{reply: "```json\n{\"summary\":\" 山の話 \",\"topics\":[\"旅行\"]}\n```"}
		res, err := NewLLMSummarizer(p, "ja", true).Summarize(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "山の話", res.Summary)
		assert.Equal(t, []string{"旅行"}, res.Topics)

		assert.NotEmpty(t, p.cfg.Format)
		assert.InDelta(t, 0.3, p.cfg.Temperature, 1e-9)
		assert.Contains(t, p.text, "これまでの要約:\n前回")
		assert.Contains(t, p.text, "太郎さん: 山に行った\nAI: いいですね")
		assert.NotContains(t, p.text, "ログ")
	})

	t.Run("plain text", func(t *testing.T) {
		p := &stubPrompter{reply: "山の話をした"}
		res, err := NewLLMSummarizer(p, "ja", false).Summarize(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "山の話をした", res.Summary)
		assert.Empty(t, p.cfg.Format)
	})

	t.Run("empty", func(t *testing.T) {
		p := &stubPrompter{reply: `{"summary":"","topics":[]}`}
		_, err := NewLLMSummarizer(p, "ja", true).Summarize(context.Background(), req)
		assert.ErrorIs(t, err, ErrEmptySummary)
	})

	t.Run("engine error", func(t *testing.T) {
		p := &stubPrompter{err: assert.AnError}
		_, err := NewLLMSummarizer(p, "ja", true).Summarize(context.Background(), req)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("no history", func(t *testing.T) {
		p := &stubPrompter{}
		res, err := NewLLMSummarizer(p, "ja", true).Summarize(context.Background(), SummaryRequest{PreviousSummary: "前回"})
		require.NoError(t, err)
		assert.Equal(t, "前回", res.Summary)
		assert.Empty(t, p.text)
	})
}
