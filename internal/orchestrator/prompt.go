// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/jeranaias/localtalk/internal/model"
	"github.com/jeranaias/localtalk/internal/tracker"
)

// =============================================================================
// RESPONSE ENVELOPE
// =============================================================================

// ResponseEnvelope is the JSON shape the model is asked to produce.
type ResponseEnvelope struct {
	Thinking ThinkingFields `json:"thinking"`
	Topics   []string       `json:"topics"`
	Answer   string         `json:"answer"`
}

// ThinkingFields is the reasoning trace requested alongside the answer.
type ThinkingFields struct {
	Satisfaction string `json:"満足度の推測"`
	Situation    string `json:"ユーザーの状況の推測"`
	Personality  string `json:"ユーザーの性格の推測"`
	Request      string `json:"エージェントへの要求"`
}

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

var schemaCache sync.Map // reflect target name -> json.RawMessage

// schemaFor returns the JSON schema for v, or nil if it cannot be built.
func schemaFor(name string, v any) json.RawMessage {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(json.RawMessage)
	}
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil
	}
	schemaCache.Store(name, json.RawMessage(raw))
	return raw
}

// ResponseSchema is the JSON schema of ResponseEnvelope.
func ResponseSchema() json.RawMessage {
	return schemaFor("response", &ResponseEnvelope{})
}

// =============================================================================
// PROMPT
// =============================================================================

// PromptInput is everything a turn prompt is built from.
type PromptInput struct {
	Message string
	Context model.ConversationContext
	// History holds earlier turns, oldest first, excluding Message.
	History []*model.Message
	Summary string
}

// DisplayName is how the prompt and history refer to the user.
func DisplayName(ctx model.ConversationContext) string {
	if ctx.UserName != "" {
		return ctx.UserName + "さん"
	}
	return DefaultUserLabel
}

// BuildPrompt renders the turn prompt. Only the last window entries of
// History are included.
func BuildPrompt(in PromptInput, window int) string {
	name := DisplayName(in.Context)

	var b strings.Builder
	b.WriteString("あなたはAI Talkという対話アプリケーションのAIエージェントです。")
	b.WriteString(name)
	b.WriteString("と自然な日本語で会話してください。もっとも最近の発言の意図に合わせて、自然な応答をします。" +
		"ユーザーが質問を望んでいない場合は共感を示すに留めたり、話題を変えたりします。" +
		"ユーザーが書き込んでいないことを決めつけて書かないようにします。\n\n")

	if in.Context.Topics.Len() > 0 {
		b.WriteString("これまでの話題: ")
		b.WriteString(strings.Join(in.Context.Topics.List(), ", "))
	}
	if in.Summary != "" {
		b.WriteString("\n\nこれまでの会話の要約:\n")
		b.WriteString(in.Summary)
	}
	b.WriteString(historyBlock(lastN(in.History, window), name))

	b.WriteString("\n\n現在の会話:\n")
	b.WriteString(name + ": " + in.Message + "\n\n")

	b.WriteString("AIエージェントとして、上記の会話履歴を参考に、" + name + "の現在のメッセージ「" + in.Message + "」に対して、" +
		"これまでの会話でAIエージェントの応答に対するユーザーの満足度の推測、ユーザーの状況の推測、ユーザーの性格の推測、" +
		"エージェントへの要求を思考し、応答してください。情報が不足していても、大胆に推測を交えて応答する方が満足してもらえる可能性が高いです。\n")
	b.WriteString("また、直近の話題から関連するトピックを推定してください。トピックは以下のようなカテゴリから選択してください：")
	b.WriteString(strings.Join(tracker.Vocabulary, "、"))
	b.WriteString("。\n")
	b.WriteString(`*出力はJSON形式とします。改行文字は"\n"としてエスケープしてください。*、` +
		`{ "thinking": { "満足度の推測": "満足度の推測内容", "ユーザーの状況の推測": "ユーザーの状況の推測内容", ` +
		`"ユーザーの性格の推測": "ユーザーの性格の推測内容", "エージェントへの要求": "エージェントへの要求内容" }, ` +
		`"topics": ["トピック1", "トピック2"], "answer": "応答内容" }としてください。`)
	return b.String()
}

func historyBlock(history []*model.Message, name string) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		label := AILabel
		if m.Sender == model.SenderUser {
			label = name
		}
		lines = append(lines, label+": "+m.Text())
	}
	return "\n\nこれまでの会話履歴:\n" + strings.Join(lines, "\n")
}

func lastN(msgs []*model.Message, n int) []*model.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
