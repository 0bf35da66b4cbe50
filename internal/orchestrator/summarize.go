// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/localtalk/internal/engine"
	"github.com/jeranaias/localtalk/internal/model"
)

// =============================================================================
// SUMMARIZER INTERFACE
// =============================================================================

// SummaryRequest is the input to one summarization.
type SummaryRequest struct {
	PreviousSummary string
	History         []*model.Message
	Context         model.ConversationContext
}

// SummaryResult replaces the rolling summary.
type SummaryResult struct {
	Summary string
	Topics  []string
}

// Summarizer compresses conversation history.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error)
}

// ErrEmptySummary is returned when the model produced nothing usable.
var ErrEmptySummary = errors.New("received empty summary from model")

// =============================================================================
// LLM SUMMARIZER
// =============================================================================

// Prompter is the part of the gateway a summarizer needs.
type Prompter interface {
	Prompt(ctx context.Context, cfg engine.SessionConfig, text string) (string, error)
}

// LLMSummarizer asks the engine for a JSON summary.
type LLMSummarizer struct {
	prompter Prompter
	language string
	schema   bool
}

// summaryEnvelope is the JSON shape requested from the model.
type summaryEnvelope struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
}

// NewLLMSummarizer creates a summarizer. When structured is true the
// session is constrained to the summary JSON schema.
func NewLLMSummarizer(p Prompter, language string, structured bool) *LLMSummarizer {
	return &LLMSummarizer{prompter: p, language: language, schema: structured}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	if len(req.History) == 0 {
		return SummaryResult{Summary: req.PreviousSummary}, nil
	}

	cfg := engine.SessionConfig{
		Language:    s.language,
		Temperature: 0.3, // focused summaries
	}
	if s.schema {
		cfg.Format = schemaFor("summary", &summaryEnvelope{})
	}

	out, err := s.prompter.Prompt(ctx, cfg, buildSummaryPrompt(req))
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarization failed: %w", err)
	}

	clean := StripCodeFence(out)
	var env summaryEnvelope
	if err := json.Unmarshal([]byte(clean), &env); err != nil {
		// Plain text output is taken as the summary itself.
		env = summaryEnvelope{Summary: clean}
	}
	env.Summary = strings.TrimSpace(env.Summary)
	if env.Summary == "" {
		return SummaryResult{}, ErrEmptySummary
	}
	return SummaryResult{Summary: env.Summary, Topics: env.Topics}, nil
}

func buildSummaryPrompt(req SummaryRequest) string {
	name := DisplayName(req.Context)

	var sb strings.Builder
	sb.WriteString("以下の会話を、今後の応答の文脈として使えるように簡潔に要約してください。次の点を残してください:\n")
	sb.WriteString("- " + name + "について分かったこと\n")
	sb.WriteString("- 話題の流れと未解決の話題\n")
	sb.WriteString("- " + name + "がAIエージェントに求めていること\n\n")

	if req.PreviousSummary != "" {
		sb.WriteString("これまでの要約:\n")
		sb.WriteString(req.PreviousSummary)
		sb.WriteString("\n\n")
	}

	sb.WriteString("会話:\n---\n")
	for _, m := range req.History {
		label := AILabel
		switch m.Sender {
		case model.SenderUser:
			label = name
		case model.SenderSystem:
			continue
		}
		sb.WriteString(label + ": " + m.Text() + "\n")
	}
	sb.WriteString("---\n\n")
	sb.WriteString(`出力はJSON形式とし、{ "summary": "要約", "topics": ["トピック1"] }としてください。`)
	return sb.String()
}
