// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jeranaias/localtalk/internal/model"
)

// RecoverResponse turns raw model output into a structured payload.
//
// Output wrapped in a ```json or ``` fence is unwrapped first. Valid JSON
// yields IsJSON with the indented document as FullResponse and the
// "answer" field as display text. Anything else is shown verbatim, and
// empty output becomes MsgEmptyResponse.
func RecoverResponse(raw string) model.StructuredPayload {
	clean := StripCodeFence(raw)

	if clean == "" || !json.Valid([]byte(clean)) {
		text := raw
		if strings.TrimSpace(text) == "" {
			text = MsgEmptyResponse
		}
		return model.StructuredPayload{Display: text, FullResponse: text}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(clean), "", "  "); err != nil {
		pretty.Reset()
		pretty.WriteString(clean)
	}

	p := model.StructuredPayload{
		Display:      strings.TrimSpace(raw),
		FullResponse: pretty.String(),
		IsJSON:       true,
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &fields); err != nil {
		// Valid JSON that is not an object carries no answer.
		return p
	}

	var answer string
	if err := json.Unmarshal(fields["answer"], &answer); err == nil && answer != "" {
		p.Display = answer
	}

	var topics []string
	if err := json.Unmarshal(fields["topics"], &topics); err == nil {
		p.Topics = topics
	}

	p.Thinking = orderedPairs(fields["thinking"])
	return p
}

// StripCodeFence removes a surrounding markdown code fence and trims
// whitespace.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// orderedPairs reads a JSON object as key/value pairs in document order.
// Non-string values are kept as compact JSON.
func orderedPairs(raw json.RawMessage) []model.ThinkingEntry {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}

	var out []model.ThinkingEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return out
		}
		key, _ := keyTok.(string)

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return out
		}
		var s string
		if err := json.Unmarshal(val, &s); err != nil {
			var compact bytes.Buffer
			if json.Compact(&compact, val) == nil {
				s = compact.String()
			} else {
				s = string(val)
			}
		}
		out = append(out, model.ThinkingEntry{Key: key, Value: s})
	}
	return out
}
