// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tracker extracts conversation context from user text and model
// output: the user's self-introduced name and the running topic set.
//
// All functions are pure.
package tracker

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/localtalk/internal/model"
)

// Vocabulary is the fixed set of topic categories the model is asked to
// choose from.
var Vocabulary = []string{
	"映画", "プログラミング", "寿司のネタ", "人生相談", "料理", "音楽",
	"スポーツ", "旅行", "仕事", "趣味", "勉強", "健康", "家族", "友達",
	"ペット", "ゲーム", "読書", "アニメ", "漫画", "悪巧み", "愚痴", "その他",
}

// namePattern matches a 2-4 character kana/kanji token that follows a
// self-identification cue and precedes the copula.
var namePattern = regexp.MustCompile(
	`(?:名前|なまえ|わたくし|わたし|私|僕|ぼく|俺|おれ|あたし)は\s*` +
		`([ぁ-んァ-ヶー一-龯々]{2,4})` +
		`(?:です|と申します|といいます)`,
)

// ExtractName returns the first name the user introduces in text.
func ExtractName(text string) (string, bool) {
	text = norm.NFKC.String(text)
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// MergeTopics returns the union of existing and incoming. Blank entries are
// ignored and existing is not modified.
func MergeTopics(existing model.TopicSet, incoming []string) model.TopicSet {
	merged := existing.Clone()
	for _, t := range incoming {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		merged.Add(t)
	}
	return merged
}

// Observe applies the user text to ctx and returns the updated context.
// A name already on record is kept.
func Observe(ctx model.ConversationContext, text string) model.ConversationContext {
	if ctx.UserName != "" {
		return ctx
	}
	if name, ok := ExtractName(text); ok {
		ctx.UserName = name
	}
	return ctx
}
