// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"errors"
	"strings"
)

// DefaultLocale is the recognition language.
const DefaultLocale = "ja-JP"

// ErrUnsupported is returned by a Recognizer that cannot run on this host.
var ErrUnsupported = errors.New("speech recognition is not supported")

// Config is passed to each recognition session.
type Config struct {
	Locale string
}

// Result is one transcript fragment.
type Result struct {
	Transcript string
	Final      bool
}

// Event is one batch of results. Results before ResultIndex were already
// delivered in earlier events and are ignored.
type Event struct {
	ResultIndex int
	Results     []Result
}

// Pending returns the results at or after ResultIndex.
func (e Event) Pending() []Result {
	if e.ResultIndex <= 0 {
		return e.Results
	}
	if e.ResultIndex >= len(e.Results) {
		return nil
	}
	return e.Results[e.ResultIndex:]
}

// split separates finals, in order, from the joined interim text.
func (e Event) split() (finals []string, interim string) {
	var b strings.Builder
	for _, r := range e.Pending() {
		text := strings.TrimSpace(r.Transcript)
		if text == "" {
			continue
		}
		if r.Final {
			finals = append(finals, text)
			continue
		}
		b.WriteString(text)
	}
	return finals, b.String()
}

// Recognizer runs continuous speech recognition.
//
// Listen blocks for one recognition session and delivers events to
// onEvent in order. It returns nil when the session ends naturally,
// ErrUnsupported when recognition cannot run, or another error on failure.
// Listen must return promptly once ctx is done.
type Recognizer interface {
	Listen(ctx context.Context, cfg Config, onEvent func(Event)) error
}
