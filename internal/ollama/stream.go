// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader handles line-by-line JSON parsing of streaming responses.
type StreamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder
	tokenCount  int
	model       string
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads a chat stream and calls the callback for each chunk.
// Blocks until the stream is complete or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		chunk, streamErr := s.parseChatLine(line)
		if streamErr != nil {
			return streamErr
		}
		if chunk == nil {
			continue
		}
		callback(*chunk)
		if chunk.Done {
			return nil
		}
	}
}

// ProcessPull reads a pull progress stream. An error line ends the stream
// with a ClientError.
func (s *StreamReader) ProcessPull(ctx context.Context, callback PullCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.readLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			// Skip malformed lines
			continue
		}
		if p.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "pull failed: " + p.Error}
		}
		if callback != nil {
			callback(p)
		}
		if p.Status == "success" {
			return nil
		}
	}
}

// readLine returns the next non-empty line, or io.EOF.
func (s *StreamReader) readLine() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		trimmed := strings.TrimSpace(string(line))
		if trimmed != "" {
			return []byte(trimmed), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// parseChatLine parses a single line of /api/chat output. Malformed lines
// yield (nil, nil) and are skipped.
func (s *StreamReader) parseChatLine(line []byte) (*StreamChunk, error) {
	var response struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done            bool   `json:"done"`
		DoneReason      string `json:"done_reason,omitempty"`
		TotalDuration   int64  `json:"total_duration,omitempty"`
		PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
		EvalCount       int    `json:"eval_count,omitempty"`
		EvalDuration    int64  `json:"eval_duration,omitempty"`
		Error           string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, nil
	}
	if response.Error != "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: response.Error}
	}

	if response.Model != "" {
		s.model = response.Model
	}

	content := response.Message.Content
	if content != "" {
		s.accumulator.WriteString(content)
		s.tokenCount++
	}

	chunk := &StreamChunk{
		Content:    content,
		Done:       response.Done,
		DoneReason: response.DoneReason,
		Model:      s.model,
	}
	if response.Done {
		chunk.TotalDuration = time.Duration(response.TotalDuration)
		chunk.EvalDuration = time.Duration(response.EvalDuration)
		chunk.PromptTokens = response.PromptEvalCount
		chunk.CompletionTokens = response.EvalCount
	}
	return chunk, nil
}

// Accumulated returns all content received so far.
func (s *StreamReader) Accumulated() string {
	return s.accumulator.String()
}

// TokenCount returns the number of content chunks received.
func (s *StreamReader) TokenCount() int {
	return s.tokenCount
}
