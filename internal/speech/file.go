// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Transcript line kinds written by the external recognizer.
const (
	KindInterim = "interim"
	KindFinal   = "final"
)

// =============================================================================
// FILE RECOGNIZER
// =============================================================================

// FileRecognizer tails a transcript file produced by an external
// speech-to-text process. Each line is "interim<TAB>text" or
// "final<TAB>text". Only lines appended after Listen starts are read.
// A session ends when the file is removed or renamed.
type FileRecognizer struct {
	path   string
	logger *zap.Logger

	// onReady runs once the watch is in place.
	onReady func()
}

// NewFileRecognizer creates a recognizer for path.
func NewFileRecognizer(path string, logger *zap.Logger) *FileRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRecognizer{path: path, logger: logger}
}

// Path returns the transcript file path.
func (r *FileRecognizer) Path() string {
	return r.path
}

// Listen implements Recognizer.
func (r *FileRecognizer) Listen(ctx context.Context, cfg Config, onEvent func(Event)) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek transcript file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory; editors and STT tools often replace the file.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("watch transcript dir: %w", err)
	}

	r.logger.Debug("transcript session started",
		zap.String("path", r.path), zap.String("locale", cfg.Locale))
	if r.onReady != nil {
		r.onReady()
	}

	t := &tail{f: f, offset: offset}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				r.logger.Debug("transcript file went away", zap.String("op", event.Op.String()))
				return nil
			}
			if event.Op&fsnotify.Write == 0 {
				continue
			}

			lines, err := t.readLines()
			if err != nil {
				return fmt.Errorf("read transcript file: %w", err)
			}
			if ev, ok := r.parse(lines); ok {
				onEvent(ev)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch transcript file: %w", err)
		}
	}
}

// parse turns complete lines into one event.
func (r *FileRecognizer) parse(lines []string) (Event, bool) {
	var ev Event
	for _, line := range lines {
		kind, text, ok := strings.Cut(line, "\t")
		if !ok {
			r.logger.Debug("skipping malformed transcript line", zap.String("line", line))
			continue
		}
		switch strings.TrimSpace(kind) {
		case KindInterim:
			ev.Results = append(ev.Results, Result{Transcript: text})
		case KindFinal:
			ev.Results = append(ev.Results, Result{Transcript: text, Final: true})
		default:
			r.logger.Debug("skipping transcript line", zap.String("kind", kind))
		}
	}
	return ev, len(ev.Results) > 0
}

// tail reads complete lines appended to a file.
type tail struct {
	f       *os.File
	offset  int64
	partial []byte
}

func (t *tail) readLines() ([]string, error) {
	info, err := t.f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		// Truncated: start over.
		t.offset = 0
		t.partial = nil
	}

	if _, err := t.f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(t.f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	var lines []string
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(buf[:i]), "\r")
		if line != "" {
			lines = append(lines, line)
		}
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return lines, nil
}
