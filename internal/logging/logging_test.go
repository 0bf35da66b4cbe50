// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/jeranaias/localtalk/internal/config"
)

func TestNew_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "localtalk.log")

	logger, err := New(config.LoggingConfig{Level: "info", Format: "json", File: path}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("turn settled", zap.String("status", "ready"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "turn settled" || entry["status"] != "ready" || entry["logger"] != "localtalk" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_FallbackFile(t *testing.T) {
	fallback := filepath.Join(t.TempDir(), "tui.log")

	logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"}, fallback)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("debug line")
	_ = logger.Sync()

	data, err := os.ReadFile(fallback)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "debug line") || !strings.Contains(string(data), "DEBUG") {
		t.Errorf("unexpected console output: %q", data)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []config.LoggingConfig{
		{Level: "loud", Format: "json"},
		{Level: "info", Format: "xml"},
	}
	for _, cfg := range tests {
		if _, err := New(cfg, ""); err == nil {
			t.Errorf("New(%+v) should fail", cfg)
		}
	}
	if Must(tests[0], "") == nil {
		t.Error("Must should never return nil")
	}
}
