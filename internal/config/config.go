// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/localtalk/internal/util"
)

// Engine backends.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendNone   = "none"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete localtalk configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Engine       EngineConfig       `toml:"engine" json:"engine"`
	Conversation ConversationConfig `toml:"conversation" json:"conversation"`
	Monitor      MonitorConfig      `toml:"monitor" json:"monitor"`
	Speech       SpeechConfig       `toml:"speech" json:"speech"`
	Server       ServerConfig       `toml:"server" json:"server"`
	Logging      LoggingConfig      `toml:"logging" json:"logging"`
	Telemetry    TelemetryConfig    `toml:"telemetry" json:"telemetry"`
	UI           UIConfig           `toml:"ui" json:"ui"`
}

// EngineConfig selects and configures the inference engine.
type EngineConfig struct {
	// Backend is "ollama", "openai" (any OpenAI-compatible local server) or
	// "none" (no engine; the AI is reported unavailable).
	Backend string `toml:"backend" json:"backend"`
	// Model is the model name passed to the backend.
	Model string `toml:"model" json:"model"`
	// Language is passed to every inference session.
	Language string `toml:"language" json:"language"`
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url" json:"ollama_url"`
	// OpenAIURL is the base URL of the OpenAI-compatible server
	OpenAIURL string `toml:"openai_url" json:"openai_url"`
	// OpenAIKey is sent as the bearer token, if the server wants one
	OpenAIKey string `toml:"openai_key" json:"openai_key"`
	// TimeoutSecs bounds a single engine request.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// Streaming enables incremental responses when the backend supports it.
	Streaming bool `toml:"streaming" json:"streaming"`
}

// ConversationConfig tunes turn handling.
type ConversationConfig struct {
	PromptHistory  int `toml:"prompt_history" json:"prompt_history"`
	HistoryKeep    int `toml:"history_keep" json:"history_keep"`
	SummarizeEvery int `toml:"summarize_every" json:"summarize_every"`
	// SentDelayMs is when the progress indicator moves from received to sent.
	SentDelayMs int `toml:"sent_delay_ms" json:"sent_delay_ms"`
	// StructuredOutput sends a JSON schema with every prompt.
	StructuredOutput bool `toml:"structured_output" json:"structured_output"`
	// Temperature overrides the backend default when > 0.
	Temperature float64 `toml:"temperature" json:"temperature"`
}

// MonitorConfig configures download polling.
type MonitorConfig struct {
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
}

// SpeechConfig configures voice input.
type SpeechConfig struct {
	// Enabled turns voice mode on at startup.
	Enabled bool `toml:"enabled" json:"enabled"`
	// TranscriptFile is tailed for "interim<TAB>text" / "final<TAB>text"
	// lines. Empty disables voice input.
	TranscriptFile string `toml:"transcript_file" json:"transcript_file"`
	Locale         string `toml:"locale" json:"locale"`
	// RestartPerSec and RestartBurst throttle recognizer restarts.
	RestartPerSec float64 `toml:"restart_per_sec" json:"restart_per_sec"`
	RestartBurst  int     `toml:"restart_burst" json:"restart_burst"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	// Addr must be a loopback address.
	Addr string `toml:"addr" json:"addr"`
	// RatePerSec and RateBurst bound requests per client IP.
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec"`
	RateBurst  int     `toml:"rate_burst" json:"rate_burst"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json".
	Format string `toml:"format" json:"format"`
	// File receives log output. Empty means stderr, except under the TUI,
	// which always logs to a file.
	File string `toml:"file" json:"file"`
}

// TelemetryConfig configures OpenTelemetry tracing of engine calls.
type TelemetryConfig struct {
	// Enabled installs the SDK tracer provider. Off means a no-op tracer.
	Enabled bool `toml:"enabled" json:"enabled"`
	// OTLPEndpoint receives spans over OTLP/HTTP, e.g. "127.0.0.1:4318" or
	// "http://collector:4318". Empty exports nothing.
	OTLPEndpoint string `toml:"otlp_endpoint" json:"otlp_endpoint"`
	// OTLPHeaders is a comma-separated list of key=value export headers.
	OTLPHeaders string `toml:"otlp_headers" json:"otlp_headers"`
	// LogSpans writes every finished span to the log (failures at warn).
	LogSpans bool `toml:"log_spans" json:"log_spans"`
	// SampleRatio is the fraction of root spans kept, 0 to 1.
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	Theme        string `toml:"theme" json:"theme"`
	ShowThinking bool   `toml:"show_thinking" json:"show_thinking"`
	CompactMode  bool   `toml:"compact_mode" json:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Engine: EngineConfig{
			Backend:     BackendOllama,
			Model:       "gemma3:4b",
			Language:    "ja",
			OllamaURL:   "http://127.0.0.1:11434",
			OpenAIURL:   "http://127.0.0.1:8080/v1",
			TimeoutSecs: 120,
			Streaming:   true,
		},

		Conversation: ConversationConfig{
			PromptHistory:    10,
			HistoryKeep:      8,
			SummarizeEvery:   4,
			SentDelayMs:      1000,
			StructuredOutput: true,
		},

		Monitor: MonitorConfig{
			PollIntervalMs: 3000,
		},

		Speech: SpeechConfig{
			Locale:        "ja-JP",
			RestartPerSec: 1,
			RestartBurst:  3,
		},

		Server: ServerConfig{
			Addr:       "127.0.0.1:8765",
			RatePerSec: 20,
			RateBurst:  40,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Telemetry: TelemetryConfig{
			LogSpans:    true,
			SampleRatio: 1,
		},

		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the localtalk configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".localtalk"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultLogPath is where the TUI logs when no file is configured.
func DefaultLogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "localtalk.log"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 since they may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg := Default()
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg := Default()
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	// Defaults are returned alongside any load error for informational purposes.
	return cfg, loadErr
}

// finish applies env overrides and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Not fatal: permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return fillDefaults(cfg)
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Engine
	if cfg.Engine.Backend == "" {
		cfg.Engine.Backend = defaults.Engine.Backend
	}
	if cfg.Engine.Model == "" {
		cfg.Engine.Model = defaults.Engine.Model
	}
	if cfg.Engine.Language == "" {
		cfg.Engine.Language = defaults.Engine.Language
	}
	if cfg.Engine.OllamaURL == "" {
		cfg.Engine.OllamaURL = defaults.Engine.OllamaURL
	}
	if cfg.Engine.OpenAIURL == "" {
		cfg.Engine.OpenAIURL = defaults.Engine.OpenAIURL
	}
	if cfg.Engine.TimeoutSecs == 0 {
		cfg.Engine.TimeoutSecs = defaults.Engine.TimeoutSecs
	}

	// Conversation
	if cfg.Conversation.PromptHistory == 0 {
		cfg.Conversation.PromptHistory = defaults.Conversation.PromptHistory
	}
	if cfg.Conversation.HistoryKeep == 0 {
		cfg.Conversation.HistoryKeep = defaults.Conversation.HistoryKeep
	}
	if cfg.Conversation.SummarizeEvery == 0 {
		cfg.Conversation.SummarizeEvery = defaults.Conversation.SummarizeEvery
	}
	if cfg.Conversation.SentDelayMs == 0 {
		cfg.Conversation.SentDelayMs = defaults.Conversation.SentDelayMs
	}

	// Monitor
	if cfg.Monitor.PollIntervalMs == 0 {
		cfg.Monitor.PollIntervalMs = defaults.Monitor.PollIntervalMs
	}

	// Speech
	if cfg.Speech.Locale == "" {
		cfg.Speech.Locale = defaults.Speech.Locale
	}
	if cfg.Speech.RestartPerSec == 0 {
		cfg.Speech.RestartPerSec = defaults.Speech.RestartPerSec
	}
	if cfg.Speech.RestartBurst == 0 {
		cfg.Speech.RestartBurst = defaults.Speech.RestartBurst
	}

	// Server
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.RatePerSec == 0 {
		cfg.Server.RatePerSec = defaults.Server.RatePerSec
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = defaults.Server.RateBurst
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	// Telemetry
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = defaults.Telemetry.SampleRatio
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

const tomlHeader = `# localtalk configuration file
# Generated by localtalk - edit with care

`

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString(tomlHeader)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// SECURITY: 0600 since the file may carry an API key.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends   = []string{BackendOllama, BackendOpenAI, BackendNone}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"console", "json"}
	validThemes     = []string{"dark", "light"}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if !contains(validBackends, c.Engine.Backend) {
		add("engine.backend", fmt.Sprintf("must be one of %s", strings.Join(validBackends, ", ")))
	}
	if c.Engine.Backend != BackendNone && strings.TrimSpace(c.Engine.Model) == "" {
		add("engine.model", "must not be empty")
	}
	if err := validateURL(c.Engine.OllamaURL); err != nil {
		add("engine.ollama_url", err.Error())
	}
	if err := validateURL(c.Engine.OpenAIURL); err != nil {
		add("engine.openai_url", err.Error())
	}
	if c.Engine.TimeoutSecs < 1 || c.Engine.TimeoutSecs > 3600 {
		add("engine.timeout_secs", "must be between 1 and 3600")
	}

	if c.Conversation.PromptHistory < 1 {
		add("conversation.prompt_history", "must be at least 1")
	}
	if c.Conversation.HistoryKeep < 2 {
		add("conversation.history_keep", "must be at least 2")
	}
	if c.Conversation.SummarizeEvery < 1 {
		add("conversation.summarize_every", "must be at least 1")
	}
	if c.Conversation.SentDelayMs < 0 {
		add("conversation.sent_delay_ms", "must not be negative")
	}
	if c.Conversation.Temperature < 0 || c.Conversation.Temperature > 2 {
		add("conversation.temperature", "must be between 0 and 2")
	}

	if c.Monitor.PollIntervalMs < 100 {
		add("monitor.poll_interval_ms", "must be at least 100")
	}

	if c.Speech.Enabled && c.Speech.TranscriptFile == "" {
		add("speech.transcript_file", "required when speech is enabled")
	}
	if c.Speech.RestartPerSec <= 0 {
		add("speech.restart_per_sec", "must be positive")
	}
	if c.Speech.RestartBurst < 1 {
		add("speech.restart_burst", "must be at least 1")
	}

	if err := validateLoopback(c.Server.Addr); err != nil {
		add("server.addr", err.Error())
	}
	if c.Server.RatePerSec <= 0 {
		add("server.rate_per_sec", "must be positive")
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1")
	}

	if !contains(validLogLevels, strings.ToLower(c.Logging.Level)) {
		add("logging.level", fmt.Sprintf("must be one of %s", strings.Join(validLogLevels, ", ")))
	}
	if !contains(validLogFormats, c.Logging.Format) {
		add("logging.format", fmt.Sprintf("must be one of %s", strings.Join(validLogFormats, ", ")))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		add("telemetry.sample_ratio", "must be between 0 and 1")
	}
	if ep := c.Telemetry.OTLPEndpoint; strings.Contains(ep, "://") {
		if err := validateURL(ep); err != nil {
			add("telemetry.otlp_endpoint", err.Error())
		}
	}

	if !contains(validThemes, c.UI.Theme) {
		add("ui.theme", fmt.Sprintf("must be one of %s", strings.Join(validThemes, ", ")))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// validateLoopback ensures the API is never exposed beyond this machine.
func validateLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address: %v", err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.New("must be a loopback address")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// DURATIONS
// =============================================================================

// Timeout is the engine request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSecs) * time.Second
}

// SentDelay is the received-to-sent indicator delay.
func (c *Config) SentDelay() time.Duration {
	return time.Duration(c.Conversation.SentDelayMs) * time.Millisecond
}

// PollInterval is the download polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Monitor.PollIntervalMs) * time.Millisecond
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - LOCALTALK_BACKEND: overrides engine.backend
//   - LOCALTALK_MODEL: overrides engine.model
//   - LOCALTALK_OLLAMA_URL: overrides engine.ollama_url
//   - LOCALTALK_OPENAI_URL: overrides engine.openai_url
//   - LOCALTALK_OPENAI_KEY: overrides engine.openai_key
//   - LOCALTALK_LOG_LEVEL: overrides logging.level
//   - LOCALTALK_LOG_FILE: overrides logging.file
//   - LOCALTALK_TRANSCRIPT_FILE: sets speech.transcript_file and enables speech
//   - LOCALTALK_OTLP_ENDPOINT: sets telemetry.otlp_endpoint and enables telemetry
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LOCALTALK_BACKEND"); v != "" {
		c.Engine.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("LOCALTALK_MODEL"); v != "" {
		c.Engine.Model = v
	}
	if v := os.Getenv("LOCALTALK_OLLAMA_URL"); v != "" {
		c.Engine.OllamaURL = v
	}
	if v := os.Getenv("LOCALTALK_OPENAI_URL"); v != "" {
		c.Engine.OpenAIURL = v
	}
	if v := os.Getenv("LOCALTALK_OPENAI_KEY"); v != "" {
		c.Engine.OpenAIKey = v
	}
	if v := os.Getenv("LOCALTALK_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOCALTALK_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("LOCALTALK_TRANSCRIPT_FILE"); v != "" {
		c.Speech.TranscriptFile = v
		c.Speech.Enabled = true
	}
	if v := os.Getenv("LOCALTALK_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
		c.Telemetry.Enabled = true
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "engine.model").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "engine.model").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.New("nil value")
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			collectKeys(f.Type, name, keys)
			continue
		}
		*keys = append(*keys, name)
	}
}

// Clone creates a copy of the configuration. Config holds no maps or
// slices, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API key.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Engine.OpenAIKey != "" {
		safe.Engine.OpenAIKey = "[REDACTED]"
	}
	if safe.Telemetry.OTLPHeaders != "" {
		safe.Telemetry.OTLPHeaders = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
