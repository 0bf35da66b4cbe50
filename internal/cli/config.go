// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
//
// Subcommands:
//
//	show (default)      Display the effective configuration
//	init [--force]      Write the default config file
//	get <key>           Display one value
//	set <key> <value>   Change one value in the config file
//	path                Show configuration file path
//	keys                List all keys
//
// Examples:
//
//	localtalk config set engine.model gemma3:4b
//	localtalk config set engine.backend openai
//	localtalk config set speech.transcript_file /tmp/transcript.txt
//	localtalk config get conversation.summarize_every --json
//
// show and get read the effective configuration (file, then environment,
// then flags). set edits the file only.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/localtalk/internal/config"
)

// redacted replaces secrets in displayed output.
const redacted = "[REDACTED]"

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args, os.Stdout)
	case "init":
		return configInit(args, os.Stdout)
	case "get":
		return configGet(args, os.Stdout)
	case "set":
		return configSet(args, os.Stdout)
	case "path":
		return configPath(args, os.Stdout)
	case "keys":
		return configKeys(args, os.Stdout)
	default:
		return NewValidationErrorWithExample("subcommand", args.Subcommand,
			"unknown config subcommand", "localtalk config [show|init|get|set|path|keys]")
	}
}

// configFilePath is the file config commands read and write.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.ConfigPathTOML()
}

func isJSONPath(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".json")
}

// loadFile reads path over the defaults without environment overrides.
// A missing file yields the defaults.
func loadFile(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	var err error
	if isJSONPath(path) {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func saveFile(cfg *config.Config, path string) error {
	if isJSONPath(path) {
		return config.SaveJSON(cfg, path)
	}
	return config.SaveTOML(cfg, path)
}

func redact(cfg *config.Config) *config.Config {
	safe := cfg.Clone()
	if safe.Engine.OpenAIKey != "" {
		safe.Engine.OpenAIKey = redacted
	}
	if safe.Telemetry.OTLPHeaders != "" {
		safe.Telemetry.OTLPHeaders = redacted
	}
	return safe
}

func isSecretKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	return k == "engine.openai_key" || k == "telemetry.otlp_headers"
}

// =============================================================================
// SUBCOMMANDS
// =============================================================================

func configShow(args Args, out io.Writer) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	safe := redact(cfg)

	if args.JSON {
		return NewJSONResponse("config show", safe).Write(out)
	}
	if path, err := configFilePath(args); err == nil {
		fmt.Fprintln(out, DimStyle.Render("# "+path))
	}
	return toml.NewEncoder(out).Encode(safe)
}

func configInit(args Args, out io.Writer) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !args.Force {
		return NewCommandError("config", "init", "config file already exists (use --force to overwrite)", nil)
	}
	if err := saveFile(config.Default(), path); err != nil {
		return NewCommandError("config", "init", "could not write config file", err)
	}
	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Write(out)
	}
	fmt.Fprintf(out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func configGet(args Args, out io.Writer) error {
	if args.ConfigKey == "" {
		return ErrMissingArgument("key", "localtalk config get engine.model")
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	value, err := cfg.Get(args.ConfigKey)
	if err != nil {
		return NewValidationErrorWithExample("key", args.ConfigKey, err.Error(), "localtalk config keys")
	}
	if isSecretKey(args.ConfigKey) && value != "" {
		value = redacted
	}

	if args.JSON {
		return NewJSONResponse("config get", ConfigData{Key: args.ConfigKey, Value: value}).Write(out)
	}
	fmt.Fprintln(out, value)
	return nil
}

func configSet(args Args, out io.Writer) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return ErrMissingArgument("key and value", "localtalk config set engine.model gemma3:4b")
	}
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg, err := loadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return NewValidationErrorWithExample("key", args.ConfigKey, err.Error(), "localtalk config keys")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := saveFile(cfg, path); err != nil {
		return NewCommandError("config", "set", "could not write config file", err)
	}

	shown := args.ConfigVal
	if isSecretKey(args.ConfigKey) {
		shown = redacted
	}
	if args.JSON {
		return NewJSONResponse("config set", ConfigData{Key: args.ConfigKey, Value: shown}).Write(out)
	}
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), args.ConfigKey, shown)
	return nil
}

func configPath(args Args, out io.Writer) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config path", map[string]string{"path": path}).Write(out)
	}
	fmt.Fprintln(out, path)
	return nil
}

func configKeys(args Args, out io.Writer) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Write(out)
	}
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}
