// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads, validates and saves localtalk settings.
//
// Settings live in ~/.localtalk/config.toml (config.json is read when no
// TOML file exists). Values resolve in this order, later wins:
//
//  1. Default()
//  2. the config file
//  3. LOCALTALK_* environment variables (ApplyEnvOverrides)
//  4. command-line flags, applied by the cli package
//
// Sections map to components: [engine] picks the backend adapter and model,
// [conversation] drives the orchestrator's prompt window and summarization
// cadence, [monitor] the download poll interval, [speech] the transcript
// recognizer, [server] the loopback HTTP API, [logging] the zap logger,
// [telemetry] the OpenTelemetry tracer provider and [ui] the chat screen.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    // cfg still holds defaults when only the file was bad
//	}
//	interval := cfg.PollInterval()
package config
