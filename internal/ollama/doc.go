// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the Ollama API and an
// engine.Engine adapter on top of it.
//
// # Key Types
//
//   - Client: HTTP client for health, model, pull and chat endpoints
//   - StreamReader: NDJSON reader for chat and pull streams
//   - Engine: engine.Engine adapter with model status and pull progress
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL:      "http://127.0.0.1:11434",
//	    DefaultModel: "gemma3:4b",
//	})
//	eng := ollama.NewEngine(client, "", ollama.WithLogger(logger))
//	defer eng.Close()
//
// Sessions created with SessionConfig.Acquire start a background pull when
// the model is missing; later sessions report "downloading" with progress
// until the pull ends.
package ollama
