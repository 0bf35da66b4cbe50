// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package oaicompat adapts any OpenAI-compatible local server (llama.cpp,
// LM Studio, vLLM, Ollama's /v1 endpoint) to engine.Engine using
// langchaingo.
//
// These servers expose no availability field, so sessions do not implement
// engine.StatusReporter and the gateway falls back to a probe prompt.
// Connection failures are reported as "endpoint unavailable" and a missing
// model as "model not available".
package oaicompat
