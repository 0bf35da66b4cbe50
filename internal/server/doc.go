// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a local HTTP API over one conversation.
//
// The API is a presentation binding: it renders orchestrator state as JSON
// and forwards actions. It never owns conversation logic.
//
// # Endpoints
//
//   - GET  /health                    - Health check and model status
//   - GET  /api/state                 - Full conversation state
//   - GET  /api/events                - Server-sent "state" events
//   - POST /api/messages              - Submit a message (202/400/409/503)
//   - PUT  /api/input                 - Set the text-entry value
//   - POST /api/send                  - Submit the text-entry value
//   - POST /api/messages/{id}/toggle  - Expand or collapse a message
//   - POST /api/reset                 - Clear the conversation
//   - POST /api/model/check           - Re-run the availability check
//   - POST /api/model/download        - Start the model download
//   - POST /api/voice                 - Toggle voice input
//
// # Middleware
//
//   - Panic recovery
//   - Security headers (X-Content-Type-Options, X-Frame-Options, etc.)
//   - Request logging (zap)
//   - Per-IP token bucket rate limiting (golang.org/x/time/rate)
//
// The listen address must be loopback; config validation enforces it.
//
// # Usage
//
//	srv := server.New(orch, server.WithVoice(arbiter), server.WithLogger(logger))
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
