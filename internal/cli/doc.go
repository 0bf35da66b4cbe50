// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// localtalk.
//
// Every command builds the same component graph through NewApp: config,
// logger, engine adapter, gateway, availability monitor, orchestrator and
// input arbiter. The commands differ only in the presentation they bind to
// it.
//
// # Commands
//
//   - (default), tui: full-screen chat (bubbletea)
//   - chat: line-oriented REPL (liner, glamour)
//   - status: engine and model availability
//   - pull: start the model download and follow its progress
//   - serve: local HTTP/SSE API
//   - config: init, show, get, set, path, keys
//   - version, help
//
// status, config and version accept --json and print a JSONResponse
// envelope on stdout.
//
// # Usage
//
//	cmd, args := cli.Parse()
//	if err := cli.Run(cmd, args); err != nil {
//	    cli.HandleErrorAndExit(err, args.JSON)
//	}
package cli
