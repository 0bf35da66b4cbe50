// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the few helpers that more than one localtalk package
// needs: crash-safe config writes and display-width string handling for
// Japanese text (built on go-runewidth).
//
//	preview := util.TruncateWidth(util.SingleLine(text), 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
