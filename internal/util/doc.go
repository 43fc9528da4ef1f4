// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across flai packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadRight, StringWidth: terminal-column aware layout
//   - SingleLine: collapse multi-line text for list rows
//   - FormatCount: compact token counts
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	title := util.PadRight(conv.DisplayTitle(), 40)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
