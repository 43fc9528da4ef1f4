// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual UI components for the flai TUI.
//
// Components are plain values rendered against a *styles.Theme. None of them
// hold conversation state; the chat model builds them from a session
// snapshot on every frame.
//
// # Components
//
//   - Renderer: markdown (glamour) or plain text with highlighted code blocks
//   - MessageView: one message of the active path with its branch indicator,
//     reasoning block, sources and usage footer
//   - Header: conversation title, model and user
//   - StatusBar: streaming/offline state and key hints
//   - ErrorToast: auto-dismissing error notification
package components
