// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the flai TUI.
//
// Colors are lipgloss AdaptiveColors, so they follow the terminal
// background; the theme can also be forced with ui.theme in the config.
//
// # Usage
//
//	theme := styles.NewTheme(cfg.UI.Theme)
//	label := theme.AssistantLabel.Render("Assistant")
package styles
