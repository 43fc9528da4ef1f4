// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

// init picks the color profile for line-oriented output. Colors are disabled
// for pipes and when NO_COLOR is set.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.Cyan).
			MarginBottom(1)

	// LabelStyle is used for field labels in key/value listings.
	LabelStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Width(16)

	ValueStyle = lipgloss.NewStyle().
			Foreground(styles.TextPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// DimStyle is used for secondary details such as ids and timestamps.
	DimStyle = lipgloss.NewStyle().
			Foreground(styles.TextMuted)

	// UserPromptStyle and AssistantPromptStyle color the REPL speaker labels.
	UserPromptStyle = lipgloss.NewStyle().
			Foreground(styles.UserBorder).
			Bold(true)

	AssistantPromptStyle = lipgloss.NewStyle().
				Foreground(styles.AssistantBorder).
				Bold(true)
)

// keyValue renders one aligned "label value" line.
func keyValue(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value)
}
