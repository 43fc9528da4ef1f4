// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/flai-tui/internal/ui/styles"
	"github.com/jeranaias/flai-tui/internal/util"
)

// =============================================================================
// HEADER
// =============================================================================

// Header is the top bar: conversation title on the left, model and user on
// the right.
type Header struct {
	Title string
	Icon  string
	Model string
	User  string
	Width int
}

// View renders the header. On narrow terminals the user is dropped first,
// then the model.
func (h Header) View(theme *styles.Theme) string {
	title := h.Title
	if h.Icon != "" {
		title = h.Icon + " " + title
	}

	var right []string
	if h.Model != "" {
		right = append(right, theme.HeaderModel.Render(h.Model))
	}
	if h.User != "" && h.Width >= 60 {
		right = append(right, theme.Muted.Render(h.User))
	}
	if h.Width < 40 {
		right = nil
	}
	rightText := strings.Join(right, "  ")

	// Header padding takes two columns.
	inner := h.Width - 2
	if inner < 1 {
		inner = 1
	}
	room := inner - lipgloss.Width(rightText) - 1
	if room < 1 {
		room = inner
		rightText = ""
	}
	left := theme.HeaderTitle.Render(util.TruncateWidth(title, room))

	gap := inner - lipgloss.Width(left) - lipgloss.Width(rightText)
	if gap < 1 {
		gap = 1
	}
	return theme.Header.Width(h.Width).Render(left + strings.Repeat(" ", gap) + rightText)
}
