// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

// Status is the application state shown at the left of the status bar.
type Status int

const (
	StatusReady Status = iota
	StatusLoading
	StatusStreaming
	StatusOffline
)

// String returns the display string for the status.
func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "Loading..."
	case StatusStreaming:
		return "Streaming..."
	case StatusOffline:
		return "Offline (cached)"
	default:
		return "Ready"
	}
}

// Hint is one key shortcut shown in the status bar.
type Hint struct {
	Key  string
	Desc string
}

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar is the bottom bar.
type StatusBar struct {
	Status Status
	Hints  []Hint
	Width  int
}

// View renders the status bar. Hints that do not fit are dropped from the
// end.
func (s StatusBar) View(theme *styles.Theme) string {
	var status string
	switch s.Status {
	case StatusOffline:
		status = theme.StatusStale.Render(styles.StatusIndicators.Warning + " " + s.Status.String())
	case StatusStreaming, StatusLoading:
		status = theme.Spinner.Render(styles.StatusIndicators.Active + " " + s.Status.String())
	default:
		status = theme.StatusOK.Render(styles.StatusIndicators.Success + " " + s.Status.String())
	}

	inner := s.Width - 2
	used := lipgloss.Width(status)
	var hints []string
	for _, h := range s.Hints {
		text := theme.ShortcutKey.Render(h.Key) + " " + theme.ShortcutDesc.Render(h.Desc)
		w := lipgloss.Width(text) + 2
		if used+w > inner {
			break
		}
		hints = append(hints, text)
		used += w
	}

	line := status
	if len(hints) > 0 {
		gap := inner - used
		if gap < 2 {
			gap = 2
		}
		line += strings.Repeat(" ", gap) + strings.Join(hints, "  ")
	}
	return theme.StatusBar.Width(s.Width).Render(line)
}
