// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderModel lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBody       lipgloss.Style
	AssistantBody  lipgloss.Style
	ReasoningLabel lipgloss.Style
	ReasoningBody  lipgloss.Style
	Branch         lipgloss.Style
	Usage          lipgloss.Style
	SourceIndex    lipgloss.Style
	SourceTitle    lipgloss.Style
	Link           lipgloss.Style
	Selected       lipgloss.Style

	// Input and status
	Input        lipgloss.Style
	StatusBar    lipgloss.Style
	StatusOK     lipgloss.Style
	StatusStale  lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Spinner      lipgloss.Style

	// Errors
	ErrorBox     lipgloss.Style
	ErrorTitle   lipgloss.Style
	ErrorMessage lipgloss.Style

	// Plain text
	Muted lipgloss.Style
	Bold  lipgloss.Style
}

// NewTheme creates a theme for the given mode: "dark", "light" or "auto"
// (detect from the terminal).
func NewTheme(mode string) *Theme {
	profile := termenv.ColorProfile()

	var isDark bool
	switch strings.ToLower(mode) {
	case "light":
		isDark = false
	case "dark":
		isDark = true
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.HeaderModel = lipgloss.NewStyle().
		Foreground(Purple)

	t.UserLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple)
	t.UserBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBorder).
		PaddingLeft(1)
	t.AssistantBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBorder).
		PaddingLeft(1)
	t.ReasoningLabel = lipgloss.NewStyle().
		Italic(true).
		Foreground(TextSecondary)
	t.ReasoningBody = lipgloss.NewStyle().
		Italic(true).
		Foreground(TextMuted).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(ReasoningBorder).
		PaddingLeft(1)
	t.Branch = lipgloss.NewStyle().
		Foreground(Amber)
	t.Usage = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.SourceIndex = lipgloss.NewStyle().
		Foreground(LinkColor).
		Bold(true)
	t.SourceTitle = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.Link = lipgloss.NewStyle().
		Foreground(LinkColor).
		Underline(true)
	t.Selected = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Purple)

	t.Input = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.StatusOK = lipgloss.NewStyle().
		Foreground(Emerald)
	t.StatusStale = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)
	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ErrorBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Rose).
		Padding(0, 1)
	t.ErrorTitle = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)
	t.ErrorMessage = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)
	t.Bold = lipgloss.NewStyle().Bold(true)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
