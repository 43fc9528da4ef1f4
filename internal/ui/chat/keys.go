// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/jeranaias/flai-tui/internal/ui/components"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Submit       key.Binding
	Newline      key.Binding
	Cancel       key.Binding
	Quit         key.Binding
	SelectPrev   key.Binding
	SelectNext   key.Binding
	Retry        key.Binding
	Edit         key.Binding
	Delete       key.Binding
	BranchPrev   key.Binding
	BranchNext   key.Binding
	ToggleReason key.Binding
	PageUp       key.Binding
	PageDown     key.Binding
}

// DefaultKeyMap returns the default key bindings. None of them produce text,
// so they work while the input has focus.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Newline: key.NewBinding(
			key.WithKeys("ctrl+j", "alt+enter"),
			key.WithHelp("C-j", "newline"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
		SelectPrev: key.NewBinding(
			key.WithKeys("ctrl+p", "alt+up"),
			key.WithHelp("C-p", "select prev"),
		),
		SelectNext: key.NewBinding(
			key.WithKeys("ctrl+n", "alt+down"),
			key.WithHelp("C-n", "select next"),
		),
		Retry: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "retry"),
		),
		Edit: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "delete last"),
		),
		BranchPrev: key.NewBinding(
			key.WithKeys("ctrl+left", "alt+left"),
			key.WithHelp("C-<", "prev branch"),
		),
		BranchNext: key.NewBinding(
			key.WithKeys("ctrl+right", "alt+right"),
			key.WithHelp("C->", "next branch"),
		),
		ToggleReason: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "reasoning"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "page down"),
		),
	}
}

// hints returns the status bar shortcuts for the current state.
func (k KeyMap) hints(streaming, editing bool) []components.Hint {
	toHint := func(bs ...key.Binding) []components.Hint {
		out := make([]components.Hint, 0, len(bs))
		for _, b := range bs {
			h := b.Help()
			out = append(out, components.Hint{Key: h.Key, Desc: h.Desc})
		}
		return out
	}
	switch {
	case streaming:
		return toHint(k.Cancel, k.ToggleReason, k.Quit)
	case editing:
		hs := toHint(k.Submit, k.Cancel)
		hs[0].Desc = "save edit"
		hs[1].Desc = "discard edit"
		return hs
	default:
		return toHint(k.Submit, k.Retry, k.Edit, k.BranchPrev, k.BranchNext, k.SelectPrev, k.ToggleReason, k.Delete, k.Quit)
	}
}
