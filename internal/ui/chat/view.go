// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/ui/components"
)

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the viewport to the space left by the fixed parts.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	m.input.SetWidth(m.width - 4)
	m.viewport.Width = m.width

	// Header, status bar and the input box with its border.
	fixed := 1 + 1 + m.input.Height() + 2
	if m.toast != nil {
		fixed += lipgloss.Height(m.toast.View(m.theme, m.width))
	}
	h := m.height - fixed
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
}

// renderContent rebuilds the message list. The view follows the tail while
// it is scrolled to the bottom or a reply is streaming.
func (m *Model) renderContent() {
	follow := m.viewport.AtBottom() || m.snapshot.Streaming
	m.viewport.SetContent(m.renderMessages())
	if follow && m.selected < 0 {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderMessages() string {
	path := m.snapshot.Path
	if path.IsEmpty() {
		return m.theme.Muted.Render("No messages yet. Type below to start.")
	}

	views := make([]string, 0, path.Len())
	last := path.Len() - 1
	for i, msg := range path.Messages() {
		v := components.MessageView{
			Message:     msg,
			Expanded:    m.snapshot.Expanded.Has(msg.ID),
			Streaming:   m.snapshot.Streaming && i == last,
			Selected:    i == m.selected || (msg.ID != "" && msg.ID == m.editing),
			ShowUsage:   m.showUsage,
			ShowSources: m.showSources,
			Spinner:     m.spinner.View(),
		}
		if i < len(m.snapshot.Branches) {
			v.Branch = m.snapshot.Branches[i]
		}
		views = append(views, v.Render(m.theme, m.renderer))
	}
	return strings.Join(views, "\n\n")
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	parts := []string{m.header(), m.viewport.View()}
	if m.toast != nil {
		parts = append(parts, m.toast.View(m.theme, m.width))
	}

	input := m.input.View()
	if m.editing != "" {
		input = m.theme.Branch.Render("editing (saves as a new branch)") + "\n" + input
	}
	parts = append(parts, m.theme.Input.Width(m.width-2).Render(input), m.statusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) header() string {
	h := components.Header{
		Title: model.DefaultConversationTitle,
		Width: m.width,
	}
	if m.state != nil {
		if conv, ok := m.state.FindConversation(m.session.ID()); ok {
			h.Title = conv.DisplayTitle()
		}
		if cur, ok := m.state.CurrentModel(); ok {
			h.Model = cur.Name
		}
		if u, ok := m.state.User(); ok {
			h.User = u.Username
		}
	}
	return h.View(m.theme)
}

func (m Model) statusBar() string {
	status := components.StatusReady
	switch {
	case m.snapshot.Streaming:
		status = components.StatusStreaming
	case m.pending > 0:
		status = components.StatusLoading
	case m.snapshot.Stale:
		status = components.StatusOffline
	}
	return components.StatusBar{
		Status: status,
		Hints:  m.keys.hints(m.snapshot.Streaming, m.editing != ""),
		Width:  m.width,
	}.View(m.theme)
}
