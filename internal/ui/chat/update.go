// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
	"github.com/jeranaias/flai-tui/internal/ui/components"
)

var errNotEditable = errors.New("only your own messages can be edited")

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.theme.SetSize(msg.Width, msg.Height)
		m.renderer.SetWidth(msg.Width - 4)
		m.layout()
		m.renderContent()
		return m, nil

	case SnapshotMsg:
		m.refresh()
		return m, nil

	case DisplayMsg:
		m.showUsage, m.showSources = msg.ShowUsage, msg.ShowSources
		m.renderContent()
		return m, nil

	case opDoneMsg:
		return m.handleOpDone(msg)

	case toastExpiredMsg:
		if m.toast != nil && m.toast.Expired(msg.at) {
			m.toast = nil
			m.layout()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snapshot.Streaming {
			m.renderContent()
		}
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) busy() bool {
	return m.pending > 0 || m.snapshot.Streaming
}

// refresh adopts the session's latest snapshot.
func (m *Model) refresh() {
	m.snapshot = m.session.Snapshot()
	if m.selected >= m.snapshot.Path.Len() {
		m.selected = -1
	}
	m.renderContent()
}

func (m Model) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if m.pending > 0 {
		m.pending--
	}
	m.refresh()
	if msg.err == nil {
		if msg.op == "edit" {
			m.editing = ""
		}
		return m, nil
	}

	m.logger.Debug("operation failed", "op", msg.op, "error", msg.err)
	if errors.Is(msg.err, context.Canceled) {
		return m, nil
	}
	// Rejected before anything was stored: give the text back.
	if msg.op == "send" && m.input.Value() == "" && rejected(msg.err) {
		m.input.SetValue(m.submitted)
	}
	cmd := m.showError(msg.err)
	return m, cmd
}

func rejected(err error) bool {
	return errors.Is(err, conversation.ErrBusy) ||
		errors.Is(err, conversation.ErrNoModel) ||
		errors.Is(err, conversation.ErrEmptyPrompt)
}

// showError puts err in a toast and schedules its dismissal.
func (m *Model) showError(err error) tea.Cmd {
	toast := components.NewErrorToast(err, m.now())
	m.toast = &toast
	m.layout()
	return tea.Tick(toast.Duration, func(t time.Time) tea.Msg {
		return toastExpiredMsg{at: t}
	})
}

// start launches a session operation and the busy spinner.
func (m *Model) start(op string, fn func(ctx context.Context) error) tea.Cmd {
	m.pending++
	return tea.Batch(m.run(op, fn), m.spinner.Tick)
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.saveDraft()
		m.session.Cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.snapshot.Streaming:
			m.session.Cancel()
		case m.editing != "":
			m.editing = ""
			m.input.Reset()
			if m.state != nil {
				m.input.SetValue(m.state.Draft(m.session.ID()))
			}
			m.layout()
		default:
			m.selected = -1
			m.renderContent()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.SelectPrev):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.SelectNext):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		target, _, ok := m.target()
		if !ok || target.ID == "" {
			return m, nil
		}
		m.selected = -1
		id := target.ID
		cmd := m.start("retry", func(ctx context.Context) error {
			return m.session.Retry(ctx, id)
		})
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		target, _, ok := m.target()
		if !ok {
			return m, nil
		}
		if target.Role != model.RoleUser {
			cmd := m.showError(errNotEditable)
			return m, cmd
		}
		if target.IsRoot() {
			cmd := m.showError(conversation.ErrEditRoot)
			return m, cmd
		}
		m.saveDraft()
		m.editing = target.ID
		m.input.SetValue(target.Prompt())
		m.input.CursorEnd()
		m.layout()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		m.selected = -1
		cmd := m.start("delete", m.session.Delete)
		return m, cmd

	case key.Matches(msg, m.keys.BranchPrev):
		return m.switchBranch(tree.Prev)

	case key.Matches(msg, m.keys.BranchNext):
		return m.switchBranch(tree.Next)

	case key.Matches(msg, m.keys.ToggleReason):
		if id, ok := m.reasoningTarget(); ok {
			m.session.ToggleReasoning(id)
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.saveDraft()
	return m, cmd
}

// submit sends the input, or saves the edit in progress.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if m.session.Busy() {
		cmd := m.showError(conversation.ErrBusy)
		return m, cmd
	}

	m.input.Reset()
	m.selected = -1
	m.layout()

	if id := m.editing; id != "" {
		cmd := m.start("edit", func(ctx context.Context) error {
			return m.session.Edit(ctx, id, text)
		})
		return m, cmd
	}

	m.submitted = text
	if m.state != nil {
		m.state.SetDraft(m.session.ID(), "")
	}
	cmd := m.start("send", func(ctx context.Context) error {
		return m.session.Send(ctx, text)
	})
	return m, cmd
}

func (m *Model) moveSelection(delta int) {
	n := m.snapshot.Path.Len()
	if n == 0 {
		return
	}
	switch {
	case m.selected < 0 && delta < 0:
		m.selected = n - 1
	case m.selected < 0:
		return
	default:
		m.selected += delta
	}
	if m.selected < 0 {
		m.selected = 0
	}
	if m.selected >= n {
		m.selected = -1
	}
	m.renderContent()
}

func (m Model) switchBranch(dir tree.Direction) (tea.Model, tea.Cmd) {
	target, idx, ok := m.target()
	if !ok || target.ID == "" {
		return m, nil
	}
	changed, err := m.session.SwitchSibling(target.ID, dir)
	if err != nil {
		cmd := m.showError(err)
		return m, cmd
	}
	if changed {
		m.refresh()
		// Keep the selection on the branch point.
		if m.selected >= 0 {
			m.selected = idx
		}
	}
	return m, nil
}

// reasoningTarget returns the assistant message whose reasoning the toggle
// acts on: the target itself, or the nearest assistant message above it.
func (m Model) reasoningTarget() (string, bool) {
	_, idx, ok := m.target()
	if !ok {
		return "", false
	}
	for i := idx; i >= 0; i-- {
		msg := m.snapshot.Path.At(i)
		if msg.Role == model.RoleAssistant && msg.ID != "" {
			return msg.ID, true
		}
	}
	return "", false
}
