// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/state"
	"github.com/jeranaias/flai-tui/internal/ui/components"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

// Config holds the dependencies of a chat Model.
type Config struct {
	Session *conversation.Session
	State   *state.State
	Theme   *styles.Theme
	Logger  *slog.Logger

	Markdown    bool
	ShowUsage   bool
	ShowSources bool

	Now func() time.Time
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	session  *conversation.Session
	state    *state.State
	theme    *styles.Theme
	renderer *components.Renderer
	keys     KeyMap
	logger   *slog.Logger
	now      func() time.Time

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	snapshot conversation.Snapshot

	// selected is an index into the active path; -1 targets the last message.
	selected int
	// editing is the id of the user message being edited, if any.
	editing string
	// submitted is the text of the last send, restored if it is rejected.
	submitted string
	// pending counts session operations in flight.
	pending int
	toast   *components.ErrorToast

	showUsage   bool
	showSources bool

	width  int
	height int
	ready  bool
}

// New creates a chat model. The input starts with the conversation's saved
// draft.
func New(cfg Config) Model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	theme := cfg.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	keys := DefaultKeyMap()

	input := textarea.New()
	input.Placeholder = "Send a message..."
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline = keys.Newline
	input.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m := Model{
		session:     cfg.Session,
		state:       cfg.State,
		theme:       theme,
		renderer:    components.NewRenderer(76, cfg.Markdown, theme.IsDark),
		keys:        keys,
		logger:      logger,
		now:         now,
		viewport:    viewport.New(80, 20),
		input:       input,
		spinner:     sp,
		selected:    -1,
		pending:     1, // the load started by Init
		showUsage:   cfg.ShowUsage,
		showSources: cfg.ShowSources,
	}
	if m.state != nil {
		m.input.SetValue(m.state.Draft(m.session.ID()))
	}
	m.snapshot = m.session.Snapshot()
	return m
}

// Init loads the conversation.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.run("load", m.session.Load),
	)
}

// run executes a session operation off the update loop.
func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(context.Background())}
	}
}

// Selected returns the index of the selected message, -1 for none.
func (m Model) Selected() int {
	return m.selected
}

// Editing returns the id of the user message being edited.
func (m Model) Editing() string {
	return m.editing
}

// Input returns the current input text.
func (m Model) Input() string {
	return m.input.Value()
}

// Toast returns the error toast on screen, if any.
func (m Model) Toast() (components.ErrorToast, bool) {
	if m.toast == nil {
		return components.ErrorToast{}, false
	}
	return *m.toast, true
}

// target returns the message retry, edit, branch and reasoning keys act on.
func (m Model) target() (model.Message, int, bool) {
	path := m.snapshot.Path
	if path.IsEmpty() {
		return model.Message{}, -1, false
	}
	idx := m.selected
	if idx < 0 || idx >= path.Len() {
		idx = path.Len() - 1
	}
	return path.At(idx), idx, true
}

// saveDraft stores the unsent input of the conversation.
func (m Model) saveDraft() {
	if m.state == nil || m.editing != "" {
		return
	}
	m.state.SetDraft(m.session.ID(), m.input.Value())
}
