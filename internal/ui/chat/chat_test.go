// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/state"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	messages []model.Message
	stream   string
	deletes  int
}

func (f *fakeBackend) GetConversation(ctx context.Context, id string) ([]model.Message, error) {
	return f.messages, nil
}

func (f *fakeBackend) StreamMessage(ctx context.Context, req api.SendRequest) (*api.EventReader, error) {
	return api.NewEventReader(strings.NewReader(f.stream)), nil
}

func (f *fakeBackend) DeleteMessages(ctx context.Context, req api.DeleteMessagesRequest) error {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) GenerateTitle(ctx context.Context, id string) (*model.GeneratedTitle, error) {
	return &model.GeneratedTitle{Title: "Greetings"}, nil
}

func sse(id string, typ model.SegmentType, text string) string {
	raw, _ := json.Marshal(map[string]any{
		"message_id": id,
		"type":       typ,
		"data":       map[string]string{"content": text},
	})
	return fmt.Sprintf("data: %s\n\ndata: [DONE]\n\n", raw)
}

func text(id, parent string, role model.Role, body string, minute int) model.Message {
	return model.Message{
		ID:        id,
		ParentID:  parent,
		Role:      role,
		Content:   []model.Segment{model.NewSegment(model.SegmentMessage, body)},
		CreatedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func greeting() []model.Message {
	return []model.Message{
		text("u1", "", model.RoleUser, "Hi", 0),
		text("a1", "u1", model.RoleAssistant, "Hello", 1),
	}
}

func newState(withModel bool) *state.State {
	st := state.New("")
	st.SetConversations([]model.Conversation{{ID: "c1", Title: "Greetings chat"}})
	if withModel {
		st.SetProviders([]model.Provider{{ID: "google", Name: "Google", Models: []model.ModelInfo{
			{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash"},
		}}})
		st.SelectDefaultModel()
	}
	return st
}

// newModel returns a loaded, sized model.
func newModel(t *testing.T, b *fakeBackend, st *state.State) Model {
	t.Helper()
	n := 0
	session := conversation.New("c1", b, conversation.Options{
		Models: st,
		Now:    func() time.Time { return t0.Add(time.Hour) },
		NewID: func() string {
			n++
			return fmt.Sprintf("u-new-%d", n)
		},
	})
	m := New(Config{
		Session:     session,
		State:       st,
		Theme:       styles.NewTheme("dark"),
		ShowUsage:   true,
		ShowSources: true,
		Now:         func() time.Time { return t0 },
	})
	m = drain(t, m, m.run("load", m.session.Load))
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// drain runs the session operations in cmd and feeds their results back.
// Only immediate commands may be passed; toast timers are never drained.
func drain(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = drain(t, m, c)
		}
	case opDoneMsg:
		m, _ = update(m, msg)
	}
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	return update(m, tea.KeyMsg{Type: k})
}

func TestModel_LoadRendersPath(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))

	view := m.View()
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "Greetings chat")
	assert.Contains(t, view, "Gemini 2.5 Flash")
	assert.Contains(t, view, "Ready")
	assert.Equal(t, 2, m.snapshot.Path.Len())
}

func TestModel_SendStreamsReply(t *testing.T) {
	b := &fakeBackend{messages: greeting(), stream: sse("a2", model.SegmentMessage, "Hi there")}
	st := newState(true)
	m := newModel(t, b, st)

	m.input.SetValue("How are you?")
	st.SetDraft("c1", "How are you?")
	m, cmd := press(m, tea.KeyEnter)
	assert.Empty(t, m.Input())
	assert.Empty(t, st.Draft("c1"))
	m = drain(t, m, cmd)

	require.Equal(t, 4, m.snapshot.Path.Len())
	assert.Equal(t, "a2", m.snapshot.Path.At(3).ID)
	assert.Contains(t, m.View(), "Hi there")
	assert.False(t, m.busy())
}

func TestModel_SendRejectedRestoresInput(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(false))

	m.input.SetValue("no model yet")
	m, cmd := press(m, tea.KeyEnter)
	m = drain(t, m, cmd)

	assert.Equal(t, "no model yet", m.Input())
	toast, ok := m.Toast()
	require.True(t, ok)
	assert.Equal(t, conversation.ErrNoModel.Error(), toast.Message)
	assert.Contains(t, m.View(), "no model selected")
}

func TestModel_BlankInputIgnored(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))
	m.input.SetValue("   ")
	_, cmd := press(m, tea.KeyEnter)
	assert.Nil(t, cmd)
}

func twoTurns() []model.Message {
	return append(greeting(),
		text("u2", "a1", model.RoleUser, "Wrong question", 2),
		text("a2", "u2", model.RoleAssistant, "Answer", 3),
	)
}

func TestModel_SelectAndEdit(t *testing.T) {
	b := &fakeBackend{messages: twoTurns(), stream: sse("a3", model.SegmentMessage, "Better answer")}
	m := newModel(t, b, newState(true))

	m, _ = press(m, tea.KeyCtrlP)
	assert.Equal(t, 3, m.Selected())
	m, _ = press(m, tea.KeyCtrlP)
	assert.Equal(t, 2, m.Selected())

	m, _ = press(m, tea.KeyCtrlE)
	assert.Equal(t, "u2", m.Editing())
	assert.Equal(t, "Wrong question", m.Input())
	assert.Contains(t, m.View(), "editing")

	m.input.SetValue("Right question")
	m, cmd := press(m, tea.KeyEnter)
	m = drain(t, m, cmd)

	assert.Empty(t, m.Editing())
	path := m.snapshot.Path
	require.Equal(t, 4, path.Len())
	assert.Equal(t, "Right question", path.At(2).Prompt())
	assert.Equal(t, "a3", path.At(3).ID)
	assert.Equal(t, 2, m.snapshot.Branches[2].Count)
	assert.Contains(t, m.View(), "< 2/2 >")
}

func TestModel_SelectionBounds(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))

	m, _ = press(m, tea.KeyCtrlN)
	assert.Equal(t, -1, m.Selected(), "next without a selection does nothing")
	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlP)
	assert.Equal(t, 0, m.Selected(), "selection stops at the root")
	m, _ = press(m, tea.KeyCtrlN)
	m, _ = press(m, tea.KeyCtrlN)
	assert.Equal(t, -1, m.Selected(), "moving past the tail clears the selection")
}

func TestModel_EditRootRefused(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))
	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlE)

	assert.Empty(t, m.Editing())
	toast, ok := m.Toast()
	require.True(t, ok)
	assert.Equal(t, conversation.ErrEditRoot.Error(), toast.Message)
}

func TestModel_EditAssistantRefused(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))
	m, _ = press(m, tea.KeyCtrlE)

	assert.Empty(t, m.Editing())
	toast, ok := m.Toast()
	require.True(t, ok)
	assert.Equal(t, errNotEditable.Error(), toast.Message)
}

func TestModel_EscDiscardsEdit(t *testing.T) {
	st := newState(true)
	st.SetDraft("c1", "my draft")
	m := newModel(t, &fakeBackend{messages: twoTurns()}, st)
	assert.Equal(t, "my draft", m.Input())

	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlP)
	m, _ = press(m, tea.KeyCtrlE)
	require.Equal(t, "u2", m.Editing())

	m, _ = press(m, tea.KeyEsc)
	assert.Empty(t, m.Editing())
	assert.Equal(t, "my draft", m.Input())
	assert.Equal(t, "my draft", st.Draft("c1"), "editing never overwrites the draft")
}

func TestModel_RetryAddsBranch(t *testing.T) {
	b := &fakeBackend{messages: greeting(), stream: sse("a2", model.SegmentMessage, "Hello again")}
	m := newModel(t, b, newState(true))

	m, cmd := press(m, tea.KeyCtrlR)
	m = drain(t, m, cmd)

	path := m.snapshot.Path
	require.Equal(t, 2, path.Len())
	assert.Equal(t, "a2", path.At(1).ID)
	assert.Equal(t, 2, m.snapshot.Branches[1].Count)
}

func TestModel_SwitchBranch(t *testing.T) {
	msgs := append(greeting(), text("a1b", "u1", model.RoleAssistant, "Howdy", 2))
	m := newModel(t, &fakeBackend{messages: msgs}, newState(true))
	require.Equal(t, "a1b", m.snapshot.Path.At(1).ID)

	m, _ = press(m, tea.KeyCtrlLeft)
	assert.Equal(t, "a1", m.snapshot.Path.At(1).ID)
	assert.Contains(t, m.View(), "< 1/2 >")

	m, _ = press(m, tea.KeyCtrlLeft)
	assert.Equal(t, "a1", m.snapshot.Path.At(1).ID, "no wrap at the first sibling")

	m, _ = press(m, tea.KeyCtrlRight)
	assert.Equal(t, "a1b", m.snapshot.Path.At(1).ID)
}

func TestModel_ToggleReasoning(t *testing.T) {
	msgs := greeting()
	msgs[1].Content = []model.Segment{
		model.NewSegment(model.SegmentReasoning, "deliberating"),
		model.NewSegment(model.SegmentMessage, "Hello"),
	}
	m := newModel(t, &fakeBackend{messages: msgs}, newState(true))
	assert.NotContains(t, m.View(), "deliberating")

	m, _ = press(m, tea.KeyCtrlT)
	assert.True(t, m.snapshot.Expanded.Has("a1"))
	assert.Contains(t, m.View(), "deliberating")
}

func TestModel_DeleteLast(t *testing.T) {
	b := &fakeBackend{messages: greeting()}
	m := newModel(t, b, newState(true))

	m, cmd := press(m, tea.KeyCtrlX)
	m = drain(t, m, cmd)

	assert.Equal(t, 1, b.deletes)
	assert.Equal(t, []string{"u1"}, m.snapshot.Path.IDs())
}

func TestModel_QuitSavesDraft(t *testing.T) {
	st := newState(true)
	m := newModel(t, &fakeBackend{messages: greeting()}, st)
	m.input.SetValue("half a thought")

	_, cmd := press(m, tea.KeyCtrlC)
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
	assert.Equal(t, "half a thought", st.Draft("c1"))
}

func TestModel_ToastExpires(t *testing.T) {
	m := newModel(t, &fakeBackend{messages: greeting()}, newState(true))
	m, _ = press(m, tea.KeyCtrlE)
	_, ok := m.Toast()
	require.True(t, ok)

	m, _ = update(m, toastExpiredMsg{at: t0.Add(time.Second)})
	_, ok = m.Toast()
	assert.True(t, ok, "too early")

	m, _ = update(m, toastExpiredMsg{at: t0.Add(time.Minute)})
	_, ok = m.Toast()
	assert.False(t, ok)
}

func TestBridge_DeliversCoalescedSignals(t *testing.T) {
	b := NewBridge()
	got := make(chan tea.Msg, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, func(msg tea.Msg) { got <- msg })

	b.Notify()
	b.Notify()
	b.Notify()

	select {
	case msg := <-got:
		assert.IsType(t, SnapshotMsg{}, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	time.Sleep(3 * frameInterval)
	assert.LessOrEqual(t, len(got), 1, "notifications are coalesced")
}

func TestModel_DisplayMsgTogglesUsage(t *testing.T) {
	msgs := greeting()
	msgs[1].MetaInfo = &model.MetaInfo{ModelName: "gemini-2.5-flash", PromptTokenCount: 12, ResponseTokenCount: 30}
	m := newModel(t, &fakeBackend{messages: msgs}, newState(true))
	assert.Contains(t, m.View(), "42 tokens")

	m, _ = update(m, DisplayMsg{ShowUsage: false, ShowSources: true})
	assert.NotContains(t, m.View(), "42 tokens")
}
