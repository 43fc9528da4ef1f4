// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

func assistant(segs ...model.Segment) model.Message {
	return model.Message{ID: "a1", ParentID: "u1", Role: model.RoleAssistant, Content: segs}
}

func TestRenderer_PlainHighlightsCode(t *testing.T) {
	r := NewRenderer(40, false, true)
	out := r.Render("Use this:\n```go\nfmt.Println(\"hi\")\n```\ndone")
	assert.Contains(t, out, "Use this:")
	assert.Contains(t, out, "Println")
	assert.Contains(t, out, "done")
}

func TestRenderer_PlainUnclosedFence(t *testing.T) {
	out := renderPlain("intro\n```python\nprint(1)", 40)
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "print")
}

func TestRenderer_Markdown(t *testing.T) {
	r := NewRenderer(60, true, true)
	out := r.Render("# Title\n\nhello **world**")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "world")
	assert.NotContains(t, out, "**")
}

func TestRenderer_CacheResetOnWidth(t *testing.T) {
	r := NewRenderer(30, false, true)
	long := strings.Repeat("word ", 20)
	narrow := r.Render(long)
	r.SetWidth(80)
	wide := r.Render(long)
	assert.Greater(t, strings.Count(narrow, "\n"), strings.Count(wide, "\n"))
	assert.Equal(t, 80, r.Width())
}

func TestMessageView_ReasoningLabels(t *testing.T) {
	theme := styles.NewTheme("dark")
	r := NewRenderer(60, false, true)
	msg := assistant(model.NewSegment(model.SegmentReasoning, "pondering"))

	live := MessageView{Message: msg, Streaming: true}.Render(theme, r)
	assert.Contains(t, live, ReasoningActiveLabel)
	assert.NotContains(t, live, "pondering", "collapsed by default")

	expanded := MessageView{Message: msg, Streaming: true, Expanded: true}.Render(theme, r)
	assert.Contains(t, expanded, "pondering")

	msg.Content = append(msg.Content, model.NewSegment(model.SegmentMessage, "answer"))
	done := MessageView{Message: msg, Streaming: true}.Render(theme, r)
	assert.Contains(t, done, ReasoningDoneLabel)
	assert.NotContains(t, done, ReasoningActiveLabel)
	assert.Contains(t, done, "answer")
}

func TestMessageView_PlaceholderSpinner(t *testing.T) {
	theme := styles.NewTheme("dark")
	r := NewRenderer(60, false, true)
	msg := model.NewPlaceholder("u1", false, time.Time{})

	out := MessageView{Message: msg, Streaming: true, Spinner: "~~"}.Render(theme, r)
	assert.Contains(t, out, "~~")

	reasoning := model.NewPlaceholder("u1", true, time.Time{})
	out = MessageView{Message: reasoning, Streaming: true, Spinner: "~~"}.Render(theme, r)
	assert.Contains(t, out, ReasoningActiveLabel)
	assert.NotContains(t, out, "~~")
}

func TestMessageView_BranchSourcesUsage(t *testing.T) {
	theme := styles.NewTheme("dark")
	r := NewRenderer(80, false, true)
	msg := assistant(model.NewSegment(model.SegmentMessage, "Paris is the capital."))
	msg.MetaInfo = &model.MetaInfo{
		ProviderName:       "google",
		ModelName:          "gemini",
		PromptTokenCount:   1200,
		ResponseTokenCount: 300,
		GoogleGroundingData: &model.GroundingData{
			GroundingChunks: []model.GroundingChunk{
				{Web: &model.WebSource{URI: "https://example.com/paris", Title: "Paris"}},
			},
		},
	}

	out := MessageView{
		Message:     msg,
		Branch:      tree.BranchInfo{Index: 1, Count: 3},
		ShowUsage:   true,
		ShowSources: true,
	}.Render(theme, r)

	assert.Contains(t, out, "< 2/3 >")
	assert.Contains(t, out, "[1] Paris <https://example.com/paris>")
	assert.Contains(t, out, "1.5k tokens")

	hidden := MessageView{Message: msg}.Render(theme, r)
	assert.NotContains(t, hidden, "tokens")
	assert.NotContains(t, hidden, "Sources")
	assert.NotContains(t, hidden, "/3 >")
}

func TestHeader_FitsWidth(t *testing.T) {
	theme := styles.NewTheme("dark")
	for _, width := range []int{30, 60, 120} {
		h := Header{Title: strings.Repeat("long title ", 10), Model: "gemini-2.5-flash", User: "ada", Width: width}
		assert.LessOrEqual(t, lipgloss.Width(h.View(theme)), width)
	}
}

func TestStatusBar_DropsHints(t *testing.T) {
	theme := styles.NewTheme("dark")
	hints := []Hint{{"enter", "send"}, {"esc", "cancel"}, {"ctrl+r", "retry"}}

	wide := StatusBar{Status: StatusStreaming, Hints: hints, Width: 120}.View(theme)
	assert.Contains(t, wide, "Streaming...")
	assert.Contains(t, wide, "retry")

	narrow := StatusBar{Status: StatusOffline, Hints: hints, Width: 30}.View(theme)
	assert.Contains(t, narrow, "Offline")
	assert.NotContains(t, narrow, "retry")
}

func TestErrorToast(t *testing.T) {
	now := time.Now()
	tests := []struct {
		err   error
		title string
		msg   string
	}{
		{&api.Error{Code: api.CodeNetwork, Message: "dial tcp"}, "Connection problem", api.NetworkErrorMessage},
		{&api.Error{Code: 1001, Message: "quota exceeded"}, "Server error", "quota exceeded"},
		{conversation.ErrBusy, "Busy", conversation.ErrBusy.Error()},
		{errors.New("boom"), "Error", "boom"},
	}
	for _, tt := range tests {
		toast := NewErrorToast(tt.err, now)
		assert.Equal(t, tt.title, toast.Title)
		assert.Equal(t, tt.msg, toast.Message)
	}

	toast := NewErrorToast(errors.New("x"), now)
	assert.False(t, toast.Expired(now.Add(time.Second)))
	assert.True(t, toast.Expired(now.Add(ErrorToastDuration)))
	assert.Contains(t, toast.View(styles.NewTheme("dark"), 40), "x")
}
