// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
	"github.com/jeranaias/flai-tui/internal/util"
)

// Reasoning block labels.
const (
	ReasoningActiveLabel = "Thinking..."
	ReasoningDoneLabel   = "Thought"
)

// =============================================================================
// MESSAGE VIEW
// =============================================================================

// MessageView renders one message of the active path.
type MessageView struct {
	Message model.Message
	Branch  tree.BranchInfo

	// Expanded shows the reasoning text instead of just its label.
	Expanded bool
	// Streaming marks the message currently receiving events.
	Streaming bool
	// Selected marks the message targeted by retry/edit/branch keys.
	Selected bool

	ShowUsage   bool
	ShowSources bool

	// Spinner is shown in place of an empty streaming message.
	Spinner string
}

// Render renders the message with theme, using r for the message body.
func (v MessageView) Render(theme *styles.Theme, r *Renderer) string {
	var parts []string
	parts = append(parts, v.header(theme))

	if v.Message.Role == model.RoleAssistant {
		if block := v.reasoning(theme, r); block != "" {
			parts = append(parts, block)
		}
	}

	body := v.body(theme, r)
	if body != "" {
		parts = append(parts, body)
	}

	if v.Message.Role == model.RoleAssistant && v.Message.MetaInfo != nil {
		if v.ShowSources {
			if src := v.sources(theme); src != "" {
				parts = append(parts, src)
			}
		}
		if v.ShowUsage && v.Message.MetaInfo.HasUsage() {
			parts = append(parts, theme.Usage.Render(Usage(*v.Message.MetaInfo)))
		}
	}
	return strings.Join(parts, "\n")
}

func (v MessageView) header(theme *styles.Theme) string {
	var label string
	if v.Message.Role == model.RoleUser {
		label = theme.UserLabel.Render(v.Message.Role.DisplayName())
	} else {
		label = theme.AssistantLabel.Render(v.Message.Role.DisplayName())
	}
	if v.Selected {
		label = theme.Selected.Render(">") + " " + label
	}
	if v.Branch.HasBranches() {
		label += " " + theme.Branch.Render(BranchIndicator(v.Branch))
	}
	return label
}

// reasoning renders the reasoning label, plus the reasoning text when
// expanded.
func (v MessageView) reasoning(theme *styles.Theme, r *Renderer) string {
	text := v.Message.Reasoning()
	active := v.reasoningActive()
	if text == "" && !active {
		return ""
	}

	label := ReasoningDoneLabel
	if active {
		label = ReasoningActiveLabel
	}
	if !v.Expanded {
		return theme.ReasoningLabel.Render(label + " (collapsed)")
	}
	if text == "" {
		return theme.ReasoningLabel.Render(label)
	}
	return theme.ReasoningLabel.Render(label) + "\n" +
		theme.ReasoningBody.Render(r.Render(text))
}

// reasoningActive reports whether reasoning is still being received: the
// message is streaming and its latest segment is reasoning.
func (v MessageView) reasoningActive() bool {
	if !v.Streaming {
		return false
	}
	seg, ok := v.Message.LastSegment()
	return ok && seg.Type == model.SegmentReasoning
}

func (v MessageView) body(theme *styles.Theme, r *Renderer) string {
	text := v.Message.Text()
	if v.Message.Role == model.RoleUser {
		// Users send plain text; markdown would reflow it.
		return theme.UserBody.Render(renderPlain(text, r.Width()))
	}
	if text == "" {
		if v.Streaming && !v.reasoningActive() {
			return theme.AssistantBody.Render(theme.Spinner.Render(v.Spinner))
		}
		return ""
	}
	return theme.AssistantBody.Render(r.Render(text))
}

func (v MessageView) sources(theme *styles.Theme) string {
	lines := citation.Footnotes(v.Message.MetaInfo.GoogleGroundingData)
	if len(lines) == 0 {
		return ""
	}
	out := []string{theme.SourceTitle.Render("Sources")}
	for _, line := range lines {
		out = append(out, theme.SourceIndex.Render(line))
	}
	return strings.Join(out, "\n")
}

// BranchIndicator renders a sibling position as "< 2/3 >".
func BranchIndicator(b tree.BranchInfo) string {
	return fmt.Sprintf("< %d/%d >", b.Index+1, b.Count)
}

// Usage renders the usage footer of an assistant message.
func Usage(m model.MetaInfo) string {
	return fmt.Sprintf("%s (%s tokens)", m.FormatUsage(), util.FormatCount(m.TotalTokens()))
}
