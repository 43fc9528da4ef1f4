// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
	"github.com/jeranaias/flai-tui/internal/ui/components"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

func (r *root) showCommand() *cobra.Command {
	var reasoning bool
	cmd := &cobra.Command{
		Use:   "show [conversation]",
		Short: "Print the active branch of a conversation",
		Long: `Print the messages on the active branch of a conversation, the current one
by default. Messages with siblings show their branch position, for example
< 2/3 >.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return r.runShow(cmd.Context(), ref, reasoning)
		},
	}
	cmd.Flags().BoolVarP(&reasoning, "reasoning", "r", false, "include reasoning text")
	return cmd
}

// loadSnapshot loads the conversation ref (id, id prefix, or the current
// one when empty). A stale cached copy is returned when the backend is
// unreachable.
func (a *App) loadSnapshot(ctx context.Context, ref, command string) (conversation.Snapshot, error) {
	if err := a.requireLogin(); err != nil {
		return conversation.Snapshot{}, err
	}
	if ref == "" {
		ref = a.State.CurrentConversation()
		if ref == "" {
			return conversation.Snapshot{}, &ValidationError{
				Field: "conversation", Reason: "none open", Example: "flai " + command + " <conversation>",
			}
		}
	}
	id := ref
	if conv, ok := a.State.FindConversation(ref); ok {
		id = conv.ID
	}

	session := a.NewSession(ctx, id, conversation.Options{})
	err := session.Load(ctx)
	snap := session.Snapshot()
	if err != nil && !(snap.Stale && api.IsNetwork(err)) {
		return snap, err
	}
	return snap, nil
}

func (r *root) runShow(ctx context.Context, ref string, reasoning bool) error {
	a := r.app
	snap, err := a.loadSnapshot(ctx, ref, "show")
	if err != nil {
		return err
	}

	if done, err := r.printJSON("show", pathData(snap)); done {
		return err
	}
	if snap.Stale {
		a.warn("backend unreachable; showing the cached copy")
	}
	if snap.Path.IsEmpty() {
		fmt.Fprintln(a.Out, DimStyle.Render("No messages yet."))
		return nil
	}

	expanded := snap.Expanded
	if reasoning {
		for _, id := range snap.Path.IDs() {
			expanded = expanded.Toggle(id)
		}
	}
	snap.Expanded = expanded
	printPath(a.Out, a.newPrinter(), snap)
	return nil
}

// =============================================================================
// LINE-ORIENTED RENDERING
// =============================================================================

// printer renders messages for line-oriented output with the same views the
// full-screen interface uses.
type printer struct {
	theme       *styles.Theme
	renderer    *components.Renderer
	showUsage   bool
	showSources bool
}

func (a *App) newPrinter() *printer {
	theme := styles.NewTheme(a.Config.UI.Theme)
	markdown := a.Config.UI.Markdown && ColorsEnabled()
	return &printer{
		theme:       theme,
		renderer:    components.NewRenderer(GetTerminalWidth()-2, markdown, theme.IsDark),
		showUsage:   a.Config.UI.ShowUsage,
		showSources: a.Config.UI.ShowSources,
	}
}

func (p *printer) message(msg model.Message, branch tree.BranchInfo, expanded bool) string {
	return components.MessageView{
		Message:     msg,
		Branch:      branch,
		Expanded:    expanded,
		ShowUsage:   p.showUsage,
		ShowSources: p.showSources,
	}.Render(p.theme, p.renderer)
}

// printPath writes every message of the snapshot's path, numbered from 1.
func printPath(w io.Writer, p *printer, snap conversation.Snapshot) {
	for i, msg := range snap.Path.Messages() {
		var branch tree.BranchInfo
		if i < len(snap.Branches) {
			branch = snap.Branches[i]
		}
		fmt.Fprintf(w, "%s %s\n\n", DimStyle.Render(fmt.Sprintf("#%d", i+1)),
			p.message(msg, branch, snap.Expanded.Has(msg.ID)))
	}
}

// pathData converts the snapshot's path for JSON output.
func pathData(snap conversation.Snapshot) []MessageData {
	out := make([]MessageData, 0, snap.Path.Len())
	for i, msg := range snap.Path.Messages() {
		d := MessageData{
			ID:        msg.ID,
			ParentID:  msg.ParentID,
			Role:      msg.Role.String(),
			Text:      msg.Text(),
			Reasoning: msg.Reasoning(),
		}
		if i < len(snap.Branches) && snap.Branches[i].HasBranches() {
			d.Branch = components.BranchIndicator(snap.Branches[i])
		}
		if msg.MetaInfo != nil {
			if msg.MetaInfo.HasUsage() {
				d.Usage = components.Usage(*msg.MetaInfo)
			}
			d.Sources = citation.Footnotes(msg.MetaInfo.GoogleGroundingData)
		}
		out = append(out, d)
	}
	return out
}
