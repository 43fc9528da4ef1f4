// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/util"
)

func (r *root) conversationsCommand() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls", "list"},
		Short:   "List conversations",
		Long: `List your conversations, newest first. When the backend cannot be reached
the list cached by the last successful run is shown instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return &ValidationError{Field: "page", Value: fmt.Sprint(page), Reason: "must be at least 1"}
			}
			if size < 1 || size > 100 {
				return &ValidationError{Field: "size", Value: fmt.Sprint(size), Reason: "must be between 1 and 100"}
			}
			return r.runConversations(cmd.Context(), page, size)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&size, "size", 20, "conversations per page")

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <conversation>",
		Aliases: []string{"delete"},
		Short:   "Delete a conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runDeleteConversation(cmd.Context(), args[0])
		},
	})
	return cmd
}

func (r *root) runConversations(ctx context.Context, page, size int) error {
	a := r.app
	if err := a.requireLogin(); err != nil {
		return err
	}

	data := ConversationListData{Page: page}
	var convs []model.Conversation

	res, err := a.Client.ListConversations(ctx, page, size)
	switch {
	case err == nil:
		convs = res.Records
		data.Total = res.Total
		if page == 1 {
			a.State.SetConversations(convs)
			a.saveList(ctx)
		}
	case api.IsNetwork(err) && a.Cache != nil:
		cached, cerr := a.Cache.ListConversations(ctx)
		if cerr != nil || len(cached) == 0 {
			return err
		}
		a.Logger.Info("listing cached conversations", "error", err)
		convs = pageOf(cached, page, size)
		data.Total = len(cached)
		data.Offline = true
	default:
		return err
	}

	current := a.State.CurrentConversation()
	data.Conversations = make([]ConversationData, 0, len(convs))
	for _, c := range convs {
		data.Conversations = append(data.Conversations, ConversationData{
			ID:        c.ID,
			Title:     c.Title,
			Icon:      c.Icon,
			UpdatedAt: c.UpdatedAt,
			Current:   c.ID == current,
		})
	}

	if done, err := r.printJSON("conversations", data); done {
		return err
	}
	if data.Offline {
		a.warn("backend unreachable; showing cached conversations")
	}
	if len(convs) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No conversations yet. Run 'flai chat --new' to start one."))
		return nil
	}

	width := GetTerminalWidth()
	for _, c := range convs {
		marker := "  "
		if c.ID == current {
			marker = SuccessStyle.Render("* ")
		}
		when := ""
		if !c.UpdatedAt.IsZero() {
			when = c.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(a.Out, "%s%s  %s  %s\n", marker, DimStyle.Render(shortID(c.ID)), util.PadRight(c.DisplayTitle(), width-30), DimStyle.Render(when))
	}
	if data.Total > page*size {
		fmt.Fprintln(a.Out, DimStyle.Render(fmt.Sprintf("page %d of %d; use --page for more", page, (data.Total+size-1)/size)))
	}
	return nil
}

func (r *root) runDeleteConversation(ctx context.Context, ref string) error {
	a := r.app
	if err := a.requireLogin(); err != nil {
		return err
	}
	id := ref
	if conv, ok := a.State.FindConversation(ref); ok {
		id = conv.ID
	}

	if err := a.Client.DeleteConversation(ctx, id); err != nil {
		return err
	}
	a.State.RemoveConversation(id)
	if a.Cache != nil {
		if err := a.Cache.DeleteConversation(ctx, id); err != nil {
			a.Logger.Warn("failed to drop cached conversation", "conversation", id, "error", err)
		}
	}
	a.saveList(ctx)
	a.Logger.Info("conversation deleted", "conversation", id)

	if done, err := r.printJSON("conversations rm", map[string]string{"id": id}); done {
		return err
	}
	fmt.Fprintf(a.Out, "%s Deleted %s\n", SuccessStyle.Render("[OK]"), shortID(id))
	return nil
}

// pageOf returns page (1-based) of items.
func pageOf[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// shortID abbreviates an id for display. FindConversation accepts the
// abbreviation back as a unique prefix.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
