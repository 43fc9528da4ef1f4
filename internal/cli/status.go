// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// StatusData is the output of the status command.
type StatusData struct {
	Server        string    `json:"server"`
	SignedIn      bool      `json:"signed_in"`
	User          string    `json:"user,omitempty"`
	TokenExpires  time.Time `json:"token_expires,omitzero"`
	Model         string    `json:"model,omitempty"`
	Conversation  string    `json:"conversation,omitempty"`
	Conversations int       `json:"conversations"`
	CacheEnabled  bool      `json:"cache_enabled"`
	CachedLists   int       `json:"cached_conversations"`
	CachedMsgs    int       `json:"cached_messages"`
}

func (r *root) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sign-in, model and cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runStatus(cmd.Context())
		},
	}
}

func (r *root) runStatus(ctx context.Context) error {
	a := r.app
	data := StatusData{
		Server:        a.Config.Server.URL,
		SignedIn:      a.State.IsAuthenticated(),
		TokenExpires:  a.State.ExpiresAt(),
		Conversation:  a.State.CurrentConversation(),
		Conversations: len(a.State.Conversations()),
		CacheEnabled:  a.Cache != nil,
	}
	if u, ok := a.State.User(); ok {
		data.User = u.Email
		if u.Username != "" {
			data.User = u.Username + " <" + u.Email + ">"
		}
	}
	if m, ok := a.State.CurrentModel(); ok {
		data.Model = m.ProviderID + "/" + m.ID
	}
	if a.Cache != nil {
		stats, err := a.Cache.Stats(ctx)
		if err != nil {
			a.Logger.Warn("failed to read cache stats", "error", err)
		} else {
			data.CachedLists = stats.Conversations
			data.CachedMsgs = stats.Messages
		}
	}

	if done, err := r.printJSON("status", data); done {
		return err
	}

	fmt.Fprintln(a.Out, TitleStyle.Render("flai status"))
	fmt.Fprintln(a.Out, keyValue("Server", data.Server))
	signedIn := ErrorStyle.Render("no")
	if data.SignedIn {
		signedIn = SuccessStyle.Render("yes")
	}
	fmt.Fprintln(a.Out, keyValue("Signed in", signedIn))
	if data.User != "" {
		fmt.Fprintln(a.Out, keyValue("User", data.User))
	}
	if !data.TokenExpires.IsZero() {
		fmt.Fprintln(a.Out, keyValue("Token expires", data.TokenExpires.Local().Format(time.RFC1123)))
	}
	fmt.Fprintln(a.Out, keyValue("Model", orNone(data.Model)))
	fmt.Fprintln(a.Out, keyValue("Conversation", orNone(shortID(data.Conversation))))
	fmt.Fprintln(a.Out, keyValue("Conversations", fmt.Sprint(data.Conversations)))
	if data.CacheEnabled {
		fmt.Fprintln(a.Out, keyValue("Cache", fmt.Sprintf("%d conversations, %d messages", data.CachedLists, data.CachedMsgs)))
	} else {
		fmt.Fprintln(a.Out, keyValue("Cache", "disabled"))
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return DimStyle.Render("none")
	}
	return s
}
