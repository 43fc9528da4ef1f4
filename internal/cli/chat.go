// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/config"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/ui/chat"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
)

// chatOptions select the conversation and the frontend.
type chatOptions struct {
	Ref  string
	New  bool
	REPL bool
}

func (r *root) chatCommand() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [conversation]",
		Short: "Open a conversation",
		Long: `Open a conversation by id or id prefix, the current one by default, or a
new one with --new. The full-screen interface is used on a terminal; --repl
or ui.frontend = "repl" selects the line-oriented prompt instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Ref = args[0]
			}
			return runChat(cmd.Context(), r.app, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.New, "new", "n", false, "start a new conversation")
	cmd.Flags().BoolVar(&opts.REPL, "repl", false, "use the line-oriented prompt")
	return cmd
}

// openConversation signs in, bootstraps the catalog and conversation list,
// and resolves the conversation to open.
func openConversation(ctx context.Context, a *App, ref string, forceNew bool) (string, error) {
	if err := a.requireLogin(); err != nil {
		return "", err
	}
	offline, err := a.Bootstrap(ctx)
	if err != nil && !offline {
		return "", err
	}
	if offline {
		a.warn("backend unreachable; showing cached conversations")
	}
	if forceNew {
		ref = ""
	}
	id, err := a.resolveConversation(ctx, ref, forceNew)
	if err != nil {
		return "", err
	}
	if _, ok := a.State.CurrentModel(); !ok {
		a.warn("no model available; messages cannot be sent")
	}
	return id, nil
}

func runChat(ctx context.Context, a *App, opts chatOptions) error {
	id, err := openConversation(ctx, a, opts.Ref, opts.New)
	if err != nil {
		return err
	}
	if opts.REPL || a.Config.UI.Frontend == "repl" || !CanRunTUI() {
		return runLinerREPL(ctx, a, id)
	}
	return runTUI(ctx, a, id)
}

// runTUI runs the full-screen chat until the user quits.
func runTUI(ctx context.Context, a *App, id string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := chat.NewBridge()
	session := a.NewSession(ctx, id, conversation.Options{
		OnChange: func(conversation.Snapshot) { bridge.Notify() },
		OnTitle:  func(string, model.GeneratedTitle) { bridge.Notify() },
	})
	defer session.Cancel()

	m := chat.New(chat.Config{
		Session:     session,
		State:       a.State,
		Theme:       styles.NewTheme(a.Config.UI.Theme),
		Logger:      a.Logger,
		Markdown:    a.Config.UI.Markdown,
		ShowUsage:   a.Config.UI.ShowUsage,
		ShowSources: a.Config.UI.ShowSources,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	go bridge.Run(ctx, p.Send)

	err := config.Watch(ctx, a.Logger, func(cfg *config.Config) {
		a.Logger.Info("config reloaded")
		p.Send(chat.DisplayMsg{ShowUsage: cfg.UI.ShowUsage, ShowSources: cfg.UI.ShowSources})
	})
	if err != nil {
		a.Logger.Warn("config watch unavailable", "error", err)
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run chat interface: %w", err)
	}
	return nil
}

// =============================================================================
// ASK
// =============================================================================

func (r *root) askCommand() *cobra.Command {
	var ref string
	var newConv bool
	cmd := &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Send one message and print the reply",
		Long: `Send one message to a conversation and stream the reply to stdout. The
prompt is read from stdin when it is "-".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				raw, err := io.ReadAll(r.in)
				if err != nil {
					return fmt.Errorf("read prompt: %w", err)
				}
				prompt = string(raw)
			}
			return r.runAsk(cmd.Context(), ref, newConv, prompt)
		},
	}
	cmd.Flags().StringVarP(&ref, "conversation", "c", "", "conversation id or prefix (default: current)")
	cmd.Flags().BoolVarP(&newConv, "new", "n", false, "start a new conversation")
	return cmd
}

func (r *root) runAsk(ctx context.Context, ref string, newConv bool, prompt string) error {
	a := r.app
	if strings.TrimSpace(prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "empty", Example: `flai ask "What is the capital of France?"`}
	}
	id, err := openConversation(ctx, a, ref, newConv)
	if err != nil {
		return err
	}

	var out io.Writer = a.Out
	if r.opts.JSON {
		out = io.Discard
	}
	stream := newStreamPrinter(out, a.newPrinter())
	session := a.NewSession(ctx, id, conversation.Options{OnChange: stream.update})
	if err := session.Load(ctx); err != nil {
		return err
	}

	start := time.Now()
	stream.begin(session.Snapshot())
	if err := session.Send(ctx, prompt); err != nil {
		stream.finish(session.Snapshot())
		return err
	}
	snap := session.Snapshot()
	stream.finish(snap)

	reply, _ := snap.Path.Last()
	data := AskData{
		ConversationID: id,
		MessageID:      reply.ID,
		Response:       reply.Text(),
		Reasoning:      reply.Reasoning(),
		DurationMs:     time.Since(start).Milliseconds(),
	}
	if m, ok := a.State.CurrentModel(); ok {
		data.Model = m.ProviderID + "/" + m.ID
	}
	if reply.MetaInfo != nil {
		data.TotalTokens = reply.MetaInfo.TotalTokens()
		if reply.MetaInfo.ModelName != "" {
			data.Model = reply.MetaInfo.ModelName
		}
	}
	_, err = r.printJSON("ask", data)
	return err
}
