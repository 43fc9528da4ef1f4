// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
	"github.com/jeranaias/flai-tui/internal/ui/components"
)

const (
	replPrompt         = "> "
	replContinuePrompt = "... "
	historyFile        = "history"
)

// prompter reads one line of input. *liner.State satisfies it.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// runLinerREPL runs the line-oriented chat with liner for editing and
// history.
func runLinerREPL(ctx context.Context, a *App, id string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	path := ""
	if dir, err := a.Config.DataDir(); err == nil {
		path = filepath.Join(dir, historyFile)
		if f, err := os.Open(path); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if path == "" {
			return
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			a.Logger.Warn("failed to save history", "error", err)
			return
		}
		defer f.Close()
		_, _ = line.WriteHistory(f)
	}()

	return newREPL(ctx, a, id, line).run(ctx)
}

// =============================================================================
// REPL
// =============================================================================

type repl struct {
	app     *App
	session *conversation.Session
	in      prompter
	out     io.Writer
	printer *printer
	stream  *streamPrinter
}

func newREPL(ctx context.Context, a *App, id string, in prompter) *repl {
	p := a.newPrinter()
	stream := newStreamPrinter(a.Out, p)
	return &repl{
		app:     a,
		session: a.NewSession(ctx, id, conversation.Options{OnChange: stream.update}),
		in:      in,
		out:     a.Out,
		printer: p,
		stream:  stream,
	}
}

func (r *repl) run(ctx context.Context) error {
	if err := r.session.Load(ctx); err != nil {
		if !r.session.Snapshot().Stale {
			return err
		}
		r.app.warn("backend unreachable; showing the cached copy")
	}
	r.banner()
	r.history()

	for {
		text, err := r.readInput()
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(r.out, DimStyle.Render("Type /quit to leave."))
			continue
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return err
		}
		if text == "" {
			continue
		}
		r.in.AppendHistory(text)

		if strings.HasPrefix(text, "/") {
			quit, err := r.command(ctx, text)
			if err != nil {
				r.showError(err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := r.streaming(ctx, func(ctx context.Context) error {
			return r.session.Send(ctx, text)
		}); err != nil {
			r.showError(err)
		}
	}
}

// readInput reads one message. Lines ending in a backslash continue on the
// next line.
func (r *repl) readInput() (string, error) {
	var lines []string
	prompt := replPrompt
	for {
		line, err := r.in.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) && len(lines) > 0 {
				break
			}
			return "", err
		}
		if cont, ok := strings.CutSuffix(line, `\`); ok {
			lines = append(lines, cont)
			prompt = replContinuePrompt
			continue
		}
		lines = append(lines, line)
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func (r *repl) banner() {
	title := model.DefaultConversationTitle
	if conv, ok := r.app.State.FindConversation(r.session.ID()); ok {
		title = conv.DisplayTitle()
	}
	modelName := "no model"
	if m, ok := r.app.State.CurrentModel(); ok {
		modelName = m.Name
	}
	fmt.Fprintln(r.out, TitleStyle.Render(title)+"  "+DimStyle.Render(modelName))
	fmt.Fprintln(r.out, DimStyle.Render("Type a message and press Enter. /help lists commands."))
	fmt.Fprintln(r.out)
}

func (r *repl) history() {
	printPath(r.out, r.printer, r.session.Snapshot())
}

// streaming runs a session operation that streams a reply. Ctrl+C cancels
// the reply.
func (r *repl) streaming(ctx context.Context, op func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.stream.begin(r.session.Snapshot())
	err := op(ctx)
	r.stream.finish(r.session.Snapshot())
	return err
}

func (r *repl) showError(err error) {
	fmt.Fprintf(r.out, "%s %s\n", ErrorStyle.Render("[X]"), api.UserMessage(err))
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replHelp = `Commands:
  /history            show the active branch
  /retry [n]          regenerate reply n (default: the last message)
  /edit <n> <text>    replace your message n, starting a new branch
  /delete             delete the last message
  /prev [n], /next [n]  switch message n to its previous or next branch
  /reasoning [n]      show or hide the reasoning of reply n
  /model [name]       show or select the model
  /quit               leave`

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		fmt.Fprintln(r.out, replHelp)

	case "history", "h":
		r.history()

	case "retry", "r":
		target, err := r.target(arg)
		if err != nil {
			return false, err
		}
		return false, r.streaming(ctx, func(ctx context.Context) error {
			return r.session.Retry(ctx, target.ID)
		})

	case "edit", "e":
		ref, text, _ := strings.Cut(arg, " ")
		target, err := r.target(ref)
		if err != nil {
			return false, err
		}
		if target.Role != model.RoleUser {
			return false, errors.New("only your own messages can be edited")
		}
		if strings.TrimSpace(text) == "" {
			return false, conversation.ErrEmptyPrompt
		}
		return false, r.streaming(ctx, func(ctx context.Context) error {
			return r.session.Edit(ctx, target.ID, text)
		})

	case "delete", "d":
		if err := r.session.Delete(ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s Deleted the last message\n", SuccessStyle.Render("[OK]"))

	case "prev", "next":
		target, err := r.target(arg)
		if err != nil {
			return false, err
		}
		dir := tree.Next
		if name == "prev" {
			dir = tree.Prev
		}
		changed, err := r.session.SwitchSibling(target.ID, dir)
		if err != nil {
			return false, err
		}
		if !changed {
			fmt.Fprintln(r.out, DimStyle.Render("No other branch in that direction."))
			return false, nil
		}
		r.history()

	case "reasoning":
		target, err := r.target(arg)
		if err != nil {
			return false, err
		}
		if target.Role != model.RoleAssistant {
			return false, errors.New("only replies have reasoning")
		}
		r.session.ToggleReasoning(target.ID)
		snap := r.session.Snapshot()
		fmt.Fprintln(r.out, r.printer.message(target, tree.BranchInfo{}, snap.Expanded.Has(target.ID)))

	case "model", "m":
		return false, r.model(arg)

	default:
		return false, &ValidationError{Field: "command", Value: "/" + name, Reason: "unknown", Example: "/help"}
	}
	return false, nil
}

// target returns message n (1-based) of the active path, or the last
// message when arg is empty.
func (r *repl) target(arg string) (model.Message, error) {
	path := r.session.Snapshot().Path
	if path.IsEmpty() {
		return model.Message{}, errors.New("the conversation is empty")
	}
	if arg == "" {
		last, _ := path.Last()
		return last, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
	if err != nil || n < 1 || n > path.Len() {
		return model.Message{}, &ValidationError{
			Field: "message number", Value: arg,
			Reason: fmt.Sprintf("must be between 1 and %d", path.Len()),
		}
	}
	return path.At(n - 1), nil
}

func (r *repl) model(name string) error {
	st := r.app.State
	if name != "" {
		m, err := st.SelectModel(name)
		if err != nil {
			return &NotFoundError{Resource: "model", ID: name}
		}
		fmt.Fprintf(r.out, "%s Using %s\n", SuccessStyle.Render("[OK]"), m.Name)
		return nil
	}
	current, _ := st.CurrentModel()
	for _, m := range model.FlattenModels(st.Providers()) {
		marker := "  "
		if m.ID == current.ID && m.ProviderID == current.ProviderID {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(r.out, "%s%s/%s %s\n", marker, m.ProviderID, m.ID, DimStyle.Render(m.Name))
	}
	return nil
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes a reply to w as it streams. It is driven by session
// snapshots and only ever appends: text that is rewritten rather than
// extended (citation markers) is not printed again.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printer *printer

	active    bool
	before    string // id of the last message before the operation
	header    bool
	reasoning string
	text      string
}

func newStreamPrinter(w io.Writer, p *printer) *streamPrinter {
	return &streamPrinter{w: w, printer: p}
}

// begin starts tracking a reply that will follow snap's path.
func (s *streamPrinter) begin(snap conversation.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.header = false
	s.reasoning, s.text = "", ""
	s.before = ""
	if last, ok := snap.Path.Last(); ok {
		s.before = last.ID
	}
}

// update prints whatever the streaming reply gained since the last call.
func (s *streamPrinter) update(snap conversation.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	last, ok := snap.Path.Last()
	if !ok || last.Role != model.RoleAssistant || (last.ID != "" && last.ID == s.before) {
		return
	}

	if !s.header {
		fmt.Fprintln(s.w, AssistantPromptStyle.Render(model.RoleAssistant.DisplayName()))
		s.header = true
	}
	if reasoning := last.Reasoning(); reasoning != s.reasoning {
		if s.reasoning == "" {
			fmt.Fprint(s.w, dim(components.ReasoningActiveLabel+" "))
		}
		if rest, ok := strings.CutPrefix(reasoning, s.reasoning); ok {
			fmt.Fprint(s.w, dim(rest))
		}
		s.reasoning = reasoning
	}
	if text := last.Text(); text != s.text {
		if s.text == "" && s.reasoning != "" {
			fmt.Fprint(s.w, "\n\n")
		}
		if rest, ok := strings.CutPrefix(text, s.text); ok {
			fmt.Fprint(s.w, rest)
		}
		s.text = text
	}
}

// finish ends the reply and prints its usage and sources.
func (s *streamPrinter) finish(snap conversation.Snapshot) {
	s.update(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	if !s.header {
		return
	}
	fmt.Fprintln(s.w)

	last, ok := snap.Path.Last()
	if !ok || last.Role != model.RoleAssistant || last.MetaInfo == nil {
		fmt.Fprintln(s.w)
		return
	}
	if s.printer.showSources {
		if lines := citation.Footnotes(last.MetaInfo.GoogleGroundingData); len(lines) > 0 {
			fmt.Fprintln(s.w, DimStyle.Render("Sources"))
			for _, line := range lines {
				fmt.Fprintln(s.w, DimStyle.Render(line))
			}
		}
	}
	if s.printer.showUsage && last.MetaInfo.HasUsage() {
		fmt.Fprintln(s.w, DimStyle.Render(components.Usage(*last.MetaInfo)))
	}
	fmt.Fprintln(s.w)
}

// dim renders s line by line so multi-line text is not padded.
func dim(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = DimStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
