// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// annotationNoApp marks commands that run without opening the App.
const annotationNoApp = "flai/no-app"

// root holds what the command tree shares during one Execute.
type root struct {
	opts    Options
	version VersionData
	app     *App

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// Execute runs the flai command line with args and returns the process exit
// code. Errors are written to errOut, or to out as JSON with --json.
func Execute(ctx context.Context, args []string, version VersionData, in io.Reader, out, errOut io.Writer) int {
	r := &root{version: version, in: in, out: out, errOut: errOut}
	cmd := r.command()
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	if r.app != nil {
		if cerr := r.app.Close(); cerr != nil {
			fmt.Fprintf(errOut, "%s %v\n", WarningStyle.Render("[!]"), cerr)
		}
	}
	if err != nil {
		w := errOut
		if r.opts.JSON {
			w = out
		}
		DisplayError(w, err, r.opts.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func (r *root) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flai",
		Short: "Terminal client for FlaiChat",
		Long: `flai is a terminal client for a FlaiChat backend.

Conversations are trees: retrying a reply or editing a message creates a
sibling branch, and you can switch between branches at any message. Replies
stream in as they are generated, with reasoning shown separately and web
sources listed under the answer.

Run 'flai login' once, then 'flai' to open your most recent conversation.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if skipsApp(cmd) {
				return nil
			}
			app, err := NewApp(r.opts, r.in, r.out, r.errOut)
			if err != nil {
				return err
			}
			r.app = app
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), r.app, chatOptions{})
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&r.opts.ServerURL, "server", "", "backend URL (overrides server.url)")
	flags.StringVar(&r.opts.Theme, "theme", "", "color theme: dark, light or auto")
	flags.StringVar(&r.opts.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&r.opts.NoCache, "no-cache", false, "do not read or write the offline cache")
	flags.BoolVar(&r.opts.JSON, "json", false, "print machine-readable JSON")

	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &ValidationError{Field: "flags", Reason: err.Error(), Example: cmd.UseLine()}
	})

	cmd.AddCommand(
		r.chatCommand(),
		r.askCommand(),
		r.loginCommand(),
		r.logoutCommand(),
		r.conversationsCommand(),
		r.showCommand(),
		r.exportCommand(),
		r.usageCommand(),
		r.modelsCommand(),
		r.statusCommand(),
		r.configCommand(),
		r.versionCommand(),
	)
	return cmd
}

// skipsApp reports whether cmd or one of its parents is annotated to run
// without the App.
func skipsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoApp] == "true" {
			return true
		}
	}
	return false
}

func noApp() map[string]string {
	return map[string]string{annotationNoApp: "true"}
}

// printJSON writes data in the JSON envelope when --json is set and reports
// whether it did.
func (r *root) printJSON(command string, data any) (bool, error) {
	if !r.opts.JSON {
		return false, nil
	}
	return true, NewJSONResponse(command, data).Print(r.out)
}

func (r *root) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: noApp(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if done, err := r.printJSON("version", r.version); done {
				return err
			}
			fmt.Fprintf(r.out, "flai %s (commit %s, built %s)\n",
				r.version.Version, r.version.GitCommit, r.version.BuildDate)
			return nil
		},
	}
}
