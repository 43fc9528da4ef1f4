// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/export"
	"github.com/jeranaias/flai-tui/internal/model"
)

type exportOptions struct {
	Format    string
	Output    string
	Reasoning bool
	NoMeta    bool
}

// ExportData is the output of the export command.
type ExportData struct {
	ConversationID string `json:"conversation_id"`
	Path           string `json:"path,omitempty"`
	Format         string `json:"format"`
	Messages       int    `json:"messages"`
}

func (r *root) exportCommand() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export [conversation]",
		Short: "Write the active branch of a conversation to a file",
		Long: `Write the messages on the active branch of a conversation, the current one
by default, as Markdown or JSON. The file is created in the directory given by
--output; "-" prints to stdout instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			return r.runExport(cmd.Context(), ref, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "markdown", "export format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&opts.Output, "output", "o", ".", `output directory, or "-" for stdout`)
	cmd.Flags().BoolVarP(&opts.Reasoning, "reasoning", "r", false, "include reasoning text (Markdown)")
	cmd.Flags().BoolVar(&opts.NoMeta, "no-metadata", false, "omit the header, timestamps and usage (Markdown)")
	return cmd
}

func (r *root) runExport(ctx context.Context, ref string, opts exportOptions) error {
	a := r.app

	eopts := export.DefaultOptions()
	eopts.OutputDir = opts.Output
	eopts.IncludeReasoning = opts.Reasoning
	eopts.IncludeMetadata = !opts.NoMeta
	eopts.IncludeTimestamps = !opts.NoMeta
	exporter, err := export.ForFormat(opts.Format, eopts)
	if err != nil {
		return &ValidationError{Field: "format", Value: opts.Format, Reason: "unsupported", Example: "flai export --format json"}
	}

	snap, err := a.loadSnapshot(ctx, ref, "export")
	if err != nil {
		return err
	}
	if snap.Stale {
		a.warn("backend unreachable; exporting the cached copy")
	}

	conv, ok := a.State.FindConversation(snap.ConversationID)
	if !ok {
		conv = model.Conversation{ID: snap.ConversationID, Title: model.DefaultConversationTitle}
	}
	transcript := &export.Transcript{
		Conversation: conv,
		Messages:     snap.Path.Messages(),
		Branches:     snap.Branches,
	}

	data := ExportData{
		ConversationID: conv.ID,
		Format:         strings.TrimPrefix(exporter.FileExtension(), "."),
		Messages:       len(transcript.Messages),
	}

	if opts.Output == "-" {
		content, err := exporter.Export(transcript)
		if err != nil {
			return err
		}
		_, err = a.Out.Write(content)
		return err
	}

	data.Path, err = export.ExportToFile(transcript, exporter, eopts)
	if err != nil {
		return err
	}
	a.Logger.Info("conversation exported", "conversation", conv.ID, "path", data.Path)

	if done, err := r.printJSON("export", data); done {
		return err
	}
	fmt.Fprintf(a.Out, "%s Exported %d messages to %s\n", SuccessStyle.Render("[OK]"), data.Messages, data.Path)
	return nil
}
