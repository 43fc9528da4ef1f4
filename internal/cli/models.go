// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/util"
)

func (r *root) modelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "List the models offered by the backend",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runModels(cmd.Context())
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "use <model>",
		Short: "Select the model for new messages",
		Long: `Select a model by id, by name, or as provider/model, for example
'flai models use google/gemini-2.5-flash'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runUseModel(cmd.Context(), args[0])
		},
	})
	return cmd
}

func (r *root) fetchProviders(ctx context.Context) error {
	a := r.app
	if err := a.requireLogin(); err != nil {
		return err
	}
	providers, err := a.Client.ListProviders(ctx)
	if err != nil {
		return err
	}
	a.State.SetProviders(providers)
	return nil
}

func (r *root) runModels(ctx context.Context) error {
	a := r.app
	if err := r.fetchProviders(ctx); err != nil {
		return err
	}
	current, hasCurrent := a.State.CurrentModel()

	all := model.FlattenModels(a.State.Providers())
	rows := make([]ModelData, 0, len(all))
	for _, m := range all {
		rows = append(rows, ModelData{
			ID:           m.ID,
			Name:         m.Name,
			Provider:     m.ProviderID,
			Capabilities: m.CapabilitiesString(),
			Selected:     hasCurrent && m.ID == current.ID && m.ProviderID == current.ProviderID,
		})
	}

	if done, err := r.printJSON("models", rows); done {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("The backend offers no models."))
		return nil
	}
	fmt.Fprintln(a.Out, TitleStyle.Render("Models"))
	for _, row := range rows {
		marker := "  "
		if row.Selected {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(a.Out, "%s%s %s %s\n", marker,
			util.PadRight(row.Provider+"/"+row.ID, 36),
			util.PadRight(row.Name, 24),
			DimStyle.Render(row.Capabilities))
	}
	return nil
}

func (r *root) runUseModel(ctx context.Context, ref string) error {
	a := r.app
	if err := r.fetchProviders(ctx); err != nil {
		return err
	}
	m, err := a.State.SelectModel(ref)
	if err != nil {
		return &NotFoundError{Resource: "model", ID: ref}
	}
	a.Logger.Info("model selected", "provider", m.ProviderID, "model", m.ID)

	if done, err := r.printJSON("models use", ModelData{
		ID: m.ID, Name: m.Name, Provider: m.ProviderID,
		Capabilities: m.CapabilitiesString(), Selected: true,
	}); done {
		return err
	}
	fmt.Fprintf(a.Out, "%s Using %s (%s)\n", SuccessStyle.Render("[OK]"), m.Name, m.ProviderID)
	return nil
}
