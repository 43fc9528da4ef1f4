// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/util"
)

const maxUsageDays = 365

func (r *root) usageCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage and estimated cost",
		Long: `Summarize the replies streamed on this machine over the last days, per day
and per model. Costs are estimates from the prices in the model catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runUsage(days)
		},
	}
	cmd.Flags().IntVarP(&days, "days", "d", 7, "number of days to include, today included")
	return cmd
}

func (r *root) runUsage(days int) error {
	a := r.app
	if days < 1 || days > maxUsageDays {
		return &ValidationError{Field: "days", Value: strconv.Itoa(days), Reason: fmt.Sprintf("must be between 1 and %d", maxUsageDays), Example: "flai usage --days 30"}
	}
	if a.Usage == nil {
		return errors.New("usage ledger unavailable")
	}
	trends, err := a.Usage.Trends(days)
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}

	if done, err := r.printJSON("usage", trends); done {
		return err
	}

	fmt.Fprintln(a.Out, TitleStyle.Render(fmt.Sprintf("Usage, last %d days", days)))
	if trends.Replies == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No replies recorded."))
		return nil
	}
	fmt.Fprintln(a.Out, keyValue("Replies:  ", strconv.Itoa(trends.Replies)))
	fmt.Fprintln(a.Out, keyValue("Tokens:   ", util.FormatCount(trends.TotalTokens)))
	fmt.Fprintln(a.Out, keyValue("Cost:     ", formatCost(trends.TotalCost)))

	fmt.Fprintln(a.Out)
	for _, d := range trends.Daily {
		fmt.Fprintf(a.Out, "  %s %s %s %s\n", d.Date.Format("2006-01-02"),
			util.PadRight(fmt.Sprintf("%d replies", d.Replies), 12),
			util.PadRight(util.FormatCount(d.Tokens)+" tokens", 16),
			DimStyle.Render(formatCost(d.Cost)))
	}

	fmt.Fprintln(a.Out)
	for _, m := range trends.ByModel {
		fmt.Fprintf(a.Out, "  %s %s %s %s\n", util.PadRight(m.Model, 36),
			util.PadRight(fmt.Sprintf("%d replies", m.Replies), 12),
			util.PadRight(util.FormatCount(m.Tokens)+" tokens", 16),
			DimStyle.Render(formatCost(m.Cost)))
	}
	return nil
}

func formatCost(cost float64) string {
	if cost > 0 && cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}
