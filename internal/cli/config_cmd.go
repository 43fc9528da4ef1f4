// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/config"
)

func (r *root) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Read and change settings",
		Annotations: noApp(),
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := config.ConfigPathTOML()
				if err != nil {
					return err
				}
				if done, err := r.printJSON("config path", map[string]string{"path": path}); done {
					return err
				}
				fmt.Fprintln(r.out, path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting, for example server.url",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if cfg == nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return &ValidationError{Field: "key", Value: args[0], Reason: err.Error()}
				}
				if done, err := r.printJSON("config get", map[string]any{args[0]: v}); done {
					return err
				}
				fmt.Fprintln(r.out, v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting in the config file",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.runConfigSet(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "Print every setting",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if cfg == nil {
					return err
				}
				values := make(map[string]any, len(config.GetAllKeys()))
				for _, key := range config.GetAllKeys() {
					v, _ := cfg.Get(key)
					values[key] = v
				}
				if done, err := r.printJSON("config list", values); done {
					return err
				}
				for _, key := range config.GetAllKeys() {
					fmt.Fprintln(r.out, LabelStyle.Width(28).Render(key)+ValueStyle.Render(fmt.Sprint(values[key])))
				}
				return nil
			},
		},
	)
	return cmd
}

// runConfigSet edits the TOML file itself, so environment overrides in
// effect are not written back.
func (r *root) runConfigSet(key, value string) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return statErr
	}

	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error()}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	if done, err := r.printJSON("config set", map[string]string{key: value}); done {
		return err
	}
	fmt.Fprintf(r.out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, value)
	return nil
}
