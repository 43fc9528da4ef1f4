// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/flai-tui/internal/api"
)

// passwordEnv supplies the password for non-interactive logins.
const passwordEnv = "FLAI_PASSWORD"

func (r *root) loginCommand() *cobra.Command {
	var email, password, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the backend",
		Long: `Sign in with your email and password. The password is read without echo
when stdin is a terminal, otherwise from FLAI_PASSWORD or the first line of
stdin. Accounts with a second factor also need --code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.runLogin(cmd.Context(), email, password, code)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prefer the prompt)")
	cmd.Flags().StringVar(&code, "code", "", "one-time verification code")
	return cmd
}

func (r *root) runLogin(ctx context.Context, email, password, code string) error {
	a := r.app
	stdin := bufio.NewReader(a.In)

	if email == "" {
		if !IsTTY() {
			return &ValidationError{Field: "email", Reason: "required", Example: "flai login --email you@example.com"}
		}
		fmt.Fprint(a.Err, "Email: ")
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		var err error
		if IsTTY() {
			fmt.Fprint(a.Err, "Password: ")
			password, err = readPassword()
			fmt.Fprintln(a.Err)
		} else {
			var line string
			line, err = stdin.ReadString('\n')
			if line != "" {
				err = nil
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	if email == "" || password == "" {
		return &ValidationError{Field: "credentials", Reason: "email and password are required"}
	}

	res, err := a.Client.LoginWithCode(ctx, api.LoginRequest{
		Email:    email,
		Password: password,
		Code:     strings.TrimSpace(code),
	})
	if err != nil {
		a.Logger.Warn("login failed", "email", email, "error", err)
		return err
	}
	a.State.SetLogin(res)
	a.Logger.Info("signed in", "email", email)

	user, _ := a.State.User()
	if done, err := r.printJSON("login", user); done {
		return err
	}
	name := user.Username
	if name == "" {
		name = email
	}
	fmt.Fprintf(a.Out, "%s Signed in as %s\n", SuccessStyle.Render("[OK]"), name)
	return nil
}

func (r *root) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r.app.State.Logout()
			r.app.Logger.Info("signed out")
			if done, err := r.printJSON("logout", nil); done {
				return err
			}
			fmt.Fprintf(r.app.Out, "%s Signed out\n", SuccessStyle.Render("[OK]"))
			return nil
		},
	}
}
