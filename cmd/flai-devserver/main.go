// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main runs the in-memory FlaiChat backend used for local
// development of the flai client.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/flai-tui/internal/logging"
	"github.com/jeranaias/flai-tui/internal/server"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr     string
	email    string
	password string
	secret   string
	totp     string
	delay    time.Duration
	rps      float64
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		stop()
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "flai-devserver",
		Short: "Run an in-memory FlaiChat backend with scripted replies",
		Long: `Run an in-memory FlaiChat backend for developing the flai client.

Replies echo the prompt; reasoning models think first, and prompts that
mention "search" get a grounded answer with citations. Nothing is persisted.

Settings may also come from FLAI_DEV_EMAIL, FLAI_DEV_PASSWORD,
FLAI_DEV_SECRET and FLAI_DEV_TOTP_SECRET, read from the environment or a .env
file. With --totp new, a secret is generated and printed.`,
		Version:       server.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			envDefault(&opts.email, "FLAI_DEV_EMAIL")
			envDefault(&opts.password, "FLAI_DEV_PASSWORD")
			envDefault(&opts.secret, "FLAI_DEV_SECRET")
			envDefault(&opts.totp, "FLAI_DEV_TOTP_SECRET")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", server.DefaultAddr, "listen address")
	f.StringVar(&opts.email, "email", "", "account email (default "+server.DefaultEmail+")")
	f.StringVar(&opts.password, "password", "", "account password (default "+server.DefaultPassword+")")
	f.StringVar(&opts.secret, "secret", "", "token signing secret (default: random per run)")
	f.StringVar(&opts.totp, "totp", "", `base32 TOTP secret requiring a login code, or "new"`)
	f.DurationVar(&opts.delay, "delay", 40*time.Millisecond, "pause between streamed chunks")
	f.Float64Var(&opts.rps, "rps", 0, "requests per second limit (0 disables)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}

// envDefault fills an unset flag value from the environment.
func envDefault(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func run(ctx context.Context, opts options) error {
	logger := logging.New(os.Stderr, opts.logLevel)

	if opts.totp == "new" {
		secret, err := server.GenerateTOTPSecret(cmp.Or(opts.email, server.DefaultEmail))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "TOTP secret:", secret)
		opts.totp = secret
	}

	srv, err := server.New(server.Options{
		Email:             opts.email,
		Password:          opts.password,
		Secret:            []byte(opts.secret),
		TOTPSecret:        opts.totp,
		ChunkDelay:        opts.delay,
		RequestsPerSecond: opts.rps,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(opts.addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
