// flai - A terminal client for FlaiChat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/flai-tui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	// SIGTERM ends the program; Ctrl+C is handled by the interfaces themselves.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	code := cli.Execute(ctx, os.Args[1:], cli.VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}, os.Stdin, os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}
