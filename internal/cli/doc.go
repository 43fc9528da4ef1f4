// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the flai command line.
//
// Every command shares one App per invocation: configuration, logger,
// saved state, API client and offline cache. Execute runs the command tree
// and maps errors to exit codes.
//
// # Usage
//
//	os.Exit(cli.Execute(ctx, os.Args[1:], version, os.Stdin, os.Stdout, os.Stderr))
//
// # Commands Overview
//
// Conversations:
//   - chat: full-screen chat, or the line-oriented REPL with --repl
//   - ask: send one message and stream the reply to stdout
//   - show: print the active branch of a conversation
//   - export: write the active branch to a Markdown or JSON file
//   - usage: token usage and estimated cost per day and model
//   - conversations: list conversations; conversations rm deletes one
//
// Account and settings:
//   - login, logout: sign in and out
//   - models: list models; models use selects one
//   - status: sign-in, model and cache status
//   - config: path, get, set and list settings
//   - version: build information
//
// All commands support --json for machine-readable output.
package cli
