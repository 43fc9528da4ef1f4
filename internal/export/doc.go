// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the active branch of a conversation to a file.
//
// # Supported Formats
//
//   - Markdown: readable transcript with reasoning, sources and usage
//   - JSON: the transcript as structured data
//
// # Usage
//
//	t := export.Transcript{Conversation: conv, Messages: snap.Path.Messages()}
//	exporter, err := export.ForFormat("md", opts)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ExportToFile(&t, exporter, opts)
package export
