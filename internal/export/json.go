// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports transcripts to JSON. Messages are written in the
// backend's message format, so reasoning and grounding are always included.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

type jsonTranscript struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []jsonMessage      `json:"messages"`
	Models       []string           `json:"models,omitempty"`
	TotalTokens  int                `json:"total_tokens"`
	ExportedAt   time.Time          `json:"exported_at"`
}

type jsonMessage struct {
	model.Message
	Branch      int `json:"branch,omitempty"`
	BranchCount int `json:"branch_count,omitempty"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil || len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	out := jsonTranscript{
		Conversation: t.Conversation,
		Messages:     make([]jsonMessage, 0, len(t.Messages)),
		Models:       t.models(),
		TotalTokens:  t.totalTokens(),
		ExportedAt:   e.options.now().UTC(),
	}
	for i, msg := range t.Messages {
		jm := jsonMessage{Message: msg}
		if b := t.branch(i); b.HasBranches() {
			jm.Branch = b.Index + 1
			jm.BranchCount = b.Count
		}
		out.Messages = append(out.Messages, jm)
	}
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
