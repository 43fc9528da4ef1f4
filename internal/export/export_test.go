// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
)

var exportTime = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func testOptions(dir string) *Options {
	opts := DefaultOptions()
	opts.OutputDir = dir
	opts.Now = func() time.Time { return exportTime }
	return opts
}

func testTranscript() *Transcript {
	created := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	start := 0
	reply := model.Message{
		ID:       "a1",
		ParentID: "u1",
		Role:     model.RoleAssistant,
		Content: []model.Segment{
			model.NewSegment(model.SegmentReasoning, "Look it up.\nThen answer."),
			model.NewSegment(model.SegmentMessage, "Go 1.0 shipped in 2012. [[1]](https://go.dev)"),
		},
		MetaInfo: &model.MetaInfo{
			ProviderName:       "Google",
			ModelName:          "gemini-2.5-flash",
			PromptTokenCount:   4,
			ResponseTokenCount: 8,
			GoogleGroundingData: &model.GroundingData{
				GroundingChunks: []model.GroundingChunk{{Web: &model.WebSource{URI: "https://go.dev", Title: "go.dev"}}},
				GroundingSupports: []model.GroundingSupport{{
					Segment:               model.SupportSegment{StartIndex: &start, EndIndex: 23, Text: "Go 1.0 shipped in 2012."},
					GroundingChunkIndices: []int{0},
				}},
			},
		},
		CreatedAt: created.Add(time.Minute),
	}
	return &Transcript{
		Conversation: model.Conversation{ID: "c1", Title: "Go: a history", Icon: "📜", CreatedAt: created},
		Messages: []model.Message{
			model.NewUserMessage("u1", "", "When did Go 1.0 ship?", created),
			reply,
		},
		Branches: []tree.BranchInfo{{Index: 0, Count: 1}, {Index: 1, Count: 2}},
	}
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions("")).Export(testTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: \"Go: a history\"\nconversation: c1\n"), md)
	assert.Contains(t, md, "models: Google/gemini-2.5-flash\n")
	assert.Contains(t, md, "tokens: 12\n")
	assert.Contains(t, md, "exported: 2025-04-02T09:30:00Z\n")
	assert.Contains(t, md, "# 📜 Go: a history\n")
	assert.Contains(t, md, "### You <sub>08:00:00</sub>\n\nWhen did Go 1.0 ship?\n")
	assert.Contains(t, md, "### Assistant (branch 2 of 2) <sub>08:01:00</sub>\n")
	assert.Contains(t, md, "Go 1.0 shipped in 2012. [[1]](https://go.dev)\n")
	assert.Contains(t, md, "**Sources**\n\n- [1] go.dev <https://go.dev>\n")
	assert.Contains(t, md, "<sub>Google/gemini-2.5-flash | in 4 | out 8</sub>")
	assert.NotContains(t, md, "Look it up.", "reasoning is opt-in")
}

func TestMarkdownExporter_Options(t *testing.T) {
	opts := testOptions("")
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false
	opts.IncludeReasoning = true

	out, err := NewMarkdownExporter(opts).Export(testTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "# 📜 Go: a history\n"), md)
	assert.Contains(t, md, "### You\n")
	assert.Contains(t, md, "> Look it up.\n> Then answer.\n")
	assert.NotContains(t, md, "<sub>")
	assert.Contains(t, md, "**Sources**", "sources are part of the reply")
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(testOptions("")).Export(testTranscript())
	require.NoError(t, err)

	var doc struct {
		Conversation model.Conversation `json:"conversation"`
		Messages     []map[string]any   `json:"messages"`
		Models       []string           `json:"models"`
		TotalTokens  int                `json:"total_tokens"`
		ExportedAt   time.Time          `json:"exported_at"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "c1", doc.Conversation.ID)
	assert.Equal(t, []string{"Google/gemini-2.5-flash"}, doc.Models)
	assert.Equal(t, 12, doc.TotalTokens)
	assert.True(t, exportTime.Equal(doc.ExportedAt))
	require.Len(t, doc.Messages, 2)
	assert.NotContains(t, doc.Messages[0], "branch")
	assert.EqualValues(t, 2, doc.Messages[1]["branch"])
	assert.EqualValues(t, 2, doc.Messages[1]["branch_count"])
	assert.Contains(t, doc.Messages[1], "meta_info")
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, format := range []string{"md", "json"} {
		exporter, err := ForFormat(format, nil)
		require.NoError(t, err)
		_, err = exporter.Export(&Transcript{})
		assert.ErrorIs(t, err, ErrEmptyTranscript, format)
	}
}

func TestForFormat(t *testing.T) {
	e, err := ForFormat("Markdown", nil)
	require.NoError(t, err)
	assert.Equal(t, ".md", e.FileExtension())

	e, err = ForFormat("json", nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", e.MimeType())

	_, err = ForFormat("pdf", nil)
	assert.ErrorContains(t, err, `unsupported export format "pdf"`)
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	opts := testOptions(dir)

	path, err := ExportToFile(testTranscript(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversation_Go-_a_history_20250402_093000.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Go 1.0 shipped in 2012.")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"with spaces", "with_spaces"},
		{`a/b\c:d*e?f"g<h>i|j`, "a-b-c-d-e-f-g-h-i-j"},
		{"bell\a", "bell-"},
		{"   ", "conversation"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
