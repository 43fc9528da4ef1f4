// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
)

// ErrEmptyTranscript is returned for a transcript without messages.
var ErrEmptyTranscript = errors.New("conversation has no messages")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Transcript is the active branch of one conversation.
type Transcript struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`

	// Branches holds the sibling position of each message, aligned with
	// Messages. It may be shorter or nil.
	Branches []tree.BranchInfo `json:"-"`
}

// branch returns the sibling position of message i.
func (t *Transcript) branch(i int) tree.BranchInfo {
	if i < len(t.Branches) {
		return t.Branches[i]
	}
	return tree.BranchInfo{}
}

// models lists the distinct provider/model pairs that produced replies.
func (t *Transcript) models() []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range t.Messages {
		if m.MetaInfo == nil || m.MetaInfo.ModelName == "" {
			continue
		}
		name := m.MetaInfo.ModelName
		if m.MetaInfo.ProviderName != "" {
			name = m.MetaInfo.ProviderName + "/" + name
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// totalTokens sums the usage of every reply.
func (t *Transcript) totalTokens() int {
	total := 0
	for _, m := range t.Messages {
		if m.MetaInfo != nil {
			total += m.MetaInfo.TotalTokens()
		}
	}
	return total
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a transcript to the target format.
	Export(t *Transcript) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a header with dates, models and token totals,
	// and usage lines under replies.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool

	// IncludeReasoning adds the reasoning of replies.
	IncludeReasoning bool

	// Now stamps the export. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// Formats lists the names accepted by ForFormat.
var Formats = []string{"markdown", "md", "json"}

// ForFormat returns the exporter for a format name.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "markdown", "md", "":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (use %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ExportToFile exports a transcript with exporter and writes it to
// opts.OutputDir. It returns the path of the written file.
func ExportToFile(t *Transcript, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(t.Conversation.Title),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, filename)
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	replacer := map[rune]rune{
		'/':  '-',
		'\\': '-',
		':':  '-',
		'*':  '-',
		'?':  '-',
		'"':  '-',
		'<':  '-',
		'>':  '-',
		'|':  '-',
		' ':  '_',
		'\t': '_',
		'\n': '_',
		'\r': '_',
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		if replacement, found := replacer[r]; found {
			result = append(result, replacement)
		} else if r < 32 || r == 127 {
			result = append(result, '-')
		} else {
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
