// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown. Replies keep their citation
// markers, which are already Markdown links, and list their sources below.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if t == nil || len(t.Messages) == 0 {
		return nil, ErrEmptyTranscript
	}

	title := strings.TrimSpace(t.Conversation.Title)
	if title == "" {
		title = model.DefaultConversationTitle
	}
	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "conversation: %s\n", t.Conversation.ID)
		if models := t.models(); len(models) > 0 {
			fmt.Fprintf(&sb, "models: %s\n", escapeYAML(strings.Join(models, ", ")))
		}
		if !t.Conversation.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", t.Conversation.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		if tokens := t.totalTokens(); tokens > 0 {
			fmt.Fprintf(&sb, "tokens: %d\n", tokens)
		}
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: flai\n")
		sb.WriteString("---\n\n")
	}

	heading := escapeMarkdown(title)
	if t.Conversation.Icon != "" {
		heading = t.Conversation.Icon + " " + heading
	}
	fmt.Fprintf(&sb, "# %s\n\n", heading)

	for i, msg := range t.Messages {
		if i > 0 {
			sb.WriteString("---\n\n")
		}
		sb.WriteString(e.formatHeading(msg, t, i))

		if msg.Role == model.RoleAssistant && e.options.IncludeReasoning {
			if reasoning := strings.TrimSpace(msg.Reasoning()); reasoning != "" {
				sb.WriteString(quote(reasoning))
				sb.WriteString("\n\n")
			}
		}

		if text := strings.TrimSpace(msg.Text()); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}

		if msg.Role == model.RoleAssistant && msg.MetaInfo != nil {
			sb.WriteString(e.formatSources(msg.MetaInfo.GoogleGroundingData))
			if e.options.IncludeMetadata && msg.MetaInfo.HasUsage() {
				fmt.Fprintf(&sb, "<sub>%s</sub>\n\n", msg.MetaInfo.FormatUsage())
			}
		}
	}

	fmt.Fprintf(&sb, "*Exported from flai on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatHeading returns the role heading of message i, with its branch
// position when it has siblings.
func (e *MarkdownExporter) formatHeading(msg model.Message, t *Transcript, i int) string {
	label := msg.Role.DisplayName()
	if label == "" {
		label = "Unknown"
	}
	if b := t.branch(i); b.HasBranches() {
		label += fmt.Sprintf(" (branch %d of %d)", b.Index+1, b.Count)
	}
	if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
		return fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
	}
	return fmt.Sprintf("### %s\n\n", label)
}

// formatSources lists the web sources of a grounded reply.
func (e *MarkdownExporter) formatSources(g *model.GroundingData) string {
	lines := citation.Footnotes(g)
	if len(lines) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for _, line := range lines {
		fmt.Fprintf(&sb, "- %s\n", line)
	}
	sb.WriteString("\n")
	return sb.String()
}

// quote renders text as a Markdown blockquote.
func quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only characters that would break formatting in headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a YAML value when it contains special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
