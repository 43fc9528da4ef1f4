// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "fmt"

// MetaInfo is the usage/provenance record attached to a finished assistant
// message.
type MetaInfo struct {
	ProviderName        string         `json:"provider_name"`
	ModelName           string         `json:"model_name"`
	PromptTokenCount    int            `json:"prompt_token_count"`
	ReasoningTokenCount int            `json:"reasoning_token_count"`
	ResponseTokenCount  int            `json:"response_token_count"`
	CachedTokenCount    int            `json:"cached_token_count"`
	ToolUseTokenCount   int            `json:"tool_use_token_count"`
	GoogleGroundingData *GroundingData `json:"google_grounding_data,omitempty"`
}

// TotalTokens sums every token category.
func (m MetaInfo) TotalTokens() int {
	return m.PromptTokenCount + m.ReasoningTokenCount + m.ResponseTokenCount +
		m.CachedTokenCount + m.ToolUseTokenCount
}

// HasUsage reports whether any token count was recorded.
func (m MetaInfo) HasUsage() bool {
	return m.TotalTokens() > 0
}

// FormatUsage returns a one-line usage summary.
// Format: "provider/model | in 120 | reasoning 40 | out 300 | cached 0"
func (m MetaInfo) FormatUsage() string {
	source := m.ModelName
	if m.ProviderName != "" {
		source = m.ProviderName + "/" + m.ModelName
	}
	line := fmt.Sprintf("in %d | out %d", m.PromptTokenCount, m.ResponseTokenCount)
	if m.ReasoningTokenCount > 0 {
		line += fmt.Sprintf(" | reasoning %d", m.ReasoningTokenCount)
	}
	if m.CachedTokenCount > 0 {
		line += fmt.Sprintf(" | cached %d", m.CachedTokenCount)
	}
	if m.ToolUseTokenCount > 0 {
		line += fmt.Sprintf(" | tools %d", m.ToolUseTokenCount)
	}
	if source == "" {
		return line
	}
	return source + " | " + line
}

// Clone returns a deep copy.
func (m MetaInfo) Clone() MetaInfo {
	out := m
	if m.GoogleGroundingData != nil {
		g := m.GoogleGroundingData.Clone()
		out.GoogleGroundingData = &g
	}
	return out
}

// =============================================================================
// GROUNDING DATA
// =============================================================================

// GroundingData is search-backed citation metadata. Field names follow the
// upstream provider's camelCase wire format.
type GroundingData struct {
	SearchEntryPoint  *SearchEntryPoint  `json:"searchEntryPoint,omitempty"`
	GroundingChunks   []GroundingChunk   `json:"groundingChunks"`
	GroundingSupports []GroundingSupport `json:"groundingSupports"`
	WebSearchQueries  []string           `json:"webSearchQueries"`
}

// SearchEntryPoint carries the provider-rendered search widget.
type SearchEntryPoint struct {
	RenderedContent string `json:"renderedContent"`
}

// GroundingChunk is one cited source.
type GroundingChunk struct {
	Web *WebSource `json:"web,omitempty"`
}

// WebSource is a web page backing a grounding chunk.
type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// GroundingSupport links a span of response text to the chunks that back it.
type GroundingSupport struct {
	Segment               SupportSegment `json:"segment"`
	GroundingChunkIndices []int          `json:"groundingChunkIndices"`
}

// SupportSegment is the supported span of response text.
type SupportSegment struct {
	StartIndex *int   `json:"startIndex,omitempty"`
	EndIndex   int    `json:"endIndex"`
	Text       string `json:"text"`
}

// Sources returns the web sources in chunk order, skipping chunks without one.
func (g GroundingData) Sources() []WebSource {
	out := make([]WebSource, 0, len(g.GroundingChunks))
	for _, c := range g.GroundingChunks {
		if c.Web != nil && c.Web.URI != "" {
			out = append(out, *c.Web)
		}
	}
	return out
}

// Clone returns a deep copy.
func (g GroundingData) Clone() GroundingData {
	out := g
	if g.SearchEntryPoint != nil {
		sep := *g.SearchEntryPoint
		out.SearchEntryPoint = &sep
	}
	if g.GroundingChunks != nil {
		out.GroundingChunks = make([]GroundingChunk, len(g.GroundingChunks))
		for i, c := range g.GroundingChunks {
			if c.Web != nil {
				web := *c.Web
				c.Web = &web
			}
			out.GroundingChunks[i] = c
		}
	}
	if g.GroundingSupports != nil {
		out.GroundingSupports = make([]GroundingSupport, len(g.GroundingSupports))
		for i, s := range g.GroundingSupports {
			if s.Segment.StartIndex != nil {
				start := *s.Segment.StartIndex
				s.Segment.StartIndex = &start
			}
			if s.GroundingChunkIndices != nil {
				s.GroundingChunkIndices = append([]int(nil), s.GroundingChunkIndices...)
			}
			out.GroundingSupports[i] = s
		}
	}
	if g.WebSearchQueries != nil {
		out.WebSearchQueries = append([]string(nil), g.WebSearchQueries...)
	}
	return out
}
