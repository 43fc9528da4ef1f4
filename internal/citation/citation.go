// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package citation inserts grounding citation markers into response text.
package citation

import (
	"fmt"
	"strings"

	"github.com/jeranaias/flai-tui/internal/model"
)

// Marker returns the citation marker for a chunk index: a markdown link
// "[[n]](uri)" when the chunk has a web uri, otherwise "[n]". n is the
// 1-based chunk number.
func Marker(index int, chunks []model.GroundingChunk) string {
	if index >= 0 && index < len(chunks) {
		if web := chunks[index].Web; web != nil && web.URI != "" {
			return fmt.Sprintf("[[%d]](%s)", index+1, web.URI)
		}
	}
	return fmt.Sprintf("[%d]", index+1)
}

// Markers concatenates the markers of every index in order, with no separator.
func Markers(indices []int, chunks []model.GroundingChunk) string {
	var sb strings.Builder
	for _, i := range indices {
		sb.WriteString(Marker(i, chunks))
	}
	return sb.String()
}

// Apply inserts " <markers>" right after the first literal occurrence of each
// support's segment text, processing supports in order against the text
// annotated so far. Supports with empty segment text or no indices are
// skipped. Text that does not contain the anchor is left unchanged.
//
// Apply is not idempotent: overlapping anchors split earlier markers, so
// annotated text must never be passed in again. AnnotateMessage tracks this
// with Message.Cited.
func Apply(text string, supports []model.GroundingSupport, chunks []model.GroundingChunk) string {
	if len(supports) == 0 {
		return text
	}
	out := text
	for _, s := range supports {
		anchor := s.Segment.Text
		if anchor == "" {
			continue
		}
		markers := Markers(s.GroundingChunkIndices, chunks)
		if markers == "" {
			continue
		}
		out = strings.Replace(out, anchor, anchor+" "+markers, 1)
	}
	return out
}

// ApplyGrounding annotates text using a grounding record. A nil record
// returns text unchanged.
func ApplyGrounding(text string, g *model.GroundingData) string {
	if g == nil {
		return text
	}
	return Apply(text, g.GroundingSupports, g.GroundingChunks)
}

// AnnotateMessage returns a copy of msg whose last segment has been annotated
// with the message's grounding data, and marks it Cited. Only a trailing
// "message" segment is annotated. A message already Cited, or one without
// grounding, is returned as an unchanged clone.
func AnnotateMessage(msg model.Message) model.Message {
	out := msg.Clone()
	if out.Cited || out.MetaInfo == nil || out.MetaInfo.GoogleGroundingData == nil {
		return out
	}
	last, ok := out.LastSegment()
	if !ok || last.Type != model.SegmentMessage {
		return out
	}
	out.Content[len(out.Content)-1] = last.WithText(ApplyGrounding(last.Text(), out.MetaInfo.GoogleGroundingData))
	out.Cited = true
	return out
}

// Footnotes renders the numbered source list of a grounding record, one
// "[n] title <uri>" line per web chunk. Numbering follows chunk positions so
// it matches the inline markers.
func Footnotes(g *model.GroundingData) []string {
	if g == nil {
		return nil
	}
	var lines []string
	for i, c := range g.GroundingChunks {
		if c.Web == nil || c.Web.URI == "" {
			continue
		}
		title := c.Web.Title
		if title == "" {
			title = c.Web.URI
		}
		lines = append(lines, fmt.Sprintf("[%d] %s <%s>", i+1, title, c.Web.URI))
	}
	return lines
}
