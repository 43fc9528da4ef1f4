// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// SegmentType tags one chunk of message content.
type SegmentType string

const (
	SegmentMessage   SegmentType = "message"
	SegmentReasoning SegmentType = "reasoning"
)

// IsContent reports whether events of this type carry segment text.
// Metadata event types (meta_info, google_grounding_data) do not.
func (t SegmentType) IsContent() bool {
	switch t {
	case "", "meta_info", "google_grounding_data":
		return false
	}
	return true
}

// SegmentData is the payload of a segment. The concrete type is selected by
// the segment's type tag.
type SegmentData interface {
	Text() string
	WithText(text string) SegmentData
}

// MessageData is the payload of a "message" segment.
type MessageData struct {
	Content string `json:"content"`
}

func (d MessageData) Text() string                     { return d.Content }
func (d MessageData) WithText(text string) SegmentData { return MessageData{Content: text} }

// ReasoningData is the payload of a "reasoning" segment.
type ReasoningData struct {
	Content string `json:"content"`
}

func (d ReasoningData) Text() string                     { return d.Content }
func (d ReasoningData) WithText(text string) SegmentData { return ReasoningData{Content: text} }

// RawData holds the payload of a segment type this client does not know yet.
type RawData struct {
	Content string `json:"content"`
}

func (d RawData) Text() string                     { return d.Content }
func (d RawData) WithText(text string) SegmentData { return RawData{Content: text} }

// Segment is one typed chunk of a message's content.
// Segments are values; Append returns a new segment.
type Segment struct {
	Type SegmentType
	Data SegmentData
}

// NewSegment builds a segment whose payload variant matches t.
func NewSegment(t SegmentType, text string) Segment {
	return Segment{Type: t, Data: newData(t, text)}
}

func newData(t SegmentType, text string) SegmentData {
	switch t {
	case SegmentMessage:
		return MessageData{Content: text}
	case SegmentReasoning:
		return ReasoningData{Content: text}
	default:
		return RawData{Content: text}
	}
}

// Text returns the segment text.
func (s Segment) Text() string {
	if s.Data == nil {
		return ""
	}
	return s.Data.Text()
}

// Append returns a copy of the segment with text appended.
func (s Segment) Append(text string) Segment {
	if s.Data == nil {
		return NewSegment(s.Type, text)
	}
	return Segment{Type: s.Type, Data: s.Data.WithText(s.Data.Text() + text)}
}

// WithText returns a copy of the segment with its text replaced.
func (s Segment) WithText(text string) Segment {
	return NewSegment(s.Type, text)
}

// MarshalJSON writes the {"type": ..., "data": {...}} wire shape.
func (s Segment) MarshalJSON() ([]byte, error) {
	data := s.Data
	if data == nil {
		data = newData(s.Type, "")
	}
	return json.Marshal(struct {
		Type SegmentType `json:"type"`
		Data SegmentData `json:"data"`
	}{Type: s.Type, Data: data})
}

// UnmarshalJSON decodes the wire shape into the payload variant for the type.
func (s *Segment) UnmarshalJSON(b []byte) error {
	var wire struct {
		Type SegmentType     `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	var payload struct {
		Content string `json:"content"`
	}
	if len(wire.Data) > 0 && string(wire.Data) != "null" {
		if err := json.Unmarshal(wire.Data, &payload); err != nil {
			return fmt.Errorf("segment %q: %w", wire.Type, err)
		}
	}
	*s = NewSegment(wire.Type, payload.Content)
	return nil
}
