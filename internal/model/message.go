// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one node of a conversation tree.
//
// An empty ID marks an assistant message that has not been assigned a server
// id yet. An empty ParentID marks the root.
type Message struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id"`
	Role      Role      `json:"role"`
	Content   []Segment `json:"content"`
	MetaInfo  *MetaInfo `json:"meta_info,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Cited is set once grounding citation markers were inserted into the
	// text. Cached copies carry it so they are not annotated again.
	Cited bool `json:"cited,omitempty"`
}

// NewUserMessage creates a user message with a single text segment.
func NewUserMessage(id, parentID, text string, createdAt time.Time) Message {
	return Message{
		ID:        id,
		ParentID:  parentID,
		Role:      RoleUser,
		Content:   []Segment{NewSegment(SegmentMessage, text)},
		CreatedAt: createdAt,
	}
}

// NewPlaceholder creates the id-less assistant message shown between a send
// and the first stream event.
func NewPlaceholder(parentID string, reasoning bool, createdAt time.Time) Message {
	segType := SegmentMessage
	if reasoning {
		segType = SegmentReasoning
	}
	return Message{
		ParentID:  parentID,
		Role:      RoleAssistant,
		Content:   []Segment{NewSegment(segType, "")},
		CreatedAt: createdAt,
	}
}

// IsPlaceholder reports whether the message is still waiting for a server id.
func (m Message) IsPlaceholder() bool {
	return m.ID == ""
}

// IsRoot reports whether the message has no parent.
func (m Message) IsRoot() bool {
	return m.ParentID == ""
}

// LastSegment returns the most recently appended content segment.
func (m Message) LastSegment() (Segment, bool) {
	if len(m.Content) == 0 {
		return Segment{}, false
	}
	return m.Content[len(m.Content)-1], true
}

// Prompt returns the text that would be re-sent for this message:
// the content of its last segment.
func (m Message) Prompt() string {
	seg, ok := m.LastSegment()
	if !ok {
		return ""
	}
	return seg.Text()
}

// Text returns the concatenated text of all message (non-reasoning) segments.
func (m Message) Text() string {
	var sb strings.Builder
	for _, seg := range m.Content {
		if seg.Type == SegmentMessage {
			sb.WriteString(seg.Text())
		}
	}
	return sb.String()
}

// Reasoning returns the concatenated text of all reasoning segments.
func (m Message) Reasoning() string {
	var sb strings.Builder
	for _, seg := range m.Content {
		if seg.Type == SegmentReasoning {
			sb.WriteString(seg.Text())
		}
	}
	return sb.String()
}

// Preview returns a truncated single-line preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Text(), "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a deep copy. Snapshots handed to renderers are clones so that
// later stream mutations never show through.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = make([]Segment, len(m.Content))
		copy(out.Content, m.Content)
	}
	if m.MetaInfo != nil {
		meta := m.MetaInfo.Clone()
		out.MetaInfo = &meta
	}
	return out
}

// UnmarshalJSON accepts both RFC 3339 and "2006-01-02 15:04:05" timestamps,
// and a null content array.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		CreatedAt flexTime `json:"created_at"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.CreatedAt = time.Time(aux.CreatedAt)
	return nil
}

// flexTime decodes the timestamp layouts the backend is known to emit.
type flexTime time.Time

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Unix seconds
		var n int64
		if nerr := json.Unmarshal(data, &n); nerr != nil {
			return err
		}
		*t = flexTime(time.Unix(n, 0))
		return nil
	}
	if s == "" {
		*t = flexTime(time.Time{})
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			*t = flexTime(parsed)
			return nil
		}
		lastErr = err
	}
	return lastErr
}
