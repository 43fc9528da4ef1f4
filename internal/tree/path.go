// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"github.com/jeranaias/flai-tui/internal/model"
)

// Path is the root-to-leaf sequence of messages currently displayed.
//
// A Path is an immutable value: messages are copied in, copied out, and every
// modifying method returns a new Path. The zero value is an empty path.
type Path struct {
	msgs []model.Message
}

// NewPath builds a path from msgs, root first.
func NewPath(msgs ...model.Message) Path {
	if len(msgs) == 0 {
		return Path{}
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return Path{msgs: out}
}

// Len returns the number of messages in the path.
func (p Path) Len() int {
	return len(p.msgs)
}

// IsEmpty reports whether the path has no messages.
func (p Path) IsEmpty() bool {
	return len(p.msgs) == 0
}

// At returns a copy of the i-th message.
func (p Path) At(i int) model.Message {
	return p.msgs[i].Clone()
}

// Last returns a copy of the leaf message.
func (p Path) Last() (model.Message, bool) {
	if len(p.msgs) == 0 {
		return model.Message{}, false
	}
	return p.msgs[len(p.msgs)-1].Clone(), true
}

// Messages returns copies of all messages, root first.
func (p Path) Messages() []model.Message {
	out := make([]model.Message, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Clone()
	}
	return out
}

// IDs returns the message ids in path order, skipping id-less placeholders.
func (p Path) IDs() []string {
	ids := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// IndexOf returns the position of the message with this id, or -1. The empty
// id matches the first placeholder.
func (p Path) IndexOf(id string) int {
	for i, m := range p.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether a message with this id is on the path.
func (p Path) Contains(id string) bool {
	return p.IndexOf(id) >= 0
}

// Append returns a new path with msgs added at the leaf end.
func (p Path) Append(msgs ...model.Message) Path {
	out := make([]model.Message, len(p.msgs), len(p.msgs)+len(msgs))
	copy(out, p.msgs)
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return Path{msgs: out}
}

// Truncate returns a new path holding the first n messages.
func (p Path) Truncate(n int) Path {
	if n <= 0 {
		return Path{}
	}
	if n >= len(p.msgs) {
		n = len(p.msgs)
	}
	out := make([]model.Message, n)
	copy(out, p.msgs[:n])
	return Path{msgs: out}
}

// Replace returns a new path with the i-th message replaced by msg.
// An out of range index returns p unchanged.
func (p Path) Replace(i int, msg model.Message) Path {
	if i < 0 || i >= len(p.msgs) {
		return p
	}
	out := make([]model.Message, len(p.msgs))
	copy(out, p.msgs)
	out[i] = msg.Clone()
	return Path{msgs: out}
}

// ReplaceLast returns a new path with the leaf replaced by msg, or a
// single-message path when p is empty.
func (p Path) ReplaceLast(msg model.Message) Path {
	if len(p.msgs) == 0 {
		return NewPath(msg)
	}
	return p.Replace(len(p.msgs)-1, msg)
}

// Equal reports whether both paths hold the same message ids in the same
// order.
func (p Path) Equal(other Path) bool {
	if len(p.msgs) != len(other.msgs) {
		return false
	}
	for i := range p.msgs {
		if p.msgs[i].ID != other.msgs[i].ID {
			return false
		}
	}
	return true
}
