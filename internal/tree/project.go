// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"github.com/jeranaias/flai-tui/internal/model"
)

// Direction selects the neighbouring sibling in SwitchSibling.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// String returns "prev" or "next".
func (d Direction) String() string {
	if d < 0 {
		return "prev"
	}
	return "next"
}

// =============================================================================
// PROJECTION
// =============================================================================

// Project returns the path from the root to the message with this id,
// extended downward through first children until a leaf. An unknown id
// yields an empty path.
func Project(s *Store, id string) Path {
	if !s.Has(id) {
		return Path{}
	}

	var upward []model.Message
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; {
		msg, ok := s.Get(cur)
		if !ok {
			break
		}
		seen[cur] = true
		upward = append(upward, msg)
		cur = msg.ParentID
	}

	for i, j := 0, len(upward)-1; i < j; i, j = i+1, j-1 {
		upward[i], upward[j] = upward[j], upward[i]
	}

	return Descend(s, Path{msgs: upward})
}

// ProjectLast projects the path through the most recently created message,
// the starting point after a fresh load.
func ProjectLast(s *Store) Path {
	last, ok := s.Last()
	if !ok {
		return Path{}
	}
	return Project(s, last.ID)
}

// Descend extends p from its leaf by always following the earliest-created
// child until a leaf is reached.
func Descend(s *Store, p Path) Path {
	leaf, ok := p.Last()
	if !ok || leaf.ID == "" {
		return p
	}

	var tail []model.Message
	seen := map[string]bool{leaf.ID: true}
	for _, m := range p.msgs {
		seen[m.ID] = true
	}
	for cur := leaf.ID; ; {
		child, ok := s.FirstChild(cur)
		if !ok || seen[child] {
			break
		}
		seen[child] = true
		msg, _ := s.Get(child)
		tail = append(tail, msg)
		cur = child
	}
	if len(tail) == 0 {
		return p
	}

	out := make([]model.Message, len(p.msgs), len(p.msgs)+len(tail))
	copy(out, p.msgs)
	return Path{msgs: append(out, tail...)}
}

// =============================================================================
// BRANCH NAVIGATION
// =============================================================================

// SwitchSibling moves the path at message id onto its previous or next
// sibling: the prefix before id is kept, the sibling is appended and the path
// descends through first children. The store is never modified.
//
// It is a no-op, returning p and false, when id is not on the path, is not
// stored, is a root, or the move would cross the first or last sibling.
func SwitchSibling(s *Store, p Path, id string, dir Direction) (Path, bool) {
	idx := p.IndexOf(id)
	if idx < 0 || id == "" {
		return p, false
	}
	msg, ok := s.Get(id)
	if !ok || msg.ParentID == "" {
		return p, false
	}

	siblings := s.Children(msg.ParentID)
	pos := -1
	for i, sid := range siblings {
		if sid == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return p, false
	}

	target := pos + int(dir)
	if target < 0 || target >= len(siblings) {
		return p, false
	}

	sibling, _ := s.Get(siblings[target])
	return Descend(s, p.Truncate(idx).Append(sibling)), true
}

// BranchInfo describes a message's position among its siblings.
type BranchInfo struct {
	Index int
	Count int
}

// HasBranches reports whether the message has alternatives to switch to.
func (b BranchInfo) HasBranches() bool {
	return b.Count > 1
}

// Branches returns the sibling position of every message on the path, in
// path order. Placeholders report a single-sibling branch.
func Branches(s *Store, p Path) []BranchInfo {
	out := make([]BranchInfo, len(p.msgs))
	for i, m := range p.msgs {
		idx, count, ok := s.SiblingIndex(m.ID)
		if !ok {
			out[i] = BranchInfo{Index: 0, Count: 1}
			continue
		}
		out[i] = BranchInfo{Index: idx, Count: count}
	}
	return out
}
