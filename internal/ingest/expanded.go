// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingest

import "sort"

// ExpandedSet is the set of message ids whose reasoning is shown expanded.
// It is UI visibility state kept beside the tree. ExpandedSet is immutable:
// With and Without return new sets, so a published set never changes.
type ExpandedSet struct {
	ids map[string]struct{}
}

// NewExpandedSet returns a set holding ids.
func NewExpandedSet(ids ...string) ExpandedSet {
	if len(ids) == 0 {
		return ExpandedSet{}
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return ExpandedSet{ids: m}
}

// Has reports whether id is expanded.
func (s ExpandedSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of expanded ids.
func (s ExpandedSet) Len() int {
	return len(s.ids)
}

// With returns a set that also holds id. It returns s itself when id is
// already present or empty.
func (s ExpandedSet) With(id string) ExpandedSet {
	if id == "" || s.Has(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.ids)+1)
	for k := range s.ids {
		m[k] = struct{}{}
	}
	m[id] = struct{}{}
	return ExpandedSet{ids: m}
}

// Without returns a set that does not hold id.
func (s ExpandedSet) Without(id string) ExpandedSet {
	if !s.Has(id) {
		return s
	}
	m := make(map[string]struct{}, len(s.ids))
	for k := range s.ids {
		if k != id {
			m[k] = struct{}{}
		}
	}
	return ExpandedSet{ids: m}
}

// Toggle returns the set with id's membership flipped.
func (s ExpandedSet) Toggle(id string) ExpandedSet {
	if s.Has(id) {
		return s.Without(id)
	}
	return s.With(id)
}

// IDs returns the members in sorted order.
func (s ExpandedSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
