// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tree holds the branching message tree of one conversation and the
// linear active path projected from it.
//
// The Store owns every message. A Path is an immutable snapshot of the
// root-to-leaf sequence currently displayed; it never aliases store memory,
// so it can be handed to a renderer on another goroutine.
package tree

import (
	"sort"

	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/model"
)

// node is a message plus its children ordered by CreatedAt.
type node struct {
	msg      model.Message
	children []*node
	seq      uint64 // insertion order, breaks CreatedAt ties
}

// Store is the in-memory tree of all messages of one conversation.
//
// Store operations never fail. A message whose parent is not (yet) present is
// kept as pending and linked once the parent arrives, which tolerates an
// assistant reply being recorded before its user message.
//
// Store is not safe for concurrent use; callers serialize access.
type Store struct {
	nodes   map[string]*node
	pending map[string][]*node // parent id -> children waiting for it
	seq     uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		nodes:   make(map[string]*node),
		pending: make(map[string][]*node),
	}
}

// =============================================================================
// LOADING
// =============================================================================

// LoadFromFlatList replaces the store contents with msgs, an unordered flat
// list as returned by the backend. Messages carrying grounding data get their
// citations applied before linking. It returns the id of the most recently
// created message, ties going to the one seen last, or "" when msgs is empty.
func (s *Store) LoadFromFlatList(msgs []model.Message) string {
	s.nodes = make(map[string]*node, len(msgs))
	s.pending = make(map[string][]*node)

	var last *node
	order := make([]*node, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		n := &node{msg: citation.AnnotateMessage(m), seq: s.nextSeq()}
		s.nodes[m.ID] = n
		order = append(order, n)
		if last == nil || !n.msg.CreatedAt.Before(last.msg.CreatedAt) {
			last = n
		}
	}

	// link in input order so CreatedAt ties keep a stable sibling order
	for _, n := range order {
		if s.nodes[n.msg.ID] == n {
			s.link(n)
		}
	}

	if last == nil {
		return ""
	}
	return last.msg.ID
}

// =============================================================================
// MUTATION
// =============================================================================

// Upsert inserts msg or replaces the message with the same id. A replaced
// message keeps its children. Messages without an id are ignored.
func (s *Store) Upsert(msg model.Message) {
	if msg.ID == "" {
		return
	}
	msg = msg.Clone()

	if existing, ok := s.nodes[msg.ID]; ok {
		oldParent := existing.msg.ParentID
		existing.msg = msg
		existing.seq = s.nextSeq()
		if oldParent != msg.ParentID {
			s.unlink(existing, oldParent)
			s.link(existing)
		} else if p, ok := s.nodes[msg.ParentID]; ok {
			sortChildren(p.children)
		}
		return
	}

	n := &node{msg: msg, seq: s.nextSeq()}
	s.nodes[msg.ID] = n
	s.link(n)

	// adopt children that arrived first
	if waiting, ok := s.pending[msg.ID]; ok {
		delete(s.pending, msg.ID)
		n.children = append(n.children, waiting...)
		sortChildren(n.children)
	}
}

// Remove detaches the message from its parent and from the index. Its
// descendants stay in the store, pending under the removed id. It reports
// whether the message existed.
func (s *Store) Remove(id string) bool {
	n, ok := s.nodes[id]
	if !ok {
		return false
	}
	s.unlink(n, n.msg.ParentID)
	delete(s.nodes, id)
	if len(n.children) > 0 {
		s.pending[id] = append(s.pending[id], n.children...)
	}
	return true
}

// Reset removes every message.
func (s *Store) Reset() {
	s.nodes = make(map[string]*node)
	s.pending = make(map[string][]*node)
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// link attaches n to its parent's children, or to the pending list when the
// parent is unknown. Roots are not linked anywhere.
func (s *Store) link(n *node) {
	pid := n.msg.ParentID
	if pid == "" {
		return
	}
	if p, ok := s.nodes[pid]; ok {
		p.children = append(p.children, n)
		sortChildren(p.children)
		return
	}
	s.pending[pid] = append(s.pending[pid], n)
}

func (s *Store) unlink(n *node, parentID string) {
	if parentID == "" {
		return
	}
	if p, ok := s.nodes[parentID]; ok {
		p.children = without(p.children, n)
		return
	}
	if waiting, ok := s.pending[parentID]; ok {
		waiting = without(waiting, n)
		if len(waiting) == 0 {
			delete(s.pending, parentID)
		} else {
			s.pending[parentID] = waiting
		}
	}
}

func without(list []*node, n *node) []*node {
	out := list[:0:0]
	for _, c := range list {
		if c != n {
			out = append(out, c)
		}
	}
	return out
}

// sortChildren orders siblings by CreatedAt, keeping insertion order for ties.
func sortChildren(children []*node) {
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].msg.CreatedAt.Before(children[j].msg.CreatedAt)
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Len returns the number of messages in the store.
func (s *Store) Len() int {
	return len(s.nodes)
}

// Has reports whether a message with this id is stored.
func (s *Store) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Get returns a copy of the message with this id.
func (s *Store) Get(id string) (model.Message, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return model.Message{}, false
	}
	return n.msg.Clone(), true
}

// Children returns the ids of the message's children in sibling order.
func (s *Store) Children(id string) []string {
	n, ok := s.nodes[id]
	if !ok || len(n.children) == 0 {
		return nil
	}
	ids := make([]string, len(n.children))
	for i, c := range n.children {
		ids[i] = c.msg.ID
	}
	return ids
}

// FirstChild returns the id of the earliest-created child.
func (s *Store) FirstChild(id string) (string, bool) {
	n, ok := s.nodes[id]
	if !ok || len(n.children) == 0 {
		return "", false
	}
	return n.children[0].msg.ID, true
}

// SiblingIndex returns the position of the message among its parent's
// children and the number of siblings (itself included). Roots and messages
// whose parent is not stored report (0, 1).
func (s *Store) SiblingIndex(id string) (index, count int, ok bool) {
	n, found := s.nodes[id]
	if !found {
		return 0, 0, false
	}
	p, hasParent := s.nodes[n.msg.ParentID]
	if n.msg.ParentID == "" || !hasParent {
		return 0, 1, true
	}
	for i, c := range p.children {
		if c == n {
			return i, len(p.children), true
		}
	}
	return 0, 1, true
}

// Root returns the root message. With more than one parentless message the
// earliest created wins.
func (s *Store) Root() (model.Message, bool) {
	var root *node
	for _, n := range s.nodes {
		if n.msg.ParentID != "" {
			continue
		}
		if root == nil || n.msg.CreatedAt.Before(root.msg.CreatedAt) ||
			(n.msg.CreatedAt.Equal(root.msg.CreatedAt) && n.seq < root.seq) {
			root = n
		}
	}
	if root == nil {
		return model.Message{}, false
	}
	return root.msg.Clone(), true
}

// Last returns the most recently created message, ties going to the most
// recently stored one.
func (s *Store) Last() (model.Message, bool) {
	var last *node
	for _, n := range s.nodes {
		if last == nil || n.msg.CreatedAt.After(last.msg.CreatedAt) ||
			(n.msg.CreatedAt.Equal(last.msg.CreatedAt) && n.seq > last.seq) {
			last = n
		}
	}
	if last == nil {
		return model.Message{}, false
	}
	return last.msg.Clone(), true
}

// Messages returns copies of every stored message in insertion order.
func (s *Store) Messages() []model.Message {
	nodes := make([]*node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })
	out := make([]model.Message, len(nodes))
	for i, n := range nodes {
		out[i] = n.msg.Clone()
	}
	return out
}

// Depth returns the number of messages from the root to id inclusive, or 0
// when id is unknown.
func (s *Store) Depth(id string) int {
	depth := 0
	seen := make(map[string]bool)
	for cur := id; cur != ""; {
		n, ok := s.nodes[cur]
		if !ok || seen[cur] {
			break
		}
		seen[cur] = true
		depth++
		cur = n.msg.ParentID
	}
	return depth
}
