// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jeranaias/flai-tui/internal/model"
)

var (
	errConversationNotFound = errors.New("Conversation not found")
	errInvalidMessagePath   = errors.New("Invalid message path")
	errNoMessageIDs         = errors.New("Ids and id cannot be both empty")
)

// conversationRecord is one stored conversation. seq breaks ties between
// conversations created in the same instant.
type conversationRecord struct {
	conv     model.Conversation
	owner    string
	seq      int
	messages map[string]model.Message
}

// memoryStore holds every conversation in memory.
type memoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversationRecord
	seq           int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{conversations: make(map[string]*conversationRecord)}
}

// lookup returns the owner's conversation. Callers hold the lock.
func (s *memoryStore) lookup(owner, id string) (*conversationRecord, error) {
	rec, ok := s.conversations[id]
	if !ok || rec.owner != owner {
		return nil, errConversationNotFound
	}
	return rec, nil
}

func (s *memoryStore) createConversation(owner, id string, now time.Time) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	conv := model.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	s.conversations[id] = &conversationRecord{
		conv:     conv,
		owner:    owner,
		seq:      s.seq,
		messages: make(map[string]model.Message),
	}
	return conv
}

// listConversations returns one page of the owner's conversations, newest
// first. current is 1-based.
func (s *memoryStore) listConversations(owner string, current, size int) model.Page[model.Conversation] {
	s.mu.RLock()
	var recs []*conversationRecord
	for _, rec := range s.conversations {
		if rec.owner == owner {
			recs = append(recs, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b *conversationRecord) int {
		if c := b.conv.CreatedAt.Compare(a.conv.CreatedAt); c != 0 {
			return c
		}
		return b.seq - a.seq
	})

	page := model.Page[model.Conversation]{
		Total:   len(recs),
		Current: current,
		Size:    size,
		Records: []model.Conversation{},
	}
	start := (current - 1) * size
	if start >= len(recs) {
		return page
	}
	end := min(start+size, len(recs))
	for _, rec := range recs[start:end] {
		page.Records = append(page.Records, rec.conv)
	}
	return page
}

func (s *memoryStore) deleteConversation(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(owner, id); err != nil {
		return err
	}
	delete(s.conversations, id)
	return nil
}

// messages returns the conversation's messages in creation order.
func (s *memoryStore) messages(owner, id string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(rec.messages))
	for _, m := range rec.messages {
		out = append(out, m.Clone())
	}
	slices.SortStableFunc(out, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

// history resolves a message path. Every id must exist in the conversation.
func (s *memoryStore) history(owner, id string, path []string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(path))
	for _, mid := range path {
		m, ok := rec.messages[mid]
		if !ok {
			return nil, errInvalidMessagePath
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

// insertMessage stores msg unless a message with its id already exists. It
// reports whether msg was stored.
func (s *memoryStore) insertMessage(owner, id string, msg model.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return false, err
	}
	if _, exists := rec.messages[msg.ID]; exists {
		return false, nil
	}
	rec.messages[msg.ID] = msg.Clone()
	rec.conv.UpdatedAt = msg.CreatedAt
	return true, nil
}

// saveMessage stores msg, replacing any message with its id.
func (s *memoryStore) saveMessage(owner, id string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	rec.messages[msg.ID] = msg.Clone()
	rec.conv.UpdatedAt = msg.CreatedAt
	return nil
}

// deleteMessage removes one message and moves its children under parentID.
func (s *memoryStore) deleteMessage(owner, id, messageID, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	delete(rec.messages, messageID)
	for mid, m := range rec.messages {
		if m.ParentID == messageID {
			m.ParentID = parentID
			rec.messages[mid] = m
		}
	}
	return nil
}

// deleteMessages removes the listed messages. Their children are left as
// they are.
func (s *memoryStore) deleteMessages(owner, id string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	for _, mid := range ids {
		delete(rec.messages, mid)
	}
	return nil
}

func (s *memoryStore) setTitle(owner, id string, title model.GeneratedTitle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(owner, id)
	if err != nil {
		return err
	}
	rec.conv.Title = title.Title
	rec.conv.Icon = title.Icon
	return nil
}
