// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation composes the message tree, the stream ingest engine
// and the backend client into the user-facing chat operations: load, send,
// retry, edit, delete and branch navigation.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/ingest"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
)

// Errors returned by Session operations. None of them involve a backend call.
var (
	ErrBusy         = errors.New("a reply is still streaming")
	ErrEmptyPrompt  = errors.New("message is empty")
	ErrNoModel      = errors.New("no model selected")
	ErrInvalidState = errors.New("something went wrong, please try again")
	ErrNotOnPath    = errors.New("message is not on the active path")
	ErrEditRoot     = errors.New("the first message cannot be edited, retry it instead")
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is the subset of the API client a session needs.
type Backend interface {
	GetConversation(ctx context.Context, id string) ([]model.Message, error)
	StreamMessage(ctx context.Context, req api.SendRequest) (*api.EventReader, error)
	DeleteMessages(ctx context.Context, req api.DeleteMessagesRequest) error
	GenerateTitle(ctx context.Context, id string) (*model.GeneratedTitle, error)
}

// Cache keeps the last fetched message list of a conversation for offline
// display.
type Cache interface {
	SaveConversation(ctx context.Context, conversationID string, msgs []model.Message) error
	LoadConversation(ctx context.Context, conversationID string) ([]model.Message, error)
}

// ModelSource reports the currently selected model.
type ModelSource interface {
	CurrentModel() (model.ModelInfo, bool)
}

// Options configure a Session. Every field is optional.
type Options struct {
	Cache  Cache
	Models ModelSource
	Logger *slog.Logger

	// OnChange receives a snapshot after every state change, including each
	// stream event. It is called without the session lock held.
	OnChange func(Snapshot)

	// OnTitle receives the generated title after the first exchange of a
	// conversation.
	OnTitle func(conversationID string, title model.GeneratedTitle)

	// OnReply receives each assistant reply that finished streaming.
	OnReply func(conversationID string, reply model.Message)

	Now   func() time.Time
	NewID func() string
}

// Snapshot is an immutable view of the session for rendering.
type Snapshot struct {
	ConversationID string
	Path           tree.Path
	Branches       []tree.BranchInfo
	Expanded       ingest.ExpandedSet
	Streaming      bool
	Stale          bool
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds the message tree and active path of one conversation.
//
// Mutations are serialized: while one is in flight (including the whole
// stream of a reply) others fail with ErrBusy. Snapshot and the OnChange
// callback may be used from any goroutine.
type Session struct {
	id      string
	backend Backend
	cache   Cache
	models  ModelSource
	logger  *slog.Logger

	onChange func(Snapshot)
	onTitle  func(string, model.GeneratedTitle)
	onReply  func(string, model.Message)
	now      func() time.Time
	newID    func() string

	mu        sync.Mutex
	store     *tree.Store
	path      tree.Path
	expanded  ingest.ExpandedSet
	streamID  string
	busy      bool
	streaming bool
	stale     bool
	tools     []string
	cancel    context.CancelFunc
}

// New creates a session for the conversation with this id.
func New(conversationID string, backend Backend, opts Options) *Session {
	s := &Session{
		id:       conversationID,
		backend:  backend,
		cache:    opts.Cache,
		models:   opts.Models,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		onTitle:  opts.OnTitle,
		onReply:  opts.OnReply,
		now:      opts.Now,
		newID:    opts.NewID,
		store:    tree.NewStore(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With("conversation", conversationID)
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// ID returns the conversation id.
func (s *Session) ID() string {
	return s.id
}

// SetTools selects the tools sent with every following message.
func (s *Session) SetTools(tools []string) {
	s.mu.Lock()
	s.tools = append([]string(nil), tools...)
	s.mu.Unlock()
}

// Snapshot returns the current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ConversationID: s.id,
		Path:           s.path,
		Branches:       tree.Branches(s.store, s.path),
		Expanded:       s.expanded,
		Streaming:      s.streaming,
		Stale:          s.stale,
	}
}

func (s *Session) publish() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.Snapshot())
}

// begin claims the session for one mutation.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// Busy reports whether a mutation is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Cancel aborts the reply being streamed, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// =============================================================================
// LOAD
// =============================================================================

// Load fetches the conversation and rebuilds the tree and the active path
// through the most recently created message.
//
// On failure the previous state is kept. If the failure is a network error
// and the cache holds a copy, that copy is shown and the snapshot is marked
// Stale; the error is still returned.
func (s *Session) Load(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	msgs, err := s.backend.GetConversation(ctx, s.id)
	if err != nil {
		s.logger.Warn("failed to load conversation", "error", err)
		if api.IsNetwork(err) && s.loadCached(ctx) {
			s.publish()
		}
		return fmt.Errorf("load conversation: %w", err)
	}

	s.mu.Lock()
	s.rebuildLocked(msgs)
	s.stale = false
	s.mu.Unlock()

	s.saveCache(ctx)
	s.publish()
	return nil
}

func (s *Session) loadCached(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.LoadConversation(ctx, s.id)
	if err != nil || len(cached) == 0 {
		if err != nil {
			s.logger.Debug("no cached copy", "error", err)
		}
		return false
	}
	s.mu.Lock()
	s.rebuildLocked(cached)
	s.stale = true
	s.mu.Unlock()
	return true
}

func (s *Session) rebuildLocked(msgs []model.Message) {
	s.store = tree.NewStore()
	last := s.store.LoadFromFlatList(msgs)
	s.path = tree.Project(s.store, last)
	s.expanded = ingest.ExpandedSet{}
}

func (s *Session) saveCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	msgs := s.store.Messages()
	s.mu.Unlock()
	if err := s.cache.SaveConversation(ctx, s.id, msgs); err != nil {
		s.logger.Warn("failed to cache conversation", "error", err)
	}
}

// =============================================================================
// SEND / RETRY / EDIT
// =============================================================================

// Send appends a user message to the active path and streams the reply.
//
// The user message is stored before the request is made and stays in place
// if the request or the stream fails, so it can be retried.
func (s *Session) Send(ctx context.Context, text string) error {
	text, err := normalizePrompt(text)
	if err != nil {
		return err
	}
	selected, err := s.selectedModel()
	if err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	parentID := ""
	if leaf, ok := s.path.Last(); ok {
		parentID = leaf.ID
	}
	firstExchange := s.store.Len() == 0
	user := model.NewUserMessage(s.newID(), parentID, text, s.now())
	s.store.Upsert(user)
	base := s.path.Append(user)
	s.mu.Unlock()

	err = s.stream(ctx, user, base, text, selected)
	if err == nil && firstExchange {
		s.generateTitle(ctx)
	}
	return err
}

// Retry re-sends the user turn at or before message id. For an assistant
// message the path is cut before it (regenerate); for a user message the
// path is cut after it (re-send). The cut path must end with a user message,
// otherwise ErrInvalidState is returned and nothing changes.
func (s *Session) Retry(ctx context.Context, id string) error {
	selected, err := s.selectedModel()
	if err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	idx := s.path.IndexOf(id)
	if id == "" || idx < 0 {
		s.mu.Unlock()
		return ErrNotOnPath
	}
	target := s.path.At(idx)
	cut := idx + 1
	if target.Role == model.RoleAssistant {
		cut = idx
	}
	base := s.path.Truncate(cut)
	user, ok := base.Last()
	s.mu.Unlock()

	if !ok || user.Role != model.RoleUser {
		return ErrInvalidState
	}
	return s.stream(ctx, user, base, user.Prompt(), selected)
}

// Edit sends text as a new user message beside the user message id, under
// the same parent, which starts a new branch. A conversation has a single
// root, so the first message cannot be edited.
func (s *Session) Edit(ctx context.Context, id, text string) error {
	text, err := normalizePrompt(text)
	if err != nil {
		return err
	}
	selected, err := s.selectedModel()
	if err != nil {
		return err
	}
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	idx := s.path.IndexOf(id)
	if id == "" || idx < 0 {
		s.mu.Unlock()
		return ErrNotOnPath
	}
	target := s.path.At(idx)
	if target.Role != model.RoleUser {
		s.mu.Unlock()
		return ErrInvalidState
	}
	if target.IsRoot() {
		s.mu.Unlock()
		return ErrEditRoot
	}
	user := model.NewUserMessage(s.newID(), target.ParentID, text, s.now())
	s.store.Upsert(user)
	base := s.path.Truncate(idx).Append(user)
	s.mu.Unlock()

	return s.stream(ctx, user, base, text, selected)
}

func normalizePrompt(text string) (string, error) {
	text = norm.NFC.String(text)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyPrompt
	}
	return text, nil
}

func (s *Session) selectedModel() (model.ModelInfo, error) {
	if s.models == nil {
		return model.ModelInfo{}, ErrNoModel
	}
	m, ok := s.models.CurrentModel()
	if !ok || m.ID == "" || m.ProviderID == "" {
		return model.ModelInfo{}, ErrNoModel
	}
	return m, nil
}

// stream appends the assistant placeholder after user (the leaf of base),
// posts the message and applies the streamed reply.
func (s *Session) stream(ctx context.Context, user model.Message, base tree.Path, prompt string, selected model.ModelInfo) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	placeholder := model.NewPlaceholder(user.ID, selected.Reasoning, s.now())
	s.path = base.Append(placeholder)
	s.streaming = true
	s.cancel = cancel
	messagePath := make([]string, 0, s.path.Len())
	for _, id := range s.path.IDs() {
		if id != user.ID {
			messagePath = append(messagePath, id)
		}
	}
	tools := append([]string{}, s.tools...)
	startPath := s.path
	startExpanded := s.expanded
	s.streamID = ""
	s.mu.Unlock()
	s.publish()

	defer s.finishStream()

	reader, err := s.backend.StreamMessage(ctx, api.SendRequest{
		ID:             user.ID,
		ConversationID: s.id,
		ProviderID:     selected.ProviderID,
		ModelName:      selected.ID,
		MessagePath:    messagePath,
		Prompt:         prompt,
		Tools:          tools,
	})
	if err != nil {
		s.logger.Warn("send failed", "message", user.ID, "error", err)
		return fmt.Errorf("send message: %w", err)
	}
	defer reader.Close()

	engine := ingest.New(s.store, startPath, user.ID, startExpanded, ingest.Options{
		Logger:   s.logger,
		Locker:   &s.mu,
		Now:      s.now,
		OnUpdate: s.applyUpdate,
	})

	res, err := engine.Run(ctx, reader)
	s.logger.Debug("reply streamed", "message", res.MessageID, "applied", res.Applied, "skipped", res.Skipped)
	if err != nil {
		return err
	}

	s.saveCache(ctx)
	if s.onReply != nil && res.MessageID != "" {
		s.mu.Lock()
		reply, ok := s.store.Get(res.MessageID)
		s.mu.Unlock()
		if ok {
			s.onReply(s.id, reply)
		}
	}
	return nil
}

// applyUpdate adopts an engine snapshot. The engine only decides the
// expanded state of the message it streams; toggles made on other messages
// while streaming are kept.
func (s *Session) applyUpdate(u ingest.Update) {
	s.mu.Lock()
	s.path = u.Path
	if s.streamID != "" && s.streamID != u.MessageID {
		s.expanded = s.expanded.Without(s.streamID)
	}
	if u.MessageID != "" {
		if u.Expanded.Has(u.MessageID) {
			s.expanded = s.expanded.With(u.MessageID)
		} else {
			s.expanded = s.expanded.Without(u.MessageID)
		}
	}
	s.streamID = u.MessageID
	s.mu.Unlock()
	s.publish()
}

// finishStream drops a placeholder that never received an id and clears the
// streaming flag.
func (s *Session) finishStream() {
	s.mu.Lock()
	if leaf, ok := s.path.Last(); ok && leaf.IsPlaceholder() {
		s.path = s.path.Truncate(s.path.Len() - 1)
	}
	s.streaming = false
	s.cancel = nil
	s.mu.Unlock()
	s.publish()
}

func (s *Session) generateTitle(ctx context.Context) {
	if s.onTitle == nil {
		return
	}
	title, err := s.backend.GenerateTitle(ctx, s.id)
	if err != nil {
		s.logger.Warn("failed to generate title", "error", err)
		return
	}
	s.onTitle(s.id, *title)
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes the leaf of the active path on the backend and then
// locally. The path moves onto the previous sibling of the deleted message,
// or the first remaining sibling, and descends through first children; with
// no sibling left the path is simply shortened. On failure nothing changes.
func (s *Session) Delete(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	s.mu.Lock()
	leaf, ok := s.path.Last()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if leaf.ID == "" {
		return ErrInvalidState
	}

	err := s.backend.DeleteMessages(ctx, api.DeleteMessagesRequest{
		ID:             leaf.ID,
		IDs:            []string{leaf.ID},
		ConversationID: s.id,
		ParentID:       leaf.ParentID,
	})
	if err != nil {
		s.logger.Warn("delete failed", "message", leaf.ID, "error", err)
		return fmt.Errorf("delete message: %w", err)
	}

	s.mu.Lock()
	pos, _, _ := s.store.SiblingIndex(leaf.ID)
	s.store.Remove(leaf.ID)
	s.expanded = s.expanded.Without(leaf.ID)

	next := s.path.Truncate(s.path.Len() - 1)
	if leaf.ParentID != "" {
		if remaining := s.store.Children(leaf.ParentID); len(remaining) > 0 {
			sibling := remaining[0]
			if pos > 0 && pos-1 < len(remaining) {
				sibling = remaining[pos-1]
			}
			msg, _ := s.store.Get(sibling)
			next = tree.Descend(s.store, next.Append(msg))
		}
	}
	s.path = next
	s.mu.Unlock()

	s.saveCache(ctx)
	s.publish()
	return nil
}

// =============================================================================
// NAVIGATION
// =============================================================================

// SwitchSibling moves the active path at message id to its neighbouring
// sibling. It reports whether the path changed.
func (s *Session) SwitchSibling(id string, dir tree.Direction) (bool, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return false, ErrBusy
	}
	next, changed := tree.SwitchSibling(s.store, s.path, id, dir)
	s.path = next
	s.mu.Unlock()

	if changed {
		s.publish()
	}
	return changed, nil
}

// ToggleReasoning expands or collapses the reasoning of message id.
func (s *Session) ToggleReasoning(id string) {
	s.mu.Lock()
	s.expanded = s.expanded.Toggle(id)
	s.mu.Unlock()
	s.publish()
}
