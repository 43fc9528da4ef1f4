// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the client's application state: the signed-in user and
// token, the selected model, the conversation list, input drafts and the
// selected tools.
//
// State is injected into the components that need it and persisted as JSON
// at process start and exit. It is safe for concurrent use.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/util"
)

// fileVersion is written to state.json.
const fileVersion = 1

// ErrNotSignedIn is returned by operations that need a token.
var ErrNotSignedIn = errors.New("not signed in")

// persisted is the on-disk form of State.
type persisted struct {
	Version       int                  `json:"version"`
	User          *model.User          `json:"user,omitempty"`
	Token         *model.TokenPair     `json:"token,omitempty"`
	ExpiresAt     time.Time            `json:"expires_at,omitzero"`
	Model         *model.ModelInfo     `json:"model,omitempty"`
	Conversations []model.Conversation `json:"conversations,omitempty"`
	CurrentID     string               `json:"current_conversation,omitempty"`
	Drafts        map[string]string    `json:"drafts,omitempty"`
	Tools         []string             `json:"tools,omitempty"`
}

// State is the application state.
type State struct {
	mu        sync.RWMutex
	data      persisted
	providers []model.Provider
	path      string
	now       func() time.Time
	onLogout  []func()
}

// New returns an empty state that saves to path. An empty path disables
// Save.
func New(path string) *State {
	return &State{
		path: path,
		data: persisted{Version: fileVersion},
		now:  time.Now,
	}
}

// Load reads the state file at path. A missing file yields an empty state.
func Load(path string) (*State, error) {
	s := New(path)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return New(path), fmt.Errorf("decode state %s: %w", path, err)
	}
	s.data.Version = fileVersion
	return s, nil
}

// Save writes the state file with 0600 permissions.
func (s *State) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Path returns the state file path.
func (s *State) Path() string {
	return s.path
}

// =============================================================================
// AUTH
// =============================================================================

// SetLogin stores the result of a successful login. The expiry is
// expires_in seconds from now, or the token's own exp claim when the backend
// omits expires_in.
func (s *State) SetLogin(res *model.LoginResult) {
	if res == nil || res.Token == nil {
		return
	}
	token := *res.Token

	var expires time.Time
	if token.ExpiresIn > 0 {
		expires = s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	} else {
		expires = tokenExpiry(token.AccessToken)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Token = &token
	s.data.ExpiresAt = expires
	if res.User != nil {
		u := *res.User
		s.data.User = &u
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend verifies tokens, the client only needs to know when to stop using
// one.
func tokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// AccessToken returns the bearer token, or "" when signed out or expired.
func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticatedLocked() {
		return ""
	}
	return s.data.Token.AccessToken
}

// IsAuthenticated reports whether a token is held and has not expired.
func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

func (s *State) authenticatedLocked() bool {
	if s.data.Token == nil || s.data.Token.AccessToken == "" {
		return false
	}
	return s.data.ExpiresAt.IsZero() || s.now().Before(s.data.ExpiresAt)
}

// User returns the signed-in user.
func (s *State) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.User == nil {
		return model.User{}, false
	}
	return *s.data.User, true
}

// ExpiresAt returns the token expiry, zero when unknown.
func (s *State) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ExpiresAt
}

// OnLogout registers fn to run after Logout.
func (s *State) OnLogout(fn func()) {
	s.mu.Lock()
	s.onLogout = append(s.onLogout, fn)
	s.mu.Unlock()
}

// Logout clears the user and token. Drafts, model and tools are kept.
func (s *State) Logout() {
	s.mu.Lock()
	s.data.User = nil
	s.data.Token = nil
	s.data.ExpiresAt = time.Time{}
	s.data.Conversations = nil
	s.data.CurrentID = ""
	hooks := append([]func(){}, s.onLogout...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// =============================================================================
// MODELS
// =============================================================================

// SetProviders stores the provider catalog. A selected model that is no
// longer offered stays selected; the backend rejects it on send.
func (s *State) SetProviders(providers []model.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append([]model.Provider(nil), providers...)
}

// Providers returns the provider catalog.
func (s *State) Providers() []model.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Provider(nil), s.providers...)
}

// SelectModel selects a model from the catalog by id, name or
// "provider/model".
func (s *State) SelectModel(nameOrID string) (model.ModelInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := model.FindModel(s.providers, nameOrID)
	if !ok {
		return model.ModelInfo{}, fmt.Errorf("unknown model %q", nameOrID)
	}
	s.data.Model = &m
	return m, nil
}

// SelectDefaultModel selects the first offered model when none is selected.
func (s *State) SelectDefaultModel() (model.ModelInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.Model != nil {
		return *s.data.Model, true
	}
	all := model.FlattenModels(s.providers)
	if len(all) == 0 {
		return model.ModelInfo{}, false
	}
	s.data.Model = &all[0]
	return all[0], true
}

// CurrentModel returns the selected model.
func (s *State) CurrentModel() (model.ModelInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.Model == nil {
		return model.ModelInfo{}, false
	}
	return *s.data.Model, true
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// SetConversations replaces the conversation list.
func (s *State) SetConversations(convs []model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Conversations = append([]model.Conversation(nil), convs...)
}

// Conversations returns the conversation list, newest first as fetched.
func (s *State) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Conversation(nil), s.data.Conversations...)
}

// AddConversation puts a freshly created conversation at the top of the list
// with the placeholder title, and makes it current.
func (s *State) AddConversation(id string) model.Conversation {
	conv := model.NewConversation(id, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Conversations = append([]model.Conversation{conv}, s.data.Conversations...)
	s.data.CurrentID = id
	return conv
}

// ApplyTitle sets a generated title and icon and clears the generating flag.
func (s *State) ApplyTitle(id string, title model.GeneratedTitle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Conversations {
		if s.data.Conversations[i].ID == id {
			c := &s.data.Conversations[i]
			if title.Title != "" {
				c.Title = title.Title
			}
			c.Icon = title.Icon
			c.Generating = false
			c.UpdatedAt = s.now()
			return true
		}
	}
	return false
}

// RemoveConversation drops a conversation and its draft.
func (s *State) RemoveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.data.Conversations[:0:0]
	for _, c := range s.data.Conversations {
		if c.ID != id {
			out = append(out, c)
		}
	}
	s.data.Conversations = out
	delete(s.data.Drafts, id)
	if s.data.CurrentID == id {
		s.data.CurrentID = ""
	}
}

// FindConversation looks a conversation up by id, or by a unique id prefix.
func (s *State) FindConversation(idOrPrefix string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var match *model.Conversation
	for i := range s.data.Conversations {
		c := &s.data.Conversations[i]
		if c.ID == idOrPrefix {
			return *c, true
		}
		if idOrPrefix != "" && len(c.ID) > len(idOrPrefix) && c.ID[:len(idOrPrefix)] == idOrPrefix {
			if match != nil {
				return model.Conversation{}, false
			}
			match = c
		}
	}
	if match == nil {
		return model.Conversation{}, false
	}
	return *match, true
}

// SetCurrentConversation records the open conversation.
func (s *State) SetCurrentConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CurrentID = id
}

// CurrentConversation returns the open conversation id.
func (s *State) CurrentConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.CurrentID
}

// =============================================================================
// DRAFTS AND TOOLS
// =============================================================================

// Draft returns the unsent input of a conversation.
func (s *State) Draft(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Drafts[conversationID]
}

// SetDraft stores unsent input. An empty text clears the draft.
func (s *State) SetDraft(conversationID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.data.Drafts, conversationID)
		return
	}
	if s.data.Drafts == nil {
		s.data.Drafts = make(map[string]string)
	}
	s.data.Drafts[conversationID] = text
}

// SetTools selects the tools sent with messages.
func (s *State) SetTools(tools []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tools = append([]string(nil), tools...)
}

// Tools returns the selected tools.
func (s *State) Tools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.data.Tools...)
}
