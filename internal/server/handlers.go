// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/model"
)

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, HealthResponse{Status: "ok", Version: Version})
}

// ============================================================================
// AUTH
// ============================================================================

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.account.verify(req.Email, req.Password, req.Code, s.now()); err != nil {
		s.logger.Info("login failed", "email", req.Email)
		writeError(w, codeInternal, err.Error())
		return
	}

	pair, err := s.tokens.Issue(s.account.user)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		writeError(w, codeInternal, "Generate access token failed")
		return
	}
	user := s.account.user
	s.logger.Info("login", "user", user.ID)
	writeData(w, model.LoginResult{User: &user, Token: pair})
}

// owner returns the id of the authenticated user.
func owner(r *http.Request) string {
	claims, _ := ClaimsFromContext(r.Context())
	return claims.UserID
}

// ============================================================================
// CONVERSATIONS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	current := queryInt(r, "current", 1)
	size := min(queryInt(r, "size", DefaultPageSize), MaxPageSize)
	writeData(w, s.store.listConversations(owner(r), current, size))
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv := s.store.createConversation(owner(r), s.newID(), s.now())
	s.logger.Debug("conversation created", "conversation", conv.ID)
	writeData(w, map[string]string{"id": conv.ID})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.messages(owner(r), chi.URLParam(r, "id"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeData(w, msgs)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.deleteConversation(owner(r), chi.URLParam(r, "id")); err != nil {
		storeError(w, err)
		return
	}
	writeData(w, nil)
}

// handleGenerateTitle titles a conversation after the first words of its
// first prompt.
func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.store.messages(owner(r), id)
	if err != nil {
		storeError(w, err)
		return
	}

	title := model.GeneratedTitle{Title: model.DefaultConversationTitle, Icon: "💬"}
	for _, m := range msgs {
		if m.Role == model.RoleUser && m.IsRoot() {
			title.Title = titleFrom(m.Text())
			break
		}
	}
	if err := s.store.setTitle(owner(r), id, title); err != nil {
		storeError(w, err)
		return
	}
	writeData(w, title)
}

// titleFrom returns up to the first six words of text.
func titleFrom(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return model.DefaultConversationTitle
	}
	if len(words) > 6 {
		words = words[:6]
	}
	title := []rune(strings.Join(words, " "))
	title[0] = unicode.ToUpper(title[0])
	return string(title)
}

// ============================================================================
// PROVIDERS
// ============================================================================

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.providers)
}

func (s *Server) findModel(providerID, modelName string) (model.Provider, model.ModelInfo, string) {
	for _, p := range s.providers {
		if p.ID != providerID {
			continue
		}
		for _, m := range p.Models {
			if m.ID == modelName {
				return p, m, ""
			}
		}
		return model.Provider{}, model.ModelInfo{}, "Invalid model name"
	}
	return model.Provider{}, model.ModelInfo{}, "Invalid provider ID"
}

// ============================================================================
// MESSAGES
// ============================================================================

// handleSendMessage stores the user message and streams a scripted reply.
//
// The user message hangs below the last message of messagePath. Re-sending
// a known user message id keeps the stored message and adds a new reply
// beside the earlier ones, which is how retries create branches.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user := owner(r)

	history, err := s.store.history(user, req.ConversationID, req.MessagePath)
	if err != nil {
		storeError(w, err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, codeInvalidParameter, "Prompt cannot be empty")
		return
	}
	if req.ID == "" {
		writeError(w, codeInvalidParameter, "Message id cannot be empty")
		return
	}
	provider, info, problem := s.findModel(req.ProviderID, req.ModelName)
	if problem != "" {
		writeError(w, codeInvalidParameter, problem)
		return
	}

	parentID := ""
	if len(history) > 0 {
		parentID = history[len(history)-1].ID
	}
	userMsg := model.NewUserMessage(req.ID, parentID, prompt, s.now())
	inserted, err := s.store.insertMessage(user, req.ConversationID, userMsg)
	if err != nil {
		storeError(w, err)
		return
	}

	attempt := 1
	if !inserted {
		msgs, _ := s.store.messages(user, req.ConversationID)
		for _, m := range msgs {
			if m.ParentID == req.ID {
				attempt++
			}
		}
	}

	reply := s.reply(ReplyRequest{
		Prompt:   prompt,
		History:  history,
		Provider: provider,
		Model:    info,
		Attempt:  attempt,
	})
	meta := reply.Usage
	meta.ProviderName = provider.Name
	meta.ModelName = info.ID

	sse, ok := newSSEWriter(w, s.delay)
	if !ok {
		writeError(w, codeInternal, "Streaming not supported")
		return
	}

	assistant := model.Message{
		ID:        s.newID(),
		ParentID:  req.ID,
		Role:      model.RoleAssistant,
		CreatedAt: s.now(),
	}
	s.logger.Info("reply started", "conversation", req.ConversationID,
		"message", assistant.ID, "parent", req.ID, "model", info.ID, "attempt", attempt)

	err = s.streamReply(r.Context(), sse, &assistant, reply, meta)
	if err == nil || len(assistant.Content) > 0 {
		if saveErr := s.store.saveMessage(user, req.ConversationID, assistant); saveErr != nil {
			s.logger.Warn("failed to save reply", "message", assistant.ID, "error", saveErr)
		}
	}
	if err != nil {
		s.logger.Info("reply interrupted", "message", assistant.ID, "error", err)
		return
	}
	sse.done()
}

// streamReply sends reasoning, text, grounding and usage in that order,
// recording what was sent on msg.
func (s *Server) streamReply(ctx context.Context, sse *sseWriter, msg *model.Message, reply Reply, meta model.MetaInfo) error {
	parts := []struct {
		typ  model.SegmentType
		text string
	}{
		{model.SegmentReasoning, reply.Reasoning},
		{model.SegmentMessage, reply.Text},
	}
	for _, part := range parts {
		if part.text == "" {
			continue
		}
		sent, err := sse.content(ctx, msg.ID, part.typ, part.text)
		if sent != "" {
			msg.Content = append(msg.Content, model.NewSegment(part.typ, sent))
		}
		if err != nil {
			return err
		}
	}

	if reply.Grounding != nil {
		if err := sse.send(streamEvent{MessageID: msg.ID, Type: eventGrounding, Data: reply.Grounding}); err != nil {
			return err
		}
	}
	if err := sse.send(streamEvent{MessageID: msg.ID, Type: eventMetaInfo, Data: meta}); err != nil {
		return err
	}

	meta.GoogleGroundingData = reply.Grounding
	msg.MetaInfo = &meta
	return nil
}

// handleDeleteMessages deletes one message (moving its children to
// parent_id) when id is set, otherwise every message in ids.
func (s *Server) handleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	var req api.DeleteMessagesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user := owner(r)

	var err error
	switch {
	case req.ID != "":
		err = s.store.deleteMessage(user, req.ConversationID, req.ID, req.ParentID)
	case len(req.IDs) > 0:
		err = s.store.deleteMessages(user, req.ConversationID, req.IDs)
	default:
		err = errNoMessageIDs
	}
	if err != nil {
		storeError(w, err)
		return
	}
	writeData(w, nil)
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
