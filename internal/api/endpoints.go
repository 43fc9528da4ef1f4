// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jeranaias/flai-tui/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Code is the one-time code of accounts with a second factor.
	Code string `json:"code,omitempty"`
}

// SendRequest is the body of POST /api/messages.
type SendRequest struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversation_id"`
	ProviderID     string   `json:"provider_id"`
	ModelName      string   `json:"model_name"`
	MessagePath    []string `json:"messagePath"`
	Prompt         string   `json:"prompt"`
	Tools          []string `json:"tools"`
}

// DeleteMessagesRequest is the body of DELETE /api/messages.
type DeleteMessagesRequest struct {
	ID             string   `json:"id,omitempty"`
	IDs            []string `json:"ids"`
	ConversationID string   `json:"conversation_id"`
	ParentID       string   `json:"parent_id,omitempty"`
}

type createConversationResponse struct {
	ID string `json:"id"`
}

// =============================================================================
// AUTH
// =============================================================================

// Login exchanges credentials for a token pair. It does not send a bearer
// token.
func (c *Client) Login(ctx context.Context, email, password string) (*model.LoginResult, error) {
	return c.LoginWithCode(ctx, LoginRequest{Email: email, Password: password})
}

// LoginWithCode is Login with the full request, including a one-time code.
func (c *Client) LoginWithCode(ctx context.Context, req LoginRequest) (*model.LoginResult, error) {
	var res model.LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &res, false)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations returns one page of the user's conversations. current is
// 1-based; zero values let the backend choose.
func (c *Client) ListConversations(ctx context.Context, current, size int) (*model.Page[model.Conversation], error) {
	query := url.Values{}
	if current > 0 {
		query.Set("current", strconv.Itoa(current))
	}
	if size > 0 {
		query.Set("size", strconv.Itoa(size))
	}
	var page model.Page[model.Conversation]
	if err := c.do(ctx, http.MethodGet, "/api/conversation", query, nil, &page, true); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateConversation creates an empty conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var res createConversationResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversation", nil, struct{}{}, &res, true); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", &Error{Code: 0, Message: "backend returned no conversation id"}
	}
	return res.ID, nil
}

// GetConversation returns the flat, unordered message list of a conversation.
func (c *Client) GetConversation(ctx context.Context, id string) ([]model.Message, error) {
	var msgs []model.Message
	if err := c.do(ctx, http.MethodGet, "/api/conversation/"+url.PathEscape(id), nil, nil, &msgs, true); err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteConversation deletes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/conversation/"+url.PathEscape(id), nil, nil, nil, true)
}

// GenerateTitle asks the backend to title a conversation from its content.
func (c *Client) GenerateTitle(ctx context.Context, id string) (*model.GeneratedTitle, error) {
	var res model.GeneratedTitle
	path := fmt.Sprintf("/api/conversation/%s/generate-title", url.PathEscape(id))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &res, true); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// PROVIDERS
// =============================================================================

// ListProviders returns the provider catalog with each provider's models.
func (c *Client) ListProviders(ctx context.Context) ([]model.Provider, error) {
	var providers []model.Provider
	if err := c.do(ctx, http.MethodGet, "/api/provider", nil, nil, &providers, true); err != nil {
		return nil, err
	}
	return providers, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// DeleteMessages deletes messages from a conversation.
func (c *Client) DeleteMessages(ctx context.Context, req DeleteMessagesRequest) error {
	return c.do(ctx, http.MethodDelete, "/api/messages", nil, req, nil, true)
}
