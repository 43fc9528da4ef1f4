// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultConversationTitle is shown until a title has been generated.
const DefaultConversationTitle = "New Conversation"

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// Conversation is one entry of the conversation list.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Icon       string    `json:"icon"`
	Generating bool      `json:"generating"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewConversation returns the list entry added right after a conversation is
// created, before its title has been generated.
func NewConversation(id string, now time.Time) Conversation {
	return Conversation{
		ID:         id,
		Title:      DefaultConversationTitle,
		Generating: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DisplayTitle returns the title prefixed with its icon, if any.
func (c Conversation) DisplayTitle() string {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = DefaultConversationTitle
	}
	if c.Icon != "" {
		return c.Icon + " " + title
	}
	return title
}

// UnmarshalJSON accepts the backend's timestamp layouts.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	type alias Conversation
	aux := struct {
		*alias
		CreatedAt flexTime `json:"created_at"`
		UpdatedAt flexTime `json:"updated_at"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CreatedAt = time.Time(aux.CreatedAt)
	c.UpdatedAt = time.Time(aux.UpdatedAt)
	return nil
}

// Page is one page of a paginated list response.
type Page[T any] struct {
	Total   int `json:"total"`
	Current int `json:"current"`
	Size    int `json:"size"`
	Records []T `json:"records"`
}

// HasMore reports whether further pages exist after this one.
func (p Page[T]) HasMore() bool {
	if p.Size <= 0 {
		return false
	}
	return p.Current*p.Size < p.Total
}

// GeneratedTitle is the result of title generation.
type GeneratedTitle struct {
	Title string `json:"title"`
	Icon  string `json:"icon"`
}

// =============================================================================
// MODEL CATALOG
// =============================================================================

// Provider is an LLM provider and the models it serves.
type Provider struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	ProviderType string      `json:"provider_type"`
	Models       []ModelInfo `json:"model"`
	Logo         string      `json:"logo,omitempty"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Family           string      `json:"family,omitempty"`
	ProviderID       string      `json:"provider_id,omitempty"`
	Attachment       bool        `json:"attachment"`
	Reasoning        bool        `json:"reasoning"`
	ToolCall         bool        `json:"tool_call"`
	StructuredOutput bool        `json:"structured_output,omitempty"`
	Knowledge        string      `json:"knowledge,omitempty"`
	ReleaseDate      string      `json:"release_date,omitempty"`
	Cost             *ModelCost  `json:"cost,omitempty"`
	Limit            *ModelLimit `json:"limit,omitempty"`
}

// ModelCost is the price per million tokens.
type ModelCost struct {
	Input     float64 `json:"input"`
	Output    float64 `json:"output"`
	CacheRead float64 `json:"cache_read,omitempty"`
}

// ModelLimit holds token limits.
type ModelLimit struct {
	Context int `json:"context,omitempty"`
	Output  int `json:"output,omitempty"`
}

// CapabilitiesString returns a short comma-separated capability list.
func (m ModelInfo) CapabilitiesString() string {
	var caps []string
	if m.Reasoning {
		caps = append(caps, "reasoning")
	}
	if m.ToolCall {
		caps = append(caps, "tools")
	}
	if m.Attachment {
		caps = append(caps, "attachments")
	}
	if len(caps) == 0 {
		return "chat"
	}
	return strings.Join(caps, ", ")
}

// FlattenModels returns every model of every provider with ProviderID filled
// from its provider.
func FlattenModels(providers []Provider) []ModelInfo {
	var out []ModelInfo
	for _, p := range providers {
		for _, m := range p.Models {
			if m.ProviderID == "" {
				m.ProviderID = p.ID
			}
			out = append(out, m)
		}
	}
	return out
}

// FindModel looks a model up by id or name (case-insensitive), optionally
// qualified as "provider/model".
func FindModel(providers []Provider, nameOrID string) (ModelInfo, bool) {
	want := strings.ToLower(strings.TrimSpace(nameOrID))
	if want == "" {
		return ModelInfo{}, false
	}
	for _, p := range providers {
		for _, m := range p.Models {
			if m.ProviderID == "" {
				m.ProviderID = p.ID
			}
			byID := strings.ToLower(p.ID + "/" + m.ID)
			byName := strings.ToLower(p.Name + "/" + m.ID)
			if strings.ToLower(m.ID) == want || strings.ToLower(m.Name) == want || byID == want || byName == want {
				return m, true
			}
		}
	}
	return ModelInfo{}, false
}

// =============================================================================
// AUTH
// =============================================================================

// User is the authenticated account.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	IsActive int    `json:"is_active"`
}

// Initials returns up to two upper-case initials for avatars.
func (u User) Initials() string {
	name := strings.TrimSpace(u.Username)
	if name == "" {
		return "FL"
	}
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	if len(fields) == 0 {
		return "FL"
	}
	if len(fields) == 1 {
		runes := []rune(fields[0])
		if len(runes) > 2 {
			runes = runes[:2]
		}
		return strings.ToUpper(string(runes))
	}
	return strings.ToUpper(string([]rune(fields[0])[:1]) + string([]rune(fields[1])[:1]))
}

// TokenPair is the credential set returned by login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	User  *User      `json:"user"`
	Token *TokenPair `json:"token"`
}
