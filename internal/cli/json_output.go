// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope of every --json command output.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response, indented, to w.
func (r *JSONResponse) Print(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// ConversationData is one row of the conversations command.
type ConversationData struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Icon      string    `json:"icon,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Current   bool      `json:"current"`
}

// ConversationListData is the output of the conversations command.
type ConversationListData struct {
	Conversations []ConversationData `json:"conversations"`
	Total         int                `json:"total"`
	Page          int                `json:"page"`
	Offline       bool               `json:"offline"`
}

// ModelData is one row of the models command.
type ModelData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	Capabilities string `json:"capabilities,omitempty"`
	Selected     bool   `json:"selected"`
}

// MessageData is one message of the show command's active path.
type MessageData struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parent_id,omitempty"`
	Role      string   `json:"role"`
	Text      string   `json:"text"`
	Reasoning string   `json:"reasoning,omitempty"`
	Branch    string   `json:"branch,omitempty"`
	Usage     string   `json:"usage,omitempty"`
	Sources   []string `json:"sources,omitempty"`
}

// AskData is the output of the ask command.
type AskData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Response       string `json:"response"`
	Reasoning      string `json:"reasoning,omitempty"`
	Model          string `json:"model"`
	TotalTokens    int    `json:"total_tokens"`
	DurationMs     int64  `json:"duration_ms"`
}

// VersionData is the output of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}
