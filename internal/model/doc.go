// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the wire-level domain types shared by the API client,
// the message tree, the stream ingest engine and the renderers.
//
// # Key Types
//
//   - Message: one node of a branching conversation tree
//   - Segment: a typed chunk of message content (message, reasoning, ...)
//   - MetaInfo / GroundingData: usage and citation metadata of a reply
//   - Conversation: an entry of the conversation list
//   - Provider / ModelInfo: the model catalog
//
// # Usage
//
// Build the optimistic user message and its assistant placeholder:
//
//	user := model.NewUserMessage(uuid.NewString(), parentID, "Hello!", time.Now())
//	ph := model.NewPlaceholder(user.ID, info.Reasoning, time.Now())
package model
