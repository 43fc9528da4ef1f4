// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server is an in-memory FlaiChat backend for local development and
// tests.
//
// It speaks the same wire protocol as the production backend: every REST
// response is a {code, message, data} envelope answered with HTTP 200, and
// POST /api/messages streams the assistant reply as "data: <json>" records
// ending with "data: [DONE]". Replies are scripted instead of generated by a
// model, which makes streaming, branching and grounding reproducible.
//
// # Endpoints
//
//   - POST   /api/auth/login                     - Exchange credentials for a token pair
//   - GET    /api/conversation                   - List conversations (current, size)
//   - POST   /api/conversation                   - Create a conversation
//   - GET    /api/conversation/{id}              - Flat message list of a conversation
//   - DELETE /api/conversation/{id}              - Delete a conversation
//   - GET    /api/conversation/{id}/generate-title - Title a conversation
//   - GET    /api/provider                       - Provider and model catalog
//   - POST   /api/messages                       - Send a message, stream the reply
//   - DELETE /api/messages                       - Delete messages
//   - GET    /health                             - Health check
//
// Everything under /api except login requires a bearer token issued by
// login. An invalid or expired token yields the envelope code 401.
//
// # Usage
//
//	srv, err := server.New(server.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	ts := httptest.NewServer(srv.Handler())
//	client := api.NewClient(ts.URL)
package server
