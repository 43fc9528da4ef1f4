// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/flai-tui/internal/model"
)

// Stream event types that carry metadata.
const (
	eventMetaInfo  model.SegmentType = "meta_info"
	eventGrounding model.SegmentType = "google_grounding_data"
)

// ============================================================================
// SCRIPTED REPLIES
// ============================================================================

// ReplyRequest is the input of a ReplyFunc.
type ReplyRequest struct {
	Prompt   string
	History  []model.Message
	Provider model.Provider
	Model    model.ModelInfo

	// Attempt is 1 for the first reply to a user message and counts up with
	// every retry.
	Attempt int
}

// Reply is the scripted answer to one prompt. Usage carries token counts;
// provider and model names are filled in by the server.
type Reply struct {
	Reasoning string
	Text      string
	Grounding *model.GroundingData
	Usage     model.MetaInfo
}

// ReplyFunc produces the reply to a prompt.
type ReplyFunc func(ReplyRequest) Reply

// groundedFacts back the reply to prompts that ask for a search.
var groundedFacts = []struct {
	text   string
	chunks []int
}{
	{"Go was announced by Google in November 2009.", []int{0}},
	{"Version 1.0 was released in March 2012.", []int{0, 1}},
}

var groundedSources = []model.WebSource{
	{URI: "https://go.dev/doc/faq", Title: "go.dev"},
	{URI: "https://en.wikipedia.org/wiki/Go_(programming_language)", Title: "wikipedia.org"},
}

// ScriptedReply echoes the prompt. Reasoning models think out loud first,
// retries are marked with their attempt number, and prompts mentioning
// "search" get a grounded answer with two cited sources.
func ScriptedReply(req ReplyRequest) Reply {
	var r Reply
	if req.Attempt > 1 {
		r.Text = fmt.Sprintf("Echo (take %d): %s", req.Attempt, req.Prompt)
	} else {
		r.Text = "Echo: " + req.Prompt
	}

	if req.Model.Reasoning {
		r.Reasoning = fmt.Sprintf("The user wrote %d words after %d earlier messages. Repeat them back.",
			len(strings.Fields(req.Prompt)), len(req.History))
	}

	if strings.Contains(strings.ToLower(req.Prompt), "search") {
		g := &model.GroundingData{WebSearchQueries: []string{req.Prompt}}
		for i := range groundedSources {
			web := groundedSources[i]
			g.GroundingChunks = append(g.GroundingChunks, model.GroundingChunk{Web: &web})
		}
		for _, fact := range groundedFacts {
			r.Text += "\n\n" + fact.text
			start := strings.Index(r.Text, fact.text)
			g.GroundingSupports = append(g.GroundingSupports, model.GroundingSupport{
				Segment: model.SupportSegment{
					StartIndex: &start,
					EndIndex:   start + len(fact.text),
					Text:       fact.text,
				},
				GroundingChunkIndices: fact.chunks,
			})
		}
		r.Grounding = g
	}

	promptTokens := countTokens(req.Prompt)
	for _, m := range req.History {
		promptTokens += countTokens(m.Text())
	}
	r.Usage = model.MetaInfo{
		PromptTokenCount:    promptTokens,
		ReasoningTokenCount: countTokens(r.Reasoning),
		ResponseTokenCount:  countTokens(r.Text),
	}
	return r
}

// countTokens approximates a token count by words.
func countTokens(s string) int {
	return len(strings.Fields(s))
}

// chunks splits text into word-sized pieces that concatenate back to text.
func chunks(text string) []string {
	if text == "" {
		return nil
	}
	return strings.SplitAfter(text, " ")
}

// ============================================================================
// SSE WRITER
// ============================================================================

// streamEvent is one record of the reply stream.
type streamEvent struct {
	MessageID string            `json:"message_id"`
	Type      model.SegmentType `json:"type"`
	Data      any               `json:"data"`
}

// sseWriter writes reply events, pacing content chunks by delay.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	delay   time.Duration
}

// newSSEWriter sets the event-stream headers. It fails when w cannot flush.
func newSSEWriter(w http.ResponseWriter, delay time.Duration) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher, delay: delay}, true
}

func (s *sseWriter) send(ev streamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// content streams text as a run of typ events and returns what was sent
// before ctx ended.
func (s *sseWriter) content(ctx context.Context, messageID string, typ model.SegmentType, text string) (string, error) {
	var sent strings.Builder
	for _, piece := range chunks(text) {
		if s.delay > 0 {
			select {
			case <-ctx.Done():
				return sent.String(), ctx.Err()
			case <-time.After(s.delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return sent.String(), err
		}
		if err := s.send(streamEvent{MessageID: messageID, Type: typ, Data: model.MessageData{Content: piece}}); err != nil {
			return sent.String(), err
		}
		sent.WriteString(piece)
	}
	return sent.String(), nil
}

func (s *sseWriter) done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
