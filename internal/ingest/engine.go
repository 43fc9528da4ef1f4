// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingest applies a streamed assistant reply to the message tree.
//
// An Engine is created for one exchange, after the user message has been
// stored and an id-less assistant placeholder appended to the active path.
// Each stream event mutates the store and publishes a fresh tree.Path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/citation"
	"github.com/jeranaias/flai-tui/internal/model"
	"github.com/jeranaias/flai-tui/internal/tree"
)

// Errors for events that cannot be applied. The event is skipped and the
// stream continues.
var (
	ErrMissingMessageID = errors.New("stream event has no message id")
	ErrNoCurrentMessage = errors.New("no assistant message on the active path")
)

// EventSource yields stream events. *api.EventReader implements it.
type EventSource interface {
	Next() (api.StreamEvent, error)
}

// Update is the snapshot published after every applied event.
type Update struct {
	Path      tree.Path
	Expanded  ExpandedSet
	MessageID string
	Event     model.SegmentType
}

// Result summarizes a finished stream.
type Result struct {
	MessageID string
	Applied   int
	Skipped   int
	SawDone   bool
}

// Options configure an Engine. Every field is optional.
type Options struct {
	// Logger receives skipped-record warnings. Defaults to discarding.
	Logger *slog.Logger

	// OnUpdate is called after each applied event, outside Locker.
	OnUpdate func(Update)

	// Locker guards the store while an event is applied, for callers that
	// read the store from another goroutine.
	Locker sync.Locker

	// Now stamps new assistant messages. Defaults to time.Now.
	Now func() time.Time
}

// Engine applies the events of one streamed reply.
//
// Apply calls must be serialized; the engine does not order concurrent
// callers.
type Engine struct {
	store    *tree.Store
	path     tree.Path
	expanded ExpandedSet
	userID   string
	current  string

	logger   *slog.Logger
	onUpdate func(Update)
	locker   sync.Locker
	now      func() time.Time
}

// New creates an engine for the reply to the user message userID. path must
// end with the assistant placeholder.
func New(store *tree.Store, path tree.Path, userID string, expanded ExpandedSet, opts Options) *Engine {
	e := &Engine{
		store:    store,
		path:     path,
		expanded: expanded,
		userID:   userID,
		logger:   opts.Logger,
		onUpdate: opts.OnUpdate,
		locker:   opts.Locker,
		now:      opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.locker == nil {
		e.locker = noopLocker{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Path returns the current active path snapshot.
func (e *Engine) Path() tree.Path {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.path
}

// Expanded returns the current reasoning visibility set.
func (e *Engine) Expanded() ExpandedSet {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.expanded
}

// MessageID returns the server id of the assistant message being streamed,
// or "" before the first event.
func (e *Engine) MessageID() string {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.current
}

// =============================================================================
// RUN LOOP
// =============================================================================

// Run reads src until it ends and applies every event.
//
// Malformed records and events that cannot be applied are logged and
// counted as skipped. A transport error ends the run and is returned with
// the partial result. Cancelling ctx ends the run with ctx.Err(); if src is an
// io.Closer it is closed to unblock a pending read.
func (e *Engine) Run(ctx context.Context, src EventSource) (Result, error) {
	var res Result

	if closer, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { closer.Close() })
		defer stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			res.MessageID = e.MessageID()
			return res, err
		}

		ev, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if api.IsRecordError(err) {
				res.Skipped++
				e.logger.Warn("skipping malformed stream record", "error", err)
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			res.MessageID = e.MessageID()
			return res, fmt.Errorf("stream aborted: %w", err)
		}

		if err := e.Apply(ev); err != nil {
			res.Skipped++
			e.logger.Warn("skipping stream event", "type", ev.Type, "message_id", ev.MessageID, "error", err)
			continue
		}
		res.Applied++
	}

	if d, ok := src.(interface{ SawDone() bool }); ok {
		res.SawDone = d.SawDone()
	}
	res.MessageID = e.MessageID()
	e.logger.Debug("stream finished", "message_id", res.MessageID,
		"applied", res.Applied, "skipped", res.Skipped, "done_sentinel", res.SawDone)
	return res, nil
}

// =============================================================================
// EVENT APPLICATION
// =============================================================================

// Apply applies one event and publishes the new snapshot. An error means the
// event was not applied and nothing changed.
func (e *Engine) Apply(ev api.StreamEvent) error {
	e.locker.Lock()
	err := e.apply(ev)
	update := Update{Path: e.path, Expanded: e.expanded, MessageID: e.current, Event: ev.Type}
	e.locker.Unlock()

	if err != nil {
		return err
	}
	if e.onUpdate != nil {
		e.onUpdate(update)
	}
	return nil
}

func (e *Engine) apply(ev api.StreamEvent) error {
	if ev.MessageID == "" {
		return ErrMissingMessageID
	}

	switch {
	case ev.MessageID != e.current:
		return e.startMessage(ev)
	case ev.Type == api.EventMetaInfo:
		meta, err := ev.MetaInfo()
		if err != nil {
			return err
		}
		return e.setMeta(meta)
	case ev.Type == api.EventGrounding:
		g, err := ev.Grounding()
		if err != nil {
			return err
		}
		return e.setGrounding(g)
	default:
		text, err := ev.Content()
		if err != nil {
			return err
		}
		return e.appendContent(ev.Type, text)
	}
}

// startMessage replaces the placeholder, or the previously tracked assistant
// message, with a fresh message carrying the server id.
func (e *Engine) startMessage(ev api.StreamEvent) error {
	msg := model.Message{
		ID:        ev.MessageID,
		ParentID:  e.userID,
		Role:      model.RoleAssistant,
		CreatedAt: e.now(),
	}

	idx := e.path.IndexOf(e.current)
	if idx >= 0 && e.path.At(idx).Role != model.RoleAssistant {
		idx = -1
	}

	var meta *model.MetaInfo
	var grounding *model.GroundingData
	switch ev.Type {
	case api.EventMetaInfo:
		m, err := ev.MetaInfo()
		if err != nil {
			return err
		}
		meta = &m
	case api.EventGrounding:
		g, err := ev.Grounding()
		if err != nil {
			return err
		}
		grounding = &g
	default:
		text, err := ev.Content()
		if err != nil {
			return err
		}
		msg.Content = []model.Segment{model.NewSegment(ev.Type, text)}
	}

	// a metadata event opening the message keeps the placeholder's segment
	if msg.Content == nil && idx >= 0 {
		msg.Content = e.path.At(idx).Content
	}

	if idx >= 0 {
		e.path = e.path.Replace(idx, msg)
	} else {
		e.path = e.path.Append(msg)
	}
	if e.current != "" {
		e.store.Remove(e.current)
		e.expanded = e.expanded.Without(e.current)
	}
	e.store.Upsert(msg)
	e.current = msg.ID

	if ev.Type == model.SegmentReasoning {
		e.expanded = e.expanded.With(msg.ID)
	}

	if meta != nil {
		return e.setMeta(*meta)
	}
	if grounding != nil {
		return e.setGrounding(*grounding)
	}
	return nil
}

func (e *Engine) currentMessage() (model.Message, int, error) {
	idx := e.path.IndexOf(e.current)
	if idx < 0 {
		return model.Message{}, -1, ErrNoCurrentMessage
	}
	return e.path.At(idx), idx, nil
}

func (e *Engine) commit(idx int, msg model.Message) {
	e.path = e.path.Replace(idx, msg)
	e.store.Upsert(msg)
}

// setMeta attaches usage metadata. Grounding already merged into the message
// survives a meta record that lacks it.
func (e *Engine) setMeta(meta model.MetaInfo) error {
	msg, idx, err := e.currentMessage()
	if err != nil {
		return err
	}
	if meta.GoogleGroundingData == nil && msg.MetaInfo != nil {
		meta.GoogleGroundingData = msg.MetaInfo.GoogleGroundingData
	}
	msg.MetaInfo = &meta
	e.commit(idx, msg)
	return nil
}

// setGrounding merges grounding data and annotates the trailing message
// segment with citation markers, once per message.
func (e *Engine) setGrounding(g model.GroundingData) error {
	msg, idx, err := e.currentMessage()
	if err != nil {
		return err
	}
	meta := model.MetaInfo{}
	if msg.MetaInfo != nil {
		meta = *msg.MetaInfo
	}
	meta.GoogleGroundingData = &g
	msg.MetaInfo = &meta

	msg = citation.AnnotateMessage(msg)
	e.commit(idx, msg)
	return nil
}

// appendContent starts a new segment when the type differs from the last
// segment's, and otherwise extends the last segment.
func (e *Engine) appendContent(segType model.SegmentType, text string) error {
	msg, idx, err := e.currentMessage()
	if err != nil {
		return err
	}

	last, ok := msg.LastSegment()
	if !ok || last.Type != segType {
		content := make([]model.Segment, len(msg.Content), len(msg.Content)+1)
		copy(content, msg.Content)
		msg.Content = append(content, model.NewSegment(segType, text))
	} else {
		msg.Content[len(msg.Content)-1] = last.Append(text)
	}

	if segType == model.SegmentReasoning {
		e.expanded = e.expanded.With(msg.ID)
	} else {
		e.expanded = e.expanded.Without(msg.ID)
	}

	e.commit(idx, msg)
	return nil
}
