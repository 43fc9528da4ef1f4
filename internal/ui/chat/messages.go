// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// frameInterval caps snapshot delivery at about 30 frames per second.
const frameInterval = 33 * time.Millisecond

// =============================================================================
// MESSAGES
// =============================================================================

// SnapshotMsg signals that the session changed. The model reads the latest
// snapshot itself, so coalesced or reordered signals are harmless.
type SnapshotMsg struct{}

// DisplayMsg changes display settings while the program runs, typically
// after the config file was edited.
type DisplayMsg struct {
	ShowUsage   bool
	ShowSources bool
}

// opDoneMsg reports the end of a session operation run as a command.
type opDoneMsg struct {
	op  string
	err error
}

// toastExpiredMsg is sent when an error toast may be dismissed.
type toastExpiredMsg struct {
	at time.Time
}

// =============================================================================
// BRIDGE
// =============================================================================

// Bridge forwards session change notifications into a running Bubble Tea
// program. Notify never blocks, so it is safe to call from session hooks
// even when the program's own Update triggered the change.
type Bridge struct {
	dirty chan struct{}
}

// NewBridge creates a bridge. Run must be started to deliver anything.
func NewBridge() *Bridge {
	return &Bridge{dirty: make(chan struct{}, 1)}
}

// Notify marks the session as changed.
func (b *Bridge) Notify() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

// Run delivers a SnapshotMsg through send for every batch of notifications
// until ctx is done.
func (b *Bridge) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.dirty:
		}
		send(SnapshotMsg{})

		select {
		case <-ctx.Done():
			return
		case <-time.After(frameInterval):
		}
	}
}
