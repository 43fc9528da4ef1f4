// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view for the flai TUI.

The Model is a Bubble Tea model over one conversation.Session. It never
mutates the conversation itself: every operation goes through the session,
and the view is rebuilt from session snapshots.

# Event Flow

Session operations that talk to the backend (load, send, retry, edit,
delete) run as tea.Cmds and report back with an opDoneMsg. While a reply
streams, the session calls its OnChange hook for every event; a Bridge turns
those calls into SnapshotMsgs, coalesced to at most one per frame.

	bridge := chat.NewBridge()
	session := conversation.New(id, client, conversation.Options{
	    OnChange: func(conversation.Snapshot) { bridge.Notify() },
	})
	m := chat.New(chat.Config{Session: session, State: st, Theme: theme})
	p := tea.NewProgram(m, tea.WithAltScreen())
	go bridge.Run(ctx, p.Send)
	_, err := p.Run()

# Keys

Enter sends, Ctrl+J inserts a newline, Esc cancels a streaming reply. Ctrl+P
and Ctrl+N select a message; retry, edit, branch switching and the reasoning
toggle act on the selected message, or on the last one when nothing is
selected.
*/
package chat
