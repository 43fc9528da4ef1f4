// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"errors"
	"time"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/conversation"
	"github.com/jeranaias/flai-tui/internal/ui/styles"
	"github.com/jeranaias/flai-tui/internal/util"
)

// ErrorToastDuration is how long an error stays on screen.
const ErrorToastDuration = 8 * time.Second

// =============================================================================
// ERROR TOAST
// =============================================================================

// ErrorToast is a non-blocking error notification that dismisses itself.
type ErrorToast struct {
	Title     string
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// NewErrorToast builds a toast for err. Backend errors show the backend's
// message verbatim, transport errors a generic network message.
func NewErrorToast(err error, now time.Time) ErrorToast {
	return ErrorToast{
		Title:     errorTitle(err),
		Message:   api.UserMessage(err),
		CreatedAt: now,
		Duration:  ErrorToastDuration,
	}
}

func errorTitle(err error) string {
	switch {
	case api.IsUnauthorized(err):
		return "Signed out"
	case api.IsNetwork(err):
		return "Connection problem"
	case api.IsAPI(err):
		return "Server error"
	case errors.Is(err, conversation.ErrBusy):
		return "Busy"
	default:
		return "Error"
	}
}

// Expired reports whether the toast should be dismissed at now.
func (t ErrorToast) Expired(now time.Time) bool {
	return now.Sub(t.CreatedAt) >= t.Duration
}

// View renders the toast at most width columns wide.
func (t ErrorToast) View(theme *styles.Theme, width int) string {
	inner := width - 4
	if inner < 10 {
		inner = 10
	}
	title := theme.ErrorTitle.Render(styles.StatusIndicators.Error + " " + t.Title)
	msg := theme.ErrorMessage.Render(util.TruncateWidth(util.SingleLine(t.Message), inner))
	return theme.ErrorBox.Render(title + "\n" + msg)
}
