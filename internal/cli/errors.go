// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/flai-tui/internal/api"
	"github.com/jeranaias/flai-tui/internal/config"
	"github.com/jeranaias/flai-tui/internal/state"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// errNotSignedIn tells the user how to recover.
var errNotSignedIn = fmt.Errorf("%w; run 'flai login' first", state.ErrNotSignedIn)

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as a JSON document in JSON mode. Backend
// errors are shown with their user-facing message.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	msg := errorText(err)
	if jsonMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"success":    false,
			"error":      msg,
			"error_type": errorType(err),
			"exit_code":  GetExitCode(err),
		})
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), msg)
}

func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return api.UserMessage(err)
	}
	return err.Error()
}

func errorType(err error) string {
	var validationErr *ValidationError
	var notFoundErr *NotFoundError
	switch {
	case errors.As(err, &validationErr):
		return "validation_error"
	case errors.As(err, &notFoundErr):
		return "not_found_error"
	case isAuthError(err):
		return "auth_error"
	case api.IsNetwork(err):
		return "network_error"
	case api.IsAPI(err):
		return "api_error"
	default:
		return "generic_error"
	}
}

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}
	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return ExitNotFoundError
	}
	var configErrs config.ValidateErrors
	if errors.As(err, &configErrs) {
		return ExitConfigError
	}
	if isAuthError(err) {
		return ExitAuthError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}
	if api.IsNetwork(err) {
		return ExitNetworkError
	}
	return ExitGeneralError
}

func isAuthError(err error) bool {
	return api.IsUnauthorized(err) || errors.Is(err, state.ErrNotSignedIn) || errors.Is(err, api.ErrNoToken)
}
