// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// CodeNetwork is the Error code used for transport failures.
const CodeNetwork = -1

// CodeUnauthorized is the envelope code the backend uses for an expired or
// missing session.
const CodeUnauthorized = 401

// NetworkErrorMessage is the generic text shown for transport failures.
const NetworkErrorMessage = "Network error, please try again later."

var (
	// ErrNoToken indicates an authenticated call was made without credentials.
	ErrNoToken = errors.New("not logged in")

	// ErrEmptyStream indicates the stream response had no body.
	ErrEmptyStream = errors.New("empty stream response")
)

// Error is a failed backend call.
//
// A non-negative Code with HTTPStatus 0 is a structured API error whose
// Message is meant for the user. HTTPStatus is set when the server answered
// with a non-OK status. Code == CodeNetwork is a transport failure wrapping
// Err.
type Error struct {
	Code       int
	HTTPStatus int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == CodeNetwork && e.Err != nil:
		return fmt.Sprintf("network error: %v", e.Err)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("HTTP error! status: %d", e.HTTPStatus)
	default:
		return fmt.Sprintf("api error [%d]: %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying transport error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether the error means the session is no longer
// valid.
func (e *Error) IsUnauthorized() bool {
	return e.Code == CodeUnauthorized || e.HTTPStatus == http.StatusUnauthorized
}

func networkError(err error) *Error {
	return &Error{Code: CodeNetwork, Message: err.Error(), Err: err}
}

func statusError(status int) *Error {
	return &Error{
		Code:       status,
		HTTPStatus: status,
		Message:    fmt.Sprintf("HTTP error! status: %d", status),
	}
}

// IsNetwork reports whether err is a transport failure or a non-OK HTTP
// status, as opposed to a structured API error.
func IsNetwork(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeNetwork || apiErr.HTTPStatus != 0
	}
	return false
}

// IsAPI reports whether err is a structured error returned by the backend.
func IsAPI(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code != CodeNetwork && apiErr.HTTPStatus == 0
	}
	return false
}

// IsUnauthorized reports whether err means the session must be discarded.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

// UserMessage returns the text to show for err: the backend message for
// structured API errors, a generic network message for transport failures,
// and err.Error() for anything else.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Cancelled."
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if IsNetwork(apiErr) {
			return NetworkErrorMessage
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Unknown API Error"
	}
	return err.Error()
}
