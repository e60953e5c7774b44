// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"errors"
	"fmt"
)

// Error is a structured error response from the backend. Callers can
// use errors.As to extract it:
//
//	var providerErr *provider.Error
//	if errors.As(err, &providerErr) {
//	    if providerErr.Type == provider.ErrTypeDocumentAlreadyExists { ... }
//	}
type Error struct {
	// Code mirrors the HTTP status in the body.
	Code int `json:"code"`
	// Type is the machine-readable error type (e.g., "user_invalid_token").
	Type string `json:"type"`
	// Message is the human-readable error description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider: %s (%d): %s", e.Type, e.StatusCode, e.Message)
}

// Error types the client reacts to.
const (
	ErrTypeUnauthorized          = "general_unauthorized_scope"
	ErrTypeRateLimited           = "general_rate_limit_exceeded"
	ErrTypeArgumentInvalid       = "general_argument_invalid"
	ErrTypeUserInvalidToken      = "user_invalid_token"
	ErrTypeUserNotFound          = "user_not_found"
	ErrTypeUserSessionNotFound   = "user_session_not_found"
	ErrTypeUserBlocked           = "user_blocked"
	ErrTypeDocumentNotFound      = "document_not_found"
	ErrTypeDocumentAlreadyExists = "document_already_exists"
	ErrTypeDocumentInvalid       = "document_invalid_structure"
	ErrTypeCollectionNotFound    = "collection_not_found"
)

// IsErrorType checks whether err is an *Error of the given type.
func IsErrorType(err error, errorType string) bool {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Type == errorType
	}
	return false
}

// StatusCode returns the HTTP status of an *Error in err's chain, or 0.
func StatusCode(err error) int {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.StatusCode
	}
	return 0
}

// LogAttrs returns slog key/value pairs describing err, for call sites
// that log a failure without surfacing the raw message to users.
func LogAttrs(err error) []any {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return []any{"error", err, "error_type", providerErr.Type, "status", providerErr.StatusCode}
	}
	return []any{"error", err}
}
