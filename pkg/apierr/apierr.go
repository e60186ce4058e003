// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package apierr defines the error taxonomy surfaced by the gateway and the
// single mapping from an error kind to the HTTP status and JSON body returned
// to clients.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for the HTTP boundary.
type Kind int

const (
	// KindInternal covers anything uncategorized.
	KindInternal Kind = iota
	// KindValidation marks malformed or missing request fields.
	KindValidation
	// KindAuthentication marks a missing, malformed, unverifiable or expired credential.
	KindAuthentication
	// KindToolNotFound marks an invocation against a name absent from the tool snapshot.
	KindToolNotFound
	// KindUpstreamConnect marks a failed connect or reconnect to the tool server.
	KindUpstreamConnect
	// KindInvocation marks a failed call on a live upstream session.
	KindInvocation
)

// Client-visible messages for kinds whose detail must stay server-side.
const (
	MessageInternal        = "internal server error"
	MessageAuthentication  = "authentication failed"
	MessageUpstreamConnect = "upstream tool server unavailable"
	MessageInvocation      = "tool invocation failed"
)

// String returns the stable name of the kind, used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindToolNotFound:
		return "ToolNotFoundError"
	case KindUpstreamConnect:
		return "UpstreamConnectError"
	case KindInvocation:
		return "InvocationError"
	default:
		return "InternalError"
	}
}

// Status returns the HTTP status code associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindToolNotFound:
		return http.StatusNotFound
	case KindUpstreamConnect:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind together with the client-safe message and the
// underlying cause, which is kept for server-side logs only.
type Error struct {
	Kind    Kind   // Kind selects the HTTP status.
	Message string // Message is what the client sees.
	Err     error  // Err retains the original cause for logging.
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a KindValidation error with the given message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Authentication returns a KindAuthentication error. The message is fixed so
// callers cannot tell which verification step failed.
func Authentication(cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: MessageAuthentication, Err: cause}
}

// ToolNotFound returns a KindToolNotFound error naming the tool.
func ToolNotFound(name string) *Error {
	return &Error{Kind: KindToolNotFound, Message: fmt.Sprintf("tool %q not found", name)}
}

// UpstreamConnect returns a KindUpstreamConnect error wrapping cause.
func UpstreamConnect(cause error) *Error {
	return &Error{Kind: KindUpstreamConnect, Message: MessageUpstreamConnect, Err: cause}
}

// Invocation returns a KindInvocation error wrapping cause.
func Invocation(cause error) *Error {
	return &Error{Kind: KindInvocation, Message: MessageInvocation, Err: cause}
}

// KindOf reports the kind carried by err, or KindInternal when err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Body is the JSON error envelope shared by every error status.
type Body struct {
	Error Detail `json:"error"`
}

// Detail is the inner error object of Body.
type Detail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Map converts err into the status and body sent to the client. Messages of
// 5xx kinds never include the cause; unclassified errors collapse to a
// generic 500.
func Map(err error) (int, Body) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, newBody(http.StatusInternalServerError, MessageInternal)
	}

	status := apiErr.Kind.Status()
	msg := apiErr.Message
	switch apiErr.Kind {
	case KindInternal:
		msg = MessageInternal
	case KindInvocation:
		msg = MessageInvocation
	case KindUpstreamConnect:
		msg = MessageUpstreamConnect
	case KindAuthentication:
		msg = MessageAuthentication
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return status, newBody(status, msg)
}

// LogDetail reports whether err should be logged with full detail server-side:
// internal and unclassified failures always are.
func LogDetail(err error) bool {
	return KindOf(err) == KindInternal
}

func newBody(status int, msg string) Body {
	return Body{Error: Detail{Message: msg, Code: status}}
}
