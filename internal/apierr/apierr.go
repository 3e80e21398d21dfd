// Package apierr defines the closed set of API failure kinds and the uniform
// error envelope rendered to clients.
//
// Every failure that crosses the HTTP boundary is one of the typed kinds below;
// anything else is wrapped as a ServerError before it is written, so internal
// details never leak into response bodies.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusSessionExpired is the non-standard status line used for idle session
// expiry, mirroring the legacy "440 Login Time-out" convention clients already
// handle.
const StatusSessionExpired = 440

// Code identifies a failure kind in machine-readable form.
type Code string

const (
	CodeInvalidAuthentication  Code = "InvalidAuthentication"
	CodeSessionExpired         Code = "SessionExpired"
	CodeUnauthorized           Code = "Unauthorized"
	CodeInvalidQueryParameters Code = "InvalidQueryParameters"
	CodeBadSyntax              Code = "BadSyntax"
	CodeJSONValidation         Code = "JsonValidationError"
	CodeResourceNotFound       Code = "ResourceNotFound"
	CodeServerError            Code = "ServerError"
)

// Error is a taxonomy failure carrying the HTTP status and machine-readable
// code rendered in the response envelope.
type Error struct {
	Status  int
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope is the JSON body written for every failed request.
type Envelope struct {
	Status    int    `json:"status"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// Envelope returns the wire representation of the error.
func (e *Error) Envelope() Envelope {
	return Envelope{Status: e.Status, ErrorCode: string(e.Code), Message: e.Message}
}

// InvalidAuthentication reports a token that is absent from the session
// registry.
func InvalidAuthentication(message string) *Error {
	if message == "" {
		message = "invalid authentication token"
	}
	return &Error{Status: http.StatusUnauthorized, Code: CodeInvalidAuthentication, Message: message}
}

// SessionExpired reports a known token whose idle window has elapsed.
func SessionExpired() *Error {
	return &Error{Status: StatusSessionExpired, Code: CodeSessionExpired, Message: "session expired"}
}

// Unauthorized reports a missing credential, an insufficient permission set,
// or a login attempt by a non-member.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "unauthorized"
	}
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

// InvalidQueryParameters reports query keys outside an endpoint's allow-list.
func InvalidQueryParameters(keys ...string) *Error {
	message := "invalid query parameters"
	if len(keys) > 0 {
		message = fmt.Sprintf("invalid query parameters: %v", keys)
	}
	return &Error{Status: http.StatusBadRequest, Code: CodeInvalidQueryParameters, Message: message}
}

// BadSyntax reports a malformed pagination, format, or authorization header
// value.
func BadSyntax(message string) *Error {
	if message == "" {
		message = "bad syntax"
	}
	return &Error{Status: http.StatusBadRequest, Code: CodeBadSyntax, Message: message}
}

// JSONValidation reports the first schema violation found in a request body.
func JSONValidation(message string) *Error {
	if message == "" {
		message = "request body failed validation"
	}
	return &Error{Status: http.StatusBadRequest, Code: CodeJSONValidation, Message: message}
}

// NotFound reports a business lookup miss.
func NotFound(resource string) *Error {
	message := "resource not found"
	if resource != "" {
		message = fmt.Sprintf("%s not found", resource)
	}
	return &Error{Status: http.StatusNotFound, Code: CodeResourceNotFound, Message: message}
}

// Server wraps an unclassified failure. The message is safe to return to
// clients; callers log the underlying error separately.
func Server(message string) *Error {
	if message == "" {
		message = "internal server error"
	}
	return &Error{Status: http.StatusInternalServerError, Code: CodeServerError, Message: message}
}

// As extracts a taxonomy error from err when present.
func As(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}
