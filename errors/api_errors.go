package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an APIError.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindAuth         Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindUpstreamAuth Kind = "upstream_auth"
	KindUpstream     Kind = "upstream"
	KindReconcile    Kind = "reconcile"
	KindValidation   Kind = "validation"
)

// APIError is the error type surfaced to the HTTP boundary. Status is the HTTP
// status the error maps to; Details carries the provider's raw error payload
// when one exists.
type APIError struct {
	Kind    Kind
	Message string
	Status  int
	Details json.RawMessage
	Cause   error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// WithStatus returns a copy of the error with a different HTTP status.
func (e *APIError) WithStatus(status int) *APIError {
	cp := *e
	cp.Status = status

	return &cp
}

// WithCause returns a copy of the error wrapping cause.
func (e *APIError) WithCause(cause error) *APIError {
	cp := *e
	cp.Cause = cause

	return &cp
}

func newError(kind Kind, status int, message string) *APIError {
	return &APIError{Kind: kind, Message: message, Status: status}
}

// NewBadRequest reports missing or malformed caller input.
func NewBadRequest(message string) *APIError {
	return newError(KindBadRequest, http.StatusBadRequest, message)
}

// NewAuthError reports a missing or invalid bearer credential.
func NewAuthError(message string) *APIError {
	return newError(KindAuth, http.StatusUnauthorized, message)
}

// NewNotFound reports a store miss. The default status is 404; callers in an
// authentication context override it with WithStatus(401).
func NewNotFound(message string) *APIError {
	return newError(KindNotFound, http.StatusNotFound, message)
}

// NewUpstreamAuth reports that the identity provider rejected a grant or an
// identity lookup.
func NewUpstreamAuth(message string) *APIError {
	return newError(KindUpstreamAuth, http.StatusUnauthorized, message)
}

// NewUpstream reports a provider failure that is not an authentication problem.
func NewUpstream(message string) *APIError {
	return newError(KindUpstream, http.StatusBadGateway, message)
}

// NewReconcile reports a failed object upsert. status is the provider's
// status and details its raw error array.
func NewReconcile(message string, status int, details json.RawMessage) *APIError {
	if status < http.StatusBadRequest {
		status = http.StatusBadGateway
	}

	e := newError(KindReconcile, status, message)
	e.Details = details

	return e
}

// NewValidation reports stored or outgoing data that does not match its
// declared schema.
func NewValidation(message string, cause error) *APIError {
	e := newError(KindValidation, http.StatusInternalServerError, message)
	e.Cause = cause

	return e
}

// As returns the first APIError in err's chain.
func As(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}

func is(err error, kind Kind) bool {
	apiErr, ok := As(err)

	return ok && apiErr.Kind == kind
}

func IsBadRequest(err error) bool   { return is(err, KindBadRequest) }
func IsAuth(err error) bool         { return is(err, KindAuth) }
func IsNotFound(err error) bool     { return is(err, KindNotFound) }
func IsUpstreamAuth(err error) bool { return is(err, KindUpstreamAuth) }
func IsUpstream(err error) bool     { return is(err, KindUpstream) }
func IsReconcile(err error) bool    { return is(err, KindReconcile) }
func IsValidation(err error) bool   { return is(err, KindValidation) }
