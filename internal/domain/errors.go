package domain

import (
	"encoding/json"
	"fmt"
)

// Error types for consistent error handling across the client.

// ErrValidation indicates client-side input was rejected before any network
// call. Submission must be blocked on it.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidAmount indicates a non-positive or unparseable expense amount.
type ErrInvalidAmount struct {
	Input string
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount: %q (must be a positive number)", e.Input)
}

// ErrEmptyMemberSet indicates a split was requested over zero members.
type ErrEmptyMemberSet struct{}

func (e *ErrEmptyMemberSet) Error() string {
	return "cannot split an expense among zero members"
}

// ErrNetwork indicates a request failed to complete at all.
type ErrNetwork struct {
	Op  string
	Err error
}

func (e *ErrNetwork) Error() string {
	return fmt.Sprintf("network error [%s]: %v", e.Op, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrUnauthorized indicates a missing or expired token. Screens react by
// navigating to the unauthenticated flow rather than alerting in place.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// apiDetailItem is one field-level validation message in a structured error
// response ({"detail": [{"loc": ..., "msg": ..., "type": ...}, ...]}).
type apiDetailItem struct {
	Msg string `json:"msg"`
}

// ErrAPI indicates the backend responded with a non-success status. Detail
// carries the raw "detail" payload, which is either a plain message or a
// list of field-level validation messages.
type ErrAPI struct {
	Status int
	Detail json.RawMessage
}

func (e *ErrAPI) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message())
}

// Message unwraps Detail into a single human-readable string: the first
// message of a detail list, a string detail verbatim, or a generic fallback.
func (e *ErrAPI) Message() string {
	if len(e.Detail) > 0 {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil && s != "" {
			return s
		}
		var items []apiDetailItem
		if err := json.Unmarshal(e.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	return "An error occurred. Please try again."
}

// ErrCircuitOpen indicates the circuit breaker is refusing backend calls.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
