package loyalty

import (
	"errors"
	"fmt"
)

// RejectionError represents a terminal business rejection of an
// operation: the guard predicate on the conditional write did not hold.
//
// Rejections are not retried by the core and are safe to replay - a
// FAILED idempotency record reproduces the same rejection for every
// call that shares the key.
type RejectionError struct {
	// Code identifies the rejection category.
	Code RejectionCode

	// Message is a human-readable description.
	Message string

	// IdempotencyKey identifies the logical attempt.
	IdempotencyKey string

	// Details contains additional context.
	Details map[string]string
}

// RejectionCode categorizes terminal rejections.
type RejectionCode string

const (
	// CodeInsufficientPoints indicates an adjustment or debit would
	// drive the balance negative.
	CodeInsufficientPoints RejectionCode = "INSUFFICIENT_POINTS"

	// CodeRewardUnavailable indicates the reward is inactive or its
	// stock was exhausted at the moment of the conditional update.
	CodeRewardUnavailable RejectionCode = "REWARD_UNAVAILABLE"

	// CodeSessionAlreadyClosed indicates the session was closed by a
	// concurrent or prior call. A benign race loss.
	CodeSessionAlreadyClosed RejectionCode = "SESSION_ALREADY_CLOSED"

	// CodeKeyConflict indicates an idempotency key was replayed with
	// different arguments than the original attempt.
	CodeKeyConflict RejectionCode = "KEY_CONFLICT"
)

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e.IdempotencyKey != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.IdempotencyKey)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInsufficientPoints returns true if the error is an insufficient
// points rejection. Uses errors.As to handle wrapped errors.
func IsInsufficientPoints(err error) bool {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code == CodeInsufficientPoints
	}
	return false
}

// IsRewardUnavailable returns true if the error is a reward
// unavailable rejection. Uses errors.As to handle wrapped errors.
func IsRewardUnavailable(err error) bool {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code == CodeRewardUnavailable
	}
	return false
}

// IsSessionAlreadyClosed returns true if the error is a session
// already closed rejection. Uses errors.As to handle wrapped errors.
func IsSessionAlreadyClosed(err error) bool {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code == CodeSessionAlreadyClosed
	}
	return false
}

// IsKeyConflict returns true if the error is a key conflict rejection.
// Uses errors.As to handle wrapped errors.
func IsKeyConflict(err error) bool {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code == CodeKeyConflict
	}
	return false
}

// NewInsufficientPointsError creates a rejection for a delta that would
// drive an account balance negative.
func NewInsufficientPointsError(key, accountID string, delta int64) *RejectionError {
	return &RejectionError{
		Code:           CodeInsufficientPoints,
		Message:        "adjustment would drive balance negative",
		IdempotencyKey: key,
		Details: map[string]string{
			"account_id": accountID,
			"delta":      fmt.Sprintf("%d", delta),
		},
	}
}

// NewRewardUnavailableError creates a rejection for an exhausted or
// inactive reward.
func NewRewardUnavailableError(key, rewardID string) *RejectionError {
	return &RejectionError{
		Code:           CodeRewardUnavailable,
		Message:        "reward is inactive or out of stock",
		IdempotencyKey: key,
		Details: map[string]string{
			"reward_id": rewardID,
		},
	}
}

// NewSessionAlreadyClosedError creates a rejection for a session that
// was already closed.
func NewSessionAlreadyClosedError(key, sessionID string) *RejectionError {
	return &RejectionError{
		Code:           CodeSessionAlreadyClosed,
		Message:        "cash session is already closed",
		IdempotencyKey: key,
		Details: map[string]string{
			"session_id": sessionID,
		},
	}
}

// NewKeyConflictError creates a rejection for a key replayed with
// different arguments.
func NewKeyConflictError(key, operation string) *RejectionError {
	return &RejectionError{
		Code:           CodeKeyConflict,
		Message:        "idempotency key replayed with different arguments",
		IdempotencyKey: key,
		Details: map[string]string{
			"operation": operation,
		},
	}
}

// StoreError wraps an underlying store failure (network, constraint
// violation unrelated to the guarded condition). The claimed key is
// released on this path, so the call is safe to retry with the same
// idempotency key.
type StoreError struct {
	Operation string // The operation that failed
	Err       error  // The underlying store error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure in %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError returns true if the error is a store failure.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
