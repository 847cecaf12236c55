package store

import "errors"

// Sentinel errors for missing rows. Callers match with errors.Is.
var (
	ErrAccountNotFound = errors.New("loyalty account not found")
	ErrRewardNotFound  = errors.New("reward not found")
	ErrSessionNotFound = errors.New("cash session not found")
	ErrRecordNotFound  = errors.New("idempotency record not found")
)
