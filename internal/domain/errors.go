package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotEligible         = errors.New("position not eligible yet")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("concurrent modification")
	ErrLockHeld            = errors.New("lock already held")
	ErrPayoutFailed        = errors.New("payout execution failed")
	ErrStalePrice          = errors.New("price quote is stale")
	ErrTrenchInactive      = errors.New("trench is not active")
	ErrContextDone         = errors.New("context cancelled")
)
