package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidToken         = errors.New("invalid invitation token")
	ErrConflict             = errors.New("splits already exist for work")
	ErrLockMismatch         = errors.New("requested splits do not match lockable owner splits")
	ErrConcurrentActivation = errors.New("work is busy in another transaction")
	ErrLockedSplits         = errors.New("work has splits locked as advance collateral")
	ErrPolicyRejected       = errors.New("allocation rejected by policy")
	ErrIntegrity            = errors.New("split history integrity violated")
)
