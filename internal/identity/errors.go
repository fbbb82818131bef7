package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidMFACode     = errors.New("invalid mfa code")
	ErrAccountInactive    = errors.New("account is not active")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrPermissionDenied   = errors.New("permission denied")
)

// ValidationError reports a rejected registration or password change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// LockedError is returned while an account is temporarily locked. It
// carries only the remaining wait time; attempt counts are deliberately
// not surfaced to callers.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %s", e.RetryAfter.Round(time.Second))
}
