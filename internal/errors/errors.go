package errors

import (
	"errors"
	"fmt"
)

// Common error types for the login service
var (
	// Authentication errors
	ErrAuthExchange        = errors.New("authorization code exchange failed")
	ErrSilentRefresh       = errors.New("silent token refresh failed")
	ErrInteractionRequired = errors.New("user interaction required")

	// Session errors
	ErrInvalidSession   = errors.New("invalid session")
	ErrNoAccessToken    = errors.New("no access token available")
	ErrSessionNotFound  = errors.New("session not found")
	ErrMissingSessionID = errors.New("session id is required")

	// Token cache errors
	ErrCacheCorrupt = errors.New("token cache blob is corrupt")

	// General errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInternal      = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
