package service

import "errors"

// Error kinds returned by CredentialService. Store and codec failures are
// wrapped so both the kind and the cause survive errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid_input")
	ErrAlreadyRegistered = errors.New("already_registered")
	ErrNotRegistered     = errors.New("not_registered")
	ErrAuthentication    = errors.New("authentication_failed")

	// ErrStaleToken means the presented refresh token is neither current nor
	// used. Nothing is changed.
	ErrStaleToken = errors.New("stale_refresh_token")

	// ErrReuseDetected means an already rotated refresh token came back. By
	// the time it is returned every session of the shop is gone.
	ErrReuseDetected = errors.New("refresh_token_reuse_detected")

	ErrSessionPersist = errors.New("session_persist_failed")
	ErrSessionExists  = errors.New("session_exists")
)
