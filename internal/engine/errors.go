package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization means the store or identity provider could not be
	// reached at startup. It is fatal to the whole process.
	ErrInitialization = errors.New("initialization failed")
	// ErrNotFound covers documents that are missing and documents hidden
	// from the actor because they are soft-deleted.
	ErrNotFound         = errors.New("character not found")
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTransient wraps store read, write and subscribe failures. Nothing
	// retries automatically; the next event or command tries again.
	ErrTransient     = errors.New("store unavailable")
	ErrNoIdentity    = errors.New("no signed-in identity")
	ErrNoSelection   = errors.New("no character is open")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSessionClosed = errors.New("session closed")

	errSuperseded = errors.New("open superseded")
)

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

// Initialization wraps a startup failure so callers can test for
// ErrInitialization.
func Initialization(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInitialization, err)
}
