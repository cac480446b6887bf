package tv

import "errors"

// Domain errors for the tv package.
var (
	// ErrSessionClosed is returned when an operation is attempted on a
	// session after Close.
	ErrSessionClosed = errors.New("tv: session closed")

	// ErrSessionExists is returned when registering a session for a
	// device that already has one.
	ErrSessionExists = errors.New("tv: session already registered")
)
