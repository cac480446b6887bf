package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device identifier does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrExists is returned when creating a device with an identifier that already exists.
	ErrExists = errors.New("device: already exists")

	// ErrInvalidIdentifier is returned when a device identifier is empty or malformed.
	ErrInvalidIdentifier = errors.New("device: invalid identifier")

	// ErrInvalidAddress is returned when a device network address is empty.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidMAC is returned when a MAC address cannot be parsed.
	ErrInvalidMAC = errors.New("device: invalid mac address")
)
