package door

import "errors"

// Domain errors for the door package.
var (
	// ErrDeviceNotFound is returned when a device ID is not in the cache.
	ErrDeviceNotFound = errors.New("door: device not found")

	// ErrInvalidPeer is returned when a peer address fails validation.
	ErrInvalidPeer = errors.New("door: invalid peer address")
)
