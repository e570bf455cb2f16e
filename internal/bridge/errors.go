package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrNotifyFailed is returned when the hub rejects or misses a notification.
	ErrNotifyFailed = errors.New("bridge: notification failed")

	// ErrCommandFailed wraps upstream failures while sending a door command.
	ErrCommandFailed = errors.New("bridge: command failed")

	// ErrRefreshFailed wraps upstream failures during a refresh cycle.
	ErrRefreshFailed = errors.New("bridge: refresh failed")
)
