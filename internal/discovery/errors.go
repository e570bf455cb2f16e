package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrNotSearch is returned when a datagram is not an M-SEARCH request.
	ErrNotSearch = errors.New("discovery: not an M-SEARCH request")

	// ErrInvalidCallback is returned for an unusable CALLBACK header.
	ErrInvalidCallback = errors.New("discovery: invalid callback")

	// ErrAnnounceFailed is returned when the hub callback rejects an announcement.
	ErrAnnounceFailed = errors.New("discovery: announcement failed")

	// ErrAnnounceBusy is returned when a search is dropped because an
	// announcement to another callback is in progress.
	ErrAnnounceBusy = errors.New("discovery: announcement in progress")

	// ErrNoAddress is returned when no advertisable IPv4 address is found.
	ErrNoAddress = errors.New("discovery: no advertisable address")

	// ErrUnknownMode is returned by New for an unsupported mode.
	ErrUnknownMode = errors.New("discovery: unknown mode")
)
