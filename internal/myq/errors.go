package myq

import "errors"

// Domain errors for the myq package.
var (
	// ErrUnauthorized is returned when credentials are missing or rejected.
	ErrUnauthorized = errors.New("myq: unauthorized")

	// ErrInvalidCommand is returned for a command the opener does not accept.
	ErrInvalidCommand = errors.New("myq: invalid command")

	// ErrNoRegions is returned when a session is built without endpoints.
	ErrNoRegions = errors.New("myq: no regions configured")

	// ErrUpstream is returned for unexpected responses from the cloud API.
	ErrUpstream = errors.New("myq: upstream error")

	// ErrNoAccount is returned when the login has no account attached.
	ErrNoAccount = errors.New("myq: no account")
)
