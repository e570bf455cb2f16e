package myq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nerrad567/garage-bridge/internal/door"
)

// Client lists and controls devices on one cloud account.
type Client interface {
	// Devices returns every device on the account with its current state.
	Devices(ctx context.Context) ([]door.Device, error)

	// Execute sends cmd to the device with the given serial number.
	Execute(ctx context.Context, serial string, cmd Command) error
}

// Command is an action accepted by a garage door opener.
type Command string

// Supported commands.
const (
	CommandOpen  Command = "open"
	CommandClose Command = "close"
)

// ParseCommand accepts the spellings hubs send (open, close, opening,
// closing, closed) in any case.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "opening":
		return CommandOpen, nil
	case "close", "closing", "closed":
		return CommandClose, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
}

// Credentials identify a cloud account.
type Credentials struct {
	Email    string
	Password string
}

// Empty reports whether either field is missing.
func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

// String hides the password.
func (c Credentials) String() string {
	return c.Email
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.Email)
}
