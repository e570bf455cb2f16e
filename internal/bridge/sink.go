package bridge

import (
	"context"
	"time"

	"github.com/nerrad567/garage-bridge/internal/door"
)

// Transition is a garage door state change seen between two cycles.
type Transition struct {
	Device door.Device
	From   door.DoorState
	To     door.DoorState
	At     time.Time
}

// Sink receives every transition, whether or not a hub is registered.
// Sinks run concurrently with hub notification and share its timeout.
type Sink interface {
	DoorChanged(ctx context.Context, t Transition) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, t Transition) error

// DoorChanged calls f.
func (f SinkFunc) DoorChanged(ctx context.Context, t Transition) error {
	return f(ctx, t)
}

// Recorder observes engine activity for metrics.
type Recorder interface {
	RefreshCompleted(err error, elapsed time.Duration)
	NotificationDelivered(err error)
	TransitionObserved(to door.DoorState)
	RegionSwitched()
	CommandExecuted(command string, err error)
}

type noopRecorder struct{}

func (noopRecorder) RefreshCompleted(error, time.Duration) {}
func (noopRecorder) NotificationDelivered(error)           {}
func (noopRecorder) TransitionObserved(door.DoorState)     {}
func (noopRecorder) RegionSwitched()                       {}
func (noopRecorder) CommandExecuted(string, error)         {}
