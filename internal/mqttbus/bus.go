// Package mqttbus mirrors door state onto MQTT and accepts door commands
// from it.
package mqttbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/garage-bridge/internal/myq"
)

// Broker is the part of *mqtt.Client the bus uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Commander executes door commands. *bridge.Engine satisfies it.
type Commander interface {
	Execute(ctx context.Context, id string, cmd myq.Command) error
}

// Logger defines the logging interface used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StateMessage is the retained payload on a door's state topic.
type StateMessage struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	State      door.DoorState `json:"state"`
	Online     bool           `json:"online"`
	LastUpdate string         `json:"lastUpdate,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EventMessage is published on a door's event topic for each transition.
type EventMessage struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	From      door.DoorState `json:"from"`
	To        door.DoorState `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
}

// commandMessage is the JSON form of a command payload. A bare "open" or
// "close" string is also accepted.
type commandMessage struct {
	Command string `json:"command"`
}

// Options configures a Bus.
type Options struct {
	Broker    Broker
	Topics    mqtt.Topics
	QoS       byte
	Commander Commander

	// CommandTimeout bounds each command received from MQTT. Default: 15s
	CommandTimeout time.Duration

	// Location formats lastUpdate. Default: time.Local
	Location *time.Location

	Logger Logger
}

// Bus publishes door state and transitions and routes command messages.
type Bus struct {
	broker    Broker
	topics    mqtt.Topics
	qos       byte
	commander Commander
	timeout   time.Duration
	location  *time.Location
	logger    Logger
}

// New creates a Bus.
func New(opts Options) *Bus {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 15 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Bus{
		broker:    opts.Broker,
		topics:    opts.Topics,
		qos:       opts.QoS,
		commander: opts.Commander,
		timeout:   opts.CommandTimeout,
		location:  opts.Location,
		logger:    opts.Logger,
	}
}

// DoorChanged publishes the new retained state and a transition event.
// It implements bridge.Sink.
func (b *Bus) DoorChanged(_ context.Context, t bridge.Transition) error {
	if !b.broker.IsConnected() {
		return mqtt.ErrNotConnected
	}

	dev := t.Device
	dev.State.DoorState = t.To
	if err := b.publishState(dev, t.At); err != nil {
		return err
	}

	event, err := json.Marshal(EventMessage{
		ID:        dev.ID,
		Name:      dev.Name,
		From:      t.From,
		To:        t.To,
		Timestamp: t.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding door event: %w", err)
	}
	return b.broker.Publish(b.topics.Event(dev.ID), event, b.qos, false)
}

// PublishSnapshot publishes the retained state of every device. Call it on
// connect so subscribers start from current values.
func (b *Bus) PublishSnapshot(devices iter.Seq[door.Device]) error {
	if !b.broker.IsConnected() {
		return mqtt.ErrNotConnected
	}
	now := time.Now()
	var errs []error
	for dev := range devices {
		if err := b.publishState(dev, now); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dev.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publishState(dev door.Device, at time.Time) error {
	payload, err := json.Marshal(StateMessage{
		ID:         dev.ID,
		Name:       dev.Name,
		State:      dev.State.DoorState,
		Online:     dev.State.Online,
		LastUpdate: bridge.FormatLastUpdate(dev.State.LastUpdate, b.location),
		Timestamp:  at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding door state: %w", err)
	}
	return b.broker.Publish(b.topics.State(dev.ID), payload, b.qos, true)
}

// SubscribeCommands listens on every door's command topic.
func (b *Bus) SubscribeCommands() error {
	if b.commander == nil {
		return fmt.Errorf("mqttbus: no commander configured")
	}
	return b.broker.Subscribe(b.topics.AllCommands(), b.qos, b.handleCommand)
}

// handleCommand executes one command message. Errors are returned for the
// client to log; nothing is published back.
func (b *Bus) handleCommand(topic string, payload []byte) error {
	id, ok := b.topics.CommandDoorID(topic)
	if !ok {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	cmd, err := parseCommandPayload(payload)
	if err != nil {
		return fmt.Errorf("door %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	b.logger.Info("mqtt door command", "device_id", id, "command", string(cmd))
	if err := b.commander.Execute(ctx, id, cmd); err != nil {
		return fmt.Errorf("door %s %s: %w", id, cmd, err)
	}
	return nil
}

func parseCommandPayload(payload []byte) (myq.Command, error) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var msg commandMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return "", fmt.Errorf("%w: %w", myq.ErrInvalidCommand, err)
		}
		raw = msg.Command
	}
	return myq.ParseCommand(strings.Trim(raw, `"`))
}
