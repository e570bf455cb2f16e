package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
)

// testConfig points at a local broker. Tests that need one skip when it
// is not running.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS:         1,
		TopicPrefix: "garagebridge-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("garagebridge")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "garagebridge/status"},
		{"state", topics.State("CG1"), "garagebridge/state/CG1"},
		{"event", topics.Event("CG1"), "garagebridge/event/CG1"},
		{"command", topics.Command("CG1"), "garagebridge/command/CG1"},
		{"all commands", topics.AllCommands(), "garagebridge/command/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	tests := map[string]string{
		"":            DefaultTopicPrefix,
		"/":           DefaultTopicPrefix,
		"home/garage": "home/garage",
		"/bridge/":    "bridge",
	}
	for in, want := range tests {
		if got := NewTopics(in).Prefix(); got != want {
			t.Errorf("NewTopics(%q).Prefix() = %q, want %q", in, got, want)
		}
	}
}

func TestTopics_CommandDoorID(t *testing.T) {
	topics := NewTopics("garagebridge")

	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"garagebridge/command/CG1", "CG1", true},
		{"garagebridge/command/", "", false},
		{"garagebridge/command/CG1/extra", "", false},
		{"garagebridge/state/CG1", "", false},
		{"other/command/CG1", "", false},
	}
	for _, tt := range tests {
		got, ok := topics.CommandDoorID(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("CommandDoorID(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid qos", "a/b", 3, nil, ErrInvalidQoS},
		{"oversized", "a/b", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", "a/b", 1, []byte("x"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, handler, ErrInvalidTopic},
		{"invalid qos", "a/+", 3, handler, ErrInvalidQoS},
		{"nil handler", "a/+", 1, nil, ErrSubscribeFailed},
		{"disconnected", "a/+", 1, handler, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}
	if c.HasSubscription("a/+") {
		t.Error("failed subscription was tracked")
	}
}

func TestClient_NilSafety(t *testing.T) {
	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}

	empty := &Client{}
	if err := empty.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := empty.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled = %v", err)
	}
}

type mockLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { return fmt.Errorf("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warnings) != 1 || len(logger.errors) != 1 {
		t.Errorf("warnings = %v, errors = %v", logger.warnings, logger.errors)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("garagebridge-test-refused")
	cfg.Broker.Port = 1 // nothing listens here

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
