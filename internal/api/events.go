package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/r3labs/sse/v2"

	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/door"
)

// eventStream is the single SSE stream carrying door transitions.
const eventStream = "doors"

// eventType names transition events on the stream.
const eventType = "door"

// TransitionEvent is the data of one stream event.
type TransitionEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	From       door.DoorState `json:"from"`
	To         door.DoorState `json:"to"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Events fans door transitions out to Server-Sent Events subscribers.
// It is a bridge.Sink and an http.Handler.
type Events struct {
	server *sse.Server
}

// NewEvents creates the event stream. Events published while nobody is
// subscribed are dropped.
func NewEvents() *Events {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(eventStream)
	return &Events{server: server}
}

// DoorChanged publishes t to current subscribers.
func (e *Events) DoorChanged(_ context.Context, t bridge.Transition) error {
	data, err := json.Marshal(TransitionEvent{
		ID:         t.Device.ID,
		Name:       t.Device.Name,
		From:       t.From,
		To:         t.To,
		OccurredAt: t.At.UTC(),
	})
	if err != nil {
		return err
	}
	e.server.Publish(eventStream, &sse.Event{
		Event: []byte(eventType),
		Data:  data,
	})
	return nil
}

// ServeHTTP subscribes the request to the transition stream until the
// client goes away or Close is called.
func (e *Events) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Streams outlive the server's write timeout.
	//nolint:errcheck // Writers without deadline support keep the default
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	r = r.Clone(r.Context())
	q := r.URL.Query()
	q.Set("stream", eventStream)
	r.URL.RawQuery = q.Encode()
	e.server.ServeHTTP(w, r)
}

// Close ends every open subscription.
func (e *Events) Close() {
	e.server.Close()
}
