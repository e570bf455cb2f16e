package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/garage-bridge/internal/door"
)

// NotifyPath is the hub endpoint that receives door state updates.
const NotifyPath = "/updateDeviceState"

// Notification is the body posted to the hub on a transition.
type Notification struct {
	UUID       string `json:"uuid"`
	DoorStatus string `json:"doorStatus"`
	LastUpdate string `json:"lastUpdate"`
}

// Notifier delivers a notification to a hub.
type Notifier interface {
	Notify(ctx context.Context, peer door.PeerAddress, n Notification) error
}

// HTTPNotifier posts notifications as JSON.
type HTTPNotifier struct {
	client *http.Client
}

// NewHTTPNotifier creates a notifier. A nil client uses a default one;
// deadlines come from the caller's context.
func NewHTTPNotifier(client *http.Client) *HTTPNotifier {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPNotifier{client: client}
}

// Notify posts n to http://peer/updateDeviceState. Any non-2xx answer is a
// failure.
func (h *HTTPNotifier) Notify(ctx context.Context, peer door.PeerAddress, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	url := "http://" + peer.Addr() + NotifyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotifyFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: hub answered %d", ErrNotifyFailed, resp.StatusCode)
	}
	return nil
}
