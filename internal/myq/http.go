package myq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kr/pretty"

	"github.com/nerrad567/garage-bridge/internal/door"
)

// Default settings for HTTPClient.
const (
	DefaultRequestTimeout = 10 * time.Second
	clientID              = "garagebridge"
	vendorName            = "MyQ"
	maxResponseSize       = 1 << 20
)

// Region is one regional set of cloud endpoints.
type Region struct {
	Name       string
	AuthURL    string
	AccountURL string
	DevicesURL string
}

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	// Timeout bounds every request. Default: DefaultRequestTimeout
	Timeout time.Duration

	// HTTP is the transport to use. Default: a new http.Client
	HTTP *http.Client

	Logger Logger
}

// HTTPClient implements Client over the cloud JSON API.
//
// It logs in lazily on first use and keeps the bearer token until the API
// answers 401, after which the next call logs in again.
type HTTPClient struct {
	creds   Credentials
	region  Region
	http    *http.Client
	timeout time.Duration
	logger  Logger

	// mu guards the login state. It is held across the login round trip so
	// concurrent callers share one login.
	mu        sync.Mutex
	token     string
	accountID string
}

// NewHTTPClient creates a client for the given account and region.
// No network traffic happens until the first call.
func NewHTTPClient(creds Credentials, region Region, opts HTTPOptions) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &HTTPClient{
		creds:   creds,
		region:  region,
		http:    opts.HTTP,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Region returns the endpoints this client talks to.
func (c *HTTPClient) Region() Region {
	return c.region
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type accountsResponse struct {
	Accounts []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"accounts"`
}

type devicesResponse struct {
	Count int         `json:"count"`
	Items []apiDevice `json:"items"`
}

type apiDevice struct {
	SerialNumber   string `json:"serial_number"`
	DeviceFamily   string `json:"device_family"`
	DevicePlatform string `json:"device_platform"`
	DeviceType     string `json:"device_type"`
	Name           string `json:"name"`
	State          struct {
		DoorState  string `json:"door_state"`
		LastUpdate string `json:"last_update"`
		Online     bool   `json:"online"`
	} `json:"state"`
}

// toDevice maps the wire record to a cache record.
func (d apiDevice) toDevice() door.Device {
	return door.Device{
		ID:       d.SerialNumber,
		Family:   d.DeviceFamily,
		Name:     d.Name,
		Vendor:   vendorName,
		Platform: d.DevicePlatform,
		Model:    d.DeviceType,
		State: door.State{
			DoorState:  door.ParseDoorState(d.State.DoorState),
			LastUpdate: parseTimestamp(d.State.LastUpdate),
			Online:     d.State.Online,
		},
	}
}

// parseTimestamp accepts RFC 3339 with or without fractional seconds.
// Unparseable values yield the zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Devices returns every device on the account.
func (c *HTTPClient) Devices(ctx context.Context) ([]door.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, account, err := c.login(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v5.2/Accounts/%s/Devices", c.region.DevicesURL, url.PathEscape(account))
	var resp devicesResponse
	if err := c.do(ctx, http.MethodGet, endpoint, token, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	devices := make([]door.Device, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.SerialNumber == "" {
			continue
		}
		devices = append(devices, item.toDevice())
	}

	c.logger.Debug("devices fetched", "region", c.region.Name, "count", len(devices), "devices", deviceDump(devices))
	return devices, nil
}

// deviceDump renders a device list with pretty only when a handler
// actually emits the record.
type deviceDump []door.Device

func (d deviceDump) LogValue() slog.Value {
	return slog.StringValue(pretty.Sprint([]door.Device(d)))
}

// Execute sends a door command.
func (c *HTTPClient) Execute(ctx context.Context, serial string, cmd Command) error {
	if cmd != CommandOpen && cmd != CommandClose {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, account, err := c.login(ctx)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/api/v5.2/Accounts/%s/door_openers/%s/%s",
		c.region.DevicesURL, url.PathEscape(account), url.PathEscape(serial), cmd)
	if err := c.do(ctx, http.MethodPut, endpoint, token, nil, nil); err != nil {
		return fmt.Errorf("sending %s to %s: %w", cmd, serial, err)
	}
	return nil
}

// login returns the cached token and account, logging in if needed.
func (c *HTTPClient) login(ctx context.Context) (token, account string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, c.accountID, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {clientID},
		"username":   {c.creds.Email},
		"password":   {c.creds.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.region.AuthURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok tokenResponse
	if err := c.send(req, &tok); err != nil {
		return "", "", fmt.Errorf("logging in: %w", err)
	}
	if tok.AccessToken == "" {
		return "", "", fmt.Errorf("logging in: %w: empty token", ErrUnauthorized)
	}

	var accounts accountsResponse
	if err := c.do(ctx, http.MethodGet, c.region.AccountURL+"/api/v6.0/accounts", tok.AccessToken, nil, &accounts); err != nil {
		return "", "", fmt.Errorf("listing accounts: %w", err)
	}
	if len(accounts.Accounts) == 0 || accounts.Accounts[0].ID == "" {
		return "", "", ErrNoAccount
	}

	c.token = tok.AccessToken
	c.accountID = accounts.Accounts[0].ID
	c.logger.Info("logged in to cloud account", "region", c.region.Name, "account", c.creds)
	return c.token, c.accountID, nil
}

// clearToken forces the next call to log in again.
func (c *HTTPClient) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.accountID = ""
	c.mu.Unlock()
}

// do issues an authenticated JSON request. A 401 clears the cached token.
func (c *HTTPClient) do(ctx context.Context, method, endpoint, token string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	err = c.send(req, out)
	if err != nil && errors.Is(err, ErrUnauthorized) {
		c.clearToken()
	}
	return err
}

// send performs the request and decodes a JSON body into out when non-nil.
func (c *HTTPClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseSize)

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusBadRequest && strings.HasSuffix(req.URL.Path, "/connect/token"):
		// Bad credentials come back as invalid_grant.
		return fmt.Errorf("%w: login rejected", ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrUpstream, err)
	}
	return nil
}
