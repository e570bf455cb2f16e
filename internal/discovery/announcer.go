package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Announcer defaults.
const (
	DefaultReplyCooldown = 30 * time.Second
	announceTimeout      = 5 * time.Second
	announceMaxTries     = 3
)

// AnnouncerOptions configures an Announcer.
type AnnouncerOptions struct {
	Info Info

	// Cooldown suppresses repeat announcements to the same callback.
	// Default: DefaultReplyCooldown
	Cooldown time.Duration

	// HTTP is the client used for callbacks. Default: a new http.Client
	HTTP *http.Client

	// InitialBackoff is the first retry delay. Default: 250ms
	InitialBackoff time.Duration

	Recorder Recorder
	Logger   Logger
}

// Announcer POSTs the bridge's address to hub callback URLs.
//
// At most one announcement is in progress at any time. Searches for the
// same callback join it; searches for any other callback are dropped with
// ErrAnnounceBusy and start nothing new. A callback that was announced to
// successfully is not announced to again until the cooldown expires.
type Announcer struct {
	info     Info
	http     *http.Client
	initial  time.Duration
	flight   singleflight.Group
	mu       sync.Mutex
	inflight string
	recent   *ttlcache.Cache[string, struct{}]
	started  atomic.Bool
	recorder Recorder
	logger   Logger
}

// NewAnnouncer creates an announcer. Call Start to begin expiring
// cooldown entries and Stop to release it.
func NewAnnouncer(opts AnnouncerOptions) *Announcer {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultReplyCooldown
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 250 * time.Millisecond
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Announcer{
		info:    opts.Info,
		http:    opts.HTTP,
		initial: opts.InitialBackoff,
		recent: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](opts.Cooldown),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Start runs the cooldown expiry loop in the background.
func (a *Announcer) Start() {
	if a.started.CompareAndSwap(false, true) {
		go a.recent.Start()
	}
}

// Stop halts the cooldown expiry loop. Safe to call without Start.
func (a *Announcer) Stop() {
	if a.started.CompareAndSwap(true, false) {
		a.recent.Stop()
	}
}

// Announce answers a search carrying a CALLBACK header without blocking.
//
// Returns a channel that receives the outcome, or nil if the search was
// ignored for an invalid callback or cooldown. A search for the callback
// already in flight shares its outcome. While another callback is in flight
// the channel receives ErrAnnounceBusy.
func (a *Announcer) Announce(ctx context.Context, search Search) <-chan error {
	callback, err := search.CallbackURL()
	if err != nil {
		a.logger.Debug("ignoring search with bad callback", "callback", search.Callback, "error", err)
		return nil
	}
	target := callback.String()

	if a.recent.Get(target) != nil {
		a.logger.Debug("callback announced recently", "callback", target)
		return nil
	}

	done := make(chan error, 1)

	a.mu.Lock()
	if a.inflight != "" && a.inflight != target {
		busy := a.inflight
		a.mu.Unlock()
		a.logger.Debug("announcement in progress, dropping search", "callback", target, "in_flight", busy)
		done <- ErrAnnounceBusy
		return done
	}
	a.inflight = target
	ch := a.flight.DoChan(target, func() (any, error) {
		defer a.finish(target)

		err := a.announce(ctx, target)
		a.recorder.DiscoveryReply("callback", err)
		if err != nil {
			a.logger.Warn("discovery announcement failed", "callback", target, "error", err)
			return nil, err
		}
		a.recent.Set(target, struct{}{}, ttlcache.DefaultTTL)
		a.logger.Info("announced bridge to hub", "callback", target, "location", a.info.Location)
		return nil, nil
	})

	a.mu.Unlock()

	go func() {
		done <- (<-ch).Err
	}()
	return done
}

// finish clears the in-flight marker set by Announce.
func (a *Announcer) finish(target string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight == target {
		a.inflight = ""
	}
}

// announce POSTs the bridge info to target, retrying transient failures.
func (a *Announcer) announce(ctx context.Context, target string) error {
	body, err := json.Marshal(a.info)
	if err != nil {
		return fmt.Errorf("encoding announcement: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.initial
	bo.MaxInterval = 2 * time.Second

	operation := func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, announceTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.http.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode <= 299:
			return struct{}{}, nil
		case resp.StatusCode >= 400 && resp.StatusCode <= 499:
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: hub answered %d", ErrAnnounceFailed, resp.StatusCode))
		default:
			return struct{}{}, fmt.Errorf("%w: hub answered %d", ErrAnnounceFailed, resp.StatusCode)
		}
	}

	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(announceMaxTries))
	return err
}
