package bridge

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/myq"
)

// Engine timing defaults.
const (
	// DefaultRefreshInterval is the pause between cycles.
	DefaultRefreshInterval = 10 * time.Second

	// DefaultNotifyTimeout bounds each hub notification and sink call.
	DefaultNotifyTimeout = 5 * time.Second

	// DefaultCommandTimeout bounds a door command.
	DefaultCommandTimeout = 10 * time.Second

	// refreshTimeout bounds one fetch from the cloud account.
	refreshTimeout = 30 * time.Second
)

// Session is the swappable cloud client slot. *myq.Session satisfies it.
type Session interface {
	Current() (myq.Client, error)
	Candidate(creds myq.Credentials) (client myq.Client, active bool, err error)
	Install(creds myq.Credentials, client myq.Client) myq.Client
	ReportFailure(err error) bool
	ReportSuccess()
	Region() myq.Region
}

// Options holds configuration for creating an Engine.
type Options struct {
	// Cache is the device cache. Required.
	Cache *door.Cache

	// Session provides the cloud client. Required.
	Session Session

	// Notifier delivers hub notifications. Default: NewHTTPNotifier(nil)
	Notifier Notifier

	// Sinks receive every transition. Optional.
	Sinks []Sink

	// Recorder observes activity for metrics. Optional.
	Recorder Recorder

	RefreshInterval time.Duration
	NotifyTimeout   time.Duration
	CommandTimeout  time.Duration

	// Location is used to format last-update timestamps. Default: time.Local
	Location *time.Location

	Logger Logger
}

// Engine runs refresh cycles and serves door operations.
//
// Thread Safety: All methods are safe for concurrent use. Refresh cycles are
// serialised, so at most one cycle touches the snapshot at a time.
type Engine struct {
	cache    *door.Cache
	session  Session
	notifier Notifier
	sinks    []Sink
	recorder Recorder

	interval       time.Duration
	notifyTimeout  time.Duration
	commandTimeout time.Duration
	location       *time.Location

	// cycleMu serialises refresh cycles and guards snapshot.
	cycleMu  sync.Mutex
	snapshot map[string]door.State

	// Counters for health and metrics.
	refreshes       atomic.Uint64
	refreshFailures atomic.Uint64
	transitions     atomic.Uint64
	notifySent      atomic.Uint64
	notifyFailed    atomic.Uint64
	commands        atomic.Uint64
	statusMu        sync.RWMutex
	lastRefresh     time.Time
	lastError       string

	// Shutdown coordination
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates an engine. Call Start or Run to begin refreshing.
func New(opts Options) (*Engine, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.Notifier == nil {
		opts.Notifier = NewHTTPNotifier(nil)
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Engine{
		cache:          opts.Cache,
		session:        opts.Session,
		notifier:       opts.Notifier,
		sinks:          opts.Sinks,
		recorder:       opts.Recorder,
		interval:       opts.RefreshInterval,
		notifyTimeout:  opts.NotifyTimeout,
		commandTimeout: opts.CommandTimeout,
		location:       opts.Location,
		snapshot:       make(map[string]door.State),
		logger:         opts.Logger,
	}, nil
}

// AddSink registers a sink. Must be called before Start.
func (e *Engine) AddSink(s Sink) {
	e.cycleMu.Lock()
	e.sinks = append(e.sinks, s)
	e.cycleMu.Unlock()
}

// Start runs the refresh loop in the background until Stop is called or
// ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Run(ctx)
	}()
	e.logInfo("refresh loop started", "interval", e.interval.String())
}

// Stop cancels the refresh loop and waits for the current cycle to finish.
// Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logInfo("refresh loop stopped")
	})
}

// Run refreshes immediately and then every interval, measured from the end
// of the previous cycle, until ctx is cancelled. Cycle errors are logged.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := e.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			e.logError("refresh cycle failed", err)
		}
		timer.Reset(e.interval)
	}
}

// RefreshOnce runs one fetch, merge, compare and notify cycle.
//
// A failed fetch leaves the cache and snapshot untouched and is reported to
// the session for region fallback. Notification and sink failures are logged
// and never returned.
func (e *Engine) RefreshOnce(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()
	devices, err := e.fetch(ctx)
	e.recorder.RefreshCompleted(err, time.Since(start))
	e.refreshes.Add(1)
	if err != nil {
		e.refreshFailures.Add(1)
		e.setStatus(start, err)
		return err
	}
	e.setStatus(start, nil)

	for _, dev := range devices {
		e.cache.Merge(dev)
	}

	var wg sync.WaitGroup
	next := make(map[string]door.State, len(devices))
	for _, dev := range devices {
		next[dev.ID] = dev.State

		if !dev.IsGarageDoor() {
			continue
		}
		prev, seen := e.snapshot[dev.ID]
		if !seen {
			e.logDebug("first sighting", "device_id", dev.ID, "name", dev.Name, "state", string(dev.State.DoorState))
			continue
		}
		if prev.DoorState == dev.State.DoorState {
			continue
		}

		current, err := e.cache.Get(dev.ID)
		if err != nil {
			current = dev
		}
		t := Transition{Device: current, From: prev.DoorState, To: dev.State.DoorState, At: dev.State.LastUpdate}
		if t.At.IsZero() {
			t.At = start
		}
		e.transitions.Add(1)
		e.recorder.TransitionObserved(t.To)
		e.logInfo("door state changed", "device_id", dev.ID, "name", dev.Name,
			"from", string(t.From), "to", string(t.To))

		for _, s := range e.sinks {
			wg.Go(func() { e.runSink(ctx, s, t) })
		}
		if current.Peer != nil {
			peer := *current.Peer
			wg.Go(func() { e.deliver(ctx, peer, t) })
		}
	}
	wg.Wait()

	e.snapshot = next
	return nil
}

// fetch lists devices with the refresh timeout and reports the outcome to
// the session.
func (e *Engine) fetch(ctx context.Context) ([]door.Device, error) {
	client, err := e.session.Current()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	devices, err := client.Devices(fetchCtx)
	if err != nil {
		if ctx.Err() == nil && e.session.ReportFailure(err) {
			e.recorder.RegionSwitched()
		}
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	e.session.ReportSuccess()
	return devices, nil
}

// deliver makes the single notification attempt for a transition.
func (e *Engine) deliver(ctx context.Context, peer door.PeerAddress, t Transition) {
	ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()

	err := e.notifier.Notify(ctx, peer, Notification{
		UUID:       peer.DeviceUUID,
		DoorStatus: string(t.To),
		LastUpdate: FormatLastUpdate(t.At, e.location),
	})
	e.recorder.NotificationDelivered(err)
	if err != nil {
		e.notifyFailed.Add(1)
		e.logWarn("hub notification failed", "device_id", t.Device.ID, "peer", peer.Addr(), "error", err)
		return
	}
	e.notifySent.Add(1)
	e.logDebug("hub notified", "device_id", t.Device.ID, "peer", peer.Addr(), "state", string(t.To))
}

// runSink hands a transition to one sink under the notify timeout.
func (e *Engine) runSink(ctx context.Context, s Sink, t Transition) {
	ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()

	if err := s.DoorChanged(ctx, t); err != nil {
		e.logWarn("transition sink failed", "device_id", t.Device.ID, "sink", fmt.Sprintf("%T", s), "error", err)
	}
}

// Execute sends a command to a cached device using the active session.
// Unknown devices return door.ErrDeviceNotFound without any upstream call.
func (e *Engine) Execute(ctx context.Context, id string, cmd myq.Command) error {
	dev, err := e.cache.Get(id)
	if err != nil {
		return err
	}
	client, err := e.session.Current()
	if err != nil {
		return err
	}
	return e.execute(ctx, client, dev, cmd)
}

// ExecuteAs is Execute for callers that carry their own credentials. Empty
// credentials return myq.ErrUnauthorized before anything else is checked.
func (e *Engine) ExecuteAs(ctx context.Context, creds myq.Credentials, id string, cmd myq.Command) error {
	if creds.Empty() {
		return myq.ErrUnauthorized
	}
	dev, err := e.cache.Get(id)
	if err != nil {
		return err
	}
	client, _, err := e.resolve(ctx, creds)
	if err != nil {
		return err
	}
	return e.execute(ctx, client, dev, cmd)
}

// resolve returns a client for creds. Credentials other than the active ones
// are checked with a device listing first and only installed when the cloud
// accepts them, so a rejected or failed check leaves the session untouched.
//
// Returns true if the active client changed.
func (e *Engine) resolve(ctx context.Context, creds myq.Credentials) (myq.Client, bool, error) {
	client, active, err := e.session.Candidate(creds)
	if err != nil {
		return nil, false, err
	}
	if active {
		return client, false, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	if _, err := client.Devices(checkCtx); err != nil {
		if errors.Is(err, myq.ErrUnauthorized) {
			e.logWarn("credentials rejected, keeping active session", "account", creds)
			return nil, false, myq.ErrUnauthorized
		}
		return nil, false, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return e.session.Install(creds, client), true, nil
}

func (e *Engine) execute(ctx context.Context, client myq.Client, dev door.Device, cmd myq.Command) error {
	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout)
	defer cancel()

	e.commands.Add(1)
	e.logInfo("sending door command", "device_id", dev.ID, "name", dev.Name, "command", string(cmd))

	err := client.Execute(ctx, dev.ID, cmd)
	e.recorder.CommandExecuted(string(cmd), err)
	if err != nil {
		if errors.Is(err, myq.ErrUnauthorized) || errors.Is(err, myq.ErrInvalidCommand) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return nil
}

// Authorize makes creds the active session credentials. When that replaces
// the active client, a refresh runs at once so listings reflect the account.
//
// Empty or rejected credentials return myq.ErrUnauthorized without touching
// the session.
func (e *Engine) Authorize(ctx context.Context, creds myq.Credentials) error {
	if creds.Empty() {
		return myq.ErrUnauthorized
	}

	_, changed, err := e.resolve(ctx, creds)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if err := e.RefreshOnce(ctx); err != nil {
		if errors.Is(err, myq.ErrUnauthorized) {
			return myq.ErrUnauthorized
		}
		e.logWarn("refresh after credential change failed", "error", err)
	}
	return nil
}

// Status is the hub-facing status of one device.
type Status struct {
	DoorStatus door.DoorState `json:"doorStatus"`
	LastUpdate string         `json:"lastUpdate,omitempty"`
}

// Status returns the cached status of a device.
func (e *Engine) Status(id string) (Status, error) {
	dev, err := e.cache.Get(id)
	if err != nil {
		return Status{}, err
	}
	return Status{
		DoorStatus: dev.State.DoorState,
		LastUpdate: FormatLastUpdate(dev.State.LastUpdate, e.location),
	}, nil
}

// Device returns one cached device.
func (e *Engine) Device(id string) (door.Device, error) {
	return e.cache.Get(id)
}

// Devices returns the cached devices accepted by filter.
func (e *Engine) Devices(filter door.Filter) iter.Seq[door.Device] {
	return e.cache.All(filter)
}

// RegisterPeer validates and records the hub address for a device. The
// device does not need to be cached yet.
func (e *Engine) RegisterPeer(id string, peer door.PeerAddress) error {
	if err := peer.Validate(); err != nil {
		return err
	}
	e.cache.RegisterPeer(id, peer)
	return nil
}

// FormatLastUpdate formats t in the engine's time zone.
func (e *Engine) FormatLastUpdate(t time.Time) string {
	return FormatLastUpdate(t, e.location)
}

// Region returns the name of the active cloud region.
func (e *Engine) Region() string {
	return e.session.Region().Name
}

func (e *Engine) setStatus(at time.Time, err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if err != nil {
		e.lastError = err.Error()
		return
	}
	e.lastRefresh = at
	e.lastError = ""
}

// Metrics contains engine counters for health and metrics endpoints.
type Metrics struct {
	Devices             int
	Refreshes           uint64
	RefreshFailures     uint64
	Transitions         uint64
	NotificationsSent   uint64
	NotificationsFailed uint64
	Commands            uint64
	LastRefresh         time.Time
	LastError           string
	Region              string
}

// Metrics returns current engine counters.
func (e *Engine) Metrics() Metrics {
	e.statusMu.RLock()
	lastRefresh, lastError := e.lastRefresh, e.lastError
	e.statusMu.RUnlock()

	return Metrics{
		Devices:             e.cache.Len(),
		Refreshes:           e.refreshes.Load(),
		RefreshFailures:     e.refreshFailures.Load(),
		Transitions:         e.transitions.Load(),
		NotificationsSent:   e.notifySent.Load(),
		NotificationsFailed: e.notifyFailed.Load(),
		Commands:            e.commands.Load(),
		LastRefresh:         lastRefresh,
		LastError:           lastError,
		Region:              e.session.Region().Name,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.loggerMu.Lock()
	e.logger = logger
	e.loggerMu.Unlock()
}

func (e *Engine) log() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// logInfo logs an info message.
func (e *Engine) logInfo(msg string, keysAndValues ...any) {
	e.log().Info(msg, keysAndValues...)
}

// logWarn logs a warning.
func (e *Engine) logWarn(msg string, keysAndValues ...any) {
	e.log().Warn(msg, keysAndValues...)
}

// logError logs an error message.
func (e *Engine) logError(msg string, err error) {
	e.log().Error(msg, "error", err)
}

// logDebug logs a debug message.
func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	e.log().Debug(msg, keysAndValues...)
}
