package door

import (
	"cmp"
	"iter"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cache maps device IDs to their last fetched record and registered peer.
//
// Records and peers are kept in separate maps under one lock: a peer can be
// registered before the device is first fetched, and a merge has no way to
// reach peer data at all.
type Cache struct {
	mu      sync.RWMutex
	records map[string]Device
	peers   map[string]PeerAddress
	logger  Logger
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		records: make(map[string]Device),
		peers:   make(map[string]PeerAddress),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Merge upserts a freshly fetched device by ID.
//
// Cloud-owned fields replace the cached ones wholesale. Any Peer set on dev
// is ignored.
//
// Returns:
//   - prev: the cached state before the merge (zero if new)
//   - existed: whether the device was cached before
func (c *Cache) Merge(dev Device) (prev State, existed bool) {
	dev.Peer = nil

	c.mu.Lock()
	defer c.mu.Unlock()

	old, existed := c.records[dev.ID]
	if existed {
		prev = old.State
	}
	c.records[dev.ID] = dev
	return prev, existed
}

// Get returns a copy of the device with its peer attached.
// Returns ErrDeviceNotFound for unknown IDs.
func (c *Cache) Get(id string) (Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dev, ok := c.records[id]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return c.withPeer(dev), nil
}

// All returns the cached devices accepted by filter, ordered by ID.
// A nil filter keeps everything.
//
// The sequence is evaluated lazily: each iteration takes a fresh view of the
// cache, so it can be ranged over any number of times.
func (c *Cache) All(filter Filter) iter.Seq[Device] {
	if filter == nil {
		filter = FilterAll
	}
	return func(yield func(Device) bool) {
		for _, dev := range c.snapshot() {
			if !filter(dev) {
				continue
			}
			if !yield(dev) {
				return
			}
		}
	}
}

// snapshot copies the records under the read lock so callers can yield
// without holding it.
func (c *Cache) snapshot() []Device {
	c.mu.RLock()
	devices := make([]Device, 0, len(c.records))
	for _, dev := range c.records {
		devices = append(devices, c.withPeer(dev))
	}
	c.mu.RUnlock()

	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return devices
}

// Len returns the number of cached devices.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// RegisterPeer records the hub address for a device, replacing any previous
// one. The device does not need to be cached yet.
//
// Returns true if the effective address changed. Repeating a registration
// with identical arguments is a no-op and logs nothing.
func (c *Cache) RegisterPeer(id string, peer PeerAddress) bool {
	c.mu.Lock()
	prev, had := c.peers[id]
	if had && prev == peer {
		c.mu.Unlock()
		return false
	}
	c.peers[id] = peer
	logger := c.logger
	c.mu.Unlock()

	if had {
		logger.Info("peer address updated", "device_id", id, "peer", peer.String(), "previous", prev.String())
	} else {
		logger.Info("peer address updated", "device_id", id, "peer", peer.String(), "previous", "none")
	}
	return true
}

// LookupPeer returns the peer registered for a device.
func (c *Cache) LookupPeer(id string) (PeerAddress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	peer, ok := c.peers[id]
	return peer, ok
}

// withPeer returns dev with its registered peer attached.
// Caller must hold c.mu.
func (c *Cache) withPeer(dev Device) Device {
	if peer, ok := c.peers[dev.ID]; ok {
		dev.Peer = &peer
	}
	return dev
}
