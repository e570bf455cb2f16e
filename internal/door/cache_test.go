package door

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recordingLogger captures Info messages for assertions.
type recordingLogger struct {
	noopLogger
	mu    sync.Mutex
	infos []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.infos)
}

func garageDoor(id string, state DoorState) Device {
	return Device{
		ID:       id,
		Family:   FamilyGarageDoor,
		Name:     "Door " + id,
		Vendor:   "MyQ",
		Platform: "myq",
		Model:    "wifigaragedooropener",
		State:    State{DoorState: state, LastUpdate: time.Unix(1700000000, 0), Online: true},
	}
}

func TestCache_MergeInsertAndUpdate(t *testing.T) {
	c := NewCache()

	prev, existed := c.Merge(garageDoor("G1", StateClosed))
	if existed {
		t.Error("first Merge() existed = true, want false")
	}
	if prev != (State{}) {
		t.Errorf("first Merge() prev = %+v, want zero", prev)
	}

	updated := garageDoor("G1", StateOpen)
	updated.Name = "Renamed"
	prev, existed = c.Merge(updated)
	if !existed {
		t.Error("second Merge() existed = false, want true")
	}
	if prev.DoorState != StateClosed {
		t.Errorf("second Merge() prev = %q, want %q", prev.DoorState, StateClosed)
	}

	got, err := c.Get("G1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Renamed" || got.State.DoorState != StateOpen {
		t.Errorf("Get() = %+v, want merged fields", got)
	}
}

func TestCache_MergePreservesPeer(t *testing.T) {
	c := NewCache()
	c.Merge(garageDoor("G1", StateClosed))

	peer := PeerAddress{Host: "10.0.0.5", Port: 39500, DeviceUUID: "uuid-123"}
	c.RegisterPeer("G1", peer)

	// A fetched record never carries a peer, but even one that does must not
	// overwrite the registered address.
	fetched := garageDoor("G1", StateOpen)
	fetched.Peer = &PeerAddress{Host: "evil", Port: 1}
	c.Merge(fetched)

	got, err := c.Get("G1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Peer == nil || *got.Peer != peer {
		t.Errorf("Get().Peer = %v, want %v", got.Peer, peer)
	}
}

func TestCache_GetUnknown(t *testing.T) {
	c := NewCache()
	if _, err := c.Get("missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Merge(garageDoor("G1", StateClosed))
	c.RegisterPeer("G1", PeerAddress{Host: "10.0.0.5", Port: 39500})

	got, _ := c.Get("G1")
	got.Name = "mutated"
	got.Peer.Port = 1

	again, _ := c.Get("G1")
	if again.Name == "mutated" || again.Peer.Port == 1 {
		t.Errorf("cache mutated through returned value: %+v", again)
	}
}

func TestCache_All(t *testing.T) {
	c := NewCache()
	c.Merge(garageDoor("G2", StateOpen))
	c.Merge(Device{ID: "L1", Family: "lamp"})
	c.Merge(garageDoor("G1", StateClosed))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "nil filter keeps all", filter: nil, want: []string{"G1", "G2", "L1"}},
		{name: "all", filter: FilterAll, want: []string{"G1", "G2", "L1"}},
		{name: "garage doors", filter: FilterGarageDoors, want: []string{"G1", "G2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for dev := range c.All(tt.filter) {
				got = append(got, dev.ID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("All() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCache_AllIsRestartableAndLazy(t *testing.T) {
	c := NewCache()
	seq := c.All(FilterGarageDoors)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}

	if n := count(); n != 0 {
		t.Errorf("empty cache yielded %d devices", n)
	}

	c.Merge(garageDoor("G1", StateClosed))
	c.Merge(garageDoor("G2", StateClosed))

	if n := count(); n != 2 {
		t.Errorf("second iteration yielded %d devices, want 2", n)
	}

	for dev := range seq {
		if dev.ID != "G1" {
			t.Errorf("first yielded = %q, want G1", dev.ID)
		}
		break
	}
}

func TestCache_RegisterPeer(t *testing.T) {
	logger := &recordingLogger{}
	c := NewCache()
	c.SetLogger(logger)

	peer := PeerAddress{Host: "10.0.0.5", Port: 39500, DeviceUUID: "uuid-123"}

	if !c.RegisterPeer("G1", peer) {
		t.Error("initial RegisterPeer() = false, want true")
	}
	if c.RegisterPeer("G1", peer) {
		t.Error("repeat RegisterPeer() = true, want false")
	}
	if n := logger.count(); n != 1 {
		t.Errorf("log entries after identical registrations = %d, want 1", n)
	}

	moved := PeerAddress{Host: "10.0.0.6", Port: 39500, DeviceUUID: "uuid-123"}
	if !c.RegisterPeer("G1", moved) {
		t.Error("changed RegisterPeer() = false, want true")
	}
	if n := logger.count(); n != 2 {
		t.Errorf("log entries after change = %d, want 2", n)
	}

	got, ok := c.LookupPeer("G1")
	if !ok || got != moved {
		t.Errorf("LookupPeer() = %v, %v; want %v, true", got, ok, moved)
	}
}

func TestCache_RegisterPeerBeforeFirstSighting(t *testing.T) {
	c := NewCache()
	peer := PeerAddress{Host: "10.0.0.5", Port: 39500}
	c.RegisterPeer("G1", peer)

	if _, err := c.Get("G1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Get() error = %v, want ErrDeviceNotFound before first merge", err)
	}

	c.Merge(garageDoor("G1", StateClosed))
	got, _ := c.Get("G1")
	if got.Peer == nil || *got.Peer != peer {
		t.Errorf("Peer after first merge = %v, want %v", got.Peer, peer)
	}
}

func TestCache_LookupPeerMissing(t *testing.T) {
	c := NewCache()
	if _, ok := c.LookupPeer("G1"); ok {
		t.Error("LookupPeer() ok = true for unregistered device")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache()
	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := range 100 {
				c.Merge(garageDoor(fmt.Sprintf("G%d", j%5), StateOpen))
			}
		}()
		go func() {
			defer wg.Done()
			for j := range 100 {
				c.RegisterPeer(fmt.Sprintf("G%d", j%5), PeerAddress{Host: "10.0.0.1", Port: 1000 + i})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				for dev := range c.All(nil) {
					if dev.Peer != nil && dev.Peer.Host != "10.0.0.1" {
						t.Errorf("torn peer: %+v", dev.Peer)
					}
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestPeerAddress_Validate(t *testing.T) {
	tests := []struct {
		name    string
		peer    PeerAddress
		wantErr bool
	}{
		{name: "valid", peer: PeerAddress{Host: "10.0.0.5", Port: 39500}},
		{name: "empty host", peer: PeerAddress{Port: 39500}, wantErr: true},
		{name: "zero port", peer: PeerAddress{Host: "10.0.0.5"}, wantErr: true},
		{name: "port too large", peer: PeerAddress{Host: "10.0.0.5", Port: 70000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.peer.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPeer) {
				t.Errorf("Validate() error = %v, want ErrInvalidPeer", err)
			}
		})
	}
}

func TestPeerAddress_Addr(t *testing.T) {
	if got := (PeerAddress{Host: "10.0.0.5", Port: 39500}).Addr(); got != "10.0.0.5:39500" {
		t.Errorf("Addr() = %q", got)
	}
	if got := (PeerAddress{Host: "fe80::1", Port: 80}).Addr(); got != "[fe80::1]:80" {
		t.Errorf("Addr() IPv6 = %q", got)
	}
}

func TestParseDoorState(t *testing.T) {
	tests := []struct {
		in        string
		want      DoorState
		wantKnown bool
	}{
		{in: "open", want: StateOpen, wantKnown: true},
		{in: " Closed ", want: StateClosed, wantKnown: true},
		{in: "", want: StateUnknown, wantKnown: true},
		{in: "autoreverse", want: DoorState("autoreverse")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseDoorState(tt.in)
			if got != tt.want {
				t.Errorf("ParseDoorState(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got.Known() != tt.wantKnown {
				t.Errorf("Known() = %v, want %v", got.Known(), tt.wantKnown)
			}
		})
	}
}
