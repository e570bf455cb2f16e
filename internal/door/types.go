package door

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// FamilyGarageDoor is the device family that takes part in change
// notification. Other families are cached and listed but never notified.
const FamilyGarageDoor = "garagedoor"

// DoorState is the door status reported by the cloud account.
//
// Values outside the known set are carried through unchanged.
type DoorState string

// Known door states.
const (
	StateOpen    DoorState = "open"
	StateClosed  DoorState = "closed"
	StateOpening DoorState = "opening"
	StateClosing DoorState = "closing"
	StateStopped DoorState = "stopped"
	StateUnknown DoorState = "unknown"
)

// ParseDoorState normalises a remote status string. An empty value maps to
// StateUnknown.
func ParseDoorState(s string) DoorState {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StateUnknown
	}
	return DoorState(s)
}

// Known reports whether s is one of the recognised states.
func (s DoorState) Known() bool {
	switch s {
	case StateOpen, StateClosed, StateOpening, StateClosing, StateStopped, StateUnknown:
		return true
	}
	return false
}

// State is the cloud-owned status block of a device.
type State struct {
	DoorState  DoorState `json:"door_state"`
	LastUpdate time.Time `json:"last_update"`
	Online     bool      `json:"online"`
}

// PeerAddress is where change notifications for a device are delivered.
type PeerAddress struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	DeviceUUID string `json:"device_uuid"`
}

// Addr returns host:port, bracketing IPv6 hosts.
func (p PeerAddress) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String renders the address for logs.
func (p PeerAddress) String() string {
	if p.DeviceUUID == "" {
		return p.Addr()
	}
	return p.Addr() + " (" + p.DeviceUUID + ")"
}

// Validate checks the host and port.
func (p PeerAddress) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidPeer)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidPeer, p.Port)
	}
	return nil
}

// Device is a cached device record.
//
// Peer is filled in by the cache on reads and ignored on merges.
type Device struct {
	ID       string       `json:"id"`
	Family   string       `json:"family"`
	Name     string       `json:"name"`
	Vendor   string       `json:"vendor"`
	Platform string       `json:"platform"`
	Model    string       `json:"model"`
	State    State        `json:"state"`
	Peer     *PeerAddress `json:"peer,omitempty"`
}

// IsGarageDoor reports whether the device belongs to the garage door family.
func (d Device) IsGarageDoor() bool {
	return d.Family == FamilyGarageDoor
}

// Filter selects devices from the cache.
type Filter func(Device) bool

// FilterAll keeps every device.
func FilterAll(Device) bool { return true }

// FilterGarageDoors keeps garage door devices only.
func FilterGarageDoors(d Device) bool { return d.IsGarageDoor() }
