package discovery

import (
	"net"
	"sync"
	"testing"
	"time"
)

// MockRecorder records discovery replies.
type MockRecorder struct {
	mu      sync.Mutex
	replies map[string]int
	errors  map[string]int
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{replies: make(map[string]int), errors: make(map[string]int)}
}

func (m *MockRecorder) DiscoveryReply(kind string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.errors[kind]++
		return
	}
	m.replies[kind]++
}

func (m *MockRecorder) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replies[kind]
}

func (m *MockRecorder) Errors(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

// listenLoopback opens a UDP socket on 127.0.0.1 and closes it with the test.
func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readPacket reads one datagram or fails after timeout.
func readPacket(t *testing.T, conn *net.UDPConn, timeout time.Duration) []byte {
	t.Helper()
	buf := make([]byte, 9000)
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	return buf[:n]
}

// expectSilence fails if a datagram arrives within timeout.
func expectSilence(t *testing.T, conn *net.UDPConn, timeout time.Duration) {
	t.Helper()
	buf := make([]byte, 9000)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if n, _, err := conn.ReadFromUDP(buf); err == nil {
		t.Fatalf("unexpected datagram:\n%s", buf[:n])
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
