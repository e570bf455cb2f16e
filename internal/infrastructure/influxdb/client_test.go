package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu          sync.Mutex
	lines       []string
	query       string
	writeStatus int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeStatus: http.StatusNoContent}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.query = r.URL.RawQuery
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		status := f.writeStatus
		f.mu.Unlock()

		if status >= 300 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
			return
		}
		w.WriteHeader(status)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitLines polls until n lines arrive; the client posts batches from its
// own goroutine.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		lines := f.Lines()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "garage",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteDoorTransition(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(fake.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	client.WriteDoorTransition("CG1", "Left", "closed", "opening", at)
	client.WriteDoorTransition("CG1", "Left", "closing", "closed", at.Add(time.Minute))
	client.Flush()

	lines := fake.waitLines(t, 2)
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2: %v", len(lines), lines)
	}
	for _, want := range []string{
		"door_transition,",
		"device_id=CG1",
		"state=opening",
		`from="closed"`,
		"open=1i",
		"1772352000000000000",
	} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line %q missing %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], "open=0i") {
		t.Errorf("closed transition line %q should carry open=0i", lines[1])
	}

	fake.mu.Lock()
	query := fake.query
	fake.mu.Unlock()
	if !strings.Contains(query, "org=home") || !strings.Contains(query, "bucket=garage") {
		t.Errorf("write query = %q", query)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	fake := newFakeInflux(t)
	fake.writeStatus = http.StatusBadRequest

	client, err := influxdb.Connect(testConfig(fake.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errs := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WritePoint("door_transition", map[string]string{"device_id": "CG1"}, map[string]any{"open": 1}, time.Time{})
	client.Flush()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error was not reported")
	}
}

func TestClose(t *testing.T) {
	fake := newFakeInflux(t)

	client, err := influxdb.Connect(testConfig(fake.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Writes after Close are dropped without panicking.
	client.WriteDoorTransition("CG1", "Left", "open", "closed", time.Now())
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}
