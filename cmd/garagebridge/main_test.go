package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails when the config file cannot be parsed.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GARAGEBRIDGE_CONFIG", writeTestConfig(t, "bridge: [unclosed"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with an unparseable config file")
	}
	if !strings.Contains(err.Error(), "loading configuration") {
		t.Errorf("run() error = %v, want a configuration error", err)
	}
}

// TestRun_MissingCredentials verifies run refuses to start without an
// account when per-request credentials are not enabled.
func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("GARAGEBRIDGE_MYQ_EMAIL", "")
	t.Setenv("GARAGEBRIDGE_MYQ_PASSWORD", "")
	t.Setenv("GARAGEBRIDGE_CONFIG", writeTestConfig(t, `
bridge:
  id: test-bridge
myq:
  legacy_config_file: ""
api:
  require_credentials: false
discovery:
  mode: "off"
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without cloud credentials")
	}
	if !strings.Contains(err.Error(), "myq.email") {
		t.Errorf("run() error = %v, want a credentials error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GARAGEBRIDGE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GARAGEBRIDGE_CONFIG", "/etc/garagebridge/config.yaml")
	if got := getConfigPath(); got != "/etc/garagebridge/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env path", got)
	}
}

func TestAdvertiseHost(t *testing.T) {
	tests := []struct {
		name      string
		host      string
		advertise string
		want      string
	}{
		{name: "explicit advertise host", host: "0.0.0.0", advertise: "garage.local", want: "garage.local"},
		{name: "specific bind address", host: "192.168.1.20", want: "192.168.1.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{API: config.APIConfig{Host: tt.host, AdvertiseHost: tt.advertise}}
			if got := advertiseHost(cfg, nil); got != tt.want {
				t.Errorf("advertiseHost() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegions(t *testing.T) {
	got := regions(config.DefaultRegions())
	if len(got) != 2 {
		t.Fatalf("len(regions) = %d, want 2", len(got))
	}
	if got[0].Name != "east" || got[1].Name != "west" {
		t.Errorf("region order = %s, %s, want east, west", got[0].Name, got[1].Name)
	}
	if got[0].DevicesURL == "" {
		t.Error("DevicesURL not copied")
	}
}
