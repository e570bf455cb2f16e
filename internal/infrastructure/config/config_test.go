package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temp config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "garage-1"
  refresh_interval: 15s
myq:
  email: "user@example.com"
  password: "secret"
  legacy_config_file: ""
api:
  port: 9000
discovery:
  mode: listen
database:
  enabled: true
  path: "/tmp/test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "garage-1" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "garage-1")
	}
	if cfg.Bridge.RefreshInterval != 15*time.Second {
		t.Errorf("Bridge.RefreshInterval = %v, want 15s", cfg.Bridge.RefreshInterval)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Discovery.Mode != DiscoveryModeListen {
		t.Errorf("Discovery.Mode = %q, want %q", cfg.Discovery.Mode, DiscoveryModeListen)
	}
	if cfg.Bridge.NotifyTimeout != 5*time.Second {
		t.Errorf("Bridge.NotifyTimeout = %v, want default 5s", cfg.Bridge.NotifyTimeout)
	}
	if len(cfg.MyQ.Regions) != 2 {
		t.Errorf("len(MyQ.Regions) = %d, want 2 default regions", len(cfg.MyQ.Regions))
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
myq:
  email: "user@example.com"
  password: "secret"
  legacy_config_file: ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.Port != 8125 && os.Getenv("PORT") == "" {
		t.Errorf("API.Port = %d, want 8125", cfg.API.Port)
	}
	if cfg.Bridge.RefreshInterval != 10*time.Second {
		t.Errorf("Bridge.RefreshInterval = %v, want 10s", cfg.Bridge.RefreshInterval)
	}
	if cfg.Discovery.TTL != 2 {
		t.Errorf("Discovery.TTL = %d, want 2", cfg.Discovery.TTL)
	}
	if cfg.Discovery.ServiceType != "urn:SmartThingsCommunity:device:MyQDoor" {
		t.Errorf("Discovery.ServiceType = %q", cfg.Discovery.ServiceType)
	}
	if cfg.MyQ.MaxFailures != 3 {
		t.Errorf("MyQ.MaxFailures = %d, want 3", cfg.MyQ.MaxFailures)
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("GARAGEBRIDGE_MYQ_EMAIL", "env@example.com")
	t.Setenv("GARAGEBRIDGE_MYQ_PASSWORD", "env-secret")
	t.Setenv("GARAGEBRIDGE_MYQ_LEGACY_CONFIG_FILE", filepath.Join(t.TempDir(), "none.json"))

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MyQ.Email != "env@example.com" {
		t.Errorf("MyQ.Email = %q, want %q", cfg.MyQ.Email, "env@example.com")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "from-yaml"
myq:
  email: "user@example.com"
  password: "secret"
  legacy_config_file: ""
`)
	t.Setenv("GARAGEBRIDGE_BRIDGE_REFRESH_INTERVAL", "30s")
	t.Setenv("GARAGEBRIDGE_DISCOVERY_MODE", "off")
	t.Setenv("GARAGEBRIDGE_DATABASE_WAL_MODE", "false")
	t.Setenv("PORT", "8200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "from-yaml" {
		t.Errorf("Bridge.ID = %q, want YAML value preserved", cfg.Bridge.ID)
	}
	if cfg.Bridge.RefreshInterval != 30*time.Second {
		t.Errorf("Bridge.RefreshInterval = %v, want 30s", cfg.Bridge.RefreshInterval)
	}
	if cfg.Discovery.Mode != DiscoveryModeOff {
		t.Errorf("Discovery.Mode = %q, want off", cfg.Discovery.Mode)
	}
	if cfg.Database.WALMode {
		t.Error("Database.WALMode = true, want false")
	}
	if cfg.API.Port != 8200 {
		t.Errorf("API.Port = %d, want 8200 from PORT", cfg.API.Port)
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	path := writeConfig(t, `
myq:
  email: "user@example.com"
  password: "secret"
  legacy_config_file: ""
`)
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid PORT, got nil")
	}
}

func TestLoad_LegacyCredentials(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "config.json")
	if err := os.WriteFile(legacy, []byte(`{"email":"legacy@example.com","password":"pw"}`), 0600); err != nil {
		t.Fatalf("failed to write legacy config: %v", err)
	}
	path := writeConfig(t, "myq:\n  legacy_config_file: \""+legacy+"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MyQ.Email != "legacy@example.com" || cfg.MyQ.Password != "pw" {
		t.Errorf("credentials = %q/%q, want legacy values", cfg.MyQ.Email, cfg.MyQ.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
myq:
  email: ""
  legacy_config_file: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "myq.email") {
		t.Errorf("error = %v, want mention of myq.email", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.MyQ.Email = "user@example.com"
		cfg.MyQ.Password = "secret"
		cfg.MyQ.Regions = DefaultRegions()
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			modify: func(*Config) {},
		},
		{
			name:    "empty bridge id",
			modify:  func(c *Config) { c.Bridge.ID = "" },
			wantErr: "bridge.id",
		},
		{
			name:    "zero refresh interval",
			modify:  func(c *Config) { c.Bridge.RefreshInterval = 0 },
			wantErr: "bridge.refresh_interval",
		},
		{
			name:    "unknown time zone",
			modify:  func(c *Config) { c.Bridge.TimeZone = "Mars/Olympus" },
			wantErr: "bridge.time_zone",
		},
		{
			name:    "missing credentials",
			modify:  func(c *Config) { c.MyQ.Password = "" },
			wantErr: "myq.email",
		},
		{
			name: "credentials per request",
			modify: func(c *Config) {
				c.MyQ.Email = ""
				c.MyQ.Password = ""
				c.API.RequireCredentials = true
			},
		},
		{
			name:    "port out of range",
			modify:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name:    "unknown discovery mode",
			modify:  func(c *Config) { c.Discovery.Mode = "upnp" },
			wantErr: "discovery.mode",
		},
		{
			name:    "incomplete region",
			modify:  func(c *Config) { c.MyQ.Regions[1].DevicesURL = "" },
			wantErr: "myq.regions[1]",
		},
		{
			name: "invalid mqtt qos",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name:    "influxdb enabled without url",
			modify:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "database enabled without path",
			modify: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if cfg.Location() == nil {
		t.Error("Location() = nil")
	}
}
