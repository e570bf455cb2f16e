package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "GARAGEBRIDGE"

// Config is the root configuration structure for the garage bridge.
// Values are loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	MyQ       MyQConfig       `yaml:"myq"`
	API       APIConfig       `yaml:"api"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig controls the refresh loop and hub notifications.
type BridgeConfig struct {
	// ID identifies this bridge instance. The discovery UDN is derived from it
	// when no explicit UDN is configured.
	ID string `yaml:"id"`

	// RefreshInterval is the pause between the end of one refresh cycle and
	// the start of the next. Default: 10s
	RefreshInterval time.Duration `yaml:"refresh_interval" split_words:"true"`

	// NotifyTimeout bounds each outbound hub notification. Default: 5s
	NotifyTimeout time.Duration `yaml:"notify_timeout" split_words:"true"`

	// CommandTimeout bounds a door command sent to the cloud API. Default: 10s
	CommandTimeout time.Duration `yaml:"command_timeout" split_words:"true"`

	// TimeZone is the IANA zone used when formatting last-update timestamps
	// for the hub. Default: "Local"
	TimeZone string `yaml:"time_zone" split_words:"true"`
}

// MyQConfig contains cloud account settings.
type MyQConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Regions lists the regional API endpoints in fallback order.
	Regions []MyQRegionConfig `yaml:"regions" ignored:"true"`

	// RequestTimeout bounds every call to the cloud API. Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`

	// MaxFailures is the number of consecutive refresh failures tolerated
	// before switching to the next region. Default: 3
	MaxFailures int `yaml:"max_failures" split_words:"true"`

	// LegacyConfigFile is a JSON file of the form {"email":"","password":""}.
	// It is only read when no credentials are configured otherwise.
	LegacyConfigFile string `yaml:"legacy_config_file" split_words:"true"`
}

// MyQRegionConfig is one regional set of API endpoints.
type MyQRegionConfig struct {
	Name       string `yaml:"name"`
	AuthURL    string `yaml:"auth_url"`
	AccountURL string `yaml:"account_url"`
	DevicesURL string `yaml:"devices_url"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AdvertiseHost is the address handed to the hub in discovery replies and
	// device listings. When empty the primary outbound IPv4 address is used.
	AdvertiseHost string `yaml:"advertise_host" split_words:"true"`

	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// RequireCredentials makes list and command calls carry cloud credentials.
	RequireCredentials bool `yaml:"require_credentials" split_words:"true"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Discovery modes.
const (
	DiscoveryModeSSDP   = "ssdp"
	DiscoveryModeListen = "listen"
	DiscoveryModeMDNS   = "mdns"
	DiscoveryModeOff    = "off"
)

// DiscoveryConfig contains LAN discovery settings.
type DiscoveryConfig struct {
	// Mode is one of ssdp, listen, mdns or off. Default: ssdp
	Mode string `yaml:"mode"`

	// ServiceType is the SSDP search target advertised by the bridge.
	ServiceType string `yaml:"service_type" split_words:"true"`

	// MDNSService is the DNS-SD service name used in mdns mode.
	MDNSService string `yaml:"mdns_service" split_words:"true"`

	// UDN overrides the generated unique device name.
	UDN string `yaml:"udn"`

	// NotifyInterval is how often ssdp:alive is multicast. Default: 30s
	NotifyInterval time.Duration `yaml:"notify_interval" split_words:"true"`

	// ReplyCooldown suppresses repeat announcements to the same hub callback.
	// Default: 30s
	ReplyCooldown time.Duration `yaml:"reply_cooldown" split_words:"true"`

	// TTL is the multicast TTL. Default: 2
	TTL int `yaml:"ttl"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix" split_words:"true"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id" split_words:"true"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" split_words:"true"`
	MaxDelay     int `yaml:"max_delay" split_words:"true"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size" split_words:"true"`
	FlushInterval int    `yaml:"flush_interval" split_words:"true"`
}

// DatabaseConfig contains SQLite settings for the transition history.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode" split_words:"true"`
	BusyTimeout int    `yaml:"busy_timeout" split_words:"true"`

	// RetentionDays prunes history older than this many days. 0 keeps everything.
	RetentionDays int `yaml:"retention_days" split_words:"true"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (a missing file is not an error)
//  3. GARAGEBRIDGE_* environment variables, then PORT
//  4. Legacy JSON credentials file, if no credentials are set yet
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be parsed or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only deployments (containers) have no config file.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.loadLegacyCredentials(); err != nil {
		return nil, fmt.Errorf("reading legacy credentials: %w", err)
	}

	if len(cfg.MyQ.Regions) == 0 {
		cfg.MyQ.Regions = DefaultRegions()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultRegions returns the built-in regional endpoints, east first.
func DefaultRegions() []MyQRegionConfig {
	return []MyQRegionConfig{
		{
			Name:       "east",
			AuthURL:    "https://partner-identity-east.myq-cloud.com",
			AccountURL: "https://accounts-east.myq-cloud.com",
			DevicesURL: "https://devices-east.myq-cloud.com",
		},
		{
			Name:       "west",
			AuthURL:    "https://partner-identity-west.myq-cloud.com",
			AccountURL: "https://accounts-west.myq-cloud.com",
			DevicesURL: "https://devices-west.myq-cloud.com",
		},
	}
}

// defaultConfig returns a Config with every default filled in.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:              "garagebridge",
			RefreshInterval: 10 * time.Second,
			NotifyTimeout:   5 * time.Second,
			CommandTimeout:  10 * time.Second,
			TimeZone:        "Local",
		},
		MyQ: MyQConfig{
			RequestTimeout:   10 * time.Second,
			MaxFailures:      3,
			LegacyConfigFile: "./config.json",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8125,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Discovery: DiscoveryConfig{
			Mode:           DiscoveryModeSSDP,
			ServiceType:    "urn:SmartThingsCommunity:device:MyQDoor",
			MDNSService:    "_garagebridge._tcp",
			NotifyInterval: 30 * time.Second,
			ReplyCooldown:  30 * time.Second,
			TTL:            2,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garagebridge",
			},
			QoS:         1,
			TopicPrefix: "garagebridge",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/garagebridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies GARAGEBRIDGE_SECTION_KEY variables, then the
// bare PORT variable used by older deployments.
func applyEnvOverrides(cfg *Config) error {
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return err
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.API.Port = port
	}

	return nil
}

// legacyCredentials is the shape of the older config.json file.
type legacyCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loadLegacyCredentials fills in credentials from the legacy JSON file when
// none were provided by YAML or the environment. A missing file is ignored.
func (c *Config) loadLegacyCredentials() error {
	if c.MyQ.Email != "" || c.MyQ.LegacyConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.MyQ.LegacyConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var creds legacyCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parsing %s: %w", c.MyQ.LegacyConfigFile, err)
	}

	c.MyQ.Email = creds.Email
	c.MyQ.Password = creds.Password
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.RefreshInterval <= 0 {
		errs = append(errs, "bridge.refresh_interval must be positive")
	}
	if c.Bridge.NotifyTimeout <= 0 {
		errs = append(errs, "bridge.notify_timeout must be positive")
	}
	if c.Bridge.CommandTimeout <= 0 {
		errs = append(errs, "bridge.command_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Bridge.TimeZone); err != nil {
		errs = append(errs, fmt.Sprintf("bridge.time_zone %q is not a known zone", c.Bridge.TimeZone))
	}

	// Credentials may be supplied per request instead.
	if !c.API.RequireCredentials && (c.MyQ.Email == "" || c.MyQ.Password == "") {
		errs = append(errs, "myq.email and myq.password are required (set GARAGEBRIDGE_MYQ_EMAIL and GARAGEBRIDGE_MYQ_PASSWORD)")
	}
	if c.MyQ.MaxFailures < 1 {
		errs = append(errs, "myq.max_failures must be at least 1")
	}
	for i, r := range c.MyQ.Regions {
		if r.AuthURL == "" || r.AccountURL == "" || r.DevicesURL == "" {
			errs = append(errs, fmt.Sprintf("myq.regions[%d] must set auth_url, account_url and devices_url", i))
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Discovery.Mode {
	case DiscoveryModeSSDP, DiscoveryModeListen, DiscoveryModeMDNS, DiscoveryModeOff:
	default:
		errs = append(errs, fmt.Sprintf("discovery.mode %q must be one of ssdp, listen, mdns, off", c.Discovery.Mode))
	}
	if c.Discovery.Mode != DiscoveryModeOff && c.Discovery.ServiceType == "" {
		errs = append(errs, "discovery.service_type is required")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the configured time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bridge.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
