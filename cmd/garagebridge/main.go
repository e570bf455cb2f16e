// Package main is the entry point for the garage bridge.
//
// The bridge polls the MyQ cloud for garage door state and pushes each
// transition to the home automation hub registered for that door.
//
// Usage:
//
//	garagebridge
//
// Configuration is loaded from configs/config.yaml by default, or from the
// path in GARAGEBRIDGE_CONFIG. A .env file in the working directory is read
// into the environment first.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"

	"github.com/nerrad567/garage-bridge/internal/api"
	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/discovery"
	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/history"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/database"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/garage-bridge/internal/metrics"
	"github.com/nerrad567/garage-bridge/internal/mqttbus"
	"github.com/nerrad567/garage-bridge/internal/myq"
	"github.com/nerrad567/garage-bridge/migrations"
)

// Version information (set at build time via ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is the default location for the configuration file.
const defaultConfigPath = "configs/config.yaml"

// historyPruneInterval is how often expired transition rows are removed.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, blocks until ctx is cancelled and then shuts
// down in reverse order.
func run(ctx context.Context) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load() //nolint:errcheck // Optional file

	log := logging.Default()
	log.Info("starting garage bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"bridge_id", cfg.Bridge.ID,
		"discovery", cfg.Discovery.Mode,
	)

	m := metrics.New()

	// Cloud session
	session, err := myq.NewSession(
		myq.Credentials{Email: cfg.MyQ.Email, Password: cfg.MyQ.Password},
		myq.SessionOptions{
			Regions:     regions(cfg.MyQ.Regions),
			MaxFailures: cfg.MyQ.MaxFailures,
			Factory: myq.HTTPFactory(myq.HTTPOptions{
				Timeout: cfg.MyQ.RequestTimeout,
				Logger:  log.Component("myq"),
			}),
			Logger: log.Component("myq"),
		},
	)
	if err != nil {
		return fmt.Errorf("creating cloud session: %w", err)
	}
	if cfg.MyQ.Email == "" {
		log.Warn("no cloud credentials configured, waiting for a request to supply them")
	}

	// Device cache and refresh engine
	cache := door.NewCache()
	cache.SetLogger(log.Component("cache"))
	m.RegisterDeviceGauge(cache.Len)

	engine, err := bridge.New(bridge.Options{
		Cache:           cache,
		Session:         session,
		Notifier:        bridge.NewHTTPNotifier(&http.Client{Timeout: cfg.Bridge.NotifyTimeout}),
		Recorder:        m,
		RefreshInterval: cfg.Bridge.RefreshInterval,
		NotifyTimeout:   cfg.Bridge.NotifyTimeout,
		CommandTimeout:  cfg.Bridge.CommandTimeout,
		Location:        cfg.Location(),
		Logger:          log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge engine: %w", err)
	}

	events := api.NewEvents()
	engine.AddSink(events)
	hub := api.NewHub(log.Component("websocket"))
	engine.AddSink(hub)

	// Transition history (SQLite)
	var historyRepo history.Repository
	if cfg.Database.Enabled {
		db, repo, err := openHistory(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}()
		engine.AddSink(repo)
		historyRepo = repo
		log.Info("history database ready", "path", cfg.Database.Path)

		if cfg.Database.RetentionDays > 0 {
			retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
			go history.RunPruner(ctx, repo, retention, historyPruneInterval, log.Component("history"))
		}
	}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("influxdb disabled")
	case err != nil:
		return fmt.Errorf("connecting to influxdb: %w", err)
	default:
		defer func() {
			if err := influxClient.Close(); err != nil {
				log.Error("error closing influxdb", "error", err)
			}
		}()
		influxLog := log.Component("influxdb")
		influxClient.SetOnError(func(err error) {
			influxLog.Warn("influxdb write failed", "error", err)
		})
		engine.AddSink(bridge.SinkFunc(func(_ context.Context, t bridge.Transition) error {
			influxClient.WriteDoorTransition(t.Device.ID, t.Device.Name, string(t.From), string(t.To), t.At)
			return nil
		}))
		log.Info("connected to influxdb", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT (optional)
	if cfg.MQTT.Enabled {
		stopMQTT, err := startMQTT(ctx, cfg, engine, log)
		if err != nil {
			return err
		}
		defer stopMQTT()
	} else {
		log.Info("mqtt disabled")
	}

	engine.Start(ctx)
	defer engine.Stop()

	// HTTP API
	host := advertiseHost(cfg, log)
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log.Component("api"),
		Bridge:  engine,
		History: historyRepo,
		Events:  events,
		Hub:     hub,
		Metrics: m,
		BaseURL: net.JoinHostPort(host, strconv.Itoa(cfg.API.Port)),
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Error("error closing API server", "error", err)
		}
	}()
	log.Info("API server started", "address", server.Addr(), "advertised", host)

	// Discovery
	responder, err := discovery.New(discovery.Options{
		Mode:           cfg.Discovery.Mode,
		Info:           discovery.NewInfo(host, cfg.API.Port, cfg.Discovery.ServiceType, cfg.Discovery.UDN, cfg.Bridge.ID),
		MDNSService:    cfg.Discovery.MDNSService,
		Instance:       cfg.Bridge.ID,
		NotifyInterval: cfg.Discovery.NotifyInterval,
		ReplyCooldown:  cfg.Discovery.ReplyCooldown,
		TTL:            cfg.Discovery.TTL,
		Recorder:       m,
		Logger:         log.Component("discovery"),
	})
	if err != nil {
		return fmt.Errorf("creating discovery responder: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	// Run retries its socket until ctx ends, so an error here is unexpected.
	wg.Go(func() {
		if err := responder.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("discovery responder stopped", "error", err)
		}
	})

	log.Info("garage bridge started successfully")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// openHistory opens the SQLite database, applies migrations and returns the
// transition repository on top of it.
func openHistory(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, *history.SQLiteRepository, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, history.NewSQLiteRepository(db.DB), nil
}

// startMQTT connects to the broker with a last-will status message and wires
// the door bus and health reporter to it. The returned func stops both.
func startMQTT(ctx context.Context, cfg *config.Config, engine *bridge.Engine, log *logging.Logger) (func(), error) {
	pahoLog := log.Component("paho")
	pahomqtt.ERROR = pahoLog.Printer(slog.LevelError)
	pahomqtt.CRITICAL = pahoLog.Printer(slog.LevelError)
	pahomqtt.WARN = pahoLog.Printer(slog.LevelWarn)

	will, err := bridge.LWTPayload(cfg.Bridge.ID)
	if err != nil {
		return nil, fmt.Errorf("building last will: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT, will)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))

	bus := mqttbus.New(mqttbus.Options{
		Broker:         client,
		Topics:         client.Topics(),
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0..2
		Commander:      engine,
		CommandTimeout: cfg.Bridge.CommandTimeout,
		Location:       cfg.Location(),
		Logger:         log.Component("mqttbus"),
	})
	if err := bus.SubscribeCommands(); err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to door commands: %w", err)
	}
	engine.AddSink(bus)

	reporter := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		BridgeID:  cfg.Bridge.ID,
		Version:   version,
		Topic:     client.Topics().Status(),
		Publisher: client,
		Source:    engine,
	})
	reporter.SetLogger(log.Component("health"))

	// Retained state is republished after every (re)connect so a broker
	// restart does not leave stale topics.
	client.SetOnConnect(func() {
		if err := reporter.PublishNow(); err != nil {
			log.Warn("publishing status after reconnect failed", "error", err)
		}
		if err := bus.PublishSnapshot(engine.Devices(door.FilterAll)); err != nil {
			log.Warn("publishing door snapshot failed", "error", err)
		}
	})
	reporter.Start(ctx)

	log.Info("connected to MQTT broker",
		"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
	)

	return func() {
		reporter.Stop()
		if err := client.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}, nil
}

// advertiseHost picks the address peers should use to reach the API.
func advertiseHost(cfg *config.Config, log *logging.Logger) string {
	if cfg.API.AdvertiseHost != "" {
		return cfg.API.AdvertiseHost
	}
	if ip := net.ParseIP(cfg.API.Host); ip != nil && !ip.IsUnspecified() {
		return ip.String()
	}
	ip, err := discovery.OutboundIPv4()
	if err != nil {
		log.Warn("could not determine LAN address, advertising loopback", "error", err)
		return "127.0.0.1"
	}
	return ip.String()
}

func regions(in []config.MyQRegionConfig) []myq.Region {
	out := make([]myq.Region, 0, len(in))
	for _, r := range in {
		out = append(out, myq.Region{
			Name:       r.Name,
			AuthURL:    r.AuthURL,
			AccountURL: r.AccountURL,
			DevicesURL: r.DevicesURL,
		})
	}
	return out
}

// getConfigPath returns the configuration file path.
// Checks GARAGEBRIDGE_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("GARAGEBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
