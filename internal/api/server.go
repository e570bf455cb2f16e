package api

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/garage-bridge/internal/bridge"
	"github.com/nerrad567/garage-bridge/internal/door"
	"github.com/nerrad567/garage-bridge/internal/history"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
	"github.com/nerrad567/garage-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/garage-bridge/internal/metrics"
	"github.com/nerrad567/garage-bridge/internal/myq"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the door engine as seen by the handlers. *bridge.Engine
// satisfies it.
type Bridge interface {
	Devices(filter door.Filter) iter.Seq[door.Device]
	Device(id string) (door.Device, error)
	Status(id string) (bridge.Status, error)
	RegisterPeer(id string, peer door.PeerAddress) error
	Execute(ctx context.Context, id string, cmd myq.Command) error
	ExecuteAs(ctx context.Context, creds myq.Credentials, id string, cmd myq.Command) error
	Authorize(ctx context.Context, creds myq.Credentials) error
	FormatLastUpdate(t time.Time) string
	Metrics() bridge.Metrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Bridge Bridge

	// History serves the history route. Optional.
	History history.Repository

	// Events serves the transition stream. Optional.
	Events *Events

	// Hub serves the WebSocket transition feed. Optional.
	Hub *Hub

	// Metrics records requests and serves /metrics. Optional.
	Metrics *metrics.Metrics

	// BaseURL is the host:port hubs should call, reported by /details.
	// Default: Config.Host and Config.Port.
	BaseURL string

	Version string
}

// Server is the HTTP API server for the garage bridge.
//
// It is created with New, started with Start and stopped with Close.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    Bridge
	history   history.Repository
	events    *Events
	hub       *Hub
	metrics   *metrics.Metrics
	baseURL   string
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	baseURL := deps.BaseURL
	if baseURL == "" {
		baseURL = net.JoinHostPort(deps.Config.Host, strconv.Itoa(deps.Config.Port))
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		history:   deps.History,
		events:    deps.Events,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		baseURL:   baseURL,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves requests in a background goroutine.
//
// Binding happens before Start returns, so a port already in use is
// reported here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String(), "base_url", s.baseURL)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// Event streams and WebSocket clients are closed first so their long-lived requests do not hold
// up the shutdown. Remaining requests get up to 10 seconds to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.events != nil {
		s.events.Close()
	}
	if s.hub != nil {
		s.hub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
