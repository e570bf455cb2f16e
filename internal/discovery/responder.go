package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
)

// Responder runs until its context is cancelled.
type Responder interface {
	Run(ctx context.Context) error
}

// Options selects and configures a responder.
type Options struct {
	// Mode is one of the config.DiscoveryMode* values.
	Mode string

	Info Info

	// MDNSService and Instance name the DNS-SD record in mdns mode.
	MDNSService string
	Instance    string

	NotifyInterval time.Duration
	ReplyCooldown  time.Duration
	TTL            int

	Recorder Recorder
	Logger   Logger
}

// New returns the responder for opts.Mode.
func New(opts Options) (Responder, error) {
	switch opts.Mode {
	case config.DiscoveryModeSSDP:
		return NewSSDP(SSDPOptions{
			Info:           opts.Info,
			Advertise:      true,
			NotifyInterval: opts.NotifyInterval,
			TTL:            opts.TTL,
			Recorder:       opts.Recorder,
			Logger:         opts.Logger,
		}), nil

	case config.DiscoveryModeListen:
		announcer := NewAnnouncer(AnnouncerOptions{
			Info:     opts.Info,
			Cooldown: opts.ReplyCooldown,
			Recorder: opts.Recorder,
			Logger:   opts.Logger,
		})
		return &listenResponder{
			announcer: announcer,
			ssdp: NewSSDP(SSDPOptions{
				Info:      opts.Info,
				Advertise: false,
				TTL:       opts.TTL,
				Announcer: announcer,
				Recorder:  opts.Recorder,
				Logger:    opts.Logger,
			}),
		}, nil

	case config.DiscoveryModeMDNS:
		return NewMDNS(MDNSOptions{
			Info:     opts.Info,
			Service:  opts.MDNSService,
			Instance: opts.Instance,
			Recorder: opts.Recorder,
			Logger:   opts.Logger,
		}), nil

	case config.DiscoveryModeOff:
		return idle{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
	}
}

// listenResponder ties the announcer's cooldown loop to the SSDP listener.
type listenResponder struct {
	announcer *Announcer
	ssdp      *SSDP
}

func (l *listenResponder) Run(ctx context.Context) error {
	l.announcer.Start()
	defer l.announcer.Stop()
	return l.ssdp.Run(ctx)
}

// idle is the responder for discovery mode "off".
type idle struct{}

func (idle) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
