package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// PacketConn is the datagram transport used by responders.
// *net.UDPConn satisfies it.
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	Close() error
}

// SSDPOptions configures an SSDP responder.
type SSDPOptions struct {
	Info Info

	// Advertise enables periodic ssdp:alive and a final ssdp:byebye.
	// When false the responder only answers searches (listen mode).
	Advertise bool

	// NotifyInterval is the alive period. Default: 30s
	NotifyInterval time.Duration

	// TTL is the multicast TTL. Default: 2
	TTL int

	// Announcer handles searches that carry a CALLBACK header. Optional.
	Announcer *Announcer

	// Conn overrides the multicast socket. The responder owns and closes it.
	Conn PacketConn

	// Group overrides the destination of NOTIFY messages.
	Group net.Addr

	// Listen opens the multicast socket. Default: ListenMulticast
	Listen ListenFunc

	// SocketRetry is the first delay between failed socket attempts.
	// Default: DefaultSocketRetry
	SocketRetry time.Duration

	Recorder Recorder
	Logger   Logger
}

// SSDP advertises the bridge and answers M-SEARCH requests.
type SSDP struct {
	info      Info
	advertise bool
	interval  time.Duration
	ttl       int
	announcer *Announcer
	conn      PacketConn
	group     net.Addr
	opener    socketOpener
	recorder  Recorder
	logger    Logger

	closeOnce sync.Once
}

// NewSSDP creates an SSDP responder. The socket is opened by Run unless
// opts.Conn is set.
func NewSSDP(opts SSDPOptions) *SSDP {
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = 30 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 2
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &SSDP{
		info:      opts.Info,
		advertise: opts.Advertise,
		interval:  opts.NotifyInterval,
		ttl:       opts.TTL,
		announcer: opts.Announcer,
		conn:      opts.Conn,
		group:     opts.Group,
		opener: socketOpener{
			name:    "ssdp",
			group:   ssdpGroup,
			ttl:     opts.TTL,
			listen:  opts.Listen,
			initial: opts.SocketRetry,
			logger:  opts.Logger,
		},
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// Run serves until ctx is cancelled. Socket setup failures are logged and
// retried, so Run only returns once ctx ends.
func (s *SSDP) Run(ctx context.Context) error {
	conn, group, err := s.opener.open(ctx, s.conn, s.group)
	if err != nil {
		s.logger.Info("ssdp responder stopped before its socket opened")
		return nil
	}
	s.conn, s.group = conn, group

	s.logger.Info("ssdp responder started",
		"service_type", s.info.ServiceType, "location", s.info.Location, "udn", s.info.UDN, "advertise", s.advertise)

	var wg sync.WaitGroup
	wg.Go(func() { s.readLoop(ctx) })

	if s.advertise {
		s.notifyAll("ssdp:alive")
		ticker := time.NewTicker(s.interval)
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-ticker.C:
				s.notifyAll("ssdp:alive")
			}
		}
		ticker.Stop()
		s.notifyAll("ssdp:byebye")
	} else {
		<-ctx.Done()
	}

	s.close()
	wg.Wait()
	s.logger.Info("ssdp responder stopped")
	return nil
}

func (s *SSDP) close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// readLoop handles inbound datagrams until the socket is closed.
func (s *SSDP) readLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("ssdp read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		s.handle(ctx, buf[:n], from)
	}
}

// handle answers one datagram.
func (s *SSDP) handle(ctx context.Context, b []byte, from net.Addr) {
	search, err := ParseSearch(b)
	if err != nil {
		return
	}
	if !search.Matches(s.info) {
		return
	}

	if search.Callback != "" && s.announcer != nil {
		s.announcer.Announce(ctx, search)
		return
	}

	_, err = s.conn.WriteTo(buildSearchResponse(s.info, search.Target, time.Now()), from)
	s.recorder.DiscoveryReply("ssdp_search", err)
	if err != nil {
		s.logger.Warn("ssdp reply failed", "to", from.String(), "error", err)
		return
	}
	s.logger.Debug("answered ssdp search", "from", from.String(), "st", search.Target)
}

// notifyAll multicasts one NOTIFY per notification type.
func (s *SSDP) notifyAll(nts string) {
	for _, nt := range notificationTypes(s.info) {
		if _, err := s.conn.WriteTo(buildNotify(s.info, nt, nts), s.group); err != nil {
			s.recorder.DiscoveryReply("ssdp_notify", err)
			s.logger.Warn("ssdp notify failed", "nts", nts, "nt", nt, "error", err)
			return
		}
	}
	s.recorder.DiscoveryReply("ssdp_notify", nil)
}

// listenMulticast joins group on the default interface and sets the
// multicast TTL for outgoing datagrams.
func listenMulticast(group *net.UDPAddr, ttl int) (*net.UDPConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting multicast TTL: %w", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling multicast loopback: %w", err)
	}
	return conn, nil
}
