package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// mDNS constants.
const (
	mdnsGroup       = "224.0.0.251:5353"
	mdnsPort        = 5353
	mdnsRecordTTL   = 120
	mdnsIPTTL       = 255
	mdnsCacheFlush  = 1 << 15
	dnssdEnumerator = "_services._dns-sd._udp.local."
)

// MDNSOptions configures an MDNS responder.
type MDNSOptions struct {
	Info Info

	// Service is the DNS-SD service name, e.g. "_garagebridge._tcp".
	Service string

	// Instance names this bridge within the service, usually the bridge ID.
	Instance string

	// Conn overrides the multicast socket. The responder owns and closes it.
	Conn PacketConn

	// Group overrides the multicast destination.
	Group net.Addr

	// Listen opens the multicast socket. Default: ListenMulticast
	Listen ListenFunc

	// SocketRetry is the first delay between failed socket attempts.
	// Default: DefaultSocketRetry
	SocketRetry time.Duration

	Recorder Recorder
	Logger   Logger
}

// MDNS answers DNS-SD queries for the bridge.
type MDNS struct {
	info     Info
	service  string
	instance string
	host     string
	ip       net.IP
	conn     PacketConn
	group    net.Addr
	opener   socketOpener
	recorder Recorder
	logger   Logger

	closeOnce sync.Once
}

// NewMDNS creates an mDNS responder.
func NewMDNS(opts MDNSOptions) *MDNS {
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	label := hostLabel(opts.Instance)
	service := dns.Fqdn(strings.TrimSuffix(opts.Service, ".") + ".local")
	return &MDNS{
		info:     opts.Info,
		service:  service,
		instance: label + "." + service,
		host:     label + ".local.",
		ip:       net.ParseIP(opts.Info.Host).To4(),
		conn:     opts.Conn,
		group:    opts.Group,
		opener: socketOpener{
			name:    "mdns",
			group:   mdnsGroup,
			ttl:     mdnsIPTTL,
			listen:  opts.Listen,
			initial: opts.SocketRetry,
			logger:  opts.Logger,
		},
		recorder: opts.Recorder,
		logger:   opts.Logger,
	}
}

// hostLabel turns an identifier into a DNS label.
func hostLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	label := strings.Trim(b.String(), "-")
	if label == "" {
		label = "garagebridge"
	}
	if len(label) > 63 {
		label = label[:63]
	}
	return label
}

// Run serves until ctx is cancelled. The service is announced on start and
// withdrawn with zero-TTL records on shutdown. Socket setup failures are
// logged and retried, so Run only returns once ctx ends.
func (m *MDNS) Run(ctx context.Context) error {
	conn, group, err := m.opener.open(ctx, m.conn, m.group)
	if err != nil {
		m.logger.Info("mdns responder stopped before its socket opened")
		return nil
	}
	m.conn, m.group = conn, group

	m.logger.Info("mdns responder started", "service", m.service, "instance", m.instance, "location", m.info.Location)
	m.announce(mdnsRecordTTL)

	var wg sync.WaitGroup
	wg.Go(func() { m.readLoop(ctx) })

	<-ctx.Done()
	m.announce(0)
	m.closeOnce.Do(func() { _ = m.conn.Close() })
	wg.Wait()
	m.logger.Info("mdns responder stopped")
	return nil
}

// announce multicasts every record with the given TTL.
func (m *MDNS) announce(ttl uint32) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Authoritative = true
	msg.Answer = append(msg.Answer, m.ptr(ttl))
	msg.Answer = append(msg.Answer, m.instanceRecords(ttl)...)
	msg.Answer = append(msg.Answer, m.addressRecords(ttl)...)

	err := m.send(msg, m.group)
	m.recorder.DiscoveryReply("mdns_announce", err)
	if err != nil {
		m.logger.Warn("mdns announce failed", "error", err)
	}
}

func (m *MDNS) readLoop(ctx context.Context) {
	buf := make([]byte, 9000)
	for {
		n, from, err := m.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			m.logger.Warn("mdns read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		m.handle(buf[:n], from)
	}
}

// handle answers one query datagram.
func (m *MDNS) handle(b []byte, from net.Addr) {
	var query dns.Msg
	if err := query.Unpack(b); err != nil || query.Response || query.Opcode != dns.OpcodeQuery {
		return
	}

	resp := m.Answer(&query)
	if resp == nil {
		return
	}

	// Queries from a port other than 5353 are legacy unicast and get a
	// direct reply that echoes the ID and question.
	dest := m.group
	if udp, ok := from.(*net.UDPAddr); ok && udp.Port != mdnsPort {
		resp.Id = query.Id
		resp.Question = query.Question
		dest = from
	}

	err := m.send(resp, dest)
	m.recorder.DiscoveryReply("mdns_query", err)
	if err != nil {
		m.logger.Warn("mdns reply failed", "to", dest.String(), "error", err)
	}
}

// Answer builds the response to a query, or nil if nothing matches.
func (m *MDNS) Answer(query *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.Response = true
	resp.Authoritative = true

	for _, q := range query.Question {
		name := strings.ToLower(q.Name)
		switch {
		case name == dnssdEnumerator && matchType(q.Qtype, dns.TypePTR):
			resp.Answer = append(resp.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: dnssdEnumerator, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: mdnsRecordTTL},
				Ptr: m.service,
			})
		case name == m.service && matchType(q.Qtype, dns.TypePTR):
			resp.Answer = append(resp.Answer, m.ptr(mdnsRecordTTL))
			resp.Extra = append(resp.Extra, m.instanceRecords(mdnsRecordTTL)...)
			resp.Extra = append(resp.Extra, m.addressRecords(mdnsRecordTTL)...)
		case name == m.instance && (matchType(q.Qtype, dns.TypeSRV) || matchType(q.Qtype, dns.TypeTXT)):
			for _, rr := range m.instanceRecords(mdnsRecordTTL) {
				if matchType(q.Qtype, rr.Header().Rrtype) {
					resp.Answer = append(resp.Answer, rr)
				}
			}
			resp.Extra = append(resp.Extra, m.addressRecords(mdnsRecordTTL)...)
		case name == m.host && matchType(q.Qtype, dns.TypeA):
			resp.Answer = append(resp.Answer, m.addressRecords(mdnsRecordTTL)...)
		}
	}

	if len(resp.Answer) == 0 {
		return nil
	}
	return resp
}

func matchType(qtype, rrtype uint16) bool {
	return qtype == rrtype || qtype == dns.TypeANY
}

func (m *MDNS) ptr(ttl uint32) dns.RR {
	return &dns.PTR{
		Hdr: dns.RR_Header{Name: m.service, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
		Ptr: m.instance,
	}
}

func (m *MDNS) instanceRecords(ttl uint32) []dns.RR {
	return []dns.RR{
		&dns.SRV{
			Hdr:    dns.RR_Header{Name: m.instance, Rrtype: dns.TypeSRV, Class: dns.ClassINET | mdnsCacheFlush, Ttl: ttl},
			Port:   uint16(m.info.Port),
			Target: m.host,
		},
		&dns.TXT{
			Hdr: dns.RR_Header{Name: m.instance, Rrtype: dns.TypeTXT, Class: dns.ClassINET | mdnsCacheFlush, Ttl: ttl},
			Txt: []string{
				"location=" + m.info.Location,
				"udn=" + m.info.UDN,
				"st=" + m.info.ServiceType,
			},
		},
	}
}

func (m *MDNS) addressRecords(ttl uint32) []dns.RR {
	if m.ip == nil {
		return nil
	}
	return []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: m.host, Rrtype: dns.TypeA, Class: dns.ClassINET | mdnsCacheFlush, Ttl: ttl},
		A:   m.ip,
	}}
}

func (m *MDNS) send(msg *dns.Msg, to net.Addr) error {
	b, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("packing mDNS message: %w", err)
	}
	_, err = m.conn.WriteTo(b, to)
	return err
}
