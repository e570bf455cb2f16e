package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func newTestMDNS() *MDNS {
	return NewMDNS(MDNSOptions{
		Info:     testInfo,
		Service:  "_garagebridge._tcp",
		Instance: "Garage Bridge 1",
	})
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = false
	return m
}

func TestHostLabel(t *testing.T) {
	tests := map[string]string{
		"garagebridge":    "garagebridge",
		"Garage Bridge 1": "garage-bridge-1",
		"--x--":           "x",
		"":                "garagebridge",
		"!!!":             "garagebridge",
	}
	for in, want := range tests {
		if got := hostLabel(in); got != want {
			t.Errorf("hostLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMDNS_Answer(t *testing.T) {
	m := newTestMDNS()
	const (
		service  = "_garagebridge._tcp.local."
		instance = "garage-bridge-1._garagebridge._tcp.local."
		host     = "garage-bridge-1.local."
	)

	tests := []struct {
		name       string
		query      *dns.Msg
		wantAnswer []uint16
		wantExtra  int
	}{
		{name: "enumerate services", query: query(dnssdEnumerator, dns.TypePTR), wantAnswer: []uint16{dns.TypePTR}},
		{name: "browse service", query: query(service, dns.TypePTR), wantAnswer: []uint16{dns.TypePTR}, wantExtra: 3},
		{name: "case insensitive", query: query("_GarageBridge._tcp.local.", dns.TypePTR), wantAnswer: []uint16{dns.TypePTR}, wantExtra: 3},
		{name: "resolve SRV", query: query(instance, dns.TypeSRV), wantAnswer: []uint16{dns.TypeSRV}, wantExtra: 1},
		{name: "resolve TXT", query: query(instance, dns.TypeTXT), wantAnswer: []uint16{dns.TypeTXT}, wantExtra: 1},
		{name: "instance ANY", query: query(instance, dns.TypeANY), wantAnswer: []uint16{dns.TypeSRV, dns.TypeTXT}, wantExtra: 1},
		{name: "host address", query: query(host, dns.TypeA), wantAnswer: []uint16{dns.TypeA}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := m.Answer(tt.query)
			if resp == nil {
				t.Fatal("Answer() = nil")
			}
			if !resp.Response || !resp.Authoritative {
				t.Error("response flags not set")
			}
			if len(resp.Answer) != len(tt.wantAnswer) {
				t.Fatalf("answers = %v", resp.Answer)
			}
			for i, rr := range resp.Answer {
				if rr.Header().Rrtype != tt.wantAnswer[i] {
					t.Errorf("answer[%d] type = %d, want %d", i, rr.Header().Rrtype, tt.wantAnswer[i])
				}
			}
			if len(resp.Extra) != tt.wantExtra {
				t.Errorf("extras = %d, want %d", len(resp.Extra), tt.wantExtra)
			}
		})
	}
}

func TestMDNS_AnswerRecords(t *testing.T) {
	resp := newTestMDNS().Answer(query("garage-bridge-1._garagebridge._tcp.local.", dns.TypeANY))

	srv := resp.Answer[0].(*dns.SRV)
	if srv.Port != 8125 || srv.Target != "garage-bridge-1.local." {
		t.Errorf("SRV = %v", srv)
	}
	txt := resp.Answer[1].(*dns.TXT)
	want := map[string]bool{
		"location=" + testInfo.Location: true,
		"udn=" + testInfo.UDN:           true,
		"st=" + testInfo.ServiceType:    true,
	}
	for _, s := range txt.Txt {
		delete(want, s)
	}
	if len(want) != 0 {
		t.Errorf("TXT %v missing %v", txt.Txt, want)
	}
	a := resp.Extra[0].(*dns.A)
	if !a.A.Equal(net.ParseIP(testInfo.Host)) {
		t.Errorf("A = %v, want %s", a.A, testInfo.Host)
	}
}

func TestMDNS_AnswerNoMatch(t *testing.T) {
	m := newTestMDNS()
	for _, q := range []*dns.Msg{
		query("_http._tcp.local.", dns.TypePTR),
		query("garage-bridge-1.local.", dns.TypeAAAA),
		query("garage-bridge-1._garagebridge._tcp.local.", dns.TypeA),
	} {
		if resp := m.Answer(q); resp != nil {
			t.Errorf("Answer(%v) = %v, want nil", q.Question, resp.Answer)
		}
	}
}

func TestMDNS_HostnameWithoutIPv4(t *testing.T) {
	info := testInfo
	info.Host = "bridge.example"
	m := NewMDNS(MDNSOptions{Info: info, Service: "_garagebridge._tcp", Instance: "b"})
	if resp := m.Answer(query("b.local.", dns.TypeA)); resp != nil {
		t.Errorf("Answer() = %v, want nil without an IPv4 address", resp.Answer)
	}
}

func TestMDNS_RunLegacyUnicast(t *testing.T) {
	conn := listenLoopback(t)
	group := listenLoopback(t)
	rec := NewMockRecorder()
	m := NewMDNS(MDNSOptions{
		Info:     testInfo,
		Service:  "_garagebridge._tcp",
		Instance: "garagebridge",
		Conn:     conn,
		Group:    group.LocalAddr(),
		Recorder: rec,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { _ = m.Run(ctx) })

	var hello dns.Msg
	if err := hello.Unpack(readPacket(t, group, 2*time.Second)); err != nil {
		t.Fatalf("unpacking announcement: %v", err)
	}
	if len(hello.Answer) == 0 || hello.Answer[0].Header().Ttl != mdnsRecordTTL {
		t.Errorf("announcement = %v", hello.Answer)
	}

	client := listenLoopback(t)
	q := query("_garagebridge._tcp.local.", dns.TypePTR)
	q.Id = 4242
	b, err := q.Pack()
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if _, err := client.WriteTo(b, conn.LocalAddr()); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	var resp dns.Msg
	if err := resp.Unpack(readPacket(t, client, 2*time.Second)); err != nil {
		t.Fatalf("unpacking reply: %v", err)
	}
	if resp.Id != 4242 || len(resp.Question) != 1 {
		t.Errorf("legacy reply did not echo query: id=%d question=%v", resp.Id, resp.Question)
	}

	cancel()
	wg.Wait()

	var bye dns.Msg
	if err := bye.Unpack(readPacket(t, group, 2*time.Second)); err != nil {
		t.Fatalf("unpacking goodbye: %v", err)
	}
	for _, rr := range bye.Answer {
		if rr.Header().Ttl != 0 {
			t.Errorf("goodbye record %v has TTL %d", rr, rr.Header().Ttl)
		}
	}
	if rec.Count("mdns_query") != 1 || rec.Count("mdns_announce") != 2 {
		t.Errorf("recorder = query %d, announce %d", rec.Count("mdns_query"), rec.Count("mdns_announce"))
	}
}
