package discovery

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SSDP protocol constants.
const (
	ssdpGroup      = "239.255.255.250:1900"
	ssdpAll        = "ssdp:all"
	ssdpRootDevice = "upnp:rootdevice"
	ssdpDiscover   = `"ssdp:discover"`
	serverToken    = "Linux/6 UPnP/1.1 garagebridge/1.0"
	defaultMaxAge  = 1800
)

// Search is a parsed M-SEARCH request.
type Search struct {
	Target   string
	Callback string
	MX       string
}

// ParseSearch decodes an M-SEARCH datagram. Other SSDP traffic (NOTIFY,
// responses) returns ErrNotSearch.
func ParseSearch(b []byte) (Search, error) {
	if !bytes.HasPrefix(b, []byte("M-SEARCH ")) {
		return Search{}, ErrNotSearch
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(b)))
	if err != nil {
		return Search{}, fmt.Errorf("%w: %w", ErrNotSearch, err)
	}
	if !strings.EqualFold(req.Header.Get("MAN"), ssdpDiscover) {
		return Search{}, fmt.Errorf("%w: MAN is %q", ErrNotSearch, req.Header.Get("MAN"))
	}
	return Search{
		Target:   strings.TrimSpace(req.Header.Get("ST")),
		Callback: strings.TrimSpace(req.Header.Get("CALLBACK")),
		MX:       req.Header.Get("MX"),
	}, nil
}

// Matches reports whether a search target selects the bridge.
func (s Search) Matches(info Info) bool {
	switch s.Target {
	case ssdpAll, ssdpRootDevice, info.ServiceType, info.UDN:
		return true
	}
	return false
}

// CallbackURL validates the CALLBACK header, which may be wrapped in angle
// brackets, and returns it as an http(s) URL.
func (s Search) CallbackURL() (*url.URL, error) {
	raw := strings.TrimSuffix(strings.TrimPrefix(s.Callback, "<"), ">")
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCallback)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCallback, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCallback, raw)
	}
	return u, nil
}

// usn returns the unique service name for a notification type.
func usn(info Info, nt string) string {
	if nt == info.UDN {
		return info.UDN
	}
	return info.UDN + "::" + nt
}

// notificationTypes are advertised in every alive/byebye round.
func notificationTypes(info Info) []string {
	return []string{ssdpRootDevice, info.UDN, info.ServiceType}
}

// buildNotify renders a NOTIFY message. nts is ssdp:alive or ssdp:byebye.
func buildNotify(info Info, nt, nts string) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", ssdpGroup)
	if nts == "ssdp:alive" {
		fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", defaultMaxAge)
		fmt.Fprintf(&b, "LOCATION: %s\r\n", info.Location)
		fmt.Fprintf(&b, "SERVER: %s\r\n", serverToken)
	}
	fmt.Fprintf(&b, "NT: %s\r\n", nt)
	fmt.Fprintf(&b, "NTS: %s\r\n", nts)
	fmt.Fprintf(&b, "USN: %s\r\n", usn(info, nt))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// buildSearchResponse renders the unicast answer to a matching M-SEARCH.
// The ST echoes the search target, except ssdp:all which gets our type.
func buildSearchResponse(info Info, target string, now time.Time) []byte {
	st := target
	if st == ssdpAll {
		st = info.ServiceType
	}

	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", defaultMaxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", now.UTC().Format(http.TimeFormat))
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", info.Location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", serverToken)
	fmt.Fprintf(&b, "ST: %s\r\n", st)
	fmt.Fprintf(&b, "USN: %s\r\n", usn(info, st))
	b.WriteString("\r\n")
	return []byte(b.String())
}
