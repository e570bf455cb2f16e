package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
)

// udnNamespace scopes generated device names to this bridge software.
var udnNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/nerrad567/garage-bridge"))

// Info is what the bridge tells hubs about itself.
type Info struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	UDN         string `json:"udn"`
	ServiceType string `json:"serviceType"`
	Location    string `json:"location"`
}

// NewInfo builds the advertised identity. An empty udn is derived from
// bridgeID so it stays stable across restarts.
func NewInfo(host string, port int, serviceType, udn, bridgeID string) Info {
	if udn == "" {
		udn = StableUDN(bridgeID)
	}
	return Info{
		Host:        host,
		Port:        port,
		UDN:         udn,
		ServiceType: serviceType,
		Location:    fmt.Sprintf("http://%s/details", net.JoinHostPort(host, strconv.Itoa(port))),
	}
}

// StableUDN returns a uuid: URN that depends only on bridgeID.
func StableUDN(bridgeID string) string {
	return "uuid:" + uuid.NewSHA1(udnNamespace, []byte(bridgeID)).String()
}

// OutboundIPv4 returns the local address used to reach the wider network.
// No packets are sent.
func OutboundIPv4() (net.IP, error) {
	conn, err := net.Dial("udp4", "203.0.113.1:9")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoAddress, err)
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return nil, ErrNoAddress
	}
	return addr.IP, nil
}
