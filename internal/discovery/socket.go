package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Socket retry defaults.
const (
	DefaultSocketRetry = time.Second
	socketRetryMax     = time.Minute
)

// ListenFunc opens a multicast socket joined to group with the given TTL.
type ListenFunc func(group *net.UDPAddr, ttl int) (PacketConn, error)

// ListenMulticast is the default ListenFunc.
func ListenMulticast(group *net.UDPAddr, ttl int) (PacketConn, error) {
	conn, err := listenMulticast(group, ttl)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// socketOpener resolves a responder's group and opens its socket, retrying
// with backoff until it succeeds or ctx is cancelled. Containers without a
// multicast interface fail here, sometimes only until the network is up.
type socketOpener struct {
	name    string
	group   string
	ttl     int
	listen  ListenFunc
	initial time.Duration
	logger  Logger
}

// open returns the group address and socket. conn and group, when non-nil,
// are used as given. The error is non-nil only if ctx ended first.
func (o socketOpener) open(ctx context.Context, conn PacketConn, group net.Addr) (PacketConn, net.Addr, error) {
	if o.listen == nil {
		o.listen = ListenMulticast
	}
	if o.initial <= 0 {
		o.initial = DefaultSocketRetry
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.initial
	bo.MaxInterval = socketRetryMax

	attempt := 0
	operation := func() (PacketConn, error) {
		attempt++
		if group == nil {
			addr, err := net.ResolveUDPAddr("udp4", o.group)
			if err != nil {
				return nil, o.failed(attempt, fmt.Errorf("resolving %s group: %w", o.name, err))
			}
			group = addr
		}
		if conn != nil {
			return conn, nil
		}
		addr, ok := group.(*net.UDPAddr)
		if !ok {
			return nil, o.failed(attempt, fmt.Errorf("%s group %v is not a UDP address", o.name, group))
		}
		c, err := o.listen(addr, o.ttl)
		if err != nil {
			return nil, o.failed(attempt, fmt.Errorf("opening %s socket: %w", o.name, err))
		}
		return c, nil
	}

	c, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	if err != nil {
		return nil, nil, err
	}
	return c, group, nil
}

func (o socketOpener) failed(attempt int, err error) error {
	o.logger.Warn("discovery socket unavailable, retrying", "responder", o.name, "attempt", attempt, "error", err)
	return err
}
