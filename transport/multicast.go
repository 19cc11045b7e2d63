package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

const readBufferSize = 2048

// Config carries UDPMulticast construction parameters.
type Config struct {
	// ListenAddr is the local bind address, typically ":5004".
	ListenAddr string

	// DSCP is the outbound code point. Defaults to DSCPExpedited (EF, 46).
	// Use DSCPBestEffort explicitly to disable marking.
	DSCP int

	// Interface optionally names the network interface used for group
	// membership. Empty means the system default.
	Interface string

	// MulticastTTL bounds how many mesh hops a datagram may travel.
	// Defaults to 1.
	MulticastTTL int
}

// UDPMulticast implements Transport on a single IPv4 UDP socket.
type UDPMulticast struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn
	iface *net.Interface

	mu     sync.Mutex
	joined map[string]bool

	sent     atomic.Uint64
	received atomic.Uint64
}

// NewUDPMulticast binds the channel socket and applies QoS marking.
//
// A DSCP marking failure is tolerated: the original radios run on networks
// that sometimes strip or reject TOS, and voice must keep flowing without it.
// A bind failure is fatal.
func NewUDPMulticast(config Config) (*UDPMulticast, error) {
	if config.DSCP == 0 {
		config.DSCP = DSCPExpedited
	}
	if config.MulticastTTL == 0 {
		config.MulticastTTL = 1
	}

	lc := net.ListenConfig{Control: socketControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", config.ListenAddr)
	if err != nil {
		return nil, &ConnectError{Op: "bind", Group: config.ListenAddr, Err: err}
	}

	t := &UDPMulticast{
		conn:   conn,
		pconn:  ipv4.NewPacketConn(conn),
		joined: make(map[string]bool),
	}

	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err != nil {
			conn.Close()
			return nil, &ConnectError{Op: "interface", Group: config.Interface, Err: err}
		}
		t.iface = iface
		if err := t.pconn.SetMulticastInterface(iface); err != nil {
			logrus.WithFields(logrus.Fields{
				"interface": config.Interface,
				"error":     err.Error(),
			}).Warn("Failed to pin multicast interface")
		}
	}

	if config.DSCP != DSCPBestEffort {
		// DSCP occupies the high 6 bits of the TOS byte.
		if err := t.pconn.SetTOS(config.DSCP << 2); err != nil {
			logrus.WithFields(logrus.Fields{
				"dscp":  config.DSCP,
				"error": err.Error(),
			}).Warn("Failed to set DSCP marking, continuing without QoS")
		}
	}

	if err := t.pconn.SetMulticastTTL(config.MulticastTTL); err != nil {
		logrus.WithField("error", err.Error()).Warn("Failed to set multicast TTL")
	}

	logrus.WithFields(logrus.Fields{
		"listen_addr": conn.LocalAddr().String(),
		"dscp":        config.DSCP,
	}).Info("Multicast transport ready")

	return t, nil
}

// Join subscribes to a multicast group. A second join is a no-op.
func (t *UDPMulticast) Join(group string) error {
	ip, err := groupIP(group)
	if err != nil {
		return &ConnectError{Op: "join", Group: group, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.joined[group] {
		return nil
	}
	if err := t.pconn.JoinGroup(t.iface, &net.UDPAddr{IP: ip}); err != nil {
		return &ConnectError{Op: "join", Group: group, Err: err}
	}
	t.joined[group] = true

	logrus.WithField("group", group).Info("Joined multicast group")
	return nil
}

// Leave unsubscribes from a multicast group. Leaving a group that was never
// joined is a no-op.
func (t *UDPMulticast) Leave(group string) error {
	ip, err := groupIP(group)
	if err != nil {
		return &ConnectError{Op: "leave", Group: group, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.joined[group] {
		return nil
	}
	if err := t.pconn.LeaveGroup(t.iface, &net.UDPAddr{IP: ip}); err != nil {
		return &ConnectError{Op: "leave", Group: group, Err: err}
	}
	delete(t.joined, group)

	logrus.WithField("group", group).Info("Left multicast group")
	return nil
}

// Send transmits one datagram to the group. Best effort: no ordering, no
// acknowledgment.
func (t *UDPMulticast) Send(group string, data []byte) error {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return &ConnectError{Op: "send", Group: group, Err: err}
	}

	if _, err := t.conn.WriteTo(data, addr); err != nil {
		return &ConnectError{Op: "send", Group: group, Err: err}
	}
	t.sent.Add(1)

	return nil
}

// Receive blocks up to timeout for one datagram. A timeout yields ErrNoData;
// the caller's loop is expected to treat that as "check shutdown, try again".
func (t *UDPMulticast) Receive(timeout time.Duration) ([]byte, net.Addr, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}

	buf := make([]byte, readBufferSize)
	n, addr, err := t.conn.ReadFrom(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil, ErrNoData
		}
		return nil, nil, err
	}
	t.received.Add(1)

	return buf[:n], addr, nil
}

// Close releases the socket.
func (t *UDPMulticast) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the bound local address.
func (t *UDPMulticast) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Stats returns cumulative datagram counters.
func (t *UDPMulticast) Stats() (sent, received uint64) {
	return t.sent.Load(), t.received.Load()
}

func groupIP(group string) (net.IP, error) {
	host, _, err := net.SplitHostPort(group)
	if err != nil {
		// Allow a bare group address without port.
		host = group
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("invalid group address %q", group)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("%s is not a multicast address", ip)
	}
	return ip.To4(), nil
}
