package transport

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrNoData indicates that Receive reached its timeout with nothing to
// deliver. It is a normal condition, not a failure.
var ErrNoData = errors.New("transport: no data within timeout")

// ConnectError wraps a socket-level failure on join, leave, or send.
type ConnectError struct {
	Op    string
	Group string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Group, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Transport is the channel-level datagram abstraction. It deliberately
// promises nothing beyond best-effort, unordered delivery; reliability where
// it matters is built above it by the floor arbitration protocol.
type Transport interface {
	// Join subscribes to a multicast group ("239.255.42.99:5004").
	// Joining an already-joined group is a no-op.
	Join(group string) error

	// Leave unsubscribes from a multicast group. Leaving a group that was
	// never joined is a no-op.
	Leave(group string) error

	// Send transmits one datagram to the group, best effort.
	Send(group string, data []byte) error

	// Receive blocks up to timeout for one datagram. It returns ErrNoData
	// on timeout so the caller's loop can check for shutdown.
	Receive(timeout time.Duration) ([]byte, net.Addr, error)

	// Close releases the socket. Receive returns net.ErrClosed afterwards.
	Close() error
}

// DSCP code points for outbound marking, per RFC 2474/RFC 3246.
// Expedited Forwarding is the conventional marking for interactive voice.
const (
	DSCPBestEffort = 0
	DSCPAF31       = 26
	DSCPAF41       = 34
	DSCPExpedited  = 46
)
