//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl applies voice-oriented socket options at bind time.
//
// SO_REUSEADDR lets several endpoints on one host share the channel port,
// which is how multiple radios behave on a shared multicast segment.
// SO_PRIORITY raises the kernel queueing priority for interactive audio;
// it is best effort since the real QoS signal is the DSCP marking.
func socketControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			serr = err
			return
		}
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PRIORITY, 6)
	})
	if err != nil {
		return err
	}
	return serr
}
