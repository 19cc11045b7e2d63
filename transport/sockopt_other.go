//go:build !linux

package transport

import "syscall"

// socketControl is a no-op outside Linux. The fielded radios are Linux
// devices; other platforms only run tests and tooling.
func socketControl(network, address string, c syscall.RawConn) error {
	return nil
}
