//go:build !linux

package routing

import "syscall"

// controlFunc is a no-op outside Linux: TCP_USER_TIMEOUT and
// SO_BINDTODEVICE are Linux-specific socket options with no portable
// equivalent, so other platforms fall back to whatever the kernel defaults
// to for them.
func controlFunc(opts TCPOptions) func(network, address string, c syscall.RawConn) error {
	return nil
}
