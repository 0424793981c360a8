//go:build linux

package routing

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlFunc returns a net.Dialer.Control callback applying the socket
// options TCPOptions describes that have no portable net.Conn setter
// (TCP_USER_TIMEOUT, SO_BINDTODEVICE — both Linux-specific). NoDelay and
// KeepAlive are applied afterwards via the standard *net.TCPConn setters
// instead, since those do have portable APIs.
func controlFunc(opts TCPOptions) func(network, address string, c syscall.RawConn) error {
	if opts.UserTimeoutMillis == 0 && opts.BindToDevice == "" {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if opts.UserTimeoutMillis > 0 {
				sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, opts.UserTimeoutMillis)
				if sockErr != nil {
					return
				}
			}
			if opts.BindToDevice != "" {
				sockErr = unix.BindToDevice(int(fd), opts.BindToDevice)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
