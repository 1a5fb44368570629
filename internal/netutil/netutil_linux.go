//go:build linux

package netutil

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetRecvBuffer raises the kernel socket receive buffer (SO_RCVBUF) on conn
// to at least bytes. Larger buffers let the receiver tolerate short bursts
// from many concurrent senders without the kernel dropping datagrams before
// the single-threaded receive loop gets to read them.
func SetRecvBuffer(conn net.PacketConn, bytes int) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("netutil: connection does not support raw control")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("netutil: SyscallConn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
	})
	if err != nil {
		return fmt.Errorf("netutil: Control: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("netutil: setsockopt SO_RCVBUF: %w", sockErr)
	}
	return nil
}
