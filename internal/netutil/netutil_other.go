//go:build !linux

package netutil

import "net"

// SetRecvBuffer is a no-op on platforms without unix.SetsockoptInt support;
// the receiver still works, just without the enlarged kernel buffer.
func SetRecvBuffer(conn net.PacketConn, bytes int) error { return nil }
