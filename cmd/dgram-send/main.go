// Command dgram-send transmits a single file to a dgram-recv receiver.
//
// Usage: dgram-send <server-ip> <server-port> <path>
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/kstaniek/dgram-xfer/internal/sender"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <server-ip> <server-port> <path>\n", os.Args[0])
		os.Exit(1)
	}
	host := os.Args[1]
	portArg := os.Args[2]
	path := os.Args[3]

	port, err := strconv.Atoi(portArg)
	if err != nil || port <= 0 || port > 65535 {
		fmt.Fprintf(os.Stderr, "dgram-send: invalid port %q\n", portArg)
		os.Exit(1)
	}

	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	if addr.IP == nil {
		fmt.Fprintf(os.Stderr, "dgram-send: invalid IPv4 address %q\n", host)
		os.Exit(1)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dgram-send: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	n, err := sender.SendFile(conn, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dgram-send: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent %d bytes to %s:%d\n", n, host, port)
}
