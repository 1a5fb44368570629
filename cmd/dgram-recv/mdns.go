package main

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/kstaniek/dgram-xfer/internal/discovery"
)

// startDiscovery advertises the receiver over mDNS once its listener is
// ready, deriving the port from the bound address. It is a no-op if mDNS is
// disabled in cfg.
func startDiscovery(ctx context.Context, cfg *appConfig, recvAddr string, l *slog.Logger) {
	if !cfg.mdnsEnable {
		return
	}
	portNum := portFromAddr(recvAddr)
	if portNum == 0 {
		l.Warn("mdns_start_failed", "error", "could not determine bound port", "addr", recvAddr)
		return
	}
	meta := []string{
		"version=" + version,
		"commit=" + commit,
	}
	ad, err := discovery.Advertise(ctx, cfg.mdnsName, portNum, meta)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", discovery.ServiceType, "name", cfg.mdnsName, "port", portNum)
	go func() { <-ctx.Done(); ad.Close() }()
}

func portFromAddr(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			return pn
		}
	}
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		if pn, perr := strconv.Atoi(addr[idx+1:]); perr == nil {
			return pn
		}
	}
	return 0
}
