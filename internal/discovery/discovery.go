// Package discovery advertises a running receiver over mDNS so senders on
// the local network can find it without a preconfigured address.
package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type receivers register under.
const ServiceType = "_dgram-recv._udp"

// Advertisement is a handle to a live mDNS registration. Call Close to
// withdraw it.
type Advertisement struct {
	svc  *zeroconf.Server
	done chan struct{}
}

// Advertise registers instance (or a hostname-derived name if empty) under
// ServiceType on port, carrying meta as TXT records. It returns immediately;
// the registration is withdrawn when ctx is cancelled or Close is called,
// whichever comes first.
func Advertise(ctx context.Context, instance string, port int, meta []string) (*Advertisement, error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("dgram-recv-%s", host)
	}
	svc, err := zeroconf.Register(instance, ServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	a := &Advertisement{svc: svc, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
		case <-a.done:
		}
		svc.Shutdown()
	}()
	return a, nil
}

// Close withdraws the advertisement and waits briefly for the goodbye packet
// to go out.
func (a *Advertisement) Close() {
	if a == nil {
		return
	}
	select {
	case <-a.done:
		return // already closed
	default:
	}
	close(a.done)
	a.svc.Shutdown()
	time.Sleep(50 * time.Millisecond)
}
