// Package receiver owns the UDP socket and the single-threaded receive
// loop: bounded-wait read, decode, validate, dispatch to the registry, then
// run the periodic maintenance sweeps.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/dgram"
	"github.com/kstaniek/dgram-xfer/internal/logging"
	"github.com/kstaniek/dgram-xfer/internal/metrics"
	"github.com/kstaniek/dgram-xfer/internal/netutil"
	"github.com/kstaniek/dgram-xfer/internal/registry"
)

const defaultReceiveTimeout = 2 * time.Second

// Receiver owns the bound datagram socket and drives the registry.
type Receiver struct {
	mu             sync.RWMutex
	addr           string
	conn           net.PacketConn
	registry       *registry.Registry
	logger         *slog.Logger
	receiveTimeout time.Duration
	recvBufferSize int
	readyOnce      sync.Once
	readyCh        chan struct{}
	lastErrMu      sync.Mutex
	lastErr        error
	errCh          chan error
}

// Option configures a Receiver before Serve is called.
type Option func(*Receiver)

// New constructs a Receiver with the given options applied.
func New(opts ...Option) *Receiver {
	r := &Receiver{
		receiveTimeout: defaultReceiveTimeout,
		readyCh:        make(chan struct{}),
		errCh:          make(chan error, 1),
		logger:         logging.L(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.addr == "" {
		r.addr = ":0"
	}
	return r
}

func WithListenAddr(a string) Option            { return func(r *Receiver) { r.addr = a } }
func WithRegistry(reg *registry.Registry) Option { return func(r *Receiver) { r.registry = reg } }
func WithLogger(l *slog.Logger) Option {
	return func(r *Receiver) {
		if l != nil {
			r.logger = l
		}
	}
}
func WithReceiveTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.receiveTimeout = d
		}
	}
}

// WithPacketConn injects an already-bound socket (used by tests).
func WithPacketConn(c net.PacketConn) Option { return func(r *Receiver) { r.conn = c } }

// WithRecvBufferSize requests a larger kernel socket receive buffer
// (SO_RCVBUF) once the socket is bound; 0 leaves the OS default in place.
func WithRecvBufferSize(bytes int) Option { return func(r *Receiver) { r.recvBufferSize = bytes } }

func (r *Receiver) Addr() string           { r.mu.RLock(); defer r.mu.RUnlock(); return r.addr }
func (r *Receiver) Ready() <-chan struct{} { return r.readyCh }
func (r *Receiver) Errors() <-chan error   { return r.errCh }

func (r *Receiver) setError(err error) {
	if err == nil {
		return
	}
	r.lastErrMu.Lock()
	r.lastErr = err
	r.lastErrMu.Unlock()
	select {
	case r.errCh <- err:
	default:
	}
}

func (r *Receiver) LastError() error {
	r.lastErrMu.Lock()
	defer r.lastErrMu.Unlock()
	return r.lastErr
}

// Serve binds the socket (unless one was injected via WithPacketConn) and
// runs the receive loop until ctx is done. There is no other exit condition
// in normal operation, matching the spec's always-on receiver.
func (r *Receiver) Serve(ctx context.Context) error {
	conn := r.conn
	if conn == nil {
		c, err := net.ListenPacket("udp4", r.addr)
		if err != nil {
			wrap := fmt.Errorf("%w: %v", ErrBind, err)
			metrics.IncError(mapErrToMetric(wrap))
			r.setError(wrap)
			return wrap
		}
		conn = c
		r.mu.Lock()
		r.addr = conn.LocalAddr().String()
		r.conn = conn
		r.mu.Unlock()
		if r.recvBufferSize > 0 {
			if err := netutil.SetRecvBuffer(conn, r.recvBufferSize); err != nil {
				r.logger.Warn("set_recv_buffer_failed", "error", err)
			}
		}
	}
	defer conn.Close()

	r.readyOnce.Do(func() { close(r.readyCh) })
	r.logger.Info("udp_listen", "addr", r.Addr())

	go func() { <-ctx.Done(); _ = conn.Close() }()

	// One byte of headroom lets an oversize datagram show up as
	// len > MaxPackageSize instead of being silently truncated to fit.
	buf := make([]byte, dgram.MaxPackageSize+1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		r.receiveOnce(conn, buf)
		now := time.Now()
		r.registry.SweepStreams(now)
		r.registry.SweepBlackList(now)
	}
}

// receiveOnce performs one bounded-wait read and, if a datagram arrived,
// validates, decodes and dispatches it.
func (r *Receiver) receiveOnce(conn net.PacketConn, buf []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(r.receiveTimeout))
	n, addr, err := conn.ReadFrom(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return // bounded-wait budget elapsed; treated as "no datagram"
		}
		if errors.Is(err, net.ErrClosed) {
			return
		}
		wrap := fmt.Errorf("%w: %v", ErrSocketRead, err)
		metrics.IncError(mapErrToMetric(wrap))
		r.setError(wrap)
		r.logger.Error("socket_read_error", "error", wrap)
		return
	}

	ip, port, ok := senderAddr(addr)
	if !ok {
		r.logger.Warn("decode_addr_failed", "addr", addr)
		return
	}

	// The registry may buffer the decoded view out of order, so it must not
	// alias buf, which the next read overwrites.
	data := append([]byte(nil), buf[:n]...)
	if !dgram.Valid(data) {
		metrics.IncMalformed()
		r.logger.Warn("malformed_datagram", "from", fmt.Sprintf("%s:%d", ip, port), "len", n)
		return
	}
	d, err := dgram.Decode(data)
	if err != nil {
		metrics.IncMalformed()
		r.logger.Warn("malformed_datagram", "from", fmt.Sprintf("%s:%d", ip, port), "error", err)
		return
	}
	metrics.IncRx()

	key := registry.Key{IP: ip, Port: port, Marker: d.Marker()}
	if r.registry.Handle(time.Now(), key, d) == registry.OutcomeSuppressed {
		metrics.IncDropped()
	}
}

// senderAddr extracts the (ip, port) half of the stream key from addr.
func senderAddr(addr net.Addr) (netip.Addr, uint16, bool) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, 0, false
	}
	ip, ok := netip.AddrFromSlice(udpAddr.IP.To4())
	if !ok {
		return netip.Addr{}, 0, false
	}
	return ip, uint16(udpAddr.Port), true
}
