package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/dgram-xfer/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	DatagramsRx = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagrams_rx_total",
		Help: "Total datagrams received on the socket.",
	})
	DatagramsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagrams_malformed_total",
		Help: "Total datagrams rejected for being shorter than the header or longer than the max package size.",
	})
	DatagramsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagrams_dropped_total",
		Help: "Total datagrams dropped while their stream key is black-listed.",
	})
	TransfersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_started_total",
		Help: "Total reassemblers created (one per first-seen stream key).",
	})
	TransfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_completed_total",
		Help: "Total transfers that reached filename-ready and body-ready and were evicted normally.",
	})
	TransfersAbortedBadName = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_aborted_bad_name_total",
		Help: "Total transfers aborted because the filename frame failed validation.",
	})
	TransfersAbortedCannotOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_aborted_cannot_open_total",
		Help: "Total transfers aborted because the destination file could not be opened.",
	})
	TransfersAbortedIOError = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_aborted_io_error_total",
		Help: "Total transfers aborted due to a write or close failure on the output file.",
	})
	TransfersEvictedInactivity = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_evicted_inactivity_total",
		Help: "Total transfers evicted for exceeding the inactivity timeout.",
	})
	BlacklistSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blacklist_suppressed_total",
		Help: "Total datagrams dropped because their stream key was black-listed.",
	})
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bytes_written_total",
		Help: "Total payload bytes written to output files.",
	})
	ActiveReassemblers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_reassemblers",
		Help: "Current number of in-flight reassemblers.",
	})
	BlacklistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blacklist_size",
		Help: "Current number of black-listed stream keys.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrListen     = "listen"
	ErrBind       = "bind"
	ErrDecodeAddr = "decode_addr"
	ErrSocketRead = "socket_read"
	ErrCannotOpen = "cannot_open"
	ErrIOError    = "io_error"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localRx           uint64
	localMalformed    uint64
	localDropped      uint64
	localStarted      uint64
	localCompleted    uint64
	localAbortedBad   uint64
	localAbortedOpen  uint64
	localAbortedIO    uint64
	localEvictedIdle  uint64
	localBlacklisted  uint64
	localBytesWritten uint64
	localErrors       uint64
	localActive       uint64
	localBlacklistSz  uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Rx              uint64
	Malformed       uint64
	Dropped         uint64
	Started         uint64
	Completed       uint64
	AbortedBadName  uint64
	AbortedCannotOp uint64
	AbortedIOError  uint64
	EvictedIdle     uint64
	Blacklisted     uint64
	BytesWritten    uint64
	Errors          uint64
	Active          uint64
	BlacklistSize   uint64
}

func Snap() Snapshot {
	return Snapshot{
		Rx:              atomic.LoadUint64(&localRx),
		Malformed:       atomic.LoadUint64(&localMalformed),
		Dropped:         atomic.LoadUint64(&localDropped),
		Started:         atomic.LoadUint64(&localStarted),
		Completed:       atomic.LoadUint64(&localCompleted),
		AbortedBadName:  atomic.LoadUint64(&localAbortedBad),
		AbortedCannotOp: atomic.LoadUint64(&localAbortedOpen),
		AbortedIOError:  atomic.LoadUint64(&localAbortedIO),
		EvictedIdle:     atomic.LoadUint64(&localEvictedIdle),
		Blacklisted:     atomic.LoadUint64(&localBlacklisted),
		BytesWritten:    atomic.LoadUint64(&localBytesWritten),
		Errors:          atomic.LoadUint64(&localErrors),
		Active:          atomic.LoadUint64(&localActive),
		BlacklistSize:   atomic.LoadUint64(&localBlacklistSz),
	}
}

func IncRx() {
	DatagramsRx.Inc()
	atomic.AddUint64(&localRx, 1)
}

func IncMalformed() {
	DatagramsMalformed.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncDropped() {
	DatagramsDropped.Inc()
	atomic.AddUint64(&localDropped, 1)
}

func IncStarted() {
	TransfersStarted.Inc()
	atomic.AddUint64(&localStarted, 1)
}

func IncCompleted() {
	TransfersCompleted.Inc()
	atomic.AddUint64(&localCompleted, 1)
}

func IncAbortedBadName() {
	TransfersAbortedBadName.Inc()
	atomic.AddUint64(&localAbortedBad, 1)
}

func IncAbortedCannotOpen() {
	TransfersAbortedCannotOpen.Inc()
	atomic.AddUint64(&localAbortedOpen, 1)
}

func IncAbortedIOError() {
	TransfersAbortedIOError.Inc()
	atomic.AddUint64(&localAbortedIO, 1)
}

func IncEvictedInactivity() {
	TransfersEvictedInactivity.Inc()
	atomic.AddUint64(&localEvictedIdle, 1)
}

func IncBlacklistSuppressed() {
	BlacklistSuppressed.Inc()
	atomic.AddUint64(&localBlacklisted, 1)
}

func AddBytesWritten(n int) {
	BytesWritten.Add(float64(n))
	atomic.AddUint64(&localBytesWritten, uint64(n))
}

func SetActiveReassemblers(n int) {
	ActiveReassemblers.Set(float64(n))
	atomic.StoreUint64(&localActive, uint64(n))
}

func SetBlacklistSize(n int) {
	BlacklistSize.Set(float64(n))
	atomic.StoreUint64(&localBlacklistSz, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrListen, ErrBind, ErrDecodeAddr, ErrSocketRead, ErrCannotOpen, ErrIOError,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
