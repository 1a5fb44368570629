package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/dgram-xfer/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"rx", snap.Rx,
					"malformed", snap.Malformed,
					"dropped", snap.Dropped,
					"started", snap.Started,
					"completed", snap.Completed,
					"aborted_bad_name", snap.AbortedBadName,
					"aborted_cannot_open", snap.AbortedCannotOp,
					"aborted_io_error", snap.AbortedIOError,
					"evicted_idle", snap.EvictedIdle,
					"blacklisted", snap.Blacklisted,
					"bytes_written", snap.BytesWritten,
					"active", snap.Active,
					"blacklist_size", snap.BlacklistSize,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
