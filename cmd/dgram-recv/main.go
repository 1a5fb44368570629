package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/dgram-xfer/internal/metrics"
	"github.com/kstaniek/dgram-xfer/internal/receiver"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("dgram-recv %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	if info, err := os.Stat(cfg.outDir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "dgram-recv: destination directory %q does not exist\n", cfg.outDir)
		os.Exit(1)
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)
	reg := initRegistry(cfg, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	recv := receiver.New(
		receiver.WithListenAddr(cfg.listenAddr),
		receiver.WithRegistry(reg),
		receiver.WithLogger(l),
		receiver.WithReceiveTimeout(cfg.receiveTO),
		receiver.WithRecvBufferSize(cfg.recvBuffer),
	)
	go func() {
		if err := recv.Serve(ctx); err != nil {
			l.Error("receiver_error", "error", err)
			cancel()
		}
	}()

	go func() {
		select {
		case <-recv.Ready():
		case <-ctx.Done():
			return
		}
		startDiscovery(ctx, cfg, recv.Addr(), l)
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-recv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
		// Only a failed Serve cancels ctx before a signal arrives.
		wg.Wait()
		os.Exit(1)
	}
	cancel()
	wg.Wait()
}
