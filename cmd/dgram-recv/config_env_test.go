package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		listenAddr:   ":9000",
		outDir:       ".",
		receiveTO:    2 * time.Second,
		inactivityTO: 5 * time.Second,
		blacklistTO:  30 * time.Second,
		logFormat:    "text",
		logLevel:     "info",
	}

	os.Setenv("DGRAM_RECV_OUT_DIR", "/tmp/incoming")
	os.Setenv("DGRAM_RECV_MDNS_ENABLE", "true")
	os.Setenv("DGRAM_RECV_INACTIVITY_TIMEOUT", "10s")
	os.Setenv("DGRAM_RECV_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("DGRAM_RECV_OUT_DIR")
		os.Unsetenv("DGRAM_RECV_MDNS_ENABLE")
		os.Unsetenv("DGRAM_RECV_INACTIVITY_TIMEOUT")
		os.Unsetenv("DGRAM_RECV_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.outDir != "/tmp/incoming" {
		t.Fatalf("expected outDir override, got %q", base.outDir)
	}
	if !base.mdnsEnable {
		t.Fatal("expected mdnsEnable true")
	}
	if base.inactivityTO != 10*time.Second {
		t.Fatalf("expected inactivityTO 10s got %v", base.inactivityTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{outDir: "."}
	os.Setenv("DGRAM_RECV_OUT_DIR", "/tmp/incoming")
	t.Cleanup(func() { os.Unsetenv("DGRAM_RECV_OUT_DIR") })

	// Simulate "out-dir" having been set explicitly on the command line.
	set := map[string]struct{}{"out-dir": {}}
	if err := applyEnvOverrides(base, set); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.outDir != "." {
		t.Fatalf("expected flag to win, got %q", base.outDir)
	}
}

func TestApplyEnvOverrides_InvalidDurationReportsError(t *testing.T) {
	base := &appConfig{}
	os.Setenv("DGRAM_RECV_RECEIVE_TIMEOUT", "not-a-duration")
	t.Cleanup(func() { os.Unsetenv("DGRAM_RECV_RECEIVE_TIMEOUT") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := &appConfig{
		logFormat:    "yaml",
		logLevel:     "info",
		outDir:       ".",
		receiveTO:    time.Second,
		inactivityTO: time.Second,
		blacklistTO:  time.Second,
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsEmptyOutDir(t *testing.T) {
	cfg := &appConfig{
		logFormat:    "text",
		logLevel:     "info",
		outDir:       "",
		receiveTO:    time.Second,
		inactivityTO: time.Second,
		blacklistTO:  time.Second,
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected validation error for empty out-dir")
	}
}
