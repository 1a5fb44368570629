package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	outDir          string
	receiveTO       time.Duration
	inactivityTO    time.Duration
	blacklistTO     time.Duration
	recvBuffer      int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":9000", "UDP listen address")
	outDir := flag.String("out-dir", ".", "Directory received files are written into")
	receiveTO := flag.Duration("receive-timeout", 2*time.Second, "Bounded-wait socket read timeout")
	inactivityTO := flag.Duration("inactivity-timeout", 5*time.Second, "Evict a transfer after this long without progress")
	blacklistTO := flag.Duration("blacklist-timeout", 30*time.Second, "Suppress a failed stream key for this long")
	recvBuffer := flag.Int("recv-buffer", 0, "SO_RCVBUF size in bytes (0 = OS default)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default dgram-recv-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.outDir = *outDir
	cfg.receiveTO = *receiveTO
	cfg.inactivityTO = *inactivityTO
	cfg.blacklistTO = *blacklistTO
	cfg.recvBuffer = *recvBuffer
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not touch the filesystem or network - only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.outDir == "" {
		return errors.New("out-dir must not be empty")
	}
	if c.receiveTO <= 0 {
		return errors.New("receive-timeout must be > 0")
	}
	if c.inactivityTO <= 0 {
		return errors.New("inactivity-timeout must be > 0")
	}
	if c.blacklistTO <= 0 {
		return errors.New("blacklist-timeout must be > 0")
	}
	if c.recvBuffer < 0 {
		return errors.New("recv-buffer must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps DGRAM_RECV_* environment variables onto cfg unless
// the corresponding flag was explicitly set (flags win). Parsing is lax:
// empty values are ignored rather than treated as errors, except
// DGRAM_RECV_METRICS, where an empty value clears the metrics address.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("DGRAM_RECV_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["out-dir"]; !ok {
		if v, ok := get("DGRAM_RECV_OUT_DIR"); ok && v != "" {
			c.outDir = v
		}
	}
	if _, ok := set["receive-timeout"]; !ok {
		if v, ok := get("DGRAM_RECV_RECEIVE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.receiveTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DGRAM_RECV_RECEIVE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["inactivity-timeout"]; !ok {
		if v, ok := get("DGRAM_RECV_INACTIVITY_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.inactivityTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DGRAM_RECV_INACTIVITY_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["blacklist-timeout"]; !ok {
		if v, ok := get("DGRAM_RECV_BLACKLIST_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.blacklistTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DGRAM_RECV_BLACKLIST_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["recv-buffer"]; !ok {
		if v, ok := get("DGRAM_RECV_RECV_BUFFER"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.recvBuffer = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DGRAM_RECV_RECV_BUFFER: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DGRAM_RECV_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DGRAM_RECV_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DGRAM_RECV_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("DGRAM_RECV_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid DGRAM_RECV_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("DGRAM_RECV_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("DGRAM_RECV_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
