package main

import (
	"log/slog"

	"github.com/kstaniek/dgram-xfer/internal/registry"
)

func initRegistry(cfg *appConfig, l *slog.Logger) *registry.Registry {
	reg := registry.New(cfg.outDir, cfg.inactivityTO, cfg.blacklistTO)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("registry_config",
		"out_dir", cfg.outDir,
		"inactivity_timeout", cfg.inactivityTO,
		"blacklist_timeout", cfg.blacklistTO,
	)
	return reg
}
