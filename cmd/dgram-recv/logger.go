package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/dgram-xfer/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	l := logging.New(format, lvl, os.Stdout).With("app", "dgram-recv")
	logging.Set(l)
	return l
}
