package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"parrotflower-gateway/internal/config"
)

// New builds the process logger on stderr: colored text for dev builds,
// JSON otherwise. Every record carries the radio backend.
func New(cfg config.Config, version string, appName string) *slog.Logger {
	return newLogger(os.Stderr, cfg, version, appName)
}

func newLogger(w io.Writer, cfg config.Config, version string, appName string) *slog.Logger {
	if version == "dev" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  cfg.LogLevel == slog.LevelDebug,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With(
			"app", appName,
			"ble_backend", cfg.BLEBackend,
		)
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       cfg.LogLevel,
		ReplaceAttr: durationString,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		slog.Group("ble",
			"backend", cfg.BLEBackend,
			"adapter", cfg.BLEAdapter,
			"selection", cfg.DeviceSelection,
		),
	)
}

// durationString renders durations as "10m0s" instead of nanoseconds.
func durationString(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().String())
	}
	return a
}
