package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"parrotflower-gateway/internal/ble"
	"parrotflower-gateway/internal/flower"
)

const (
	MinPollInterval = 30 * time.Minute
	MaxPollInterval = 1440 * time.Minute
)

type Config struct {
	AppEnv       string
	LogLevel     slog.Level
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	BLEAdapter      string
	BLEBackend      string
	DeviceSelection string
	Devices         []DeviceConfig
	ScanTimeout     time.Duration

	PollInterval        time.Duration
	PollIntervalClamped bool
	CacheTTL            time.Duration
	ReadTimeout         time.Duration

	SQLitePath string
}

// DeviceConfig is one manually configured sensor. Model is empty when the
// profile should be picked from the advertised name.
type DeviceConfig struct {
	Address string
	Model   string
}

func LoadFromEnv() (Config, error) {
	appEnv := envOr("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	backend := envOr("BLE_BACKEND", "bluez")
	if !ble.ValidBackend(backend) {
		return Config{}, fmt.Errorf("invalid BLE_BACKEND %q", backend)
	}

	selection := envOr("DEVICE_SELECTION", "auto")
	switch selection {
	case "auto", "manual":
	default:
		return Config{}, fmt.Errorf("invalid DEVICE_SELECTION %q (allowed: auto, manual)", selection)
	}

	devices, err := parseDevices(os.Getenv("DEVICE_MACS"))
	if err != nil {
		return Config{}, err
	}
	if selection == "manual" && len(devices) == 0 {
		return Config{}, fmt.Errorf("DEVICE_MACS must list at least one address in manual mode")
	}

	scanTimeout, err := positiveDuration("SCAN_TIMEOUT", "5s")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := positiveDuration("POLL_INTERVAL", "60m")
	if err != nil {
		return Config{}, err
	}
	pollInterval, clamped := clampPollInterval(pollInterval)

	cacheTTL, err := positiveDuration("CACHE_TTL", flower.DefaultCacheTTL.String())
	if err != nil {
		return Config{}, err
	}
	readTimeout, err := positiveDuration("READ_TIMEOUT", flower.DefaultReadTimeout.String())
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:              appEnv,
		LogLevel:            level,
		MQTTBroker:          envOr("MQTT_BROKER", "localhost"),
		MQTTPort:            mqttPort,
		MQTTClientID:        envOr("MQTT_CLIENT_ID", "parrotflower-gateway"),
		BLEAdapter:          envOr("BLE_ADAPTER", ble.DefaultAdapter),
		BLEBackend:          backend,
		DeviceSelection:     selection,
		Devices:             devices,
		ScanTimeout:         scanTimeout,
		PollInterval:        pollInterval,
		PollIntervalClamped: clamped,
		CacheTTL:            cacheTTL,
		ReadTimeout:         readTimeout,
		SQLitePath:          envOr("SQLITE_PATH", "data/parrotflower.db"),
	}, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func positiveDuration(key, def string) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

// clampPollInterval keeps the interval within [MinPollInterval, MaxPollInterval].
func clampPollInterval(d time.Duration) (time.Duration, bool) {
	switch {
	case d < MinPollInterval:
		return MinPollInterval, true
	case d > MaxPollInterval:
		return MaxPollInterval, true
	}
	return d, false
}

// parseDevices reads "A0:14:3D:01:02:03, A0:14:3D:04:05:06=pot".
func parseDevices(s string) ([]DeviceConfig, error) {
	var out []DeviceConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		addr, model, _ := strings.Cut(item, "=")
		addr = strings.ToUpper(strings.TrimSpace(addr))
		if !flower.ValidAddress(addr) {
			return nil, fmt.Errorf("invalid DEVICE_MACS entry %q", item)
		}
		model = strings.TrimSpace(model)
		if model != "" {
			p, ok := flower.ProfileForName(model)
			if !ok {
				return nil, fmt.Errorf("invalid model %q for %s", model, addr)
			}
			model = p.Model
		}
		out = append(out, DeviceConfig{Address: addr, Model: model})
	}
	return out, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
