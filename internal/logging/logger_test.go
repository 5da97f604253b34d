package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"parrotflower-gateway/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		AppEnv:          "prod",
		LogLevel:        slog.LevelInfo,
		BLEBackend:      "bluez",
		BLEAdapter:      "hci1",
		DeviceSelection: "manual",
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, testConfig(), "1.2.0", "parrotflower-gateway")

	logger.Info("flower: refresh failed", "retry_after", 5*time.Minute)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if rec["app"] != "parrotflower-gateway" || rec["version"] != "1.2.0" {
		t.Errorf("app/version = %v/%v", rec["app"], rec["version"])
	}
	if rec["retry_after"] != "5m0s" {
		t.Errorf("retry_after = %v, want 5m0s", rec["retry_after"])
	}
	ble, ok := rec["ble"].(map[string]any)
	if !ok {
		t.Fatalf("ble group missing in %v", rec)
	}
	if ble["backend"] != "bluez" || ble["adapter"] != "hci1" || ble["selection"] != "manual" {
		t.Errorf("ble group = %v", ble)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, testConfig(), "1.2.0", "gw")

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
}

func TestNewLogger_Dev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, testConfig(), "dev", "gw")

	logger.Info("ble: scanning started")
	out := buf.String()
	if !strings.Contains(out, "ble: scanning started") || !strings.Contains(out, "bluez") {
		t.Errorf("dev output = %q", out)
	}
}
