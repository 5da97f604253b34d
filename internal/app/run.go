package app

import (
	"context"
	"fmt"
	"log/slog"

	"parrotflower-gateway/internal/ble"
	"parrotflower-gateway/internal/config"
	"parrotflower-gateway/internal/mqtt"
	"parrotflower-gateway/internal/store"
)

func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"ble_backend", cfg.BLEBackend,
		"ble_adapter", cfg.BLEAdapter,
		"device_selection", cfg.DeviceSelection,
	)
	if cfg.PollIntervalClamped {
		logger.Error("specified polling interval out of range, clamped",
			"interval", cfg.PollInterval,
			"min", config.MinPollInterval,
			"max", config.MaxPollInterval,
		)
	}

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close db", "error", err)
		}
	}()

	transport, err := ble.NewTransport(cfg.BLEBackend, ble.Options{
		Adapter: cfg.BLEAdapter,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("ble transport: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("close ble transport", "error", err)
		}
	}()

	mqttClient, err := mqtt.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect()

	go func() {
		// Readings are still stored while the broker is unreachable.
		if err := mqttClient.Connect(ctx); err != nil {
			logger.Error("mqtt connect failed", "error", err)
		}
	}()

	var scanner Scanner
	if cfg.DeviceSelection == "auto" {
		scanner = ble.NewScanner(cfg.BLEAdapter, logger)
	}

	gw := NewGateway(cfg, transport, mqttClient, store.NewRepository(db), scanner, logger)
	err = gw.Run(ctx)

	logger.Info("gateway shutting down")
	return err
}
