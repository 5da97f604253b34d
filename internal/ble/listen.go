package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Scanner wraps BlueZ scanning with a bounded duration.
type Scanner struct {
	adapter   *bluetooth.Adapter
	adapterID string
	logger    *slog.Logger
}

func NewScanner(adapterID string, logger *slog.Logger) *Scanner {
	if adapterID == "" {
		adapterID = DefaultAdapter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		adapter:   bluetooth.NewAdapter(adapterID),
		adapterID: adapterID,
		logger:    logger,
	}
}

// Scan listens for advertisements for timeout and returns the supported
// sensors seen, see FilterDevices.
func (s *Scanner) Scan(ctx context.Context, timeout time.Duration) ([]Device, error) {
	s.logger.Info("ble: enabling adapter", "adapter", s.adapterID)
	if err := s.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable (%s): %w", s.adapterID, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		<-scanCtx.Done()
		_ = s.adapter.StopScan()
	}()

	s.logger.Info("ble: scanning started", "timeout", timeout)

	var (
		mu   sync.Mutex
		seen []Device
	)
	// adapter.Scan blocks until StopScan() or error.
	err := s.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		d := Device{
			Address: r.Address.String(),
			Name:    r.LocalName(),
			RSSI:    r.RSSI,
		}
		if !IsParrotDevice(d.Address, d.Name) {
			return
		}
		s.logger.Debug("ble: sensor advertisement", "addr", d.Address, "name", d.Name, "rssi", d.RSSI)
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})

	if ctx.Err() != nil {
		s.logger.Info("ble: scanning stopped (context canceled)")
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("ble scan: %w", err)
	}

	mu.Lock()
	devices := FilterDevices(seen)
	mu.Unlock()

	s.logger.Info("ble: scanning stopped", "found", len(devices))
	return devices, nil
}
