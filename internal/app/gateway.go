package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parrotflower-gateway/internal/ble"
	"parrotflower-gateway/internal/config"
	"parrotflower-gateway/internal/flower"
	"parrotflower-gateway/internal/store"
	"parrotflower-gateway/internal/types"
)

type Publisher interface {
	PublishTelemetry(t types.PlantTelemetry) error
	PublishHealth(h types.DeviceHealth) error
}

type DeviceStore interface {
	KnownDevices(ctx context.Context) ([]store.Device, error)
	UpsertDevice(ctx context.Context, d store.Device) error
	InsertReading(ctx context.Context, t types.PlantTelemetry) error
}

type Scanner interface {
	Scan(ctx context.Context, timeout time.Duration) ([]ble.Device, error)
}

// Gateway owns one Poller per sensor and pushes every reading to the
// store and the publisher.
type Gateway struct {
	cfg       config.Config
	transport flower.Transport
	publisher Publisher
	store     DeviceStore
	scanner   Scanner
	logger    *slog.Logger
	now       func() time.Time

	sensors []*sensor
}

type sensor struct {
	poller   *flower.Poller
	name     string
	firmware string
	// guessed is set when neither config nor advertisement named the model;
	// the GATT name decides it on first contact.
	guessed bool
}

// NewGateway wires the collaborators. scanner may be nil in manual mode.
func NewGateway(cfg config.Config, transport flower.Transport, publisher Publisher, st DeviceStore, scanner Scanner, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:       cfg,
		transport: transport,
		publisher: publisher,
		store:     st,
		scanner:   scanner,
		logger:    logger,
		now:       time.Now,
	}
}

// Discover builds the sensor list: the configured addresses in manual mode,
// otherwise every stored device plus whatever a scan finds.
func (g *Gateway) Discover(ctx context.Context) error {
	type candidate struct {
		address, name, model string
	}
	var found []candidate

	if g.cfg.DeviceSelection == "manual" {
		g.logger.Info("app: manual device selection", "devices", len(g.cfg.Devices))
		for _, d := range g.cfg.Devices {
			found = append(found, candidate{address: d.Address, model: d.Model})
		}
	} else {
		g.logger.Info("app: scanning for Parrot Flower Power & Pot sensors")
		known, err := g.store.KnownDevices(ctx)
		if err != nil {
			return fmt.Errorf("load known devices: %w", err)
		}
		g.logger.Info("app: known devices", "count", len(known))
		for _, d := range known {
			found = append(found, candidate{address: d.Address, name: d.Name, model: d.Model})
		}

		var scanned []ble.Device
		if g.scanner != nil {
			scanned, err = g.scanner.Scan(ctx, g.cfg.ScanTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				g.logger.Warn("app: scan failed", "error", err)
			}
		}
		g.logger.Info("app: devices found via bluetooth scan", "count", len(scanned))
		for _, d := range scanned {
			found = append(found, candidate{address: d.Address, name: d.Name})
		}
	}

	seen := make(map[string]bool)
	g.sensors = g.sensors[:0]
	for _, c := range found {
		if seen[c.address] {
			continue
		}
		seen[c.address] = true

		profile, guessed := pickProfile(c.model, c.name)
		p, err := g.newPoller(c.address, profile)
		if err != nil {
			g.logger.Error("app: skipping device", "addr", c.address, "error", err)
			continue
		}
		if err := g.store.UpsertDevice(ctx, store.Device{
			Address:  c.address,
			Name:     c.name,
			Model:    profile.Model,
			LastSeen: g.now(),
		}); err != nil {
			return fmt.Errorf("store device %s: %w", c.address, err)
		}
		g.sensors = append(g.sensors, &sensor{poller: p, name: c.name, guessed: guessed})
		g.logger.Info("app: device added", "addr", c.address, "model", profile.Model)
	}
	return nil
}

func (g *Gateway) newPoller(address string, profile *flower.Profile) (*flower.Poller, error) {
	return flower.NewPoller(address, g.transport, flower.Options{
		Profile:     profile,
		CacheTTL:    g.cfg.CacheTTL,
		ReadTimeout: g.cfg.ReadTimeout,
		Logger:      g.logger,
	})
}

// pickProfile returns the profile named by model or name. guessed is true
// when neither matched and Flower Power was assumed.
func pickProfile(model, name string) (profile *flower.Profile, guessed bool) {
	for _, s := range []string{model, name} {
		if p, ok := flower.ProfileForName(s); ok {
			return p, false
		}
	}
	return flower.ProfileFlowerPower, true
}

// profileFromGATTName matches a name read from the device. The Pot pads its
// name with trailing bytes, so only the prefix is compared.
func profileFromGATTName(name string) (*flower.Profile, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range flower.Profiles {
		if strings.HasPrefix(n, p.Model) {
			return p, true
		}
	}
	return nil, false
}

// reprofile swaps the sensor's poller when the GATT name names another
// model than the one assumed at discovery.
func (g *Gateway) reprofile(ctx context.Context, s *sensor, name string) {
	s.guessed = false
	p, ok := profileFromGATTName(name)
	if !ok || p == s.poller.Profile() {
		return
	}
	addr := s.poller.Address()
	np, err := g.newPoller(addr, p)
	if err != nil {
		g.logger.Error("app: reprofile", "addr", addr, "error", err)
		return
	}
	g.logger.Info("app: device model corrected", "addr", addr, "from", s.poller.Profile().Model, "to", p.Model)
	s.poller = np
	s.name = ""
	if name, err := np.Name(ctx); err == nil {
		s.name = name
	}
}

// Addresses returns the addresses of the current sensors in poll order.
func (g *Gateway) Addresses() []string {
	out := make([]string, 0, len(g.sensors))
	for _, s := range g.sensors {
		out = append(out, s.poller.Address())
	}
	return out
}

// PollAll polls every sensor once. A failing sensor is logged and skipped
// for this cycle; the returned count is the number of successful polls.
func (g *Gateway) PollAll(ctx context.Context) int {
	ok := 0
	for _, s := range g.sensors {
		if ctx.Err() != nil {
			return ok
		}
		if err := g.poll(ctx, s); err != nil {
			g.logger.Error("app: can't get data from sensor", "addr", s.poller.Address(), "error", err)
			g.publishHealth(s, err)
			continue
		}
		g.publishHealth(s, nil)
		ok++
	}
	return ok
}

func (g *Gateway) poll(ctx context.Context, s *sensor) error {
	addr := s.poller.Address()
	g.logger.Info("app: getting data from sensor", "addr", addr)

	g.readMetadata(ctx, s)

	r, err := s.poller.Readings(ctx, true)
	if err != nil {
		return err
	}

	t := telemetryFromReading(r, s.name, s.firmware)
	if err := g.store.UpsertDevice(ctx, store.Device{
		Address:  addr,
		Name:     s.name,
		Model:    r.Model,
		Firmware: s.firmware,
		LastSeen: r.Time,
	}); err != nil {
		return fmt.Errorf("store device: %w", err)
	}
	if err := g.store.InsertReading(ctx, t); err != nil {
		return fmt.Errorf("store reading: %w", err)
	}
	if err := g.publisher.PublishTelemetry(t); err != nil {
		g.logger.Warn("app: failed to publish telemetry", "addr", addr, "error", err)
	}

	g.logger.Info("app: sensor reading", "addr", addr, "values", r.Values)
	return nil
}

// readMetadata fills name and firmware once; failures are retried on the
// next cycle.
func (g *Gateway) readMetadata(ctx context.Context, s *sensor) {
	if s.name == "" {
		name, err := s.poller.Name(ctx)
		if err != nil {
			g.logger.Debug("app: read name", "addr", s.poller.Address(), "error", err)
		} else {
			s.name = name
		}
	}
	if s.guessed && s.name != "" {
		g.reprofile(ctx, s, s.name)
	}
	if s.firmware == "" {
		fw, err := s.poller.FirmwareVersion(ctx)
		if err != nil {
			g.logger.Debug("app: read firmware", "addr", s.poller.Address(), "error", err)
		} else {
			s.firmware = fw
		}
	}
}

func (g *Gateway) publishHealth(s *sensor, pollErr error) {
	h := types.DeviceHealth{
		Address:  s.poller.Address(),
		LastSeen: g.now(),
		Healthy:  pollErr == nil,
	}
	if pollErr != nil {
		h.Error = pollErr.Error()
	}
	if err := g.publisher.PublishHealth(h); err != nil {
		g.logger.Debug("app: failed to publish health", "addr", h.Address, "error", err)
	}
}

// Run discovers sensors, polls them immediately and then every
// cfg.PollInterval until ctx is done.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Discover(ctx); err != nil {
		return err
	}
	g.logger.Info("app: using polling interval", "interval", g.cfg.PollInterval)

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n := g.PollAll(ctx)
		g.logger.Info("app: poll cycle done", "ok", n, "devices", len(g.sensors))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func telemetryFromReading(r flower.Reading, name, firmware string) types.PlantTelemetry {
	t := types.PlantTelemetry{
		Address:   r.Address,
		Name:      name,
		Model:     r.Model,
		Firmware:  firmware,
		Timestamp: r.Time,
	}
	fields := map[flower.Parameter]**float64{
		flower.ParameterBattery:         &t.Battery,
		flower.ParameterTemperature:     &t.Temperature,
		flower.ParameterAirTemperature:  &t.AirTemperature,
		flower.ParameterSoilTemperature: &t.SoilTemperature,
		flower.ParameterMoisture:        &t.Moisture,
		flower.ParameterLight:           &t.Light,
		flower.ParameterConductivity:    &t.Conductivity,
	}
	for param, v := range r.Values {
		if dst, ok := fields[param]; ok {
			v := v
			*dst = &v
		}
	}
	return t
}
