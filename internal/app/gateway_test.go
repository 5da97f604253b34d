package app

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"parrotflower-gateway/internal/ble"
	"parrotflower-gateway/internal/config"
	"parrotflower-gateway/internal/flower"
	"parrotflower-gateway/internal/store"
	"parrotflower-gateway/internal/types"
)

func f32le(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

// fakeTransport serves fixed payloads per address; unknown addresses are
// unreachable.
type fakeTransport struct {
	devices map[string]map[uint16][]byte
}

func (f *fakeTransport) Connect(ctx context.Context, address string) (flower.Session, error) {
	d, ok := f.devices[address]
	if !ok {
		return nil, errors.New("device unreachable")
	}
	return fakeSession(d), nil
}

type fakeSession map[uint16][]byte

func (s fakeSession) Read(ctx context.Context, handle uint16) ([]byte, error) { return s[handle], nil }
func (s fakeSession) Close() error                                            { return nil }

func flowerPowerData() map[uint16][]byte {
	return map[uint16][]byte{
		flower.HandleName:         []byte("Flower power"),
		flower.HandleVersion:      []byte("Board_1.0-2-x"),
		flower.HandleBattery:      {0x50},
		flower.HandleTemperature:  f32le(21.26),
		flower.HandleMoisture:     f32le(34),
		flower.HandleLight:        f32le(2.5),
		flower.HandleConductivity: {0x64, 0x02},
	}
}

func potData() map[uint16][]byte {
	return map[uint16][]byte{
		flower.HandleName:            []byte("Parrot pot\x00\x00\x00"),
		flower.HandleVersion:         []byte("P_1.2.3-9-X"),
		flower.HandleBattery:         {0x64},
		flower.HandleTemperature:     f32le(19),
		flower.HandleSoilTemperature: {0xF4, 0x01},
		flower.HandleMoisture:        f32le(35.6),
		flower.HandleLight:           {0x00, 0x00, 0x80, 0x3F},
		flower.HandleConductivity:    {0x00, 0x04},
	}
}

type fakePublisher struct {
	mu        sync.Mutex
	telemetry []types.PlantTelemetry
	health    []types.DeviceHealth
}

func (p *fakePublisher) PublishTelemetry(t types.PlantTelemetry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.telemetry = append(p.telemetry, t)
	return nil
}

func (p *fakePublisher) PublishHealth(h types.DeviceHealth) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health = append(p.health, h)
	return nil
}

type fakeScanner struct {
	devices []ble.Device
	err     error
}

func (s *fakeScanner) Scan(ctx context.Context, timeout time.Duration) ([]ble.Device, error) {
	return s.devices, s.err
}

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewRepository(db)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDiscover_Manual(t *testing.T) {
	cfg := config.Config{
		DeviceSelection: "manual",
		Devices: []config.DeviceConfig{
			{Address: "A0:14:3D:00:00:01"},
			{Address: "A0:14:3D:00:00:02", Model: "parrot pot"},
			{Address: "A0:14:3D:00:00:01"},
		},
	}
	repo := newTestRepo(t)
	g := NewGateway(cfg, &fakeTransport{}, &fakePublisher{}, repo, nil, quietLogger())

	if err := g.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := g.Addresses()
	if len(got) != 2 || got[0] != "A0:14:3D:00:00:01" || got[1] != "A0:14:3D:00:00:02" {
		t.Fatalf("Addresses = %v", got)
	}
	if g.sensors[1].poller.Profile() != flower.ProfilePot {
		t.Errorf("second sensor profile = %s, want parrot pot", g.sensors[1].poller.Profile().Model)
	}

	known, err := repo.KnownDevices(context.Background())
	if err != nil || len(known) != 2 {
		t.Fatalf("KnownDevices = %d, %v; want 2", len(known), err)
	}
}

func TestDiscover_AutoMergesKnownAndScanned(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.UpsertDevice(ctx, store.Device{Address: "A0:14:3D:00:00:01", Model: "parrot pot"}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}
	scanner := &fakeScanner{devices: []ble.Device{
		{Address: "A0:14:3D:00:00:01", Name: "Parrot pot"},
		{Address: "A0:14:3D:00:00:03", Name: "Flower power"},
	}}

	g := NewGateway(config.Config{DeviceSelection: "auto"}, &fakeTransport{}, &fakePublisher{}, repo, scanner, quietLogger())
	if err := g.Discover(ctx); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	got := g.Addresses()
	if len(got) != 2 || got[0] != "A0:14:3D:00:00:01" || got[1] != "A0:14:3D:00:00:03" {
		t.Fatalf("Addresses = %v", got)
	}
	if g.sensors[0].poller.Profile() != flower.ProfilePot {
		t.Errorf("known device profile = %s, want parrot pot", g.sensors[0].poller.Profile().Model)
	}
}

func TestDiscover_ScanFailureKeepsKnown(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.UpsertDevice(ctx, store.Device{Address: "A0:14:3D:00:00:01"}); err != nil {
		t.Fatalf("UpsertDevice: %v", err)
	}

	g := NewGateway(config.Config{DeviceSelection: "auto"}, &fakeTransport{}, &fakePublisher{}, repo,
		&fakeScanner{err: errors.New("adapter down")}, quietLogger())
	if err := g.Discover(ctx); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := g.Addresses(); len(got) != 1 {
		t.Errorf("Addresses = %v, want the known device", got)
	}
}

func TestPollAll(t *testing.T) {
	cfg := config.Config{
		DeviceSelection: "manual",
		Devices: []config.DeviceConfig{
			{Address: "A0:14:3D:00:00:01"},
			{Address: "A0:14:3D:00:00:02", Model: "pot"},
			{Address: "A0:14:3D:00:00:09"},
		},
	}
	tr := &fakeTransport{devices: map[string]map[uint16][]byte{
		"A0:14:3D:00:00:01": flowerPowerData(),
		"A0:14:3D:00:00:02": potData(),
	}}
	pub := &fakePublisher{}
	repo := newTestRepo(t)
	g := NewGateway(cfg, tr, pub, repo, nil, quietLogger())
	ctx := context.Background()

	if err := g.Discover(ctx); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if n := g.PollAll(ctx); n != 2 {
		t.Fatalf("PollAll = %d, want 2", n)
	}

	if len(pub.telemetry) != 2 {
		t.Fatalf("published %d telemetry messages, want 2", len(pub.telemetry))
	}
	fp := pub.telemetry[0]
	if fp.Name != "Flower power" || fp.Firmware != "2-x" || fp.Model != "flower power" {
		t.Errorf("flower power metadata = %q/%q/%q", fp.Name, fp.Firmware, fp.Model)
	}
	if fp.Temperature == nil || *fp.Temperature != 21.3 {
		t.Errorf("flower power temperature = %v, want 21.3", fp.Temperature)
	}
	if fp.Conductivity == nil || *fp.Conductivity != 612 {
		t.Errorf("flower power conductivity = %v, want 612", fp.Conductivity)
	}
	if fp.SoilTemperature != nil {
		t.Errorf("flower power soil temperature = %v, want nil", *fp.SoilTemperature)
	}

	pot := pub.telemetry[1]
	if pot.Name != "Parrot pot" || pot.Firmware != "9-X" {
		t.Errorf("pot metadata = %q/%q", pot.Name, pot.Firmware)
	}
	if pot.SoilTemperature == nil || *pot.SoilTemperature != 10.7 {
		t.Errorf("pot soil temperature = %v, want 10.7", pot.SoilTemperature)
	}
	if pot.Light == nil || *pot.Light != 1.0 {
		t.Errorf("pot light = %v, want 1.0", pot.Light)
	}

	if len(pub.health) != 3 {
		t.Fatalf("published %d health messages, want 3", len(pub.health))
	}
	if !pub.health[0].Healthy || !pub.health[1].Healthy {
		t.Errorf("health = %+v, want first two healthy", pub.health)
	}
	if bad := pub.health[2]; bad.Healthy || bad.Address != "A0:14:3D:00:00:09" || bad.Error == "" {
		t.Errorf("unreachable device health = %+v", bad)
	}

	latest, ok, err := repo.LatestReading(ctx, "A0:14:3D:00:00:02")
	if err != nil || !ok {
		t.Fatalf("LatestReading = %v, %v", ok, err)
	}
	if latest.Firmware != "9-X" || latest.Moisture == nil || *latest.Moisture != 36 {
		t.Errorf("stored pot reading = %+v", latest)
	}
}

func TestPollAll_ProfileFromGATTName(t *testing.T) {
	addr := "A0:14:3D:00:00:05"
	tr := &fakeTransport{devices: map[string]map[uint16][]byte{addr: potData()}}
	pub := &fakePublisher{}
	repo := newTestRepo(t)
	scanner := &fakeScanner{devices: []ble.Device{{Address: addr}}}
	g := NewGateway(config.Config{DeviceSelection: "auto"}, tr, pub, repo, scanner, quietLogger())
	ctx := context.Background()

	if err := g.Discover(ctx); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if g.sensors[0].poller.Profile() != flower.ProfileFlowerPower {
		t.Fatalf("nameless device profile = %s, want flower power", g.sensors[0].poller.Profile().Model)
	}
	if n := g.PollAll(ctx); n != 1 {
		t.Fatalf("PollAll = %d, want 1", n)
	}

	if g.sensors[0].poller.Profile() != flower.ProfilePot {
		t.Errorf("profile after poll = %s, want parrot pot", g.sensors[0].poller.Profile().Model)
	}
	if len(pub.telemetry) != 1 {
		t.Fatalf("published %d telemetry messages, want 1", len(pub.telemetry))
	}
	tel := pub.telemetry[0]
	if tel.Model != "parrot pot" || tel.Name != "Parrot pot" {
		t.Errorf("telemetry model/name = %q/%q", tel.Model, tel.Name)
	}
	if tel.SoilTemperature == nil || *tel.SoilTemperature != 10.7 {
		t.Errorf("soil temperature = %v, want 10.7", tel.SoilTemperature)
	}

	known, err := repo.KnownDevices(ctx)
	if err != nil || len(known) != 1 || known[0].Model != "parrot pot" {
		t.Errorf("KnownDevices = %+v, %v; want model parrot pot", known, err)
	}
}

func TestProfileFromGATTName(t *testing.T) {
	tests := []struct {
		in   string
		want *flower.Profile
	}{
		{"Parrot pot\x01\x02\x03", flower.ProfilePot},
		{"Flower power 7A", flower.ProfileFlowerPower},
		{"Thermometer", nil},
	}
	for _, tt := range tests {
		got, _ := profileFromGATTName(tt.in)
		if got != tt.want {
			t.Errorf("profileFromGATTName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTelemetryFromReading(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := flower.Reading{
		Address: "A0:14:3D:00:00:01",
		Model:   "parrot pot",
		Time:    ts,
		Values: map[flower.Parameter]float64{
			flower.ParameterAirTemperature: 19,
			flower.ParameterBattery:        100,
		},
	}

	got := telemetryFromReading(r, "Parrot pot", "9-X")
	if got.AirTemperature == nil || *got.AirTemperature != 19 {
		t.Errorf("AirTemperature = %v, want 19", got.AirTemperature)
	}
	if got.Battery == nil || *got.Battery != 100 {
		t.Errorf("Battery = %v, want 100", got.Battery)
	}
	if got.Temperature != nil || got.Light != nil {
		t.Errorf("unexpected values set: %+v", got)
	}
	if !got.Timestamp.Equal(ts) || got.Name != "Parrot pot" || got.Firmware != "9-X" {
		t.Errorf("metadata = %+v", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.Config{
		DeviceSelection: "manual",
		Devices:         []config.DeviceConfig{{Address: "A0:14:3D:00:00:01"}},
		PollInterval:    time.Hour,
	}
	tr := &fakeTransport{devices: map[string]map[uint16][]byte{"A0:14:3D:00:00:01": flowerPowerData()}}
	pub := &fakePublisher{}
	g := NewGateway(cfg, tr, pub, newTestRepo(t), nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.telemetry)
		pub.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no telemetry published by first cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
