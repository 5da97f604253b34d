package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"parrotflower-gateway/internal/types"
)

// Device is a sensor the gateway knows about.
type Device struct {
	Address   string
	Name      string
	Model     string
	Firmware  string
	FirstSeen time.Time
	LastSeen  time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// KnownDevices returns every stored device ordered by first sighting.
func (r *Repository) KnownDevices(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address, name, model, firmware, first_seen, last_seen
		FROM devices
		ORDER BY first_seen, address`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close devices rows", "error", err)
		}
	}()

	var out []Device
	for rows.Next() {
		var d Device
		var first, last string
		if err := rows.Scan(&d.Address, &d.Name, &d.Model, &d.Firmware, &first, &last); err != nil {
			return nil, err
		}
		d.FirstSeen = parseTime(first)
		d.LastSeen = parseTime(last)
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDevice inserts d or refreshes its last sighting. Empty name, model
// or firmware never overwrite stored values.
func (r *Repository) UpsertDevice(ctx context.Context, d Device) error {
	if d.LastSeen.IsZero() {
		d.LastSeen = time.Now()
	}
	ts := formatTime(d.LastSeen)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (address, name, model, firmware, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name      = COALESCE(NULLIF(excluded.name, ''), devices.name),
			model     = COALESCE(NULLIF(excluded.model, ''), devices.model),
			firmware  = COALESCE(NULLIF(excluded.firmware, ''), devices.firmware),
			last_seen = excluded.last_seen`,
		d.Address, d.Name, d.Model, d.Firmware, ts, ts)
	return err
}

// InsertReading stores one telemetry sample. The device must exist.
func (r *Repository) InsertReading(ctx context.Context, t types.PlantTelemetry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO readings (
			address, ts, battery_pct, temperature_c, air_temperature_c,
			soil_temperature_c, moisture_pct, light, conductivity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Address, formatTime(t.Timestamp),
		t.Battery, t.Temperature, t.AirTemperature,
		t.SoilTemperature, t.Moisture, t.Light, t.Conductivity)
	return err
}

// LatestReading returns the newest stored sample for address.
func (r *Repository) LatestReading(ctx context.Context, address string) (types.PlantTelemetry, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT r.address, d.name, d.model, d.firmware, r.ts,
			r.battery_pct, r.temperature_c, r.air_temperature_c,
			r.soil_temperature_c, r.moisture_pct, r.light, r.conductivity
		FROM readings r JOIN devices d ON d.address = r.address
		WHERE r.address = ?
		ORDER BY r.ts DESC
		LIMIT 1`, address)

	var t types.PlantTelemetry
	var ts string
	var vals [7]sql.NullFloat64
	err := row.Scan(&t.Address, &t.Name, &t.Model, &t.Firmware, &ts,
		&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6])
	if errors.Is(err, sql.ErrNoRows) {
		return types.PlantTelemetry{}, false, nil
	}
	if err != nil {
		return types.PlantTelemetry{}, false, err
	}

	t.Timestamp = parseTime(ts)
	t.Battery = nullable(vals[0])
	t.Temperature = nullable(vals[1])
	t.AirTemperature = nullable(vals[2])
	t.SoilTemperature = nullable(vals[3])
	t.Moisture = nullable(vals[4])
	t.Light = nullable(vals[5])
	t.Conductivity = nullable(vals[6])
	return t, true, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
