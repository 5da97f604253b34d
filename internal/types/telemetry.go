package types

import "time"

// PlantTelemetry is one complete sensor reading as published and stored.
type PlantTelemetry struct {
	Address         string    `json:"address"`
	Name            string    `json:"name,omitempty"`
	Model           string    `json:"model"`
	Firmware        string    `json:"firmware,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Battery         *float64  `json:"battery_pct,omitempty"`
	Temperature     *float64  `json:"temperature_c,omitempty"`
	AirTemperature  *float64  `json:"air_temperature_c,omitempty"`
	SoilTemperature *float64  `json:"soil_temperature_c,omitempty"`
	Moisture        *float64  `json:"moisture_pct,omitempty"`
	Light           *float64  `json:"light,omitempty"`
	Conductivity    *float64  `json:"conductivity,omitempty"`
}

// DeviceHealth is the retained last-poll state of one sensor.
type DeviceHealth struct {
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
	Healthy  bool      `json:"healthy"`
	Error    string    `json:"error,omitempty"`
}
