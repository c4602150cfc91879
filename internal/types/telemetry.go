package types

import (
	"math"
	"time"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

// Telemetry represents a telemetry message from a weather station
type Telemetry struct {
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Temperature *float64  `json:"temperature_c,omitempty"`
	Humidity    *float64  `json:"humidity_pct,omitempty"`
	Battery     *float64  `json:"battery_pct,omitempty"`
	Sequence    *int      `json:"sequence,omitempty"`
	RSSI        *int      `json:"rssi_dbm,omitempty"`
	Address     string    `json:"address,omitempty"`
	Encrypted   bool      `json:"encrypted,omitempty"`
	Button      string    `json:"button,omitempty"`
}

// StationHealth is the last-seen state of a station.
type StationHealth struct {
	StationID string    `json:"station_id"`
	LastSeen  time.Time `json:"last_seen"`
	Healthy   bool      `json:"healthy"`
}

const (
	SourceLocal  = "local"
	SourceRemote = "bthome"
)

// FromReading builds telemetry for a reading the relay advertised with the
// given packet id.
func FromReading(stationID string, r bthome.Reading, packetID uint8, at time.Time) Telemetry {
	t := Telemetry{
		StationID: stationID,
		Timestamp: at,
		Source:    SourceLocal,
		Sequence:  intPtr(int(packetID)),
	}
	if r.HasTemperature() {
		t.Temperature = floatPtr(r.Temperature)
	}
	if r.HasHumidity() {
		t.Humidity = floatPtr(r.Humidity)
	}
	if r.Valid && r.HasBattery {
		t.Battery = floatPtr(float64(r.Battery))
	}
	return t
}

// FromRemote builds telemetry for the outdoor record.
func FromRemote(stationID string, r dutycycle.Remote, at time.Time) Telemetry {
	t := Telemetry{
		StationID: stationID,
		Timestamp: at,
		Source:    SourceRemote,
		Address:   r.Address,
		Encrypted: r.Encrypted,
		RSSI:      intPtr(int(r.RSSI)),
	}
	if !math.IsNaN(r.Temperature) {
		t.Temperature = floatPtr(r.Temperature)
	}
	if !math.IsNaN(r.Humidity) {
		t.Humidity = floatPtr(r.Humidity)
	}
	if !math.IsNaN(r.Battery) {
		t.Battery = floatPtr(r.Battery)
	}
	if r.PacketID >= 0 {
		t.Sequence = intPtr(r.PacketID)
	}
	if r.HasButton {
		t.Button = r.Button.String()
	}
	return t
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
