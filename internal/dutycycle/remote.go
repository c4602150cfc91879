package dutycycle

import (
	"math"

	"cloudpico-bthome/internal/bthome"
)

// Remote is the latest state accepted from the remote broadcaster.
// Sensor fields persist across frames that omit them; absent floats are NaN
// and an absent packet id is -1.
type Remote struct {
	Valid     bool
	Encrypted bool

	Temperature float64
	Humidity    float64
	Battery     float64
	PacketID    int

	HasButton bool
	Button    bthome.ButtonEvent

	Address    string
	RSSI       int16
	LastSeenMs uint32
}

func emptyRemote() Remote {
	return Remote{
		Temperature: math.NaN(),
		Humidity:    math.NaN(),
		Battery:     math.NaN(),
		PacketID:    -1,
	}
}

// apply merges an accepted decode into the record.
func (r *Remote) apply(d bthome.Decoded, f Frame, now uint32) {
	r.Valid = true
	r.Encrypted = d.Encrypted
	r.Address = f.Address
	r.RSSI = f.RSSI
	r.LastSeenMs = now

	if d.Encrypted {
		return
	}
	if d.HasTemperature() {
		r.Temperature = d.Temperature
	}
	if d.HasHumidity() {
		r.Humidity = d.Humidity
	}
	if d.HasBattery() {
		r.Battery = d.Battery
	}
	if d.HasPacketID() {
		r.PacketID = d.PacketID
	}
	if d.HasButton {
		r.HasButton = true
		r.Button = d.Button
	}
}

// AgeMs returns milliseconds since the record was last updated.
func (r Remote) AgeMs(now uint32) uint32 { return now - r.LastSeenMs }
