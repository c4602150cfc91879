package bthome

import "math"

// Reading is a local sensor snapshot to be advertised.
// Temperature and Humidity are NaN when the sensor did not report them.
// A Reading with Valid=false carries no sensor fields.
type Reading struct {
	Valid       bool
	Temperature float64 // °C
	Humidity    float64 // %RH

	HasBattery bool
	Battery    uint8 // 0..100 %
}

// InvalidReading is the reading used when no sensor data is available.
func InvalidReading() Reading {
	return Reading{Temperature: math.NaN(), Humidity: math.NaN()}
}

// HasTemperature reports whether the reading carries a usable temperature.
func (r Reading) HasTemperature() bool { return r.Valid && finite(r.Temperature) }

// HasHumidity reports whether the reading carries a usable humidity.
func (r Reading) HasHumidity() bool { return r.Valid && finite(r.Humidity) }

// Decoded is the result of decoding one BTHome service data payload.
// Absent floats are NaN and an absent packet id is -1.
type Decoded struct {
	OK        bool
	Encrypted bool
	Trigger   bool

	Temperature float64
	Humidity    float64
	Battery     float64
	PacketID    int

	HasButton bool
	Button    ButtonEvent

	// Err explains why decoding stopped early. It is informational: a
	// truncated or unknown object still leaves OK set.
	Err error
}

func newDecoded() Decoded {
	return Decoded{
		Temperature: math.NaN(),
		Humidity:    math.NaN(),
		Battery:     math.NaN(),
		PacketID:    -1,
	}
}

// HasTemperature reports whether a temperature object was decoded.
func (d Decoded) HasTemperature() bool { return !math.IsNaN(d.Temperature) }

// HasHumidity reports whether a humidity object was decoded.
func (d Decoded) HasHumidity() bool { return !math.IsNaN(d.Humidity) }

// HasBattery reports whether a battery object was decoded.
func (d Decoded) HasBattery() bool { return !math.IsNaN(d.Battery) }

// HasPacketID reports whether a packet id object was decoded.
func (d Decoded) HasPacketID() bool { return d.PacketID >= 0 }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
