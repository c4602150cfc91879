package bthome

import (
	"encoding/binary"
	"math"
)

// ServiceDataLen is the worst case service data size:
// uuid(2) + info(1) + packet id(2) + battery(2) + temperature(3) + humidity(3).
const ServiceDataLen = 13

// ServiceData is the fixed buffer Encode writes into.
type ServiceData [ServiceDataLen]byte

const humidityMaxHundredths = 10000

// Encode writes the service data for r into out and returns the number of
// bytes used. seq is sent as the packet id.
//
// Sensor objects are only written for a valid reading, in the fixed order
// battery, temperature, humidity. Humidity is clamped to 0..100 %;
// temperature is not clamped.
func Encode(out *ServiceData, r Reading, seq uint8) int {
	binary.LittleEndian.PutUint16(out[0:2], ServiceUUID)
	i := 2

	out[i] = infoV2Plain
	i++

	out[i] = ObjPacketID
	out[i+1] = seq
	i += 2

	if !r.Valid {
		return i
	}

	if r.HasBattery {
		out[i] = ObjBattery
		out[i+1] = r.Battery
		i += 2
	}

	if finite(r.Temperature) {
		t := int16(int64(math.Round(r.Temperature * 100)))
		out[i] = ObjTemperature
		binary.LittleEndian.PutUint16(out[i+1:i+3], uint16(t))
		i += 3
	}

	if finite(r.Humidity) {
		out[i] = ObjHumidity
		binary.LittleEndian.PutUint16(out[i+1:i+3], humidityHundredths(r.Humidity))
		i += 3
	}

	return i
}

func humidityHundredths(pct float64) uint16 {
	rh := math.Round(pct * 100)
	if rh < 0 {
		rh = 0
	}
	if rh > humidityMaxHundredths {
		rh = humidityMaxHundredths
	}
	return uint16(rh)
}
