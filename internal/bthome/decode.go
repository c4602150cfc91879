package bthome

import (
	"encoding/binary"
	"fmt"
)

// Decode parses a BTHome payload starting at the info byte (the service
// data body after the UUID).
//
// OK is false only for an empty payload or a version other than 2. For an
// encrypted payload only the flags are reported. The object walk stops at
// the first unknown id or truncated value; fields decoded before that point
// are kept and OK stays true.
func Decode(payload []byte) Decoded {
	d := newDecoded()
	if len(payload) == 0 {
		d.Err = fmt.Errorf("%w: empty payload", ErrProtocolMismatch)
		return d
	}

	info := payload[0]
	d.Encrypted = info&infoEncryptedBit != 0
	d.Trigger = info&infoTriggerBit != 0

	if v := (info >> infoVersionShift) & infoVersionMask; v != Version {
		d.Err = fmt.Errorf("%w: version %d", ErrProtocolMismatch, v)
		return d
	}

	d.OK = true
	if d.Encrypted {
		return d
	}

	i := 1
	for i < len(payload) {
		id := payload[i]
		i++

		size, known := objectSize(id)
		if !known {
			d.Err = fmt.Errorf("%w: 0x%02X at offset %d", ErrUnknownObject, id, i-1)
			return d
		}
		if i+size > len(payload) {
			d.Err = fmt.Errorf("%w: 0x%02X needs %d bytes, %d left", ErrTruncated, id, size, len(payload)-i)
			return d
		}

		decodeObject(&d, id, payload[i:i+size])
		i += size
	}

	return d
}

func decodeObject(d *Decoded, id uint8, v []byte) {
	switch id {
	case ObjPacketID:
		d.PacketID = int(v[0])
	case ObjBattery:
		d.Battery = float64(v[0])
	case ObjHumidity8:
		d.Humidity = float64(v[0])
	case ObjHumidity:
		d.Humidity = float64(binary.LittleEndian.Uint16(v)) * 0.01
	case ObjTemperature01:
		d.Temperature = float64(int16(binary.LittleEndian.Uint16(v))) * 0.1
	case ObjTemperature:
		d.Temperature = float64(int16(binary.LittleEndian.Uint16(v))) * 0.01
	case ObjButton:
		d.HasButton = true
		d.Button = ButtonFromCode(v[0])
	}
}
