// Package bthome encodes and decodes the subset of BTHome v2 service data
// used by the relay: packet id, battery, temperature, humidity and button.
//
// Wire layout of the service data element body (little-endian):
//
//	[0:2] UUID 0xFCD2, [2] info byte, then object id + value pairs.
//
// Object lengths are implied by the object id, so an id the decoder does not
// know ends the walk.
package bthome

const (
	// ServiceUUID is the 16-bit service UUID assigned to BTHome.
	ServiceUUID uint16 = 0xFCD2

	// ADTypeFlags and ADTypeServiceData16 are the AD structure types used in
	// a legacy advertisement.
	ADTypeFlags         uint8 = 0x01
	ADTypeServiceData16 uint8 = 0x16

	// FlagsGeneralDiscoverable is LE General Discoverable + BR/EDR not supported.
	FlagsGeneralDiscoverable uint8 = 0x06

	// Version is the only BTHome protocol version understood here.
	Version uint8 = 2

	// MaxAdvertisementLen is the legacy advertising payload limit.
	MaxAdvertisementLen = 31
)

// Info byte layout.
const (
	infoEncryptedBit = 0x01
	infoTriggerBit   = 0x04
	infoVersionShift = 5
	infoVersionMask  = 0x07

	infoV2Plain = Version << infoVersionShift // 0x40
)

// Object ids.
const (
	ObjPacketID      uint8 = 0x00
	ObjBattery       uint8 = 0x01
	ObjTemperature   uint8 = 0x02 // sint16, 0.01 °C
	ObjHumidity      uint8 = 0x03 // uint16, 0.01 %
	ObjHumidity8     uint8 = 0x2E // uint8, 1 %
	ObjButton        uint8 = 0x3A
	ObjTemperature01 uint8 = 0x45 // sint16, 0.1 °C
)

// objectSize returns the value length for a known object id.
func objectSize(id uint8) (int, bool) {
	switch id {
	case ObjPacketID, ObjBattery, ObjHumidity8, ObjButton:
		return 1, true
	case ObjTemperature, ObjHumidity, ObjTemperature01:
		return 2, true
	default:
		return 0, false
	}
}
