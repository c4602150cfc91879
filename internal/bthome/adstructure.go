package bthome

import "encoding/binary"

// Advertisement is a legacy advertising payload buffer.
type Advertisement [MaxAdvertisementLen]byte

// BuildAdvertisement lays out a flags element followed by a service data
// element carrying svc (UUID + BTHome payload, as produced by Encode).
// It returns the number of bytes used, or 0 if svc does not fit.
func BuildAdvertisement(out *Advertisement, flags uint8, svc []byte) int {
	const flagsLen = 3
	if flagsLen+2+len(svc) > MaxAdvertisementLen {
		return 0
	}

	out[0] = 2
	out[1] = ADTypeFlags
	out[2] = flags

	out[3] = byte(1 + len(svc))
	out[4] = ADTypeServiceData16
	n := copy(out[5:], svc)
	return 5 + n
}

// FindServiceData walks length-prefixed AD elements and returns the BTHome
// payload (starting at the info byte) of the first service data element
// with the BTHome UUID. The walk stops at a zero length or at a length that
// runs past the end of elements.
func FindServiceData(elements []byte) ([]byte, bool) {
	p := elements
	for len(p) >= 2 {
		fieldLen := int(p[0])
		if fieldLen == 0 || fieldLen+1 > len(p) {
			return nil, false
		}

		if p[1] == ADTypeServiceData16 && fieldLen >= 3 {
			if binary.LittleEndian.Uint16(p[2:4]) == ServiceUUID {
				return p[4 : fieldLen+1], true
			}
		}

		p = p[fieldLen+1:]
	}
	return nil, false
}
