// Package dutycycle decides when the relay advertises its own reading and
// when it listens for a remote BTHome broadcaster.
//
// Both sides are driven by a single cooperative loop: Advertiser.Tick and
// Listener.Poll compare deadlines on a wrapping millisecond clock and never
// sleep.
package dutycycle

// AdvertisementType selects the legacy advertising PDU.
type AdvertisementType int

const (
	AdvNonConnectableScannable AdvertisementType = iota
	AdvNonConnectable
	AdvConnectable
)

func (t AdvertisementType) String() string {
	switch t {
	case AdvNonConnectableScannable:
		return "scan_ind"
	case AdvNonConnectable:
		return "nonconn_ind"
	case AdvConnectable:
		return "adv_ind"
	default:
		return "unknown"
	}
}

// Broadcaster is the advertising side of the radio.
// Start must return without waiting for the advertisement to finish.
type Broadcaster interface {
	SetAdvertisementType(t AdvertisementType)
	SetInterval(minMs, maxMs uint16)
	SetBurstTimeout(seconds uint16)
	ClearPayload()
	AddFlags(flags uint8) error
	AddServiceData(adType uint8, data []byte) error
	Start(seconds uint16) error
	Stop() error
}

// Frame is one received advertisement.
type Frame struct {
	Elements []byte // raw AD structures
	Address  string
	RSSI     int16
}

// Scanner is the observing side of the radio. The callback registered with
// OnFrame may run on a goroutine owned by the radio.
type Scanner interface {
	OnFrame(fn func(Frame))
	SetPassive(passive bool)
	SetInterval(intervalMs, windowMs uint16)
	Start() error
	Resume()
	Stop() error
}
