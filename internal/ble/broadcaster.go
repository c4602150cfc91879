package ble

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

// Broadcaster drives one advertisement set. The host stack builds the flags
// element itself, so AddFlags only validates.
type Broadcaster struct {
	adv    *bluetooth.Advertisement
	logger *slog.Logger

	mu           sync.Mutex
	advType      bluetooth.AdvertisingType
	interval     time.Duration
	burstTimeout uint16
	serviceData  []bluetooth.ServiceDataElement
	size         int
	timer        *time.Timer
	running      bool
	gen          uint64
}

var _ dutycycle.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(adapter *bluetooth.Adapter, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		adv:     adapter.DefaultAdvertisement(),
		logger:  logger,
		advType: bluetooth.AdvertisingTypeScanInd,
	}
}

func advertisingType(t dutycycle.AdvertisementType) bluetooth.AdvertisingType {
	switch t {
	case dutycycle.AdvNonConnectable:
		return bluetooth.AdvertisingTypeNonConnInd
	case dutycycle.AdvConnectable:
		return bluetooth.AdvertisingTypeInd
	default:
		return bluetooth.AdvertisingTypeScanInd
	}
}

func (b *Broadcaster) SetAdvertisementType(t dutycycle.AdvertisementType) {
	b.mu.Lock()
	b.advType = advertisingType(t)
	b.mu.Unlock()
}

// SetInterval uses minMs; the host stack takes a single interval.
func (b *Broadcaster) SetInterval(minMs, _ uint16) {
	b.mu.Lock()
	b.interval = time.Duration(minMs) * time.Millisecond
	b.mu.Unlock()
}

func (b *Broadcaster) SetBurstTimeout(seconds uint16) {
	b.mu.Lock()
	b.burstTimeout = seconds
	b.mu.Unlock()
}

func (b *Broadcaster) ClearPayload() {
	b.mu.Lock()
	b.serviceData = nil
	b.size = 0
	b.mu.Unlock()
}

func (b *Broadcaster) AddFlags(flags uint8) error {
	if flags&bthome.FlagsGeneralDiscoverable != bthome.FlagsGeneralDiscoverable {
		return fmt.Errorf("ble: flags 0x%02X: host stack always advertises general discoverable", flags)
	}
	b.mu.Lock()
	b.size += 3
	b.mu.Unlock()
	return nil
}

// AddServiceData takes a 16-bit UUID service data value (UUID little endian
// first) as produced by bthome.Encode.
func (b *Broadcaster) AddServiceData(adType uint8, data []byte) error {
	el, err := serviceDataElement(adType, data)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size+len(data)+2 > bthome.MaxAdvertisementLen {
		return ErrPayloadTooLarge
	}
	b.serviceData = append(b.serviceData, el)
	b.size += len(data) + 2
	return nil
}

func serviceDataElement(adType uint8, data []byte) (bluetooth.ServiceDataElement, error) {
	if adType != bthome.ADTypeServiceData16 {
		return bluetooth.ServiceDataElement{}, fmt.Errorf("%w: 0x%02X", ErrUnsupportedAD, adType)
	}
	if len(data) < 2 {
		return bluetooth.ServiceDataElement{}, fmt.Errorf("ble: service data of %d bytes has no UUID", len(data))
	}
	return bluetooth.ServiceDataElement{
		UUID: bluetooth.New16BitUUID(binary.LittleEndian.Uint16(data)),
		Data: append([]byte(nil), data[2:]...),
	}, nil
}

// Start configures and starts advertising. A non-zero seconds stops the
// advertisement on its own after that long.
func (b *Broadcaster) Start(seconds uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := bluetooth.AdvertisementOptions{
		AdvertisementType: b.advType,
		Interval:          bluetooth.NewDuration(b.interval),
		ServiceData:       b.serviceData,
	}
	if err := b.adv.Configure(opts); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := b.adv.Start(); err != nil {
		_ = b.adv.Stop()
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	b.running = true
	b.gen++

	if seconds == 0 {
		seconds = b.burstTimeout
	}
	if seconds > 0 {
		gen := b.gen
		b.timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() { b.expire(gen) })
	}
	return nil
}

// expire stops the advertisement started as generation gen, unless it was
// already stopped or replaced.
func (b *Broadcaster) expire(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen || !b.running {
		return
	}
	b.timer = nil
	b.running = false
	if err := b.adv.Stop(); err != nil {
		b.logger.Debug("ble: burst timeout stop", "error", err)
	}
}

func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if !b.running {
		return nil
	}
	b.running = false
	if err := b.adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertisement: %w", err)
	}
	return nil
}
