// Package stub is an in-memory radio for dry runs and host tests. An Air
// connects Broadcasters to Scanners: every started burst is delivered once
// to each scanning Scanner.
package stub

import (
	"errors"
	"sync"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

var ErrPayloadTooLarge = errors.New("stub: advertisement payload too large")

// Air is the shared medium.
type Air struct {
	mu       sync.Mutex
	scanners map[*Scanner]struct{}
}

func NewAir() *Air {
	return &Air{scanners: make(map[*Scanner]struct{})}
}

func (a *Air) deliver(f dutycycle.Frame) {
	a.mu.Lock()
	targets := make([]*Scanner, 0, len(a.scanners))
	for s := range a.scanners {
		targets = append(targets, s)
	}
	a.mu.Unlock()

	for _, s := range targets {
		s.InjectFrame(f)
	}
}

func (a *Air) attach(s *Scanner) {
	a.mu.Lock()
	a.scanners[s] = struct{}{}
	a.mu.Unlock()
}

func (a *Air) detach(s *Scanner) {
	a.mu.Lock()
	delete(a.scanners, s)
	a.mu.Unlock()
}

// Broadcaster records bursts and puts them on the Air.
type Broadcaster struct {
	air     *Air
	address string
	rssi    int16

	mu       sync.Mutex
	advType  dutycycle.AdvertisementType
	interval [2]uint16
	timeout  uint16
	adv      bthome.Advertisement
	n        int
	running  bool
	txBuf    ringBuffer
}

var _ dutycycle.Broadcaster = (*Broadcaster)(nil)

func NewBroadcaster(air *Air, address string) *Broadcaster {
	return &Broadcaster{air: air, address: address, rssi: -50}
}

func (b *Broadcaster) SetAdvertisementType(t dutycycle.AdvertisementType) {
	b.mu.Lock()
	b.advType = t
	b.mu.Unlock()
}

func (b *Broadcaster) SetInterval(minMs, maxMs uint16) {
	b.mu.Lock()
	b.interval = [2]uint16{minMs, maxMs}
	b.mu.Unlock()
}

func (b *Broadcaster) SetBurstTimeout(seconds uint16) {
	b.mu.Lock()
	b.timeout = seconds
	b.mu.Unlock()
}

func (b *Broadcaster) ClearPayload() {
	b.mu.Lock()
	b.n = 0
	b.mu.Unlock()
}

func (b *Broadcaster) AddFlags(flags uint8) error {
	return b.appendElement(bthome.ADTypeFlags, []byte{flags})
}

func (b *Broadcaster) AddServiceData(adType uint8, data []byte) error {
	return b.appendElement(adType, data)
}

func (b *Broadcaster) appendElement(adType uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.n+2+len(data) > len(b.adv) {
		return ErrPayloadTooLarge
	}
	b.adv[b.n] = byte(len(data) + 1)
	b.adv[b.n+1] = adType
	copy(b.adv[b.n+2:], data)
	b.n += 2 + len(data)
	return nil
}

func (b *Broadcaster) Start(uint16) error {
	b.mu.Lock()
	frame := make([]byte, b.n)
	copy(frame, b.adv[:b.n])
	b.txBuf.push(frame)
	b.running = true
	b.mu.Unlock()

	if b.air != nil {
		b.air.deliver(dutycycle.Frame{Elements: frame, Address: b.address, RSSI: b.rssi})
	}
	return nil
}

func (b *Broadcaster) Stop() error {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	return nil
}

// Running reports whether a burst is on air.
func (b *Broadcaster) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// TxLog returns copies of the most recent bursts, oldest first.
func (b *Broadcaster) TxLog() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txBuf.snapshot()
}

// Scanner hands injected frames to its callback while started.
type Scanner struct {
	air *Air

	mu       sync.Mutex
	fn       func(dutycycle.Frame)
	passive  bool
	interval [2]uint16
	scanning bool
	resumes  int
}

var _ dutycycle.Scanner = (*Scanner)(nil)

func NewScanner(air *Air) *Scanner {
	return &Scanner{air: air}
}

func (s *Scanner) OnFrame(fn func(dutycycle.Frame)) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func (s *Scanner) SetPassive(passive bool) {
	s.mu.Lock()
	s.passive = passive
	s.mu.Unlock()
}

func (s *Scanner) SetInterval(intervalMs, windowMs uint16) {
	s.mu.Lock()
	s.interval = [2]uint16{intervalMs, windowMs}
	s.mu.Unlock()
}

func (s *Scanner) Start() error {
	s.mu.Lock()
	s.scanning = true
	s.mu.Unlock()
	if s.air != nil {
		s.air.attach(s)
	}
	return nil
}

func (s *Scanner) Stop() error {
	if s.air != nil {
		s.air.detach(s)
	}
	s.mu.Lock()
	s.scanning = false
	s.mu.Unlock()
	return nil
}

func (s *Scanner) Resume() {
	s.mu.Lock()
	s.resumes++
	s.mu.Unlock()
}

// Scanning reports whether the scanner is started.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// InjectFrame delivers f to the callback if the scanner is started. It
// reports whether the frame was delivered.
func (s *Scanner) InjectFrame(f dutycycle.Frame) bool {
	s.mu.Lock()
	fn := s.fn
	ok := s.scanning && fn != nil
	s.mu.Unlock()
	if !ok {
		return false
	}
	fn(f)
	return true
}
