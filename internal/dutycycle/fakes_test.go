package dutycycle

import (
	"io"
	"log/slog"
	"sync"

	"cloudpico-bthome/internal/bthome"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct{ now uint32 }

func (c *fakeClock) NowMs() uint32     { return c.now }
func (c *fakeClock) advance(ms uint32) { c.now += ms }

// scriptRand returns vals in order (clamped to n-1), repeating the last one.
type scriptRand struct {
	vals  []int
	calls int
}

func (r *scriptRand) IntN(n int) int {
	v := 0
	if len(r.vals) > 0 {
		idx := r.calls
		if idx >= len(r.vals) {
			idx = len(r.vals) - 1
		}
		v = r.vals[idx]
	}
	r.calls++
	if v > n-1 {
		v = n - 1
	}
	return v
}

type recordingBroadcaster struct {
	advType      AdvertisementType
	intervals    [][2]uint16
	burstTimeout uint16
	flags        []uint8
	payloads     [][]byte
	adTypes      []uint8
	starts       []uint16
	stops        int
	clears       int
	startErr     error
}

func (b *recordingBroadcaster) SetAdvertisementType(t AdvertisementType) { b.advType = t }
func (b *recordingBroadcaster) SetInterval(minMs, maxMs uint16) {
	b.intervals = append(b.intervals, [2]uint16{minMs, maxMs})
}
func (b *recordingBroadcaster) SetBurstTimeout(seconds uint16) { b.burstTimeout = seconds }
func (b *recordingBroadcaster) ClearPayload()                  { b.clears++ }
func (b *recordingBroadcaster) AddFlags(flags uint8) error {
	b.flags = append(b.flags, flags)
	return nil
}
func (b *recordingBroadcaster) AddServiceData(adType uint8, data []byte) error {
	b.adTypes = append(b.adTypes, adType)
	b.payloads = append(b.payloads, append([]byte(nil), data...))
	return nil
}
func (b *recordingBroadcaster) Start(seconds uint16) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.starts = append(b.starts, seconds)
	return nil
}
func (b *recordingBroadcaster) Stop() error {
	b.stops++
	return nil
}

type fakeScanner struct {
	mu       sync.Mutex
	fn       func(Frame)
	passive  bool
	interval [2]uint16
	starts   int
	stops    int
	resumes  int
}

func (s *fakeScanner) OnFrame(fn func(Frame)) { s.fn = fn }
func (s *fakeScanner) SetPassive(passive bool) { s.passive = passive }
func (s *fakeScanner) SetInterval(i, w uint16) { s.interval = [2]uint16{i, w} }
func (s *fakeScanner) Start() error            { s.starts++; return nil }
func (s *fakeScanner) Stop() error             { s.stops++; return nil }
func (s *fakeScanner) Resume()                 { s.mu.Lock(); s.resumes++; s.mu.Unlock() }

func bthomeFrame(addr string, r bthome.Reading, seq uint8) Frame {
	var svc bthome.ServiceData
	n := bthome.Encode(&svc, r, seq)
	var adv bthome.Advertisement
	m := bthome.BuildAdvertisement(&adv, bthome.FlagsGeneralDiscoverable, svc[:n])
	return Frame{Elements: append([]byte(nil), adv[:m]...), Address: addr, RSSI: -70}
}

func rawFrame(addr string, payload ...byte) Frame {
	el := append([]byte{byte(len(payload) + 3), 0x16, 0xD2, 0xFC}, payload...)
	return Frame{Elements: el, Address: addr, RSSI: -60}
}

func reading(t, rh float64) bthome.Reading {
	return bthome.Reading{Valid: true, Temperature: t, Humidity: rh}
}
