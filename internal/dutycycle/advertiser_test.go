package dutycycle

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"cloudpico-bthome/internal/bthome"
)

func testConfig() AdvertiserConfig {
	return AdvertiserConfig{
		BurstSeconds:     1,
		IntervalMinMs:    220,
		IntervalMaxMs:    280,
		JitterMinMs:      0,
		JitterMaxMs:      0,
		DeltaTemperature: 0.2,
		DeltaHumidity:    1.0,
		HeartbeatMs:      10_000,
	}
}

func newTestAdvertiser(cfg AdvertiserConfig, rng Rand) (*Advertiser, *recordingBroadcaster, *fakeClock) {
	radio := &recordingBroadcaster{}
	clock := &fakeClock{}
	if rng == nil {
		rng = &scriptRand{}
	}
	return NewAdvertiser(radio, clock, rng, cfg, discard), radio, clock
}

// completeBurst ticks until the running burst ends.
func completeBurst(t *testing.T, a *Advertiser, clock *fakeClock, r bthome.Reading) {
	t.Helper()
	for i := 0; i < 100 && a.State() != StateIdle; i++ {
		clock.advance(100)
		a.Tick(r)
	}
	if a.State() != StateIdle {
		t.Fatalf("burst did not finish, state %v", a.State())
	}
}

func TestAdvertiser_Begin(t *testing.T) {
	a, radio, _ := newTestAdvertiser(testConfig(), nil)
	a.Begin()

	if radio.advType != AdvNonConnectableScannable {
		t.Errorf("advertisement type = %v, want %v", radio.advType, AdvNonConnectableScannable)
	}
	if len(radio.intervals) != 1 || radio.intervals[0] != [2]uint16{220, 220} {
		t.Errorf("intervals = %v, want [[220 220]]", radio.intervals)
	}
	if radio.burstTimeout != 1 {
		t.Errorf("burst timeout = %d, want 1", radio.burstTimeout)
	}
}

func TestAdvertiser_StateMachine(t *testing.T) {
	cfg := testConfig()
	cfg.JitterMinMs, cfg.JitterMaxMs = 50, 150
	a, radio, clock := newTestAdvertiser(cfg, &scriptRand{vals: []int{0, 0}})
	r := reading(21.34, 55.6)

	if got := a.Tick(r); got != StateJitterWait {
		t.Fatalf("first tick state = %v, want %v", got, StateJitterWait)
	}

	clock.advance(49)
	if got := a.Tick(r); got != StateJitterWait {
		t.Fatalf("state before jitter deadline = %v, want %v", got, StateJitterWait)
	}
	if len(radio.starts) != 0 {
		t.Fatalf("burst started before jitter elapsed")
	}

	clock.advance(1)
	if got := a.Tick(r); got != StateBurstActive {
		t.Fatalf("state at jitter deadline = %v, want %v", got, StateBurstActive)
	}

	want := []byte{0xD2, 0xFC, 0x40, 0x00, 0x00, 0x02, 0x56, 0x08, 0x03, 0xB8, 0x15}
	if len(radio.payloads) != 1 || !bytes.Equal(radio.payloads[0], want) {
		t.Fatalf("payloads = % X, want % X", radio.payloads, want)
	}
	if radio.flags[0] != 0x06 || radio.adTypes[0] != 0x16 {
		t.Errorf("flags=0x%02X adType=0x%02X, want 0x06/0x16", radio.flags[0], radio.adTypes[0])
	}
	if radio.starts[0] != 1 {
		t.Errorf("Start(%d), want Start(1)", radio.starts[0])
	}
	if last := radio.intervals[len(radio.intervals)-1]; last != [2]uint16{220, 220} {
		t.Errorf("burst interval = %v, want [220 220]", last)
	}

	clock.advance(999)
	if got := a.Tick(r); got != StateBurstActive {
		t.Fatalf("state before burst end = %v, want %v", got, StateBurstActive)
	}
	clock.advance(1)
	if got := a.Tick(r); got != StateIdle {
		t.Fatalf("state at burst end = %v, want %v", got, StateIdle)
	}
	if a.Bursts() != 1 {
		t.Errorf("Bursts() = %d, want 1", a.Bursts())
	}
	if last, ok := a.LastSent(); !ok || last.Temperature != 21.34 {
		t.Errorf("LastSent() = %+v, %v", last, ok)
	}
	if a.NextPacketID() != 1 {
		t.Errorf("NextPacketID() = %d, want 1", a.NextPacketID())
	}
}

func TestAdvertiser_HeartbeatFixedSteps(t *testing.T) {
	a, radio, clock := newTestAdvertiser(testConfig(), nil)
	r := reading(20, 50)

	var sentAt []uint32
	for clock.now <= 100_000 {
		before := len(radio.starts)
		a.Tick(r)
		if len(radio.starts) > before {
			sentAt = append(sentAt, clock.now)
		}
		clock.advance(100)
	}

	if len(sentAt) != 11 {
		t.Fatalf("sent %d times in 100s, want 11 (%v)", len(sentAt), sentAt)
	}
	for i, at := range sentAt {
		if at != uint32(i)*10_000 {
			t.Errorf("send %d at %d ms, want %d", i, at, i*10_000)
		}
	}
}

func TestAdvertiser_HeartbeatArbitrarySteps(t *testing.T) {
	const heartbeat = 10_000
	steps := []uint32{1, 730, 50, 2999, 10, 1200, 333, 4000, 7}
	const maxStep = 4000

	a, radio, clock := newTestAdvertiser(testConfig(), nil)
	r := reading(20, 50)

	var sentAt []uint32
	for i := 0; clock.now < 500_000; i++ {
		before := len(radio.starts)
		a.Tick(r)
		if len(radio.starts) > before {
			sentAt = append(sentAt, clock.now)
		}
		clock.advance(steps[i%len(steps)])
	}

	if len(sentAt) < 2 {
		t.Fatalf("only %d sends", len(sentAt))
	}
	for i := 1; i < len(sentAt); i++ {
		gap := sentAt[i] - sentAt[i-1]
		if gap < heartbeat {
			t.Errorf("send %d came %d ms after the previous one, before the heartbeat", i, gap)
		}
		if gap >= heartbeat+maxStep {
			t.Errorf("send %d came %d ms after the previous one, more than one step late", i, gap)
		}
	}
}

func TestAdvertiser_DeltaGating(t *testing.T) {
	tests := []struct {
		name string
		next bthome.Reading
		want bool
	}{
		{name: "temperature at threshold", next: reading(21.2, 50), want: true},
		{name: "temperature below threshold", next: reading(21.19, 50), want: false},
		{name: "temperature just below threshold", next: reading(21.0+(0.2-5e-7), 50), want: false},
		{name: "temperature a nanodegree below threshold", next: reading(21.0+(0.2-1e-9), 50), want: false},
		{name: "humidity just below threshold", next: reading(21.0, 50+(1.0-1e-8)), want: false},
		{name: "temperature drop at threshold", next: reading(20.8, 50), want: true},
		{name: "humidity at threshold", next: reading(21.0, 51.0), want: true},
		{name: "humidity below threshold", next: reading(21.0, 50.99), want: false},
		{name: "unchanged", next: reading(21.0, 50), want: false},
		{name: "becomes invalid", next: bthome.InvalidReading(), want: true},
		{name: "humidity disappears", next: reading(21.0, math.NaN()), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, radio, clock := newTestAdvertiser(testConfig(), nil)
			first := reading(21.0, 50)
			a.Tick(first)
			completeBurst(t, a, clock, first)

			clock.advance(100)
			a.Tick(tt.next)
			if got := len(radio.starts) == 2; got != tt.want {
				t.Errorf("sent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAdvertiser_InvalidReadingSendsPacketIDOnly(t *testing.T) {
	a, radio, clock := newTestAdvertiser(testConfig(), nil)
	r := bthome.InvalidReading()

	a.Tick(r)
	completeBurst(t, a, clock, r)
	clock.advance(10_000)
	a.Tick(r)

	if len(radio.payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(radio.payloads))
	}
	for i, p := range radio.payloads {
		want := []byte{0xD2, 0xFC, 0x40, 0x00, byte(i)}
		if !bytes.Equal(p, want) {
			t.Errorf("payload %d = % X, want % X", i, p, want)
		}
	}
}

func TestAdvertiser_IntervalSelection(t *testing.T) {
	t.Run("collapses when min equals max", func(t *testing.T) {
		cfg := testConfig()
		cfg.IntervalMinMs, cfg.IntervalMaxMs = 250, 250
		rng := &scriptRand{vals: []int{17}}
		a, radio, _ := newTestAdvertiser(cfg, rng)

		a.Tick(reading(20, 50))
		if got := radio.intervals[len(radio.intervals)-1]; got != [2]uint16{250, 250} {
			t.Errorf("interval = %v, want [250 250]", got)
		}
		if rng.calls != 0 {
			t.Errorf("random source used %d times, want 0", rng.calls)
		}
	})

	t.Run("upper bound inclusive", func(t *testing.T) {
		a, radio, _ := newTestAdvertiser(testConfig(), &scriptRand{vals: []int{1 << 30}})
		a.Tick(reading(20, 50))
		if got := radio.intervals[len(radio.intervals)-1]; got != [2]uint16{280, 280} {
			t.Errorf("interval = %v, want [280 280]", got)
		}
	})

	t.Run("swapped bounds", func(t *testing.T) {
		cfg := testConfig()
		cfg.IntervalMinMs, cfg.IntervalMaxMs = 280, 220
		a, radio, _ := newTestAdvertiser(cfg, &scriptRand{vals: []int{0}})
		a.Tick(reading(20, 50))
		if got := radio.intervals[len(radio.intervals)-1]; got != [2]uint16{220, 220} {
			t.Errorf("interval = %v, want [220 220]", got)
		}
	})
}

func TestAdvertiser_JitterRange(t *testing.T) {
	cfg := testConfig()
	cfg.JitterMinMs, cfg.JitterMaxMs = 50, 150
	a, radio, clock := newTestAdvertiser(cfg, &scriptRand{vals: []int{1 << 30}})
	r := reading(20, 50)

	a.Tick(r)
	clock.advance(149)
	a.Tick(r)
	if len(radio.starts) != 0 {
		t.Fatal("burst started before the maximum jitter elapsed")
	}
	clock.advance(1)
	if a.Tick(r) != StateBurstActive {
		t.Fatalf("state = %v, want %v", a.State(), StateBurstActive)
	}
}

func TestAdvertiser_PacketIDWraps(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatMs = 0
	cfg.BurstSeconds = 0
	a, radio, clock := newTestAdvertiser(cfg, nil)
	r := reading(20, 50)

	for len(radio.payloads) < 258 {
		a.Tick(r)
		clock.advance(10)
	}

	if got := radio.payloads[255][4]; got != 255 {
		t.Errorf("burst 255 packet id = %d, want 255", got)
	}
	if got := radio.payloads[256][4]; got != 0 {
		t.Errorf("burst 256 packet id = %d, want 0", got)
	}
	if got := radio.payloads[257][4]; got != 1 {
		t.Errorf("burst 257 packet id = %d, want 1", got)
	}
}

func TestAdvertiser_StartFailureReturnsToIdle(t *testing.T) {
	a, radio, clock := newTestAdvertiser(testConfig(), nil)
	radio.startErr = errors.New("radio busy")
	r := reading(20, 50)

	if got := a.Tick(r); got != StateIdle {
		t.Fatalf("state = %v, want %v", got, StateIdle)
	}
	if _, ok := a.LastSent(); ok {
		t.Fatal("failed burst recorded as sent")
	}

	radio.startErr = nil
	clock.advance(100)
	if got := a.Tick(r); got != StateBurstActive {
		t.Fatalf("retry state = %v, want %v", got, StateBurstActive)
	}
}

func TestAdvertiser_ClockWraparound(t *testing.T) {
	cfg := testConfig()
	cfg.JitterMinMs, cfg.JitterMaxMs = 100, 100
	a, radio, clock := newTestAdvertiser(cfg, nil)
	clock.now = 0xFFFFFFC0 // 64 ms before wrap
	r := reading(20, 50)

	a.Tick(r)
	clock.advance(99)
	a.Tick(r)
	if len(radio.starts) != 0 {
		t.Fatal("burst started early across clock wrap")
	}
	clock.advance(1)
	if a.Tick(r) != StateBurstActive {
		t.Fatalf("state = %v, want %v", a.State(), StateBurstActive)
	}

	clock.advance(999)
	if a.Tick(r) != StateBurstActive {
		t.Fatal("burst ended early after clock wrap")
	}
	clock.advance(1)
	if a.Tick(r) != StateIdle {
		t.Fatal("burst did not end at its deadline after clock wrap")
	}
}
