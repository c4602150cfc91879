package dutycycle

import (
	"fmt"
	"log/slog"
	"math"

	"cloudpico-bthome/internal/bthome"
)

// TxState is the transmit state machine position.
type TxState int

const (
	StateIdle TxState = iota
	StateJitterWait
	StateBurstActive
)

func (s TxState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJitterWait:
		return "jitter_wait"
	case StateBurstActive:
		return "burst_active"
	default:
		return "unknown"
	}
}

// deltaTolerance is relative to the threshold: a change equal to the
// threshold counts as reaching it despite float rounding, anything smaller
// does not.
const deltaTolerance = 1e-9

// AdvertiserConfig controls when and how bursts are sent.
type AdvertiserConfig struct {
	// BurstSeconds is how long each burst advertises.
	BurstSeconds uint16
	// IntervalMinMs..IntervalMaxMs is the range the per-burst advertising
	// interval is drawn from.
	IntervalMinMs uint16
	IntervalMaxMs uint16
	// JitterMinMs..JitterMaxMs is the random delay between deciding to send
	// and starting the burst.
	JitterMinMs uint32
	JitterMaxMs uint32

	DeltaTemperature float64 // °C
	DeltaHumidity    float64 // %RH
	HeartbeatMs      uint32
}

// DefaultAdvertiserConfig targets roughly four packets per one second burst,
// a re-send on 0.2 °C / 1 %RH changes and a heartbeat every 30 minutes.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		BurstSeconds:     1,
		IntervalMinMs:    220,
		IntervalMaxMs:    280,
		JitterMinMs:      50,
		JitterMaxMs:      150,
		DeltaTemperature: 0.2,
		DeltaHumidity:    1.0,
		HeartbeatMs:      30 * 60 * 1000,
	}
}

// Advertiser runs the Idle -> JitterWait -> BurstActive -> Idle machine that
// turns local readings into BTHome bursts.
type Advertiser struct {
	cfg    AdvertiserConfig
	radio  Broadcaster
	clock  Clock
	rng    Rand
	logger *slog.Logger

	state       TxState
	seq         uint8
	triggeredAt uint32
	jitterUntil uint32
	burstUntil  uint32
	inFlight    bthome.Reading
	buf         bthome.ServiceData

	hasSent    bool
	lastSent   bthome.Reading
	lastSentAt uint32
	bursts     uint64
}

func NewAdvertiser(radio Broadcaster, clock Clock, rng Rand, cfg AdvertiserConfig, logger *slog.Logger) *Advertiser {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IntervalMinMs > cfg.IntervalMaxMs {
		cfg.IntervalMinMs, cfg.IntervalMaxMs = cfg.IntervalMaxMs, cfg.IntervalMinMs
	}
	if cfg.JitterMinMs > cfg.JitterMaxMs {
		cfg.JitterMinMs, cfg.JitterMaxMs = cfg.JitterMaxMs, cfg.JitterMinMs
	}
	return &Advertiser{
		cfg:    cfg,
		radio:  radio,
		clock:  clock,
		rng:    rng,
		logger: logger,
	}
}

// Begin applies the static advertising parameters. The burst timeout bounds
// the radio's own fast-advertising mode to the burst length so a burst stops
// even if Stop is never reached.
func (a *Advertiser) Begin() {
	a.radio.SetAdvertisementType(AdvNonConnectableScannable)
	a.radio.SetInterval(a.cfg.IntervalMinMs, a.cfg.IntervalMinMs)
	a.radio.SetBurstTimeout(a.cfg.BurstSeconds)
}

// Tick advances the machine with the current local reading and returns the
// resulting state.
func (a *Advertiser) Tick(r bthome.Reading) TxState {
	now := a.clock.NowMs()

	switch a.state {
	case StateIdle:
		if !a.due(r, now) {
			break
		}
		a.triggeredAt = now
		jitter := between(a.rng, a.cfg.JitterMinMs, a.cfg.JitterMaxMs)
		if jitter == 0 {
			a.startBurst(r, now)
			break
		}
		a.jitterUntil = now + jitter
		a.state = StateJitterWait

	case StateJitterWait:
		if Reached(now, a.jitterUntil) {
			a.startBurst(r, now)
		}

	case StateBurstActive:
		if Reached(now, a.burstUntil) {
			a.finishBurst()
		}
	}

	return a.state
}

// due reports whether r should be sent: first send, heartbeat elapsed, or a
// change large enough relative to the last sent snapshot.
func (a *Advertiser) due(r bthome.Reading, now uint32) bool {
	if !a.hasSent {
		return true
	}
	if now-a.lastSentAt >= a.cfg.HeartbeatMs {
		return true
	}
	return changed(a.lastSent, r, a.cfg.DeltaTemperature, a.cfg.DeltaHumidity)
}

func changed(prev, cur bthome.Reading, dT, dRH float64) bool {
	if prev.Valid != cur.Valid {
		return true
	}
	if !cur.Valid {
		return false
	}
	return exceeds(prev.Temperature, cur.Temperature, dT) ||
		exceeds(prev.Humidity, cur.Humidity, dRH)
}

func exceeds(prev, cur, threshold float64) bool {
	prevOK := !math.IsNaN(prev) && !math.IsInf(prev, 0)
	curOK := !math.IsNaN(cur) && !math.IsInf(cur, 0)
	if prevOK != curOK {
		return true
	}
	if !curOK {
		return false
	}
	return math.Abs(cur-prev) >= threshold*(1-deltaTolerance)
}

func (a *Advertiser) startBurst(r bthome.Reading, now uint32) {
	seq := a.seq
	a.seq++

	n := bthome.Encode(&a.buf, r, seq)
	interval := uint16(between(a.rng, uint32(a.cfg.IntervalMinMs), uint32(a.cfg.IntervalMaxMs)))

	if err := a.load(a.buf[:n], interval); err != nil {
		a.logger.Warn("bthome: burst not started", "packet_id", seq, "error", err)
		a.state = StateIdle
		return
	}

	a.inFlight = r
	a.burstUntil = now + uint32(a.cfg.BurstSeconds)*1000
	a.state = StateBurstActive

	a.logger.Debug("bthome: burst started",
		"packet_id", seq,
		"valid", r.Valid,
		"interval_ms", interval,
		"burst_s", a.cfg.BurstSeconds,
		"data", fmt.Sprintf("% X", a.buf[:n]),
	)
}

func (a *Advertiser) load(svc []byte, intervalMs uint16) error {
	if err := a.radio.Stop(); err != nil {
		a.logger.Debug("bthome: stop before reload", "error", err)
	}
	a.radio.ClearPayload()
	if err := a.radio.AddFlags(bthome.FlagsGeneralDiscoverable); err != nil {
		return fmt.Errorf("add flags: %w", err)
	}
	if err := a.radio.AddServiceData(bthome.ADTypeServiceData16, svc); err != nil {
		return fmt.Errorf("add service data: %w", err)
	}
	a.radio.SetInterval(intervalMs, intervalMs)
	if err := a.radio.Start(a.cfg.BurstSeconds); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

func (a *Advertiser) finishBurst() {
	if err := a.radio.Stop(); err != nil {
		a.logger.Debug("bthome: stop after burst", "error", err)
	}
	a.lastSent = a.inFlight
	a.lastSentAt = a.triggeredAt
	a.hasSent = true
	a.bursts++
	a.state = StateIdle
}

// State returns the current machine state.
func (a *Advertiser) State() TxState { return a.state }

// NextPacketID returns the packet id the next burst will carry.
func (a *Advertiser) NextPacketID() uint8 { return a.seq }

// Bursts returns how many bursts completed.
func (a *Advertiser) Bursts() uint64 { return a.bursts }

// LastSent returns the snapshot of the last completed burst.
func (a *Advertiser) LastSent() (bthome.Reading, bool) { return a.lastSent, a.hasSent }
