package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/config"
	"cloudpico-bthome/internal/dutycycle"
	"cloudpico-bthome/internal/mqtt"
	"cloudpico-bthome/internal/report"
	"cloudpico-bthome/internal/rtc"
	"cloudpico-bthome/internal/sensor"
	"cloudpico-bthome/internal/store"
	"cloudpico-bthome/internal/types"
)

// staleAfter is how many update periods may pass without an outdoor frame
// before the station is reported unhealthy.
const staleAfter = 3

// Publisher sends telemetry upstream.
type Publisher interface {
	PublishTelemetry(types.Telemetry) error
	PublishStationHealth(types.StationHealth) error
}

// Deps are the collaborators a Relay drives. Publisher, Repo and Status may
// be nil.
type Deps struct {
	Broadcaster dutycycle.Broadcaster
	Scanner     dutycycle.Scanner
	Sensor      sensor.Source
	Clock       dutycycle.Clock
	Rand        dutycycle.Rand
	RTC         *rtc.Clock
	Publisher   Publisher
	Repo        store.Repository
	Status      io.Writer
}

// Relay runs one update cycle per UpdatePeriod: read the local sensor,
// optionally open an outdoor scan window, report, and keep the advertiser
// ticking in between.
type Relay struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger

	adv *dutycycle.Advertiser
	lis *dutycycle.Listener

	indoor         bthome.Reading
	started        bool
	nextUpdate     uint32
	bursts         uint64
	acceptedAtOpen uint64
	cycles         uint64
}

func NewRelay(cfg config.Config, deps Deps, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Sensor == nil {
		deps.Sensor = sensor.None{}
	}
	if deps.RTC == nil {
		deps.RTC = rtc.NewClock()
	}

	r := &Relay{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		indoor: bthome.InvalidReading(),
	}

	if cfg.Advertise && deps.Broadcaster != nil {
		r.adv = dutycycle.NewAdvertiser(deps.Broadcaster, deps.Clock, deps.Rand, advertiserConfig(cfg), logger)
		r.adv.Begin()
	}
	if cfg.OutdoorScan && deps.Scanner != nil {
		lcfg := dutycycle.DefaultListenerConfig()
		lcfg.Allow = cfg.OutdoorMACs
		r.lis = dutycycle.NewListener(deps.Scanner, deps.Clock, lcfg, logger)
		r.lis.Begin()
		r.lis.OnUpdate(func(rem dutycycle.Remote) {
			logger.Debug("bthome: outdoor frame",
				"addr", rem.Address,
				"rssi", rem.RSSI,
				"packet_id", rem.PacketID,
				"encrypted", rem.Encrypted,
			)
		})
	}
	return r
}

func advertiserConfig(cfg config.Config) dutycycle.AdvertiserConfig {
	return dutycycle.AdvertiserConfig{
		BurstSeconds:     uint16((cfg.AdvBurst + time.Second - 1) / time.Second),
		IntervalMinMs:    cfg.AdvIntervalMinMs,
		IntervalMaxMs:    cfg.AdvIntervalMaxMs,
		JitterMinMs:      uint32(cfg.AdvJitterMin.Milliseconds()),
		JitterMaxMs:      uint32(cfg.AdvJitterMax.Milliseconds()),
		DeltaTemperature: cfg.SendDeltaTempC,
		DeltaHumidity:    cfg.SendDeltaRHPct,
		HeartbeatMs:      uint32(cfg.Heartbeat.Milliseconds()),
	}
}

// Run ticks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		r.Step(ctx)
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Step runs one cooperative tick.
func (r *Relay) Step(ctx context.Context) {
	now := r.deps.Clock.NowMs()

	if !r.started || dutycycle.Reached(now, r.nextUpdate) {
		r.beginCycle(now)
	}

	if r.adv != nil {
		r.adv.Tick(r.indoor)
		if b := r.adv.Bursts(); b != r.bursts {
			r.bursts = b
			r.publishLocal()
		}
	}

	if r.lis != nil && r.lis.Poll() {
		r.endWindow(ctx)
	}
}

func (r *Relay) beginCycle(now uint32) {
	r.started = true
	r.nextUpdate = now + uint32(r.cfg.UpdatePeriod.Milliseconds())
	r.cycles++
	r.indoor = r.deps.Sensor.Read()

	if r.lis == nil {
		r.report(now)
		return
	}

	r.acceptedAtOpen = r.lis.Accepted()
	if err := r.lis.StartWindow(r.cfg.ScanWindow); err != nil {
		r.logger.Warn("bthome: scan window not opened", "error", err)
		r.report(now)
	}
}

func (r *Relay) endWindow(ctx context.Context) {
	now := r.deps.Clock.NowMs()
	rem := r.lis.Remote()

	if r.lis.Accepted() > r.acceptedAtOpen {
		t := types.FromRemote(r.cfg.OutdoorStationID, rem, r.wallNow())
		r.publish(t)
		if r.deps.Repo != nil {
			if err := r.deps.Repo.InsertTelemetry(ctx, t); err != nil {
				r.logger.Warn("store outdoor telemetry", "error", err)
			}
		}
	}

	if r.deps.Publisher != nil {
		health := types.StationHealth{StationID: r.cfg.OutdoorStationID}
		if rem.Valid {
			age := time.Duration(rem.AgeMs(now)) * time.Millisecond
			health.LastSeen = r.wallNow().Add(-age)
			health.Healthy = age < staleAfter*r.cfg.UpdatePeriod
		}
		if err := r.deps.Publisher.PublishStationHealth(health); err != nil {
			r.logPublishError(err)
		}
	}

	r.report(now)
}

func (r *Relay) publishLocal() {
	last, ok := r.adv.LastSent()
	if !ok {
		return
	}
	r.publish(types.FromReading(r.cfg.StationID, last, r.adv.NextPacketID()-1, r.wallNow()))
}

func (r *Relay) publish(t types.Telemetry) {
	if r.deps.Publisher == nil {
		return
	}
	if err := r.deps.Publisher.PublishTelemetry(t); err != nil {
		r.logPublishError(err)
	}
}

func (r *Relay) logPublishError(err error) {
	if errors.Is(err, mqtt.ErrNotConnected) {
		r.logger.Debug("telemetry not published", "error", err)
		return
	}
	r.logger.Warn("telemetry not published", "error", err)
}

func (r *Relay) report(now uint32) {
	if !r.cfg.StatusReport || r.deps.Status == nil {
		return
	}

	s := report.Snapshot{Indoor: r.indoor, NowMs: now}
	s.Time, s.TimeOK = r.deps.RTC.Now()
	if r.lis != nil {
		s.Outdoor = r.lis.Remote()
	}
	if err := report.Write(r.deps.Status, s); err != nil {
		r.logger.Warn("status report", "error", err)
	}
}

// wallNow prefers the line-protocol clock once it has been set.
func (r *Relay) wallNow() time.Time {
	if t, ok := r.deps.RTC.Now(); ok {
		return t
	}
	return time.Now().UTC()
}

func (r *Relay) shutdown() {
	if r.lis != nil && r.lis.Scanning() {
		if err := r.deps.Scanner.Stop(); err != nil {
			r.logger.Debug("scanner stop", "error", err)
		}
	}
	if r.adv != nil {
		if err := r.deps.Broadcaster.Stop(); err != nil {
			r.logger.Debug("broadcaster stop", "error", err)
		}
	}
	r.logger.Info("relay stopped", "cycles", r.cycles, "bursts", r.bursts)
}
