package dutycycle

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"cloudpico-bthome/internal/bthome"
)

const defaultQueueSize = 32

// ListenerConfig controls scan parameters and source filtering.
type ListenerConfig struct {
	// Allow lists accepted source addresses. Empty accepts every source.
	Allow []string

	ScanIntervalMs uint16
	ScanWindowMs   uint16

	// QueueSize bounds frames waiting between the radio callback and Poll.
	QueueSize int
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		ScanIntervalMs: 100,
		ScanWindowMs:   50,
		QueueSize:      defaultQueueSize,
	}
}

// Listener opens bounded scan windows and keeps the Remote record.
//
// The radio callback only queues frames; Poll applies them on the caller's
// goroutine, so the record has a single writer.
type Listener struct {
	scanner Scanner
	clock   Clock
	cfg     ListenerConfig
	logger  *slog.Logger

	allow    map[string]struct{}
	frames   chan Frame
	dropped  atomic.Uint64
	onUpdate func(Remote)

	scanning bool
	stopAt   uint32
	remote   Remote
	accepted uint64
}

func NewListener(scanner Scanner, clock Clock, cfg ListenerConfig, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	var allow map[string]struct{}
	if len(cfg.Allow) > 0 {
		allow = make(map[string]struct{}, len(cfg.Allow))
		for _, a := range cfg.Allow {
			allow[normalizeAddress(a)] = struct{}{}
		}
	}

	return &Listener{
		scanner: scanner,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		allow:   allow,
		frames:  make(chan Frame, cfg.QueueSize),
		remote:  emptyRemote(),
	}
}

// Begin registers the frame callback and sets passive scanning.
func (l *Listener) Begin() {
	l.scanner.OnFrame(l.enqueue)
	l.scanner.SetPassive(true)
	l.scanner.SetInterval(l.cfg.ScanIntervalMs, l.cfg.ScanWindowMs)
}

// OnUpdate sets a hook called from Poll after every accepted frame.
func (l *Listener) OnUpdate(fn func(Remote)) { l.onUpdate = fn }

// StartWindow starts scanning for d. It does nothing while a window is open.
func (l *Listener) StartWindow(d time.Duration) error {
	if l.scanning {
		return nil
	}
	if err := l.scanner.Start(); err != nil {
		return fmt.Errorf("scan start: %w", err)
	}
	l.scanning = true
	l.stopAt = l.clock.NowMs() + uint32(d.Milliseconds())
	l.logger.Debug("bthome: scan window opened", "window_ms", d.Milliseconds())
	return nil
}

// Poll applies queued frames and closes the window once its deadline has
// passed. It returns true exactly once per window, on the closing call.
func (l *Listener) Poll() bool {
	l.drain()

	if !l.scanning || !Reached(l.clock.NowMs(), l.stopAt) {
		return false
	}

	l.scanning = false
	if err := l.scanner.Stop(); err != nil {
		l.logger.Warn("bthome: scan stop failed", "error", err)
	}
	l.logger.Debug("bthome: scan window closed", "accepted", l.accepted, "dropped", l.dropped.Load())
	return true
}

// Scanning reports whether a window is open.
func (l *Listener) Scanning() bool { return l.scanning }

// Remote returns a copy of the current record.
func (l *Listener) Remote() Remote { return l.remote }

// Accepted returns the number of frames merged into the record.
func (l *Listener) Accepted() uint64 { return l.accepted }

// Dropped returns the number of frames lost to a full queue.
func (l *Listener) Dropped() uint64 { return l.dropped.Load() }

// enqueue is the radio callback. It copies the frame and never blocks.
func (l *Listener) enqueue(f Frame) {
	f.Elements = append([]byte(nil), f.Elements...)
	select {
	case l.frames <- f:
	default:
		l.dropped.Add(1)
	}
	l.scanner.Resume()
}

func (l *Listener) drain() {
	for {
		select {
		case f := <-l.frames:
			l.HandleFrame(f)
		default:
			return
		}
	}
}

// HandleFrame filters, decodes and merges one frame. It must run on the
// goroutine that owns the Listener. It reports whether the frame was
// accepted.
func (l *Listener) HandleFrame(f Frame) bool {
	if l.allow != nil {
		if _, ok := l.allow[normalizeAddress(f.Address)]; !ok {
			return false
		}
	}

	payload, ok := bthome.FindServiceData(f.Elements)
	if !ok {
		return false
	}

	d := bthome.Decode(payload)
	if !d.OK {
		l.logger.Debug("bthome: ignore payload", "addr", f.Address, "error", d.Err)
		return false
	}
	if d.Err != nil {
		l.logger.Debug("bthome: partial decode", "addr", f.Address, "error", d.Err)
	}

	l.remote.apply(d, f, l.clock.NowMs())
	l.accepted++

	if l.onUpdate != nil {
		l.onUpdate(l.remote)
	}
	return true
}

func normalizeAddress(a string) string {
	return strings.ToUpper(strings.TrimSpace(a))
}
