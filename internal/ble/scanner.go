package ble

import (
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

// Scanner runs adapter.Scan in a goroutine between Start and Stop. The host
// stack schedules scan interval and window itself; SetPassive and
// SetInterval are recorded for logging.
type Scanner struct {
	adapter *bluetooth.Adapter
	logger  *slog.Logger

	mu         sync.Mutex
	fn         func(dutycycle.Frame)
	passive    bool
	intervalMs uint16
	windowMs   uint16
	done       chan error
}

var _ dutycycle.Scanner = (*Scanner)(nil)

func NewScanner(adapter *bluetooth.Adapter, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{adapter: adapter, logger: logger}
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
	s.intervalMs, s.windowMs = intervalMs, windowMs
	s.mu.Unlock()
}

// Resume does nothing: the host stack keeps reporting until StopScan.
func (s *Scanner) Resume() {}

func (s *Scanner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}

	done := make(chan error, 1)
	s.done = done
	s.logger.Debug("ble: scanning started",
		"passive", s.passive,
		"interval_ms", s.intervalMs,
		"window_ms", s.windowMs,
	)

	go func() {
		// adapter.Scan blocks until StopScan() or error.
		done <- s.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			s.mu.Lock()
			fn := s.fn
			s.mu.Unlock()
			if fn == nil {
				return
			}
			fn(dutycycle.Frame{
				Elements: elements(r.Bytes(), r.ServiceData()),
				Address:  r.Address.String(),
				RSSI:     r.RSSI,
			})
		})
	}()
	return nil
}

func (s *Scanner) Stop() error {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	stopErr := s.adapter.StopScan()
	scanErr := <-done
	s.logger.Debug("ble: scanning stopped")

	if stopErr != nil {
		return fmt.Errorf("ble stop scan: %w", stopErr)
	}
	if scanErr != nil {
		return fmt.Errorf("ble scan: %w", scanErr)
	}
	return nil
}

// elements returns the raw AD structures when the stack exposes them and
// otherwise rebuilds 16-bit service data elements from the parsed fields.
// BlueZ only hands over parsed fields.
func elements(raw []byte, serviceData []bluetooth.ServiceDataElement) []byte {
	if len(raw) > 0 {
		return raw
	}
	var out []byte
	for _, sd := range serviceData {
		if !sd.UUID.Is16Bit() || len(sd.Data)+3 > 0xFF {
			continue
		}
		uuid := sd.UUID.Get16Bit()
		out = append(out, byte(len(sd.Data)+3), bthome.ADTypeServiceData16, byte(uuid), byte(uuid>>8))
		out = append(out, sd.Data...)
	}
	return out
}
