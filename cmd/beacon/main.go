//go:build tinygo

// Beacon firmware for a Pico 2 W: reads a BME280 once per update period and
// advertises it as BTHome through the same Advertiser the relay uses.
package main

import (
	"log/slog"
	"machine"
	"math/rand/v2"
	"time"

	"tinygo.org/x/bluetooth"

	"cloudpico-bthome/internal/ble"
	"cloudpico-bthome/internal/bthome"
	"cloudpico-bthome/internal/dutycycle"
)

const (
	tickInterval = 20 * time.Millisecond
	updatePeriod = 60 * time.Second
)

func main() {
	// USB CDC serial
	machine.Serial.Configure(machine.UARTConfig{})

	// Give the host time to enumerate the USB serial device.
	time.Sleep(1500 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(machine.Serial, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("boot: pico2w bthome beacon")

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		halt(logger, "adapter.Enable failed", err)
	}

	sensor, err := NewSensor()
	if err != nil {
		logger.Warn("sensor not available; advertising packet id only", "error", err)
	}

	clock := dutycycle.NewSystemClock()
	adv := dutycycle.NewAdvertiser(
		ble.NewBroadcaster(adapter, logger),
		clock,
		rand.New(rand.NewPCG(seed(), seed())),
		dutycycle.DefaultAdvertiserConfig(),
		logger,
	)
	adv.Begin()

	reading := bthome.InvalidReading()
	var nextRead uint32
	for {
		if now := clock.NowMs(); dutycycle.Reached(now, nextRead) {
			nextRead = now + uint32(updatePeriod.Milliseconds())
			if sensor != nil {
				reading = sensor.Read(logger)
			}
		}
		adv.Tick(reading)
		time.Sleep(tickInterval)
	}
}

func seed() uint64 {
	hi, err1 := machine.GetRNG()
	lo, err2 := machine.GetRNG()
	if err1 != nil || err2 != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(hi)<<32 | uint64(lo)
}

func halt(logger *slog.Logger, msg string, err error) {
	for {
		logger.Error("FATAL: "+msg, "error", err)
		time.Sleep(time.Second)
	}
}
