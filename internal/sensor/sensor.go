// Package sensor provides the local environmental reading advertised by the
// relay.
package sensor

import (
	"fmt"
	"log/slog"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"cloudpico-bthome/internal/bthome"
)

// Source yields the current local reading. A failed read returns an invalid
// reading rather than an error.
type Source interface {
	Read() bthome.Reading
	Close() error
}

// None is a Source with no sensor attached.
type None struct{}

func (None) Read() bthome.Reading { return bthome.InvalidReading() }
func (None) Close() error         { return nil }

type senser interface {
	Sense(*physic.Env) error
	Halt() error
}

// BME280 reads a Bosch BME280 on the default I2C bus.
type BME280 struct {
	bus    i2c.BusCloser
	dev    senser
	logger *slog.Logger
}

// OpenBME280 initializes the host drivers and opens the sensor at addr.
func OpenBME280(addr uint16, logger *slog.Logger) (*BME280, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open("") // default bus, usually /dev/i2c-1
	if err != nil {
		return nil, fmt.Errorf("i2c open: %w", err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bme280 at 0x%02X: %w", addr, err)
	}

	logger.Info("sensor ready", "device", dev.String(), "address", fmt.Sprintf("0x%02X", addr))
	return &BME280{bus: bus, dev: dev, logger: logger}, nil
}

func (s *BME280) Read() bthome.Reading {
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		s.logger.Warn("sensor read failed", "error", err)
		return bthome.InvalidReading()
	}
	return fromEnv(env)
}

func (s *BME280) Close() error {
	herr := s.dev.Halt()
	berr := s.bus.Close()
	if herr != nil {
		return fmt.Errorf("bme280 halt: %w", herr)
	}
	return berr
}

// fromEnv converts a periph measurement. Humidity outside 0..100 %RH is
// reported as absent.
func fromEnv(env physic.Env) bthome.Reading {
	temperature := env.Temperature.Celsius()

	// env.Humidity is fixed point at a precision of 0.00001 %rH.
	humidity := float64(env.Humidity) / float64(physic.PercentRH)
	if humidity < 0 || humidity > 100 {
		humidity = math.NaN()
	}

	return bthome.Reading{
		Valid:       true,
		Temperature: temperature,
		Humidity:    humidity,
	}
}
