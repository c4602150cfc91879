//go:build tinygo

package main

import (
	"log/slog"
	"machine"
	"math"

	"tinygo.org/x/drivers/bme280"

	"cloudpico-bthome/internal/bthome"
)

// Sensor is a BME280 on I2C1 (SDA GP26, SCL GP27).
type Sensor struct {
	device *bme280.Device
}

func NewSensor() (*Sensor, error) {
	i2c := machine.I2C1
	if err := i2c.Configure(machine.I2CConfig{
		SDA:       machine.GP26,
		SCL:       machine.GP27,
		Frequency: 400 * machine.KHz,
	}); err != nil {
		return nil, err
	}

	dev := bme280.New(i2c)
	dev.Configure()

	return &Sensor{device: &dev}, nil
}

// Read returns an invalid reading when the temperature cannot be read.
func (s *Sensor) Read(logger *slog.Logger) bthome.Reading {
	t, err := s.device.ReadTemperature()
	if err != nil {
		logger.Warn("sensor: temperature read failed", "error", err)
		return bthome.InvalidReading()
	}

	r := bthome.Reading{
		Valid:       true,
		Temperature: float64(t) / 1000, // milli °C
		Humidity:    math.NaN(),
	}

	h, err := s.device.ReadHumidity()
	if err != nil {
		logger.Warn("sensor: humidity read failed", "error", err)
		return r
	}
	r.Humidity = float64(h) / 100 // hundredths of %RH
	return r
}
