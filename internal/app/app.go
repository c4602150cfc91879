package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"cloudpico-bthome/internal/ble"
	"cloudpico-bthome/internal/ble/stub"
	"cloudpico-bthome/internal/config"
	"cloudpico-bthome/internal/dutycycle"
	"cloudpico-bthome/internal/mqtt"
	"cloudpico-bthome/internal/rtc"
	"cloudpico-bthome/internal/sensor"
	"cloudpico-bthome/internal/store"
)

// stubAddress is the source address of loopback frames in RADIO=stub mode.
const stubAddress = "02:00:00:00:00:01"

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing relay",
		"radio", cfg.Radio,
		"advertise", cfg.Advertise,
		"outdoor_scan", cfg.OutdoorScan,
		"sensor", cfg.Sensor,
		"mqtt_enabled", cfg.MQTTEnabled,
		"sqlite_path", cfg.SQLitePath,
	)

	deps := Deps{
		Clock:  dutycycle.NewSystemClock(),
		Rand:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		RTC:    rtc.NewClock(),
		Status: os.Stdout,
	}

	var err error
	deps.Broadcaster, deps.Scanner, err = openRadio(cfg)
	if err != nil {
		return err
	}

	deps.Sensor = openSensor(cfg)
	defer func() {
		if err := deps.Sensor.Close(); err != nil {
			slog.Warn("sensor close", "error", err)
		}
	}()

	if cfg.SQLitePath != "" {
		var queryLog *slog.Logger
		if cfg.LogLevel == slog.LevelDebug {
			queryLog = slog.Default()
		}
		db, err := store.Open(cfg.SQLitePath, queryLog)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer func() {
			if err := store.Close(db); err != nil {
				slog.Warn("db close", "error", err)
			}
		}()
		deps.Repo = store.NewRepository(db)
	}

	if cfg.MQTTEnabled {
		mqttClient := mqtt.NewClient(cfg, slog.Default())
		defer mqttClient.Disconnect()
		go func() {
			if err := mqttClient.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, mqtt.ErrStopped) {
				slog.Error("mqtt connect failed", "error", err)
			}
		}()
		deps.Publisher = mqttClient
	}

	go func() {
		if err := deps.RTC.Watch(ctx, os.Stdin, slog.Default()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("time input closed", "error", err)
		}
	}()

	relay := NewRelay(cfg, deps, slog.Default())
	err = relay.Run(ctx)

	slog.Info("relay shutting down")
	return err
}

func openRadio(cfg config.Config) (dutycycle.Broadcaster, dutycycle.Scanner, error) {
	if cfg.Radio == "stub" {
		air := stub.NewAir()
		return stub.NewBroadcaster(air, stubAddress), stub.NewScanner(air), nil
	}

	adapter, err := ble.Open(cfg.BLEAdapter, slog.Default())
	if err != nil {
		if ble.IsAdapterError(err) {
			return nil, nil, errors.New(ble.AdapterErrorHelpMessage(err))
		}
		return nil, nil, err
	}
	return ble.NewBroadcaster(adapter, slog.Default()), ble.NewScanner(adapter, slog.Default()), nil
}

func openSensor(cfg config.Config) sensor.Source {
	if cfg.Sensor == "none" {
		return sensor.None{}
	}
	s, err := sensor.OpenBME280(cfg.BME280Address, slog.Default())
	if err != nil {
		slog.Warn("sensor could not be initialized; relay continues without local readings",
			"error", err,
		)
		return sensor.None{}
	}
	return s
}
