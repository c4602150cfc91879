package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	Radio        string
	BLEAdapter   string
	TickInterval time.Duration
	UpdatePeriod time.Duration

	Advertise        bool
	AdvBurst         time.Duration
	AdvIntervalMinMs uint16
	AdvIntervalMaxMs uint16
	AdvJitterMin     time.Duration
	AdvJitterMax     time.Duration
	SendDeltaTempC   float64
	SendDeltaRHPct   float64
	Heartbeat        time.Duration

	OutdoorScan bool
	ScanWindow  time.Duration
	OutdoorMACs []string

	Sensor        string
	BME280Address uint16

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	StationID        string
	OutdoorStationID string
	SQLitePath       string
	StatusReport     bool
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	radio := env("RADIO", "bluez")
	switch radio {
	case "bluez", "stub":
	default:
		return Config{}, fmt.Errorf("invalid RADIO %q (allowed: bluez, stub)", radio)
	}

	sensor := env("SENSOR", "bme280")
	switch sensor {
	case "bme280", "none":
	default:
		return Config{}, fmt.Errorf("invalid SENSOR %q (allowed: bme280, none)", sensor)
	}

	cfg := Config{
		AppEnv:           appEnv,
		LogLevel:         level,
		Radio:            radio,
		BLEAdapter:       env("BLE_ADAPTER", "hci0"),
		Sensor:           sensor,
		MQTTBroker:       env("MQTT_BROKER", "localhost"),
		MQTTClientID:     env("MQTT_CLIENT_ID", "cloudpico-relay"),
		StationID:        env("STATION_ID", "indoor"),
		OutdoorStationID: env("OUTDOOR_STATION_ID", "outdoor"),
		SQLitePath:       env("SQLITE_PATH", ""),
		OutdoorMACs:      parseList(env("OUTDOOR_MAC", "")),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"TICK_INTERVAL", "20ms", &cfg.TickInterval},
		{"UPDATE_PERIOD", "60s", &cfg.UpdatePeriod},
		{"ADV_BURST", "1s", &cfg.AdvBurst},
		{"HEARTBEAT", "30m", &cfg.Heartbeat},
		{"SCAN_WINDOW", "1.5s", &cfg.ScanWindow},
	}
	for _, d := range durations {
		v, err := parsePositiveDuration(d.key, env(d.key, d.def))
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if cfg.AdvJitterMin, err = parseDuration("ADV_JITTER_MIN", env("ADV_JITTER_MIN", "50ms")); err != nil {
		return Config{}, err
	}
	if cfg.AdvJitterMax, err = parseDuration("ADV_JITTER_MAX", env("ADV_JITTER_MAX", "150ms")); err != nil {
		return Config{}, err
	}
	if cfg.AdvBurst > time.Duration(1<<16-1)*time.Second {
		return Config{}, fmt.Errorf("ADV_BURST too long, got %v", cfg.AdvBurst)
	}

	if cfg.AdvIntervalMinMs, err = parseUint16("ADV_INTERVAL_MIN_MS", env("ADV_INTERVAL_MIN_MS", "220")); err != nil {
		return Config{}, err
	}
	if cfg.AdvIntervalMaxMs, err = parseUint16("ADV_INTERVAL_MAX_MS", env("ADV_INTERVAL_MAX_MS", "280")); err != nil {
		return Config{}, err
	}

	if cfg.SendDeltaTempC, err = parseNonNegativeFloat("SEND_DELTA_T_C", env("SEND_DELTA_T_C", "0.2")); err != nil {
		return Config{}, err
	}
	if cfg.SendDeltaRHPct, err = parseNonNegativeFloat("SEND_DELTA_RH_PCT", env("SEND_DELTA_RH_PCT", "1.0")); err != nil {
		return Config{}, err
	}

	bools := []struct {
		key string
		def string
		dst *bool
	}{
		{"ADVERTISE", "true", &cfg.Advertise},
		{"OUTDOOR_SCAN", "false", &cfg.OutdoorScan},
		{"MQTT_ENABLED", "false", &cfg.MQTTEnabled},
		{"STATUS_REPORT", "true", &cfg.StatusReport},
	}
	for _, b := range bools {
		raw := env(b.key, b.def)
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", b.key, raw, err)
		}
		*b.dst = v
	}

	mqttPortStr := env("MQTT_PORT", "1883")
	cfg.MQTTPort, err = strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	bme280AddressStr := env("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}
	cfg.BME280Address = uint16(bme280Address)

	return cfg, nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, d)
	}
	return d, nil
}

func parsePositiveDuration(key, s string) (time.Duration, error) {
	d, err := parseDuration(key, s)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseUint16(key, s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return uint16(v), nil
}

func parseNonNegativeFloat(key, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", key, v)
	}
	return v, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
