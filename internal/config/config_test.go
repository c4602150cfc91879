package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

var allKeys = []string{
	"APP_ENV", "LOG_LEVEL", "RADIO", "BLE_ADAPTER", "TICK_INTERVAL", "UPDATE_PERIOD",
	"ADVERTISE", "ADV_BURST", "ADV_INTERVAL_MIN_MS", "ADV_INTERVAL_MAX_MS",
	"ADV_JITTER_MIN", "ADV_JITTER_MAX", "SEND_DELTA_T_C", "SEND_DELTA_RH_PCT",
	"HEARTBEAT", "OUTDOOR_SCAN", "SCAN_WINDOW", "OUTDOOR_MAC", "SENSOR",
	"BME280_ADDRESS", "MQTT_ENABLED", "MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID",
	"STATION_ID", "OUTDOOR_STATION_ID", "SQLITE_PATH", "STATUS_REPORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	want := Config{
		AppEnv:           "dev",
		LogLevel:         slog.LevelInfo,
		Radio:            "bluez",
		BLEAdapter:       "hci0",
		TickInterval:     20 * time.Millisecond,
		UpdatePeriod:     60 * time.Second,
		Advertise:        true,
		AdvBurst:         time.Second,
		AdvIntervalMinMs: 220,
		AdvIntervalMaxMs: 280,
		AdvJitterMin:     50 * time.Millisecond,
		AdvJitterMax:     150 * time.Millisecond,
		SendDeltaTempC:   0.2,
		SendDeltaRHPct:   1.0,
		Heartbeat:        30 * time.Minute,
		OutdoorScan:      false,
		ScanWindow:       1500 * time.Millisecond,
		Sensor:           "bme280",
		BME280Address:    0x76,
		MQTTBroker:       "localhost",
		MQTTPort:         1883,
		MQTTClientID:     "cloudpico-relay",
		StationID:        "indoor",
		OutdoorStationID: "outdoor",
		StatusReport:     true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadFromEnv() = %+v\nwant %+v", got, want)
	}
}

func TestLoadFromEnv_AppEnv(t *testing.T) {
	tests := []struct {
		name    string
		appEnv  string
		want    string
		wantErr bool
	}{
		{name: "dev", appEnv: "dev", want: "dev"},
		{name: "prod with whitespace", appEnv: "\nprod\t", want: "prod"},
		{name: "staging", appEnv: "staging", wantErr: true},
		{name: "uppercase invalid", appEnv: "DEV", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("APP_ENV", tt.appEnv)

			got, err := LoadFromEnv()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromEnv() error = nil, want non-nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v, want nil", err)
			}
			if got.AppEnv != tt.want {
				t.Errorf("AppEnv = %q, want %q", got.AppEnv, tt.want)
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RADIO", "stub")
	t.Setenv("TICK_INTERVAL", "5ms")
	t.Setenv("ADV_JITTER_MIN", "0s")
	t.Setenv("ADV_JITTER_MAX", "0s")
	t.Setenv("ADV_INTERVAL_MIN_MS", "100")
	t.Setenv("SEND_DELTA_T_C", "0.5")
	t.Setenv("OUTDOOR_SCAN", "true")
	t.Setenv("OUTDOOR_MAC", " aa:bb:cc:dd:ee:ff , ,11:22:33:44:55:66")
	t.Setenv("SENSOR", "none")
	t.Setenv("BME280_ADDRESS", "0x77")
	t.Setenv("MQTT_ENABLED", "1")
	t.Setenv("SQLITE_PATH", " /var/lib/relay.db ")

	got, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v, want nil", err)
	}

	if got.Radio != "stub" {
		t.Errorf("Radio = %q, want stub", got.Radio)
	}
	if got.TickInterval != 5*time.Millisecond {
		t.Errorf("TickInterval = %v, want 5ms", got.TickInterval)
	}
	if got.AdvJitterMin != 0 || got.AdvJitterMax != 0 {
		t.Errorf("jitter = %v..%v, want 0..0", got.AdvJitterMin, got.AdvJitterMax)
	}
	if got.AdvIntervalMinMs != 100 {
		t.Errorf("AdvIntervalMinMs = %d, want 100", got.AdvIntervalMinMs)
	}
	if got.SendDeltaTempC != 0.5 {
		t.Errorf("SendDeltaTempC = %v, want 0.5", got.SendDeltaTempC)
	}
	if !got.OutdoorScan || !got.MQTTEnabled {
		t.Errorf("OutdoorScan=%v MQTTEnabled=%v, want true/true", got.OutdoorScan, got.MQTTEnabled)
	}
	wantMACs := []string{"aa:bb:cc:dd:ee:ff", "11:22:33:44:55:66"}
	if !reflect.DeepEqual(got.OutdoorMACs, wantMACs) {
		t.Errorf("OutdoorMACs = %q, want %q", got.OutdoorMACs, wantMACs)
	}
	if got.Sensor != "none" || got.BME280Address != 0x77 {
		t.Errorf("Sensor=%q BME280Address=0x%X", got.Sensor, got.BME280Address)
	}
	if got.SQLitePath != "/var/lib/relay.db" {
		t.Errorf("SQLitePath = %q", got.SQLitePath)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RADIO", "nrf"},
		{"SENSOR", "sht31"},
		{"TICK_INTERVAL", "fast"},
		{"TICK_INTERVAL", "0s"},
		{"UPDATE_PERIOD", "-1m"},
		{"ADV_BURST", "100000h"},
		{"ADV_JITTER_MAX", "-5ms"},
		{"ADV_INTERVAL_MIN_MS", "70000"},
		{"ADV_INTERVAL_MAX_MS", "-1"},
		{"SEND_DELTA_T_C", "abc"},
		{"SEND_DELTA_RH_PCT", "-1"},
		{"ADVERTISE", "maybe"},
		{"MQTT_PORT", "mqtt"},
		{"BME280_ADDRESS", "0x1FFFF"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv() error = nil, want non-nil")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "DeBuG", want: slog.LevelDebug},
		{in: "  warn \n", want: slog.LevelWarn},
		{in: "", want: slog.LevelInfo, wantErr: true},
		{in: "warns", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
