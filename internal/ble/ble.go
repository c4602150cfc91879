// Package ble adapts tinygo.org/x/bluetooth to the dutycycle radio
// interfaces. The same code runs against BlueZ on Linux and the CYW43439
// on a Pico 2 W.
package ble

import (
	"errors"
	"fmt"
	"log/slog"

	"tinygo.org/x/bluetooth"
)

var (
	ErrAdapterInvalidID = errors.New("ble: adapter id not supported on this platform")
	ErrPayloadTooLarge  = errors.New("ble: advertisement payload too large")
	ErrUnsupportedAD    = errors.New("ble: unsupported AD type")
)

// Open selects the adapter by id ("" for the default) and enables it.
func Open(id string, logger *slog.Logger) (*bluetooth.Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	adapter, err := newAdapter(id)
	if err != nil {
		return nil, err
	}

	logger.Info("ble: enabling adapter", "adapter", id)
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble enable (%s): %w", id, err)
	}
	logger.Info("ble: adapter enabled", "adapter", id)
	return adapter, nil
}
