//go:build linux && !baremetal

package ble

import (
	"strings"

	"tinygo.org/x/bluetooth"
)

// IsAdapterError reports whether err means BlueZ or D-Bus is unreachable.
func IsAdapterError(err error) bool {
	// D-Bus not found
	if strings.Contains(err.Error(), "dbus") && strings.HasSuffix(err.Error(), "no such file or directory") {
		return true
	}
	// D-Bus is running but org.bluez is not found
	return strings.Contains(err.Error(), "The name org.bluez was not provided by any .service files")
}

func AdapterErrorHelpMessage(err error) string {
	return "Failed to initialize BLE adapter: \n\t" + err.Error() + "\n" +
		"Make sure bluez and dbus are installed and running.\n" +
		"If running in a container, mount the host D-Bus socket (-v /var/run/dbus:/var/run/dbus)."
}

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return bluetooth.NewAdapter(id), nil
	}
	return bluetooth.DefaultAdapter, nil
}
