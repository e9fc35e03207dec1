//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// writeRequest writes data and returns once BlueZ reports the result.
// tinygo's Linux backend only exposes WriteWithoutResponse, but it calls
// org.bluez.GattCharacteristic1.WriteValue without a "type" option, so
// BlueZ issues a write request and the D-Bus call completes after the
// peripheral's ATT write response.
func writeRequest(char bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := char.WriteWithoutResponse(data)
	return err
}
