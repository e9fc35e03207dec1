//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// writeRequest uses Write, which on CoreBluetooth and WinRT is the
// with-response GATT write and blocks until the peripheral acknowledges.
func writeRequest(char bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := char.Write(data)
	return err
}
