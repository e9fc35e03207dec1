// Package ble drives a SwitchBot peripheral over Bluetooth Low Energy. It
// owns the per-command connection lifecycle (connect, subscribe, write,
// await notification, disconnect) and the retry policy around it.
package ble

import "context"

// SwitchBot BLE UUIDs
const (
	ServiceUUID     = "cba20d00-224d-11e6-9fb8-0002a5d5c51b"
	CommandCharUUID = "cba20002-224d-11e6-9fb8-0002a5d5c51b"
	NotifyCharUUID  = "cba20003-224d-11e6-9fb8-0002a5d5c51b"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data and waits for the peripheral to acknowledge it.
	Write(data []byte) error
	// Subscribe enables notifications and registers a callback for them.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device with the given MAC address.
	Connect(ctx context.Context, mac string) (Connection, error)
}
