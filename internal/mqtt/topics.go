package mqtt

import "fmt"

// Topics builds the per-device topic tree under Prefix:
//
//	<prefix>/<device>/set           ON | OFF | PRESS
//	<prefix>/<device>/mode/set      {"dual_mode":true,"inverse":false}
//	<prefix>/<device>/refresh       any payload
//	<prefix>/<device>/state         retained JSON
//	<prefix>/<device>/availability  retained online | offline
type Topics struct {
	Prefix string
}

// Device returns the base topic for one device.
func (t Topics) Device(deviceID string) string {
	return fmt.Sprintf("%s/%s", t.Prefix, deviceID)
}

func (t Topics) Set(deviceID string) string {
	return t.Device(deviceID) + "/set"
}

func (t Topics) ModeSet(deviceID string) string {
	return t.Device(deviceID) + "/mode/set"
}

func (t Topics) Refresh(deviceID string) string {
	return t.Device(deviceID) + "/refresh"
}

func (t Topics) State(deviceID string) string {
	return t.Device(deviceID) + "/state"
}

func (t Topics) Availability(deviceID string) string {
	return t.Device(deviceID) + "/availability"
}
