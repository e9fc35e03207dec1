package ble

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultScanTimeout bounds ScanForDevices when no timeout is given.
const DefaultScanTimeout = 10 * time.Second

// ScanForDevices scans for peripherals advertising the SwitchBot service.
func ScanForDevices(adapter Adapter, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// DeviceID returns a topic- and tag-safe identifier for a device address:
// lowercase with separators removed.
func DeviceID(mac string) string {
	r := strings.NewReplacer(":", "", "-", "")
	return strings.ToLower(r.Replace(mac))
}
