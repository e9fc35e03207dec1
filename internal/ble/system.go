package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// SystemAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS). On macOS, device addresses are CoreBluetooth UUIDs rather than MAC
// addresses; the "MAC" strings passed around this package carry either form.
type SystemAdapter struct {
	adapter *bluetooth.Adapter

	enableOnce sync.Once
	enableErr  error
}

// NewSystemAdapter creates a BLE adapter backed by the default host adapter.
func NewSystemAdapter() *SystemAdapter {
	return &SystemAdapter{adapter: bluetooth.DefaultAdapter}
}

// Enable powers on the adapter. Repeated calls are no-ops.
func (a *SystemAdapter) Enable() error {
	a.enableOnce.Do(func() {
		a.enableErr = a.adapter.Enable()
	})
	return a.enableErr
}

// Scan lists peripherals advertising serviceUUID until ctx is done. A bot
// that advertises more than once is reported once, with its latest RSSI.
func (a *SystemAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	svc, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	var mu sync.Mutex
	var devices []Device
	index := make(map[string]int)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-stopped:
		}
	}()

	slog.Debug("[BLE] scanning", "service", serviceUUID)
	err = a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(svc) {
			return
		}
		mac := result.Address.String()
		rssi := int(result.RSSI)

		mu.Lock()
		defer mu.Unlock()
		if i, ok := index[mac]; ok {
			devices[i].RSSI = rssi
			return
		}
		index[mac] = len(devices)
		devices = append(devices, Device{Name: result.LocalName(), MAC: mac, RSSI: rssi})
		slog.Debug("[BLE] found switchbot", "mac", mac, "name", result.LocalName(), "rssi", rssi)
	})
	close(stopped)

	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	slog.Debug("[BLE] scan finished", "found", len(devices))
	return devices, nil
}

func (a *SystemAdapter) Connect(ctx context.Context, mac string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(mac)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect cannot be cancelled. If it succeeds later,
		// drop that connection so the peripheral is not left held open.
		go func() {
			if result := <-ch; result.err == nil {
				if err := result.device.Disconnect(); err != nil {
					slog.Debug("[BLE] late connection cleanup failed", "mac", mac, "error", err)
				}
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", mac, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", mac, result.err)
		}
		return &systemConnection{
			device:   result.device,
			mac:      mac,
			services: make(map[string]bluetooth.DeviceService),
		}, nil
	}
}

// Compile-time check that SystemAdapter implements Adapter.
var _ Adapter = (*SystemAdapter)(nil)

// systemConnection keeps the services it has discovered, so looking up the
// command and notify characteristics costs one service discovery.
type systemConnection struct {
	device   bluetooth.Device
	mac      string
	services map[string]bluetooth.DeviceService
}

func (c *systemConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svc, err := c.service(serviceUUID)
	if err != nil {
		return nil, err
	}

	want, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}
	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{want})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristic %s: %w", charUUID, err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found on %s", charUUID, c.mac)
	}

	slog.Debug("[BLE] characteristic ready", "mac", c.mac, "uuid", charUUID)
	return &systemCharacteristic{char: chars[0]}, nil
}

func (c *systemConnection) service(serviceUUID string) (bluetooth.DeviceService, error) {
	if svc, ok := c.services[serviceUUID]; ok {
		return svc, nil
	}

	want, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{want})
	if err != nil {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: discover services on %s: %w", c.mac, err)
	}
	if len(svcs) == 0 {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: %s does not expose the switchbot service", c.mac)
	}

	c.services[serviceUUID] = svcs[0]
	return svcs[0], nil
}

func (c *systemConnection) Disconnect() error {
	return c.device.Disconnect()
}

type systemCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

// Write sends a GATT write request; a nil error means the peripheral
// acknowledged the command. See writeRequest for the per-platform call.
func (c *systemCharacteristic) Write(data []byte) error {
	if err := writeRequest(c.char, data); err != nil {
		return fmt.Errorf("ble: gatt write: %w", err)
	}
	return nil
}

// Subscribe has the host stack write 0x0100 to the notify CCCD (handle
// 0x0014 on SwitchBot firmware).
func (c *systemCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The stack may reuse buf after the callback returns.
		frame := make([]byte, len(buf))
		copy(frame, buf)
		cb(frame)
	})
}
