// Package bridge exposes one SwitchBot over MQTT: command topics in, a
// retained state document out, and optional telemetry for each settings
// report.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chaz8081/switchbot-go/internal/ble/protocol"
	"github.com/chaz8081/switchbot-go/internal/mqtt"
)

// Device is the subset of *switchbot.Bot the bridge drives.
type Device interface {
	Address() string
	TurnOn() (bool, error)
	TurnOff() (bool, error)
	Press() (bool, error)
	SetMode(dualMode, inverse bool) (bool, error)
	GetSettings() (bool, error)
	State() (protocol.DeviceState, bool)
	LastOutcome() protocol.Outcome
}

// Broker is the subset of *mqtt.Client the bridge uses.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateSink receives every successful settings report.
// *telemetry.Writer is the production implementation.
type StateSink interface {
	WriteState(address string, state protocol.DeviceState)
}

// Options configures a Bridge.
type Options struct {
	Topics   mqtt.Topics
	DeviceID string
	QoS      byte
	Sink     StateSink // optional
}

// Bridge routes MQTT commands to a Device.
type Bridge struct {
	broker Broker
	device Device
	opts   Options
	now    func() time.Time
}

// State is the JSON document published on the state topic. Settings
// fields are omitted until the device has reported them once.
type State struct {
	Battery     *int      `json:"battery,omitempty"`
	Firmware    string    `json:"firmware,omitempty"`
	DualMode    *bool     `json:"dual_mode,omitempty"`
	InverseMode *bool     `json:"inverse_mode,omitempty"`
	LastStatus  string    `json:"last_status"`
	LastSuccess bool      `json:"last_success"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type modeRequest struct {
	DualMode *bool `json:"dual_mode"`
	Inverse  bool  `json:"inverse"`
}

// New creates a Bridge. Call Start to subscribe.
func New(broker Broker, device Device, opts Options) *Bridge {
	return &Bridge{broker: broker, device: device, opts: opts, now: time.Now}
}

// Start subscribes to the device's command topics.
func (b *Bridge) Start() error {
	t, id := b.opts.Topics, b.opts.DeviceID
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{t.Set(id), b.handleSet},
		{t.ModeSet(id), b.handleMode},
		{t.Refresh(id), b.handleRefresh},
	}
	for _, s := range subs {
		if err := b.broker.Subscribe(s.topic, b.opts.QoS, s.handler); err != nil {
			return fmt.Errorf("bridge: subscribing %s: %w", s.topic, err)
		}
	}
	slog.Info("[BRIDGE] listening", "device", id, "base", t.Device(id))
	return nil
}

func (b *Bridge) handleSet(_ string, payload []byte) error {
	var op func() (bool, error)
	switch cmd := strings.ToUpper(strings.TrimSpace(string(payload))); cmd {
	case "ON":
		op = b.device.TurnOn
	case "OFF":
		op = b.device.TurnOff
	case "PRESS":
		op = b.device.Press
	default:
		return fmt.Errorf("bridge: unknown command %q", cmd)
	}

	ok, err := op()
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	slog.Info("[BRIDGE] command handled", "device", b.opts.DeviceID, "payload", string(payload), "ok", ok)
	return b.publishState()
}

func (b *Bridge) handleMode(_ string, payload []byte) error {
	var req modeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("bridge: decoding mode request: %w", err)
	}
	if req.DualMode == nil {
		return fmt.Errorf("bridge: mode request needs dual_mode")
	}

	if _, err := b.device.SetMode(*req.DualMode, req.Inverse); err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return b.publishState()
}

func (b *Bridge) handleRefresh(_ string, _ []byte) error {
	return b.Refresh(context.Background())
}

// Refresh queries the device settings, publishes the resulting state and
// forwards a successful report to the sink. It is also the poller job.
func (b *Bridge) Refresh(_ context.Context) error {
	ok, err := b.device.GetSettings()
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	if ok && b.opts.Sink != nil {
		if state, known := b.device.State(); known {
			b.opts.Sink.WriteState(b.device.Address(), state)
		}
	}
	if pubErr := b.publishState(); pubErr != nil {
		return pubErr
	}
	if !ok {
		return fmt.Errorf("bridge: settings refresh failed: %s", b.device.LastOutcome().Status)
	}
	return nil
}

// Snapshot builds the current state document.
func (b *Bridge) Snapshot() State {
	last := b.device.LastOutcome()
	s := State{
		LastStatus:  last.Status.String(),
		LastSuccess: last.Success,
		UpdatedAt:   b.now().UTC(),
	}
	if state, ok := b.device.State(); ok {
		s.Battery = &state.Battery
		s.Firmware = state.Firmware
		s.DualMode = &state.DualMode
		s.InverseMode = &state.InverseMode
	}
	return s
}

func (b *Bridge) publishState() error {
	payload, err := json.Marshal(b.Snapshot())
	if err != nil {
		return fmt.Errorf("bridge: encoding state: %w", err)
	}
	topic := b.opts.Topics.State(b.opts.DeviceID)
	if err := b.broker.Publish(topic, payload, b.opts.QoS, true); err != nil {
		return fmt.Errorf("bridge: publishing state: %w", err)
	}
	return nil
}
