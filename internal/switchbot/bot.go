// Package switchbot exposes a SwitchBot as a small set of operations:
// turn on/off, press, set mode and fetch settings. It guards each
// operation against the configured device mode and keeps the last
// settings the device reported.
package switchbot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/switchbot-go/internal/ble"
	"github.com/chaz8081/switchbot-go/internal/ble/protocol"
)

// DefaultRetryCount is the number of retries after a failed first attempt.
const DefaultRetryCount = 3

// ErrModeMismatch is returned when an action does not apply to the
// configured mode: on/off need dual mode, press needs press mode.
var ErrModeMismatch = errors.New("switchbot: action not valid in current mode")

// Executor runs one command to completion, retries included.
// *ble.Client is the production implementation.
type Executor interface {
	Execute(cmd protocol.Command) (protocol.Outcome, error)
}

// Options configures a Bot.
type Options struct {
	DualMode   bool // on/off switch rather than momentary press
	RetryCount int  // retries after the first attempt
}

// DefaultOptions returns press mode with the default retry budget.
func DefaultOptions() Options {
	return Options{RetryCount: DefaultRetryCount}
}

// Bot controls one SwitchBot. Commands, including their mode guard checks,
// are serialised; accessors may be called concurrently with a running
// command.
type Bot struct {
	exec    Executor
	address string

	cmdMu sync.Mutex // held for the whole of a command

	mu       sync.RWMutex
	dualMode bool
	state    protocol.DeviceState
	hasState bool
	last     protocol.Outcome
}

// New creates a Bot talking to address through adapter. An empty password
// sends commands unauthenticated.
func New(adapter ble.Adapter, address, password string, opts Options) (*Bot, error) {
	if address == "" {
		return nil, fmt.Errorf("switchbot: address must not be empty")
	}
	if opts.RetryCount < 0 {
		return nil, fmt.Errorf("switchbot: retry count must be >= 0, got %d", opts.RetryCount)
	}
	clientOpts := ble.DefaultClientOptions()
	clientOpts.RetryCount = opts.RetryCount
	client, err := ble.NewClient(adapter, protocol.NewIdentity(address, password), clientOpts)
	if err != nil {
		return nil, err
	}
	return NewWithExecutor(client, address, opts.DualMode), nil
}

// NewWithExecutor creates a Bot on top of an existing Executor.
// Panics if exec is nil (programmer error).
func NewWithExecutor(exec Executor, address string, dualMode bool) *Bot {
	if exec == nil {
		panic("switchbot: NewWithExecutor called with nil executor")
	}
	return &Bot{exec: exec, address: address, dualMode: dualMode}
}

// Address returns the device address.
func (b *Bot) Address() string {
	return b.address
}

// TurnOn switches a dual-mode device on.
func (b *Bot) TurnOn() (bool, error) {
	return b.action(protocol.ActionOn, true)
}

// TurnOff switches a dual-mode device off.
func (b *Bot) TurnOff() (bool, error) {
	return b.action(protocol.ActionOff, true)
}

// Press triggers a press-mode device.
func (b *Bot) Press() (bool, error) {
	return b.action(protocol.ActionPress, false)
}

// SetMode switches between press mode and dual (on/off) mode. inverse
// swaps the on/off directions and only applies in dual mode.
func (b *Bot) SetMode(dualMode, inverse bool) (bool, error) {
	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()
	return b.run(protocol.ModeCommand(dualMode, inverse))
}

// GetSettings queries battery, firmware and mode flags.
func (b *Bot) GetSettings() (bool, error) {
	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()
	return b.run(protocol.InfoCommand())
}

// action checks the mode guard and sends a under the same lock, so a
// concurrent SetMode cannot slip in between.
func (b *Bot) action(a protocol.Action, needDual bool) (bool, error) {
	b.cmdMu.Lock()
	defer b.cmdMu.Unlock()

	if dual := b.ConfiguredDualMode(); dual != needDual {
		slog.Warn("[BOT] action not valid in current mode",
			"mac", b.address, "action", a.String(), "dual_mode", dual)
		return false, fmt.Errorf("%w: %s", ErrModeMismatch, a)
	}
	return b.run(protocol.ActionCommand(a))
}

// run executes cmd and folds the outcome into the Bot's state. The caller
// holds cmdMu. The bool is false for any device or transport failure; the
// error is set only for undecodable replies.
func (b *Bot) run(cmd protocol.Command) (bool, error) {
	out, err := b.exec.Execute(cmd)
	if err != nil {
		out = protocol.Outcome{Status: protocol.StatusUnknown, Cause: err}
	}

	b.mu.Lock()
	b.last = out
	if out.Success {
		switch cmd.Kind {
		case protocol.KindInfo:
			if out.State != nil {
				b.state = *out.State
				b.hasState = true
			}
		case protocol.KindMode:
			b.dualMode = cmd.DualMode
		}
	}
	b.mu.Unlock()

	if err != nil {
		return false, err
	}
	if !out.Success {
		slog.Warn("[BOT] command failed",
			"mac", b.address, "command", cmd.String(),
			"status", out.Status.String(), "message", out.Status.Message())
		return false, nil
	}
	return true, nil
}

// ConfiguredDualMode reports the mode the action guards check against.
func (b *Bot) ConfiguredDualMode() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dualMode
}

// State returns the settings from the last successful GetSettings, and
// false if there has been none.
func (b *Bot) State() (protocol.DeviceState, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.hasState
}

// Battery returns the last reported battery percentage, and false before
// the first successful GetSettings.
func (b *Bot) Battery() (int, bool) {
	s, ok := b.State()
	return s.Battery, ok
}

// Firmware returns the last reported firmware version, and false before
// the first successful GetSettings.
func (b *Bot) Firmware() (string, bool) {
	s, ok := b.State()
	return s.Firmware, ok
}

// DualMode returns the last reported dual-mode flag.
func (b *Bot) DualMode() bool {
	s, _ := b.State()
	return s.DualMode
}

// InverseMode returns the last reported inverse flag.
func (b *Bot) InverseMode() bool {
	s, _ := b.State()
	return s.InverseMode
}

// LastOutcome returns the outcome of the most recent command.
func (b *Bot) LastOutcome() protocol.Outcome {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}
