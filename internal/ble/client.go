package ble

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/switchbot-go/internal/ble/protocol"
)

// ClientOptions configures the BLE client behavior.
type ClientOptions struct {
	RetryCount     int           // extra attempts after the first
	ConnectTimeout time.Duration // per-attempt connect bound (default 10s)
	NotifyTimeout  time.Duration // wait for the reply notification (default 3s)
	SettleDelay    time.Duration // hold the link open after the reply (default 1s)
	RetryBackoff   time.Duration // fixed pause between attempts (default 200ms)
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RetryCount:     3,
		ConnectTimeout: 10 * time.Second,
		NotifyTimeout:  3 * time.Second,
		SettleDelay:    1 * time.Second,
		RetryBackoff:   200 * time.Millisecond,
	}
}

// Client sends commands to one SwitchBot. Every attempt opens its own
// connection and closes it before returning. A Client is not safe for
// concurrent Execute calls; callers serialise commands per peripheral.
type Client struct {
	adapter Adapter
	id      protocol.Identity
	opts    ClientOptions

	sleep func(time.Duration)
}

// NewClient creates a BLE client for the given device identity.
func NewClient(adapter Adapter, id protocol.Identity, opts ClientOptions) (*Client, error) {
	if adapter == nil {
		return nil, fmt.Errorf("ble: adapter must not be nil")
	}
	if id.Address == "" {
		return nil, fmt.Errorf("ble: device address must not be empty")
	}
	if opts.RetryCount < 0 {
		return nil, fmt.Errorf("ble: retry count must be >= 0, got %d", opts.RetryCount)
	}
	defaults := DefaultClientOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaults.ConnectTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaults.NotifyTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaults.SettleDelay
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaults.RetryBackoff
	}
	return &Client{
		adapter: adapter,
		id:      id,
		opts:    opts,
		sleep:   time.Sleep,
	}, nil
}

// Address returns the peripheral address this client talks to.
func (c *Client) Address() string {
	return c.id.Address
}

// Execute runs cmd with up to RetryCount retries. It returns the first
// successful outcome, or the last failed one once retries run out. The
// error is non-nil only for a frame that cannot be decoded, which is
// never retried.
func (c *Client) Execute(cmd protocol.Command) (protocol.Outcome, error) {
	payload := protocol.EncodeBytes(cmd, c.id)

	var last protocol.Outcome
	for attempt := 0; attempt <= c.opts.RetryCount; attempt++ {
		if attempt > 0 {
			slog.Warn("[BLE] command failed, retrying",
				"mac", c.id.Address,
				"command", cmd.String(),
				"status", last.Status.String(),
				"remaining", c.opts.RetryCount-attempt+1)
			c.sleep(c.opts.RetryBackoff)
		}

		out, err := c.attempt(cmd, payload)
		if err != nil {
			slog.Error("[BLE] cannot decode notification, giving up",
				"mac", c.id.Address, "command", cmd.String(), "error", err)
			return out, fmt.Errorf("ble: %s: %w", cmd, err)
		}
		if out.Success {
			slog.Info("[BLE] command complete", "mac", c.id.Address, "command", cmd.String(), "attempt", attempt+1)
			return out, nil
		}
		last = out
	}

	c.logExhausted(cmd, last)
	return last, nil
}

// attempt performs one connect/subscribe/write/await/settle/disconnect cycle.
func (c *Client) attempt(cmd protocol.Command, payload []byte) (protocol.Outcome, error) {
	if err := c.adapter.Enable(); err != nil {
		return protocol.ConnectFailed(fmt.Errorf("ble: enable adapter: %w", err)), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	slog.Debug("[BLE] connecting", "mac", c.id.Address)
	conn, err := c.adapter.Connect(ctx, c.id.Address)
	if err != nil {
		slog.Debug("[BLE] connect failed", "mac", c.id.Address, "error", err)
		return protocol.ConnectFailed(err), nil
	}
	defer func() {
		slog.Debug("[BLE] disconnecting", "mac", c.id.Address)
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[BLE] error disconnecting", "mac", c.id.Address, "error", err)
		}
	}()

	cmdChar, err := conn.DiscoverCharacteristic(ServiceUUID, CommandCharUUID)
	if err != nil {
		return protocol.ConnectFailed(fmt.Errorf("ble: discover command characteristic: %w", err)), nil
	}
	notifyChar, err := conn.DiscoverCharacteristic(ServiceUUID, NotifyCharUUID)
	if err != nil {
		return protocol.ConnectFailed(fmt.Errorf("ble: discover notify characteristic: %w", err)), nil
	}

	// Only the first frame of an attempt is interpreted.
	frames := make(chan []byte, 1)
	if err := notifyChar.Subscribe(func(data []byte) {
		select {
		case frames <- data:
		default:
		}
	}); err != nil {
		return protocol.ConnectFailed(fmt.Errorf("ble: enable notifications: %w", err)), nil
	}

	slog.Debug("[BLE] sending command", "mac", c.id.Address, "command", cmd.String(), "payload", hex.EncodeToString(payload))
	if err := cmdChar.Write(payload); err != nil {
		slog.Error("[BLE] command not acknowledged", "mac", c.id.Address, "error", err)
		return protocol.ConnectFailed(fmt.Errorf("ble: write command: %w", err)), nil
	}

	out, err := c.await(cmd.Kind, frames)
	c.sleep(c.opts.SettleDelay)
	return out, err
}

// await blocks until a notification arrives or NotifyTimeout elapses.
func (c *Client) await(kind protocol.CommandKind, frames <-chan []byte) (protocol.Outcome, error) {
	timer := time.NewTimer(c.opts.NotifyTimeout)
	defer timer.Stop()

	select {
	case frame := <-frames:
		slog.Debug("[BLE] notification", "mac", c.id.Address, "frame", hex.EncodeToString(frame))
		return protocol.Interpret(kind, frame)
	case <-timer.C:
		slog.Debug("[BLE] no notification", "mac", c.id.Address, "timeout", c.opts.NotifyTimeout)
		return protocol.NoResponse(), nil
	}
}

// logExhausted reports why the final attempt failed. Transport errors,
// device-reported statuses and silent timeouts are logged distinctly.
func (c *Client) logExhausted(cmd protocol.Command, last protocol.Outcome) {
	attempts := c.opts.RetryCount + 1
	switch last.Status {
	case protocol.StatusConnectFailed:
		slog.Error("[BLE] communication failed, stopping: transport error",
			"mac", c.id.Address, "command", cmd.String(), "attempts", attempts, "error", last.Cause)
	case protocol.StatusNoResponse:
		slog.Error("[BLE] communication failed, stopping: no response",
			"mac", c.id.Address, "command", cmd.String(), "attempts", attempts, "timeout", c.opts.NotifyTimeout)
	default:
		slog.Error("[BLE] communication failed, stopping: device reported an error",
			"mac", c.id.Address, "command", cmd.String(), "attempts", attempts,
			"status", last.Status.String(), "message", last.Status.Message())
	}
}
