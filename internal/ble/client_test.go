package ble

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/chaz8081/switchbot-go/internal/ble/protocol"
)

const testMAC = "E4:8F:12:34:56:78"

// zeroDelayOpts keeps real waits short; settle and backoff sleeps are
// captured by recordSleeps instead.
func zeroDelayOpts(retries int) ClientOptions {
	return ClientOptions{
		RetryCount:     retries,
		ConnectTimeout: time.Second,
		NotifyTimeout:  10 * time.Millisecond,
		SettleDelay:    time.Second,
		RetryBackoff:   200 * time.Millisecond,
	}
}

func mustNewClient(t *testing.T, adapter Adapter, password string, opts ClientOptions) *Client {
	t.Helper()
	client, err := NewClient(adapter, protocol.NewIdentity(testMAC, password), opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

// recordSleeps replaces the client's sleep with a recorder.
func recordSleeps(c *Client) *[]time.Duration {
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return &sleeps
}

func TestNewClientValidation(t *testing.T) {
	adapter := newMockAdapter(nil)

	if _, err := NewClient(nil, protocol.NewIdentity(testMAC, ""), DefaultClientOptions()); err == nil {
		t.Error("NewClient(nil adapter) should fail")
	}
	if _, err := NewClient(adapter, protocol.NewIdentity("", ""), DefaultClientOptions()); err == nil {
		t.Error("NewClient(empty address) should fail")
	}
	opts := DefaultClientOptions()
	opts.RetryCount = -1
	if _, err := NewClient(adapter, protocol.NewIdentity(testMAC, ""), opts); err == nil {
		t.Error("NewClient(negative retry count) should fail")
	}
}

func TestNewClientFillsDefaults(t *testing.T) {
	client := mustNewClient(t, newMockAdapter(nil), "", ClientOptions{})
	want := DefaultClientOptions()
	want.RetryCount = 0
	if client.opts != want {
		t.Errorf("opts = %+v, want %+v", client.opts, want)
	}
	if client.Address() != testMAC {
		t.Errorf("Address() = %q, want %q", client.Address(), testMAC)
	}
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x01, 0x00}}
	client := mustNewClient(t, adapter, "", zeroDelayOpts(3))
	sleeps := recordSleeps(client)

	out, err := client.Execute(protocol.ActionCommand(protocol.ActionOn))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.Success || out.Status != protocol.StatusComplete {
		t.Errorf("Execute() = %+v, want success", out)
	}
	if got := adapter.connectCount(); got != 1 {
		t.Errorf("connects = %d, want 1", got)
	}

	conn := adapter.latestConnection()
	if len(conn.cmdChar.writes) != 1 || !bytes.Equal(conn.cmdChar.writes[0], []byte{0x57, 0x01, 0x01}) {
		t.Errorf("writes = %x, want [570101]", conn.cmdChar.writes)
	}
	// Only the settle delay, no backoff.
	if !reflect.DeepEqual(*sleeps, []time.Duration{time.Second}) {
		t.Errorf("sleeps = %v, want [1s]", *sleeps)
	}
}

func TestExecuteAttemptOrdering(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x01}}
	client := mustNewClient(t, adapter, "", zeroDelayOpts(0))
	recordSleeps(client)

	if _, err := client.Execute(protocol.ActionCommand(protocol.ActionPress)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []string{"subscribe:notify", "write:command", "disconnect"}
	if got := adapter.latestConnection().eventLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestExecuteWritesPasswordCommand(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x01}}
	client := mustNewClient(t, adapter, "123456789", zeroDelayOpts(0))
	recordSleeps(client)

	if _, err := client.Execute(protocol.ActionCommand(protocol.ActionOff)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []byte{0x57, 0x11, 0xcb, 0xf4, 0x39, 0x26, 0x02}
	if got := adapter.latestConnection().cmdChar.writes[0]; !bytes.Equal(got, want) {
		t.Errorf("write = %x, want %x", got, want)
	}
}

func TestExecuteInfoReturnsState(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x01, 77, 21, 0, 0, 0, 0, 0, 0, 0x11}}
	client := mustNewClient(t, adapter, "", zeroDelayOpts(3))
	recordSleeps(client)

	out, err := client.Execute(protocol.InfoCommand())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.State == nil {
		t.Fatal("Execute(info) returned no state")
	}
	want := protocol.DeviceState{Battery: 77, Firmware: "2.1", DualMode: true, InverseMode: true}
	if *out.State != want {
		t.Errorf("State = %+v, want %+v", *out.State, want)
	}
}

func TestExecuteWrongModeAlreadyInStateNoRetry(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x05, 0xFF}}
	client := mustNewClient(t, adapter, "", zeroDelayOpts(3))
	recordSleeps(client)

	out, err := client.Execute(protocol.ModeCommand(true, false))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !out.Success {
		t.Errorf("Execute() = %+v, want success", out)
	}
	if got := adapter.connectCount(); got != 1 {
		t.Errorf("connects = %d, want 1", got)
	}
}

func TestExecuteUnrecognizedStatusIsTerminal(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.replies = [][]byte{{0x42}}
	client := mustNewClient(t, adapter, "", zeroDelayOpts(3))
	recordSleeps(client)

	out, err := client.Execute(protocol.ActionCommand(protocol.ActionOn))
	if !errors.Is(err, protocol.ErrUnrecognizedStatus) {
		t.Fatalf("Execute() error = %v, want ErrUnrecognizedStatus", err)
	}
	if out.Success {
		t.Error("Execute() should not report success on a decode error")
	}
	if got := adapter.connectCount(); got != 1 {
		t.Errorf("connects = %d, want 1 (protocol errors are not retried)", got)
	}
	if got := adapter.latestConnection().disconnectCount(); got != 1 {
		t.Errorf("disconnects = %d, want 1", got)
	}
}
