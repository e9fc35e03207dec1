// Package telemetry records reported SwitchBot settings in InfluxDB.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/chaz8081/switchbot-go/internal/ble/protocol"
	"github.com/chaz8081/switchbot-go/internal/config"
)

// Measurement is the InfluxDB measurement written for each state report.
const Measurement = "switchbot_state"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 20
	defaultFlushMillis    = 5000
)

// Writer batches state points through the non-blocking write API. Safe
// for concurrent use.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu     sync.RWMutex
	closed bool
}

// Connect pings the server and opens a write API for cfg.Org/cfg.Bucket.
func Connect(cfg config.InfluxDBConfig) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(defaultFlushMillis),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	w := &Writer{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go w.logWriteErrors(w.writeAPI.Errors())

	slog.Info("[TELEMETRY] connected", "url", cfg.URL, "bucket", cfg.Bucket)
	return w, nil
}

func (w *Writer) logWriteErrors(errs <-chan error) {
	for err := range errs {
		slog.Warn("[TELEMETRY] write failed", "error", err)
	}
}

// WriteState queues one point for the device at address. It never blocks
// on the network.
func (w *Writer) WriteState(address string, state protocol.DeviceState) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	w.writeAPI.WritePoint(statePoint(address, state, time.Now()))
}

// Close flushes pending points and closes the client. Safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.client == nil {
		return nil
	}
	w.closed = true
	w.writeAPI.Flush()
	w.client.Close()
	return nil
}

func statePoint(address string, state protocol.DeviceState, ts time.Time) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{"address": address},
		map[string]interface{}{
			"battery":      state.Battery,
			"firmware":     state.Firmware,
			"dual_mode":    state.DualMode,
			"inverse_mode": state.InverseMode,
		},
		ts,
	)
}
