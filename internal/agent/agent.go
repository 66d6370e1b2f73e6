// Package agent runs the measurement loop: each tick it collects one reading
// from every sensor, persists it locally, and pats the systemd watchdog.
package agent

import (
	"context"
	"time"

	"sensorsync/internal/backpressure"
	"sensorsync/internal/logging"
	"sensorsync/internal/sensor"
	"sensorsync/internal/telemetry"
	"sensorsync/internal/watchdog"
)

// ReadingAppender persists one reading. Satisfied by *store.Store.
type ReadingAppender interface {
	Append(ctx context.Context, r telemetry.Reading) (int64, error)
}

// Agent polls the sensor set on a cadence the backpressure controller
// dictates. Persisting locally is the loop's only hard dependency: sync
// trouble slows the cadence but never stops collection.
type Agent struct {
	deviceID      string
	sensors       []sensor.Sensor
	store         ReadingAppender
	pressure      *backpressure.Controller
	dog           *watchdog.Watchdog
	sensorTimeout time.Duration

	now func() time.Time
}

// New builds an agent. The watchdog may be disabled; ticks then skip the
// keepalive.
func New(deviceID string, sensors []sensor.Sensor, store ReadingAppender, pressure *backpressure.Controller, dog *watchdog.Watchdog, sensorTimeout time.Duration) *Agent {
	if sensorTimeout <= 0 {
		sensorTimeout = sensor.DefaultTimeout
	}
	return &Agent{
		deviceID:      deviceID,
		sensors:       sensors,
		store:         store,
		pressure:      pressure,
		dog:           dog,
		sensorTimeout: sensorTimeout,
		now:           time.Now,
	}
}

// Run polls until ctx is cancelled. A timer rather than a ticker, because the
// interval is re-read from the backpressure controller after every tick.
func (a *Agent) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("agent started", "device", a.deviceID, "sensors", len(a.sensors), "interval", a.pressure.Interval())

	a.Tick(ctx)
	timer := time.NewTimer(a.pressure.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("agent stopped")
			return
		case <-timer.C:
			a.Tick(ctx)
			timer.Reset(a.pressure.Interval())
		}
	}
}

// Tick collects one reading and persists it. Storage failures are logged and
// the reading is dropped; the loop itself never dies on a bad tick.
func (a *Agent) Tick(ctx context.Context) {
	log := logging.FromContext(ctx)

	now := a.now()
	reading := telemetry.Reading{
		DeviceID:       a.deviceID,
		TimestampUTC:   now.UTC(),
		TimestampLocal: now,
		Payload:        sensor.Collect(ctx, a.sensors, a.sensorTimeout),
	}

	if _, err := a.store.Append(ctx, reading); err != nil {
		log.Error("persist reading failed", "device", a.deviceID, "err", err)
		return
	}
	a.dog.Notify()
}
