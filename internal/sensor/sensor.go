// Package sensor defines the producer interface and the concurrent fan-out
// that assembles one reading's payload per poll tick.
package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sensorsync/internal/logging"
	"sensorsync/internal/telemetry"
)

// DefaultTimeout bounds a single producer read within a poll tick.
const DefaultTimeout = 5 * time.Second

// Sensor is one measurement producer. Read returns named values; it must
// tolerate being run under a deadline and should honor ctx cancellation.
type Sensor interface {
	Name() string
	Read(ctx context.Context) (map[string]any, error)
}

// Collect runs every sensor concurrently, each under its own timeout, and
// assembles the combined payload. A failing or hanging sensor contributes an
// error entry in its payload slot; it never aborts or delays the rest of the
// tick beyond the timeout.
func Collect(ctx context.Context, sensors []Sensor, timeout time.Duration) telemetry.Payload {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := logging.FromContext(ctx)

	type slot struct {
		name   string
		values map[string]any
	}
	results := make(chan slot, len(sensors))

	var wg sync.WaitGroup
	for _, s := range sensors {
		wg.Add(1)
		go func(s Sensor) {
			defer wg.Done()
			values, err := readWithTimeout(ctx, s, timeout)
			if err != nil {
				log.Error("sensor read failed", "sensor", s.Name(), "err", err)
				values = telemetry.ErrorValues(err)
			}
			results <- slot{name: s.Name(), values: values}
		}(s)
	}
	wg.Wait()
	close(results)

	payload := make(telemetry.Payload, len(sensors))
	for r := range results {
		payload[r.name] = r.values
	}
	return payload
}

// readWithTimeout calls s.Read under a deadline. A sensor that ignores its
// context and hangs leaks its goroutine until it returns, but the tick moves
// on at the deadline.
func readWithTimeout(ctx context.Context, s Sensor, timeout time.Duration) (map[string]any, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		values map[string]any
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		values, err := s.Read(tctx)
		ch <- result{values: values, err: err}
	}()

	select {
	case r := <-ch:
		return r.values, r.err
	case <-tctx.Done():
		return nil, fmt.Errorf("%s timed out after %s", s.Name(), timeout)
	}
}
