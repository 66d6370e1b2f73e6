// Package backpressure throttles the measurement cadence while the remote
// authority is unhealthy, so the device sheds load instead of piling up work
// it cannot sync.
package backpressure

import (
	"fmt"
	"sync"
	"time"
)

// Step maps a failure-count floor to a poll interval. The controller picks
// the step with the highest Failures value not exceeding the current count,
// so the resulting interval is monotone non-decreasing and saturates at the
// last step - the device always keeps producing some data.
type Step struct {
	Failures int
	Interval time.Duration
}

// DefaultSteps is the stock table: healthy 10s, degraded 30s, capped 60s.
func DefaultSteps() []Step {
	return []Step{
		{Failures: 0, Interval: 10 * time.Second},
		{Failures: 3, Interval: 30 * time.Second},
		{Failures: 6, Interval: 60 * time.Second},
	}
}

// Controller tracks consecutive sync failures and maps them to a poll
// interval. Safe for concurrent use: the sync engine records outcomes while
// the poller reads the interval.
type Controller struct {
	mu       sync.Mutex
	steps    []Step
	gradual  bool
	failures int
}

// New builds a controller from a step table. With gradual set, a success
// steps the failure count down by one instead of resetting it, which avoids
// oscillating between the base and maximum interval when the remote is
// flapping.
func New(steps []Step, gradual bool) (*Controller, error) {
	if len(steps) == 0 {
		steps = DefaultSteps()
	}
	if err := ValidateSteps(steps); err != nil {
		return nil, err
	}
	c := &Controller{steps: make([]Step, len(steps)), gradual: gradual}
	copy(c.steps, steps)
	return c, nil
}

// ValidateSteps checks that the table starts at zero failures, that failure
// counts are strictly ascending (a duplicate floor would make one row
// silently shadow the other), and that intervals never shrink.
func ValidateSteps(steps []Step) error {
	if steps[0].Failures != 0 {
		return fmt.Errorf("backpressure: first step must cover 0 failures, got %d", steps[0].Failures)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Failures <= steps[i-1].Failures {
			return fmt.Errorf("backpressure: step failure counts must be strictly ascending, %d follows %d",
				steps[i].Failures, steps[i-1].Failures)
		}
		if steps[i].Interval < steps[i-1].Interval {
			return fmt.Errorf("backpressure: interval at %d failures (%s) shrinks below previous step (%s)",
				steps[i].Failures, steps[i].Interval, steps[i-1].Interval)
		}
	}
	return nil
}

// RecordFailure notes a failed or circuit-rejected sync attempt.
func (c *Controller) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
}

// RecordSuccess notes a successful sync. Recovery is a policy knob: immediate
// reset, or gradual linear step-down.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.gradual {
		c.failures = 0
		return
	}
	if c.failures > 0 {
		c.failures--
	}
}

// Failures returns the current failure count.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Interval returns the poll interval for the current failure count.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intervalFor(c.failures)
}

func (c *Controller) intervalFor(failures int) time.Duration {
	interval := c.steps[0].Interval
	for _, s := range c.steps {
		if failures < s.Failures {
			break
		}
		interval = s.Interval
	}
	return interval
}
