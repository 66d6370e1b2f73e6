package backpressure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_MonotoneAndSaturating(t *testing.T) {
	c, err := New(DefaultSteps(), false)
	require.NoError(t, err)

	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		got := c.Interval()
		assert.GreaterOrEqual(t, got, prev, "interval shrank at %d failures", i)
		assert.LessOrEqual(t, got, 60*time.Second, "interval exceeded cap at %d failures", i)
		prev = got
		c.RecordFailure()
	}
	assert.Equal(t, 60*time.Second, c.Interval())
}

func TestInterval_StepBoundaries(t *testing.T) {
	c, err := New(DefaultSteps(), false)
	require.NoError(t, err)

	want := map[int]time.Duration{
		0: 10 * time.Second,
		2: 10 * time.Second,
		3: 30 * time.Second,
		5: 30 * time.Second,
		6: 60 * time.Second,
		9: 60 * time.Second,
	}
	for failures, interval := range want {
		assert.Equal(t, interval, c.intervalFor(failures), "at %d failures", failures)
	}
}

func TestRecordSuccess_ImmediateReset(t *testing.T) {
	c, err := New(DefaultSteps(), false)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		c.RecordFailure()
	}
	require.Equal(t, 60*time.Second, c.Interval())

	c.RecordSuccess()
	assert.Zero(t, c.Failures())
	assert.Equal(t, 10*time.Second, c.Interval())
}

func TestRecordSuccess_GradualStepDown(t *testing.T) {
	c, err := New(DefaultSteps(), true)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		c.RecordFailure()
	}
	before := c.Interval()

	// A single success never yields a larger interval than before it.
	c.RecordSuccess()
	assert.LessOrEqual(t, c.Interval(), before)
	assert.Equal(t, 6, c.Failures())

	// Repeated successes walk the interval back down to base.
	for i := 0; i < 6; i++ {
		c.RecordSuccess()
	}
	assert.Zero(t, c.Failures())
	assert.Equal(t, 10*time.Second, c.Interval())

	// Success at zero stays at zero.
	c.RecordSuccess()
	assert.Zero(t, c.Failures())
}

func TestValidateSteps(t *testing.T) {
	cases := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{
			name:  "default table valid",
			steps: DefaultSteps(),
		},
		{
			name:    "missing zero step",
			steps:   []Step{{Failures: 1, Interval: time.Second}},
			wantErr: true,
		},
		{
			name: "unsorted failure counts",
			steps: []Step{
				{Failures: 0, Interval: time.Second},
				{Failures: 5, Interval: 2 * time.Second},
				{Failures: 3, Interval: 3 * time.Second},
			},
			wantErr: true,
		},
		{
			name: "duplicate failure floor",
			steps: []Step{
				{Failures: 0, Interval: 10 * time.Second},
				{Failures: 3, Interval: 30 * time.Second},
				{Failures: 3, Interval: 60 * time.Second},
			},
			wantErr: true,
		},
		{
			name: "shrinking interval",
			steps: []Step{
				{Failures: 0, Interval: 10 * time.Second},
				{Failures: 3, Interval: 5 * time.Second},
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSteps(tc.steps)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
