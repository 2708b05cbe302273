package upload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay_InitialClamped(t *testing.T) {
	t.Parallel()

	d := newDelay(time.Second, 10*time.Second, 100*time.Second, 0.1)
	assert.Equal(t, 10*time.Second, d.Current())

	d = newDelay(time.Second, 10*time.Second, time.Millisecond, 0.1)
	assert.Equal(t, time.Second, d.Current())
}

func TestDelay_IncreaseConvergesToMax(t *testing.T) {
	t.Parallel()

	d := newDelay(time.Second, 5*time.Second, time.Second, 0.5)
	prev := d.Current()
	for i := 0; i < 20; i++ {
		d.Increase()
		assert.GreaterOrEqual(t, d.Current(), prev)
		prev = d.Current()
	}
	assert.Equal(t, 5*time.Second, d.Current())
}

func TestDelay_DecreaseConvergesToMin(t *testing.T) {
	t.Parallel()

	d := newDelay(time.Second, 5*time.Second, 5*time.Second, 0.5)
	for i := 0; i < 20; i++ {
		d.Decrease()
	}
	assert.Equal(t, time.Second, d.Current())
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeSuccess},
		{202, OutcomeSuccess},
		{299, OutcomeSuccess},
		{301, OutcomeClientError},
		{400, OutcomeClientError},
		{403, OutcomeClientError},
		{408, OutcomeRetryable},
		{413, OutcomeClientError},
		{429, OutcomeRetryable},
		{500, OutcomeRetryable},
		{503, OutcomeRetryable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.status), "status %d", tt.status)
	}
}
