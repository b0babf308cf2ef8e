package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func trippingBreaker(failures uint32, timeout time.Duration) *Breaker {
	return New("test", Settings{
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := trippingBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := trippingBreaker(3, time.Minute)

	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errBoom })
	b.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := trippingBreaker(1, 20*time.Millisecond)

	b.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	err := b.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := trippingBreaker(1, 20*time.Millisecond)

	b.Execute(func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	err := b.Execute(func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("runtime", Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(c Counts) bool {
			return c.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
		},
	})

	b.Execute(func() error { return errBoom })
	require.Equal(t, []string{"runtime:closed->open"}, transitions)
}
