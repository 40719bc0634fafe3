package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-arp-sim/src/internal/errors"
)

func TestSchedulerOrdersEvents(t *testing.T) {
	s := NewScheduler()
	var got []string
	at := map[string]time.Duration{}

	record := func(name string) func() {
		return func() {
			got = append(got, name)
			at[name] = s.Now()
		}
	}
	s.After(2*time.Second, record("c"))
	s.After(500*time.Millisecond, record("a"))
	s.After(time.Second, func() {
		record("b")()
		s.After(500*time.Millisecond, record("b+"))
	})

	require.NoError(t, s.Run(10*time.Second))
	assert.Equal(t, []string{"a", "b", "b+", "c"}, got)
	assert.Equal(t, 500*time.Millisecond, at["a"])
	assert.Equal(t, 1500*time.Millisecond, at["b+"])
	assert.Equal(t, 2*time.Second, at["c"])
	assert.EqualValues(t, 4, s.Fired())
}

func TestSchedulerFailHaltsRun(t *testing.T) {
	s := NewScheduler()
	ran := 0
	s.After(time.Second, func() {
		ran++
		s.Fail(errors.Protocolf("boom"))
	})
	s.After(2*time.Second, func() { ran++ })

	err := s.Run(time.Minute)
	assert.True(t, errors.IsProtocol(err))
	assert.Equal(t, 1, ran)
	assert.Equal(t, err, s.Err())

	s.Fail(errors.New("second"))
	assert.True(t, errors.IsProtocol(s.Err()), "first failure sticks")
}

func TestFromSeconds(t *testing.T) {
	assert.Equal(t, 3*time.Second, fromSeconds(1.0+1.0+1.0))
	assert.Equal(t, 100*time.Millisecond, fromSeconds(0.1))
}

func TestRunForAdvancesClock(t *testing.T) {
	s := NewScheduler()
	s.After(time.Second, func() {})

	require.NoError(t, s.RunFor(5*time.Second))
	assert.Equal(t, 5*time.Second, s.Now())
	assert.EqualValues(t, 1, s.Fired(), "the clock sentinel is not an event")

	fired := time.Duration(-1)
	s.After(2*time.Second, func() { fired = s.Now() })
	require.NoError(t, s.RunFor(5*time.Second))
	assert.Equal(t, 7*time.Second, fired)
	assert.Equal(t, 10*time.Second, s.Now())
}
