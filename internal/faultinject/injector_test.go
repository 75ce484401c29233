package faultinject

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownProfile(t *testing.T) {
	_, err := New("brutal", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid FAIL_PROFILE")
}

func TestNoneProfileNeverFires(t *testing.T) {
	inj, err := New("none", 42)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		eventID := fmt.Sprintf("evt-%04d", i)
		assert.False(t, inj.ShouldRaiseWorkerException(eventID, 1))
		assert.False(t, inj.ShouldFailRedisSimulation(eventID, 1))
	}
}

func TestDecisionsAreDeterministic(t *testing.T) {
	a, err := New("harsh", 42)
	require.NoError(t, err)
	b, err := New("harsh", 42)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		eventID := fmt.Sprintf("evt-%04d", i)
		for attempt := int32(1); attempt <= 3; attempt++ {
			assert.Equal(t,
				a.ShouldRaiseWorkerException(eventID, attempt),
				b.ShouldRaiseWorkerException(eventID, attempt),
			)
			assert.Equal(t,
				a.ShouldFailRedisSimulation(eventID, attempt),
				b.ShouldFailRedisSimulation(eventID, attempt),
			)
		}
	}
}

func TestSeedChangesDecisions(t *testing.T) {
	a, err := New("harsh", 42)
	require.NoError(t, err)
	b, err := New("harsh", 43)
	require.NoError(t, err)

	diverged := false
	for i := 0; i < 2000 && !diverged; i++ {
		eventID := fmt.Sprintf("evt-%04d", i)
		if a.ShouldRaiseWorkerException(eventID, 1) != b.ShouldRaiseWorkerException(eventID, 1) {
			diverged = true
		}
	}
	assert.True(t, diverged, "different seeds should eventually disagree")
}

func TestAttemptsSeeFreshDecisions(t *testing.T) {
	inj, err := New("harsh", 42)
	require.NoError(t, err)

	// Find an event that fails on some attempt, then check it is not
	// doomed on every attempt: retries must be able to make progress.
	for i := 0; i < 5000; i++ {
		eventID := fmt.Sprintf("evt-%04d", i)
		if !inj.ShouldRaiseWorkerException(eventID, 1) {
			continue
		}
		allFail := true
		for attempt := int32(2); attempt <= 7; attempt++ {
			if !inj.ShouldRaiseWorkerException(eventID, attempt) {
				allFail = false
				break
			}
		}
		assert.False(t, allFail, "event %s fails on every attempt", eventID)
		return
	}
	t.Fatal("harsh profile produced no worker exception in 5000 events")
}

func TestHarshRatesAreRoughlyCalibrated(t *testing.T) {
	inj, err := New("harsh", 42)
	require.NoError(t, err)

	fails := 0
	const n = 10_000
	for i := 0; i < n; i++ {
		if inj.ShouldRaiseWorkerException(fmt.Sprintf("evt-%05d", i), 1) {
			fails++
		}
	}

	rate := float64(fails) / n
	assert.InDelta(t, 0.05, rate, 0.01)
}

func TestDBDelaySleepsOnHit(t *testing.T) {
	inj, err := New("harsh", 42)
	require.NoError(t, err)

	var slept time.Duration
	inj.sleep = func(d time.Duration) { slept += d }

	hit := false
	for i := 0; i < 2000 && !hit; i++ {
		inj.MaybeApplyDBDelay(fmt.Sprintf("evt-%04d", i), 1)
		hit = slept > 0
	}
	require.True(t, hit, "harsh profile produced no db delay in 2000 events")
	assert.Zero(t, slept%dbDelayDuration)
}

func TestScoreIsInUnitInterval(t *testing.T) {
	inj, err := New("mild", 7)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		s := inj.score("db_delay", fmt.Sprintf("evt-%04d", i), 1)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.Less(t, s, 1.0)
	}
}
