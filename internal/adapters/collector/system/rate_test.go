package system

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateWindow_FirstObservationPrimesOnly(t *testing.T) {
	var w RateWindow
	rate, ok := w.Observe(1000, time.Now())
	assert.False(t, ok)
	assert.Zero(t, rate)
}

func TestRateWindow_IncreasingCounter(t *testing.T) {
	var w RateWindow
	t0 := time.Now()
	w.Observe(1000, t0)

	rate, ok := w.Observe(3000, t0.Add(2*time.Second))
	require.True(t, ok)
	assert.InDelta(t, 1000.0, rate, 1e-9)
	assert.False(t, math.IsNaN(rate))
	assert.False(t, math.IsInf(rate, 0))
}

func TestRateWindow_CounterResetYieldsZero(t *testing.T) {
	var w RateWindow
	t0 := time.Now()
	w.Observe(5000, t0)

	rate, ok := w.Observe(100, t0.Add(time.Second))
	require.True(t, ok)
	assert.Zero(t, rate)

	// The reset value became the new baseline.
	rate, ok = w.Observe(1100, t0.Add(2*time.Second))
	require.True(t, ok)
	assert.InDelta(t, 1000.0, rate, 1e-9)
}

func TestRateWindow_NonPositiveElapsed(t *testing.T) {
	var w RateWindow
	t0 := time.Now()
	w.Observe(1000, t0)

	_, ok := w.Observe(2000, t0)
	assert.False(t, ok, "zero elapsed must yield no rate")

	_, ok = w.Observe(2000, t0.Add(-time.Second))
	assert.False(t, ok, "clock going backwards must yield no rate")

	// The window keeps the original baseline after the rejected reads.
	rate, ok := w.Observe(2000, t0.Add(time.Second))
	require.True(t, ok)
	assert.InDelta(t, 1000.0, rate, 1e-9)
}

func TestRateWindow_IndependentFamilies(t *testing.T) {
	var read, write RateWindow
	t0 := time.Now()
	read.Observe(100, t0)
	write.Observe(900, t0)

	readRate, ok := read.Observe(200, t0.Add(time.Second))
	require.True(t, ok)
	writeRate, ok := write.Observe(1900, t0.Add(time.Second))
	require.True(t, ok)

	assert.InDelta(t, 100.0, readRate, 1e-9)
	assert.InDelta(t, 1000.0, writeRate, 1e-9)
}
