// Package system implements the CPU, memory, disk and network monitors on
// top of gopsutil platform probes.
package system

import "time"

// RateWindow turns a monotonically increasing counter into a per-second
// rate. It keeps the previous observation and is safe against counter
// resets: a decrease is treated as a reset and yields a zero delta, never a
// negative or wrapped value. Each counter family owns its own window.
type RateWindow struct {
	prevTime  time.Time
	prevValue uint64
	primed    bool
}

// Observe records the current counter value and returns the rate since the
// previous observation. The second result is false when no rate is
// available: on the very first observation (the window is only primed) and
// when the clock did not move forward (the window is left untouched).
func (w *RateWindow) Observe(value uint64, now time.Time) (float64, bool) {
	if !w.primed {
		w.prevValue = value
		w.prevTime = now
		w.primed = true
		return 0, false
	}

	elapsed := now.Sub(w.prevTime).Seconds()
	if elapsed <= 0 {
		return 0, false
	}

	var delta uint64
	if value >= w.prevValue {
		delta = value - w.prevValue
	}

	w.prevValue = value
	w.prevTime = now
	return float64(delta) / elapsed, true
}
