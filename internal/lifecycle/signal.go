// Package lifecycle coordinates startup and shutdown with the parent
// process: listener selection, the handshake file, the parent-liveness
// watchdog and the one-shot shutdown signal.
package lifecycle

import "sync"

// ShutdownSignal is a one-shot notification. Any number of producers may
// race to fire it; only the first fire closes the channel, the rest are
// no-ops. Firing never blocks and never panics.
type ShutdownSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewShutdownSignal returns an armed signal.
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{ch: make(chan struct{})}
}

// Fire triggers the signal. Idempotent.
func (s *ShutdownSignal) Fire() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel closed once the signal has fired.
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.ch
}

// Fired reports whether the signal has already fired.
func (s *ShutdownSignal) Fired() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
