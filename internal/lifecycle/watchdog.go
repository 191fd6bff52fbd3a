package lifecycle

import (
	"os"
	"time"

	"go.uber.org/zap"
)

// How often the watchdog confirms the parent process is still alive.
const watchdogInterval = 5 * time.Second

// Watchdog polls parent liveness in the background and fires the shutdown
// signal exactly once when the parent is gone, then stops itself.
type Watchdog struct {
	log       *zap.Logger
	signal    *ShutdownSignal
	alive     func(pid int) bool
	interval  time.Duration
	parentPID int
}

// NewWatchdog builds a watchdog for the given parent pid. The parent
// counts as alive while it is still our direct parent; re-parenting (the
// original parent died and init adopted us) counts as parent death.
func NewWatchdog(parentPID int, signal *ShutdownSignal, log *zap.Logger) *Watchdog {
	return &Watchdog{
		log:       log,
		signal:    signal,
		alive:     func(pid int) bool { return os.Getppid() == pid },
		interval:  watchdogInterval,
		parentPID: parentPID,
	}
}

// Start launches the poll loop in its own goroutine. The loop terminates
// after firing, or as soon as the signal fires elsewhere.
func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) run() {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-w.signal.Done():
			return
		case <-t.C:
			if !w.alive(w.parentPID) {
				w.log.Info("parent process gone, shutting down",
					zap.Int("parent_pid", w.parentPID))
				w.signal.Fire()
				return
			}
		}
	}
}
