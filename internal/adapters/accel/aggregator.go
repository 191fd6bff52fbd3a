// Package accel unifies heterogeneous accelerator probes behind a single
// aggregator that merges their samples into one snapshot.
package accel

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/ports"
)

// Aggregator owns every live accelerator backend and merges their samples
// under "accelerator.<index>.<field>" keys. Device indices are offset per
// backend so two backends never collide; gaps are allowed and consumers
// discover indices by scanning keys.
type Aggregator struct {
	log      *zap.Logger
	backends []ports.AcceleratorBackend
	// counts holds the last-known device count per backend, so a backend
	// whose Metadata call fails mid-sample still reserves its global index
	// range instead of shifting later backends into it.
	counts []int
	mu     sync.Mutex
}

// NewAggregator builds an aggregator over the given backends and primes
// each backend's device count.
func NewAggregator(log *zap.Logger, backends ...ports.AcceleratorBackend) *Aggregator {
	a := &Aggregator{log: log, backends: backends, counts: make([]int, len(backends))}
	for i, b := range backends {
		meta, err := b.Metadata()
		if err != nil {
			log.Warn("accelerator metadata failed",
				zap.String("kind", b.Kind()), zap.Error(err))
			continue
		}
		a.counts[i] = meta.DeviceCount
	}
	return a
}

// Discover probes for every compiled-in accelerator backend and returns an
// aggregator over the ones that initialized. A host without accelerators
// yields an empty aggregator, not an error.
func Discover(log *zap.Logger, enableProfiling bool) *Aggregator {
	var backends []ports.AcceleratorBackend

	if b, err := NewNVML(log, enableProfiling); err != nil {
		if !errors.Is(err, domain.ErrNoDevices) {
			log.Warn("nvml backend unavailable", zap.Error(err))
		}
	} else {
		backends = append(backends, b)
	}

	return NewAggregator(log, backends...)
}

// BackendCount reports how many backends are live.
func (a *Aggregator) BackendCount() int { return len(a.backends) }

// Sample collects metrics from every backend. Device indices are global:
// each backend's local indices are shifted by the device count of the
// backends before it. A failing backend is logged and skipped; the filter
// in deviceIDs (global indices, empty means all) restricts collection.
func (a *Aggregator) Sample(pid int32, deviceIDs []int32) domain.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := make(domain.Snapshot)
	offset := 0
	for i, b := range a.backends {
		meta, err := b.Metadata()
		if err != nil {
			a.log.Warn("accelerator metadata failed",
				zap.String("kind", b.Kind()), zap.Error(err))
			offset += a.counts[i]
			continue
		}
		a.counts[i] = meta.DeviceCount

		samples, err := b.Sample(pid, localize(deviceIDs, offset, meta.DeviceCount))
		if err != nil {
			a.log.Warn("accelerator sample failed",
				zap.String("kind", b.Kind()), zap.Error(err))
			offset += meta.DeviceCount
			continue
		}

		for _, ds := range samples {
			global := offset + ds.Index
			for field, v := range ds.Fields {
				snap[fmt.Sprintf("accelerator.%d.%s", global, field)] = v
			}
		}
		offset += meta.DeviceCount
	}
	return snap
}

// localize maps global device indices into one backend's local index space,
// dropping indices that belong to other backends. A nil filter stays nil.
func localize(deviceIDs []int32, offset, count int) []int32 {
	if len(deviceIDs) == 0 {
		return nil
	}
	local := make([]int32, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		l := int(id) - offset
		if l >= 0 && l < count {
			local = append(local, int32(l))
		}
	}
	return local
}

// Metadata merges the static descriptors of every backend.
func (a *Aggregator) Metadata() (int, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var count int
	var descriptions []string
	for _, b := range a.backends {
		meta, err := b.Metadata()
		if err != nil {
			a.log.Warn("accelerator metadata failed",
				zap.String("kind", b.Kind()), zap.Error(err))
			continue
		}
		count += meta.DeviceCount
		descriptions = append(descriptions, meta.Devices...)
	}
	return count, descriptions
}

// Shutdown tears down every backend and joins their errors. It is safe to
// call more than once; backends treat repeated shutdown as a no-op.
func (a *Aggregator) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, b := range a.backends {
		if err := b.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Kind(), err))
		}
	}
	return errors.Join(errs...)
}
