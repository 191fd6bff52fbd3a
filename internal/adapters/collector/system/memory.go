package system

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
)

// Usage above this percentage raises the memory.pressure_high flag.
const memoryPressureThreshold = 90.0

// MemoryMonitor samples physical and swap memory.
type MemoryMonitor struct {
	probe MemProbe
	log   *zap.Logger
	mu    sync.Mutex
}

// NewMemory builds a memory monitor over the given probe.
func NewMemory(probe MemProbe, log *zap.Logger) *MemoryMonitor {
	return &MemoryMonitor{probe: probe, log: log}
}

// Sample collects one memory snapshot.
func (m *MemoryMonitor) Sample() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(domain.Snapshot)

	if vm, err := m.probe.VirtualMemory(); err == nil && vm != nil {
		snap["memory.total_bytes"] = domain.IntValue(int64(vm.Total))
		snap["memory.used_bytes"] = domain.IntValue(int64(vm.Used))
		snap["memory.available_bytes"] = domain.IntValue(int64(vm.Available))
		snap["memory.free_bytes"] = domain.IntValue(int64(vm.Free))

		usage := domain.Percent(float64(vm.Used), float64(vm.Total))
		snap["memory.usage_percent"] = domain.FloatValue(usage)

		pressure := int64(0)
		if usage > memoryPressureThreshold {
			pressure = 1
		}
		snap["memory.pressure_high"] = domain.IntValue(pressure)
	} else if err != nil {
		m.log.Warn("virtual memory read failed", zap.Error(err))
	}

	if sw, err := m.probe.SwapMemory(); err == nil && sw != nil {
		snap["memory.swap_total_bytes"] = domain.IntValue(int64(sw.Total))
		snap["memory.swap_used_bytes"] = domain.IntValue(int64(sw.Used))
		snap["memory.swap_free_bytes"] = domain.IntValue(int64(sw.Free))
		snap["memory.swap_usage_percent"] = domain.FloatValue(
			domain.Percent(float64(sw.Used), float64(sw.Total)))
	} else if err != nil {
		m.log.Warn("swap memory read failed", zap.Error(err))
	}

	return snap
}
