package system

import (
	"errors"
	"testing"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMemProbe struct {
	vm      *mem.VirtualMemoryStat
	vmErr   error
	swap    *mem.SwapMemoryStat
	swapErr error
}

func (f *fakeMemProbe) VirtualMemory() (*mem.VirtualMemoryStat, error) { return f.vm, f.vmErr }
func (f *fakeMemProbe) SwapMemory() (*mem.SwapMemoryStat, error)       { return f.swap, f.swapErr }

func TestMemoryMonitor_Sample(t *testing.T) {
	probe := &fakeMemProbe{
		vm: &mem.VirtualMemoryStat{
			Total:     16e9,
			Used:      4e9,
			Available: 11e9,
			Free:      10e9,
		},
		swap: &mem.SwapMemoryStat{Total: 8e9, Used: 2e9, Free: 6e9},
	}
	m := NewMemory(probe, zap.NewNop())
	snap := m.Sample()

	assert.Equal(t, int64(16e9), snap.Int("memory.total_bytes"))
	assert.Equal(t, int64(4e9), snap.Int("memory.used_bytes"))
	assert.Equal(t, int64(11e9), snap.Int("memory.available_bytes"))
	assert.Equal(t, int64(10e9), snap.Int("memory.free_bytes"))
	assert.InDelta(t, 25.0, snap.Float("memory.usage_percent"), 1e-9)
	assert.Equal(t, int64(0), snap.Int("memory.pressure_high"))

	assert.Equal(t, int64(8e9), snap.Int("memory.swap_total_bytes"))
	assert.Equal(t, int64(2e9), snap.Int("memory.swap_used_bytes"))
	assert.Equal(t, int64(6e9), snap.Int("memory.swap_free_bytes"))
	assert.InDelta(t, 25.0, snap.Float("memory.swap_usage_percent"), 1e-9)
}

func TestMemoryMonitor_PressureFlag(t *testing.T) {
	probe := &fakeMemProbe{
		vm:   &mem.VirtualMemoryStat{Total: 100, Used: 95, Available: 5, Free: 5},
		swap: &mem.SwapMemoryStat{},
	}
	m := NewMemory(probe, zap.NewNop())
	snap := m.Sample()

	assert.Equal(t, int64(1), snap.Int("memory.pressure_high"))
	assert.InDelta(t, 95.0, snap.Float("memory.usage_percent"), 1e-9)
}

func TestMemoryMonitor_ZeroSwapTotal(t *testing.T) {
	probe := &fakeMemProbe{
		vm:   &mem.VirtualMemoryStat{Total: 100, Used: 50},
		swap: &mem.SwapMemoryStat{Total: 0, Used: 0},
	}
	m := NewMemory(probe, zap.NewNop())
	snap := m.Sample()

	got, ok := snap.FloatOpt("memory.swap_usage_percent")
	require.True(t, ok)
	assert.Zero(t, got, "zero swap total must yield exactly 0.0, not NaN")
}

func TestMemoryMonitor_ReadFailuresOmitKeys(t *testing.T) {
	probe := &fakeMemProbe{
		vmErr:   errors.New("no vm stats"),
		swapErr: errors.New("no swap stats"),
	}
	m := NewMemory(probe, zap.NewNop())
	snap := m.Sample()

	assert.Empty(t, snap)
}
