package system

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// The monitors never call the platform directly; they depend on these probe
// interfaces, with one gopsutil-backed implementation per subsystem. Tests
// substitute fakes.

// CPUProbe exposes the platform reads the CPU monitor needs.
type CPUProbe interface {
	Times() ([]cpu.TimesStat, error)
	Info() ([]cpu.InfoStat, error)
	LoadAvg() (*load.AvgStat, error)
	ProcessIDs() ([]int32, error)
	// ThreadCount returns the number of OS threads of one process. An error
	// means per-process thread introspection is unavailable for that pid;
	// the monitor falls back to counting one thread.
	ThreadCount(pid int32) (int32, error)
	Temperatures() ([]host.TemperatureStat, error)
}

// MemProbe exposes physical and swap memory reads.
type MemProbe interface {
	VirtualMemory() (*mem.VirtualMemoryStat, error)
	SwapMemory() (*mem.SwapMemoryStat, error)
}

// DiskProbe exposes filesystem enumeration and whole-device I/O counters.
type DiskProbe interface {
	Partitions() ([]disk.PartitionStat, error)
	Usage(path string) (*disk.UsageStat, error)
	IOCounters() (map[string]disk.IOCountersStat, error)
}

// NetProbe exposes per-interface counters and the connection table.
type NetProbe interface {
	IOCounters() ([]net.IOCountersStat, error)
	Connections() ([]net.ConnectionStat, error)
}

type gopsCPUProbe struct{}

// NewCPUProbe returns the gopsutil-backed CPU probe.
func NewCPUProbe() CPUProbe { return gopsCPUProbe{} }

func (gopsCPUProbe) Times() ([]cpu.TimesStat, error) { return cpu.Times(true) }
func (gopsCPUProbe) Info() ([]cpu.InfoStat, error)   { return cpu.Info() }
func (gopsCPUProbe) LoadAvg() (*load.AvgStat, error) { return load.Avg() }
func (gopsCPUProbe) ProcessIDs() ([]int32, error)    { return process.Pids() }

func (gopsCPUProbe) ThreadCount(pid int32) (int32, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	return p.NumThreads()
}

func (gopsCPUProbe) Temperatures() ([]host.TemperatureStat, error) {
	return host.SensorsTemperatures()
}

type gopsMemProbe struct{}

// NewMemProbe returns the gopsutil-backed memory probe.
func NewMemProbe() MemProbe { return gopsMemProbe{} }

func (gopsMemProbe) VirtualMemory() (*mem.VirtualMemoryStat, error) { return mem.VirtualMemory() }
func (gopsMemProbe) SwapMemory() (*mem.SwapMemoryStat, error)       { return mem.SwapMemory() }

type gopsDiskProbe struct{}

// NewDiskProbe returns the gopsutil-backed disk probe.
func NewDiskProbe() DiskProbe { return gopsDiskProbe{} }

func (gopsDiskProbe) Partitions() ([]disk.PartitionStat, error) { return disk.Partitions(false) }
func (gopsDiskProbe) Usage(path string) (*disk.UsageStat, error) {
	return disk.Usage(path)
}
func (gopsDiskProbe) IOCounters() (map[string]disk.IOCountersStat, error) {
	return disk.IOCounters()
}

type gopsNetProbe struct{}

// NewNetProbe returns the gopsutil-backed network probe.
func NewNetProbe() NetProbe { return gopsNetProbe{} }

func (gopsNetProbe) IOCounters() ([]net.IOCountersStat, error) { return net.IOCounters(true) }
func (gopsNetProbe) Connections() ([]net.ConnectionStat, error) {
	return net.Connections("tcp")
}
