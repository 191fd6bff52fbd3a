// Package telemetry owns the long-lived monitor instances and answers both
// transport surfaces from them.
package telemetry

import (
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/adapters/accel"
	"github.com/vshulcz/sysmond/internal/adapters/collector/system"
	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/ports"
)

// SystemSample bundles one pass over the four domain monitors.
type SystemSample struct {
	CPU     domain.Snapshot
	Memory  domain.Snapshot
	Disk    domain.Snapshot
	Network domain.Snapshot
}

// Environment is the static descriptor returned by the metadata surface.
type Environment struct {
	Hostname         string   `json:"hostname"`
	OS               string   `json:"os"`
	Architecture     string   `json:"architecture"`
	CPUModel         string   `json:"cpu_model"`
	CPUCores         int      `json:"cpu_cores"`
	AcceleratorCount int      `json:"accelerator_count"`
	Accelerators     []string `json:"accelerators"`
}

// Facade is the sole owner of every monitor. Each monitor serializes its
// own sampling; the facade acquires them strictly in CPU, Memory, Disk,
// Network, Accelerator order and never holds one monitor's lock while
// another is sampling or while a response is being serialized.
type Facade struct {
	log     *zap.Logger
	cpu     ports.Monitor
	memory  ports.Monitor
	disk    ports.Monitor
	network ports.Monitor
	accel   *accel.Aggregator
	now     func() time.Time
}

// New wires a facade over explicit monitors. Tests use this constructor
// with fakes.
func New(log *zap.Logger, cpu, memory, disk, network ports.Monitor, agg *accel.Aggregator) *Facade {
	return &Facade{
		log:     log,
		cpu:     cpu,
		memory:  memory,
		disk:    disk,
		network: network,
		accel:   agg,
		now:     time.Now,
	}
}

// NewDefault builds the production facade: gopsutil-backed monitors plus
// every accelerator backend that initializes.
func NewDefault(log *zap.Logger, enableProfiling bool) *Facade {
	return New(log,
		system.NewCPU(system.NewCPUProbe(), log.Named("cpu")),
		system.NewMemory(system.NewMemProbe(), log.Named("memory")),
		system.NewDisk(system.NewDiskProbe(), log.Named("disk")),
		system.NewNetwork(system.NewNetProbe(), log.Named("network")),
		accel.Discover(log.Named("accel"), enableProfiling),
	)
}

// System samples the four domain monitors in lock order.
func (f *Facade) System() SystemSample {
	return SystemSample{
		CPU:     f.cpu.Sample(),
		Memory:  f.memory.Sample(),
		Disk:    f.disk.Sample(),
		Network: f.network.Sample(),
	}
}

// Accelerators samples the accelerator aggregator, optionally restricted
// to a target process and device set.
func (f *Facade) Accelerators(pid int32, deviceIDs []int32) domain.Snapshot {
	return f.accel.Sample(pid, deviceIDs)
}

// Stats produces the RPC stats snapshot: accelerator metrics plus internal
// bookkeeping keys. CPU, memory, disk and network metrics belong to the
// HTTP surface only.
func (f *Facade) Stats(pid int32, deviceIDs []int32) domain.Snapshot {
	snap := domain.Snapshot{
		"_timestamp": domain.FloatValue(float64(f.now().UnixNano()) / float64(time.Second)),
	}
	snap.Merge(f.accel.Sample(pid, deviceIDs))
	return snap
}

// Metadata assembles the static environment record. It samples the CPU
// monitor for the model descriptor, which touches the same state a full
// sample does.
func (f *Facade) Metadata() Environment {
	hostname, err := os.Hostname()
	if err != nil {
		f.log.Warn("hostname read failed", zap.Error(err))
		hostname = "unknown"
	}

	cpuSnap := f.cpu.Sample()
	count, descriptions := f.accel.Metadata()

	return Environment{
		Hostname:         hostname,
		OS:               runtime.GOOS,
		Architecture:     runtime.GOARCH,
		CPUModel:         cpuSnap.Str("cpu.brand"),
		CPUCores:         int(cpuSnap.Int("cpu.count")),
		AcceleratorCount: count,
		Accelerators:     descriptions,
	}
}

// AcceleratorInventory exposes the aggregator's device inventory for the
// system-info endpoint.
func (f *Facade) AcceleratorInventory() (int, []string) {
	return f.accel.Metadata()
}

// Shutdown tears down the accelerator backends. Monitors hold no platform
// handles that need release.
func (f *Facade) Shutdown() error {
	return f.accel.Shutdown()
}
