package accel

import (
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/ports"
)

const nvmlKind = "nvidia"

// nvmlDevice is the slice of the NVML device API the backend reads.
// The production implementation wraps go-nvml; tests substitute fakes.
type nvmlDevice interface {
	Name() (string, error)
	UtilizationRates() (gpu, memory uint32, err error)
	MemoryInfo() (used, total uint64, err error)
	Temperature() (uint32, error)
	PowerUsage() (uint32, error)
	FanSpeed() (uint32, error)
	ClockInfo(clock nvml.ClockType) (uint32, error)
	ProcessMemoryUsed(pid int32) (uint64, bool, error)
}

// nvmlLib abstracts library init and device enumeration.
type nvmlLib interface {
	Init() error
	Shutdown() error
	DeviceCount() (int, error)
	Device(index int) (nvmlDevice, error)
}

// NVMLBackend samples NVIDIA GPUs through NVML.
type NVMLBackend struct {
	lib       nvmlLib
	log       *zap.Logger
	devices   []nvmlDevice
	names     []string
	profiling bool
	mu        sync.Mutex
	shutdown  bool
}

var _ ports.AcceleratorBackend = (*NVMLBackend)(nil)

// NewNVML initializes NVML and enumerates devices. It returns
// domain.ErrNoDevices (after releasing the library) on a host without
// NVIDIA GPUs. profiling enables the extended clock metric set.
func NewNVML(log *zap.Logger, profiling bool) (*NVMLBackend, error) {
	return newNVMLBackend(&realNVML{}, log, profiling)
}

func newNVMLBackend(lib nvmlLib, log *zap.Logger, profiling bool) (*NVMLBackend, error) {
	if err := lib.Init(); err != nil {
		return nil, fmt.Errorf("nvml init: %w", err)
	}

	count, err := lib.DeviceCount()
	if err != nil {
		_ = lib.Shutdown()
		return nil, fmt.Errorf("nvml device count: %w", err)
	}
	if count == 0 {
		_ = lib.Shutdown()
		return nil, domain.ErrNoDevices
	}

	b := &NVMLBackend{lib: lib, log: log, profiling: profiling}
	for i := 0; i < count; i++ {
		dev, err := lib.Device(i)
		if err != nil {
			_ = lib.Shutdown()
			return nil, fmt.Errorf("nvml device %d: %w", i, err)
		}
		name := "unknown"
		if n, err := dev.Name(); err == nil {
			name = n
		}
		b.devices = append(b.devices, dev)
		b.names = append(b.names, name)
	}

	log.Info("nvml backend initialized", zap.Int("devices", count))
	return b, nil
}

// Kind identifies the backend in logs and metadata.
func (b *NVMLBackend) Kind() string { return nvmlKind }

// Sample reads one snapshot per selected device. Per-field read failures
// omit the field; a device never aborts its siblings.
func (b *NVMLBackend) Sample(pid int32, deviceIDs []int32) ([]ports.DeviceSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil, nil
	}

	selected := make(map[int]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		selected[int(id)] = true
	}

	samples := make([]ports.DeviceSample, 0, len(b.devices))
	for i, dev := range b.devices {
		if deviceIDs != nil && !selected[i] {
			continue
		}
		samples = append(samples, ports.DeviceSample{
			Index:  i,
			Fields: b.sampleDevice(i, dev, pid),
		})
	}
	return samples, nil
}

func (b *NVMLBackend) sampleDevice(index int, dev nvmlDevice, pid int32) domain.Snapshot {
	fields := domain.Snapshot{
		"name": domain.StringValue(b.names[index]),
		"type": domain.StringValue("gpu"),
	}

	if gpu, mem, err := dev.UtilizationRates(); err == nil {
		fields["utilization"] = domain.FloatValue(float64(gpu))
		fields["memory_utilization"] = domain.FloatValue(float64(mem))
	} else {
		b.log.Warn("gpu utilization read failed", zap.Int("device", index), zap.Error(err))
	}

	if used, total, err := dev.MemoryInfo(); err == nil {
		fields["memory_used"] = domain.IntValue(int64(used))
		fields["memory_total"] = domain.IntValue(int64(total))
		if _, ok := fields["memory_utilization"]; !ok {
			fields["memory_utilization"] = domain.FloatValue(
				domain.Percent(float64(used), float64(total)))
		}
	} else {
		b.log.Warn("gpu memory read failed", zap.Int("device", index), zap.Error(err))
	}

	if temp, err := dev.Temperature(); err == nil {
		fields["temperature"] = domain.FloatValue(float64(temp))
	}
	if mw, err := dev.PowerUsage(); err == nil {
		fields["power_usage"] = domain.FloatValue(float64(mw) / 1000.0)
	}
	if speed, err := dev.FanSpeed(); err == nil {
		fields["fan_speed"] = domain.FloatValue(float64(speed))
	}

	if b.profiling {
		if mhz, err := dev.ClockInfo(nvml.CLOCK_SM); err == nil {
			fields["sm_clock_mhz"] = domain.IntValue(int64(mhz))
		}
		if mhz, err := dev.ClockInfo(nvml.CLOCK_MEM); err == nil {
			fields["memory_clock_mhz"] = domain.IntValue(int64(mhz))
		}
	}

	if pid > 0 {
		if used, ok, err := dev.ProcessMemoryUsed(pid); err == nil && ok {
			fields["memory_used_by_process"] = domain.IntValue(int64(used))
		}
	}

	return fields
}

// Metadata reports the static device inventory.
func (b *NVMLBackend) Metadata() (ports.BackendMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	devices := make([]string, len(b.names))
	copy(devices, b.names)
	return ports.BackendMetadata{
		Kind:        nvmlKind,
		DeviceCount: len(b.devices),
		Devices:     devices,
	}, nil
}

// Shutdown releases the NVML library. Repeated calls are no-ops.
func (b *NVMLBackend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil
	}
	b.shutdown = true
	return b.lib.Shutdown()
}

// realNVML binds the lib interface to go-nvml.
type realNVML struct{}

func (realNVML) Init() error {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (realNVML) Shutdown() error {
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return nil
}

func (realNVML) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return count, nil
}

func (realNVML) Device(index int) (nvmlDevice, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return realNVMLDevice{dev: dev}, nil
}

type realNVMLDevice struct {
	dev nvml.Device
}

func (d realNVMLDevice) Name() (string, error) {
	name, ret := d.dev.GetName()
	if ret != nvml.SUCCESS {
		return "", fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return name, nil
}

func (d realNVMLDevice) UtilizationRates() (uint32, uint32, error) {
	util, ret := d.dev.GetUtilizationRates()
	if ret != nvml.SUCCESS {
		return 0, 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return util.Gpu, util.Memory, nil
}

func (d realNVMLDevice) MemoryInfo() (uint64, uint64, error) {
	info, ret := d.dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0, 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return info.Used, info.Total, nil
}

func (d realNVMLDevice) Temperature() (uint32, error) {
	temp, ret := d.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return temp, nil
}

func (d realNVMLDevice) PowerUsage() (uint32, error) {
	mw, ret := d.dev.GetPowerUsage()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return mw, nil
}

func (d realNVMLDevice) FanSpeed() (uint32, error) {
	speed, ret := d.dev.GetFanSpeed()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return speed, nil
}

func (d realNVMLDevice) ClockInfo(clock nvml.ClockType) (uint32, error) {
	mhz, ret := d.dev.GetClockInfo(clock)
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	return mhz, nil
}

func (d realNVMLDevice) ProcessMemoryUsed(pid int32) (uint64, bool, error) {
	procs, ret := d.dev.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return 0, false, fmt.Errorf("nvml: %s", nvml.ErrorString(ret))
	}
	for _, p := range procs {
		if int32(p.Pid) == pid {
			return p.UsedGpuMemory, true, nil
		}
	}
	return 0, false, nil
}
