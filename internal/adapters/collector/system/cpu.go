package system

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
)

// Sensor labels tried in order when resolving the CPU package temperature.
// The first readable sensor whose key matches wins; no match means the
// temperature key is simply absent.
var temperatureSensorPreference = []string{
	"coretemp_package",
	"coretemp",
	"k10temp",
	"cpu_thermal",
	"soc_thermal",
	"acpitz",
}

// CPUMonitor samples per-core usage and frequency, load averages, process
// and thread counts, the CPU model string and an optional temperature.
type CPUMonitor struct {
	probe     CPUProbe
	log       *zap.Logger
	mu        sync.Mutex
	prevTimes []cpu.TimesStat
}

// NewCPU builds a CPU monitor and primes the cumulative per-core time
// counters so the first sample can already report usage percentages.
func NewCPU(probe CPUProbe, log *zap.Logger) *CPUMonitor {
	m := &CPUMonitor{probe: probe, log: log}
	if times, err := probe.Times(); err == nil {
		m.prevTimes = times
	} else {
		log.Warn("cpu times priming failed", zap.Error(err))
	}
	return m
}

// Sample collects one CPU snapshot. A failed platform read omits the
// affected keys and never aborts the rest of the sample.
func (m *CPUMonitor) Sample() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(domain.Snapshot)

	coreCount := m.sampleUsage(snap)
	m.sampleInfo(snap, coreCount)
	m.sampleLoad(snap)
	m.sampleProcesses(snap)
	m.sampleTemperature(snap)

	return snap
}

// sampleUsage emits overall and per-core usage percentages and returns the
// detected core count.
func (m *CPUMonitor) sampleUsage(snap domain.Snapshot) int {
	times, err := m.probe.Times()
	if err != nil {
		m.log.Warn("cpu times read failed", zap.Error(err))
		return 0
	}

	var sum float64
	for i, cur := range times {
		usage := 0.0
		if i < len(m.prevTimes) {
			usage = usageBetween(m.prevTimes[i], cur)
		}
		snap[fmt.Sprintf("cpu.core%d.usage_percent", i)] = domain.FloatValue(usage)
		sum += usage
	}
	m.prevTimes = times

	overall := 0.0
	if len(times) > 0 {
		overall = sum / float64(len(times))
	}
	snap["cpu.usage_percent"] = domain.FloatValue(overall)
	snap["cpu.count"] = domain.IntValue(int64(len(times)))
	return len(times)
}

// usageBetween derives a busy percentage from two cumulative time readings.
func usageBetween(prev, cur cpu.TimesStat) float64 {
	totalDelta := cur.Total() - prev.Total()
	if totalDelta <= 0 {
		return 0
	}
	idleDelta := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	if idleDelta < 0 {
		idleDelta = 0
	}
	return domain.Percent(totalDelta-idleDelta, totalDelta)
}

func (m *CPUMonitor) sampleInfo(snap domain.Snapshot, coreCount int) {
	info, err := m.probe.Info()
	if err != nil || len(info) == 0 {
		if err != nil {
			m.log.Warn("cpu info read failed", zap.Error(err))
		}
		return
	}

	snap["cpu.brand"] = domain.StringValue(info[0].ModelName)
	if coreCount == 0 {
		coreCount = len(info)
		snap["cpu.count"] = domain.IntValue(int64(coreCount))
	}

	// Some platforms report one descriptor per core, others a single one;
	// reuse the first descriptor's frequency for cores without their own.
	for i := 0; i < coreCount; i++ {
		mhz := info[0].Mhz
		if i < len(info) {
			mhz = info[i].Mhz
		}
		snap[fmt.Sprintf("cpu.core%d.frequency_mhz", i)] = domain.FloatValue(mhz)
	}
}

func (m *CPUMonitor) sampleLoad(snap domain.Snapshot) {
	avg, err := m.probe.LoadAvg()
	if err != nil || avg == nil {
		// Absent on platforms without the load-average concept.
		return
	}
	snap["cpu.load_avg_1min"] = domain.FloatValue(avg.Load1)
	snap["cpu.load_avg_5min"] = domain.FloatValue(avg.Load5)
	snap["cpu.load_avg_15min"] = domain.FloatValue(avg.Load15)
}

func (m *CPUMonitor) sampleProcesses(snap domain.Snapshot) {
	pids, err := m.probe.ProcessIDs()
	if err != nil {
		m.log.Warn("process list read failed", zap.Error(err))
		return
	}
	snap["cpu.process_count"] = domain.IntValue(int64(len(pids)))

	var threads int64
	for _, pid := range pids {
		if n, err := m.probe.ThreadCount(pid); err == nil && n > 0 {
			threads += int64(n)
		} else {
			threads++
		}
	}
	snap["cpu.thread_count"] = domain.IntValue(threads)
}

func (m *CPUMonitor) sampleTemperature(snap domain.Snapshot) {
	sensors, err := m.probe.Temperatures()
	if err != nil || len(sensors) == 0 {
		return
	}

	for _, want := range temperatureSensorPreference {
		for _, s := range sensors {
			if strings.Contains(s.SensorKey, want) && s.Temperature > 0 {
				snap["cpu.temperature_celsius"] = domain.FloatValue(s.Temperature)
				return
			}
		}
	}
	for _, s := range sensors {
		if s.Temperature > 0 {
			snap["cpu.temperature_celsius"] = domain.FloatValue(s.Temperature)
			return
		}
	}
}
