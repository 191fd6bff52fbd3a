package ginserver

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/services/telemetry"
)

// SystemInfoResponse describes the host once, at request time.
type SystemInfoResponse struct {
	Platform     string   `json:"platform"`
	Architecture string   `json:"architecture"`
	CPUModel     string   `json:"cpu_model"`
	CPUCores     int      `json:"cpu_cores"`
	CPUThreads   int      `json:"cpu_threads"`
	MemoryTotal  uint64   `json:"memory_total"`
	SwapTotal    uint64   `json:"swap_total"`
	DiskTotal    uint64   `json:"disk_total"`
	GPUCount     int      `json:"gpu_count"`
	GPUInfo      []string `json:"gpu_info"`
	Hostname     string   `json:"hostname"`
	IPAddress    string   `json:"ip_address"`
}

// SystemMetricsResponse is one structured sample. The metrics endpoint
// returns a single-element array of these.
type SystemMetricsResponse struct {
	NodeID       string               `json:"node_id"`
	Timestamp    int64                `json:"timestamp"`
	CPU          CPUMetrics           `json:"cpu"`
	Memory       MemoryMetrics        `json:"memory"`
	Disk         DiskMetrics          `json:"disk"`
	Network      NetworkMetrics       `json:"network"`
	Accelerators []AcceleratorMetrics `json:"accelerators"`
}

type CPUMetrics struct {
	Overall     float64          `json:"overall"`
	Cores       []CPUCoreMetrics `json:"cores"`
	LoadAverage []float64        `json:"loadAverage"`
	Processes   int64            `json:"processes"`
	Threads     int64            `json:"threads"`
}

type CPUCoreMetrics struct {
	ID          int      `json:"id"`
	Usage       float64  `json:"usage"`
	Frequency   float64  `json:"frequency"`
	Temperature *float64 `json:"temperature"`
}

type MemoryMetrics struct {
	Usage float64     `json:"usage"`
	Used  uint64      `json:"used"`
	Total uint64      `json:"total"`
	Swap  SwapMetrics `json:"swap"`
}

type SwapMetrics struct {
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

type DiskMetrics struct {
	Usage   float64 `json:"usage"`
	Used    uint64  `json:"used"`
	Total   uint64  `json:"total"`
	IORead  uint64  `json:"ioRead"`
	IOWrite uint64  `json:"ioWrite"`
	IOPS    int64   `json:"iops"`
}

type NetworkMetrics struct {
	BytesIn     uint64 `json:"bytesIn"`
	BytesOut    uint64 `json:"bytesOut"`
	PacketsIn   uint64 `json:"packetsIn"`
	PacketsOut  uint64 `json:"packetsOut"`
	Connections int64  `json:"connections"`
}

type AcceleratorMetrics struct {
	ID          int                      `json:"id"`
	Type        string                   `json:"type"`
	Name        string                   `json:"name"`
	Utilization float64                  `json:"utilization"`
	Memory      AcceleratorMemoryMetrics `json:"memory"`
	Temperature float64                  `json:"temperature"`
	Power       *float64                 `json:"power"`
	FanSpeed    *float64                 `json:"fanSpeed"`
}

type AcceleratorMemoryMetrics struct {
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

const acceleratorKeyPrefix = "accelerator."

// buildMetricsResponse flattens the key/value snapshots into the wire DTO.
// Absent numeric keys become zero values; optional fields become null.
func buildMetricsResponse(nodeID string, timestampMS int64, s telemetry.SystemSample, accel domain.Snapshot) SystemMetricsResponse {
	coreCount := int(s.CPU.Int("cpu.count"))
	if coreCount < 1 {
		coreCount = 1
	}
	coreTemp := floatPtr(s.CPU, "cpu.temperature_celsius")

	cores := make([]CPUCoreMetrics, 0, coreCount)
	for i := 0; i < coreCount; i++ {
		prefix := "cpu.core" + strconv.Itoa(i)
		cores = append(cores, CPUCoreMetrics{
			ID:          i,
			Usage:       s.CPU.Float(prefix + ".usage_percent"),
			Frequency:   s.CPU.Float(prefix + ".frequency_mhz"),
			Temperature: coreTemp,
		})
	}

	return SystemMetricsResponse{
		NodeID:    nodeID,
		Timestamp: timestampMS,
		CPU: CPUMetrics{
			Overall: s.CPU.Float("cpu.usage_percent"),
			Cores:   cores,
			LoadAverage: []float64{
				s.CPU.Float("cpu.load_avg_1min"),
				s.CPU.Float("cpu.load_avg_5min"),
				s.CPU.Float("cpu.load_avg_15min"),
			},
			Processes: s.CPU.Int("cpu.process_count"),
			Threads:   s.CPU.Int("cpu.thread_count"),
		},
		Memory: MemoryMetrics{
			Usage: s.Memory.Float("memory.usage_percent"),
			Used:  uint64(s.Memory.Int("memory.used_bytes")),
			Total: uint64(s.Memory.Int("memory.total_bytes")),
			Swap: SwapMetrics{
				Used:       uint64(s.Memory.Int("memory.swap_used_bytes")),
				Total:      uint64(s.Memory.Int("memory.swap_total_bytes")),
				Percentage: s.Memory.Float("memory.swap_usage_percent"),
			},
		},
		Disk: DiskMetrics{
			Usage:   s.Disk.Float("disk.usage_percent"),
			Used:    uint64(s.Disk.Int("disk.used_bytes")),
			Total:   uint64(s.Disk.Int("disk.total_bytes")),
			IORead:  uint64(s.Disk.Int("disk.io_read_bytes_per_sec")),
			IOWrite: uint64(s.Disk.Int("disk.io_write_bytes_per_sec")),
			IOPS:    s.Disk.Int("disk.io_total_ops_per_sec"),
		},
		Network: NetworkMetrics{
			BytesIn:     uint64(s.Network.Int("network.rx_bytes_per_sec")),
			BytesOut:    uint64(s.Network.Int("network.tx_bytes_per_sec")),
			PacketsIn:   uint64(s.Network.Int("network.rx_packets_per_sec")),
			PacketsOut:  uint64(s.Network.Int("network.tx_packets_per_sec")),
			Connections: s.Network.Int("network.connections_active"),
		},
		Accelerators: buildAccelerators(accel),
	}
}

// buildAccelerators recovers the per-device structure from the flat
// accelerator snapshot. Device indices come from the keys themselves, so
// gaps (a backend that failed mid-fleet) survive the round trip.
func buildAccelerators(accel domain.Snapshot) []AcceleratorMetrics {
	ids := map[int]struct{}{}
	for key := range accel {
		rest, ok := strings.CutPrefix(key, acceleratorKeyPrefix)
		if !ok {
			continue
		}
		idStr, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		ids[id] = struct{}{}
	}

	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)

	out := make([]AcceleratorMetrics, 0, len(sorted))
	for _, id := range sorted {
		prefix := acceleratorKeyPrefix + strconv.Itoa(id) + "."

		name := accel.Str(prefix + "name")
		if name == "" {
			name = "GPU " + strconv.Itoa(id)
		}
		devType := accel.Str(prefix + "type")
		if devType == "" {
			devType = "gpu"
		}

		out = append(out, AcceleratorMetrics{
			ID:          id,
			Type:        devType,
			Name:        name,
			Utilization: accel.Float(prefix + "utilization"),
			Memory: AcceleratorMemoryMetrics{
				Used:       uint64(accel.Int(prefix + "memory_used")),
				Total:      uint64(accel.Int(prefix + "memory_total")),
				Percentage: accel.Float(prefix + "memory_utilization"),
			},
			Temperature: accel.Float(prefix + "temperature"),
			Power:       floatPtr(accel, prefix+"power_usage"),
			FanSpeed:    floatPtr(accel, prefix+"fan_speed"),
		})
	}
	return out
}

func floatPtr(s domain.Snapshot, key string) *float64 {
	v, ok := s.FloatOpt(key)
	if !ok {
		return nil
	}
	return &v
}
