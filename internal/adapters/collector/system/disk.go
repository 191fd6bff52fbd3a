package system

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
)

// Mount prefixes excluded from the aggregate disk totals; these namespaces
// hold pseudo-filesystems, not real capacity.
var pseudoMountPrefixes = []string{"/dev", "/sys", "/proc", "/run"}

// DiskMonitor samples filesystem usage per mount and whole-device I/O
// throughput. Partition counters (device names with a trailing digit) are
// excluded from the I/O aggregate so a device is never counted twice.
type DiskMonitor struct {
	probe DiskProbe
	log   *zap.Logger
	now   func() time.Time
	mu    sync.Mutex

	readBytes  RateWindow
	writeBytes RateWindow
	readOps    RateWindow
	writeOps   RateWindow
}

// NewDisk builds a disk monitor over the given probe. The I/O rate windows
// stay unprimed so the first sample emits no throughput keys.
func NewDisk(probe DiskProbe, log *zap.Logger) *DiskMonitor {
	return &DiskMonitor{probe: probe, log: log, now: time.Now}
}

// Sample collects one disk snapshot.
func (m *DiskMonitor) Sample() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(domain.Snapshot)
	m.sampleUsage(snap)
	m.sampleIO(snap)
	return snap
}

func (m *DiskMonitor) sampleUsage(snap domain.Snapshot) {
	parts, err := m.probe.Partitions()
	if err != nil {
		m.log.Warn("partition enumeration failed", zap.Error(err))
		return
	}

	var totalSpace, totalUsed uint64
	for _, p := range parts {
		usage, err := m.probe.Usage(p.Mountpoint)
		if err != nil || usage == nil {
			if err != nil {
				m.log.Warn("disk usage read failed",
					zap.String("mountpoint", p.Mountpoint), zap.Error(err))
			}
			continue
		}

		total := usage.Total
		available := usage.Free
		var used uint64
		if total > available {
			used = total - available
		}

		if p.Mountpoint == "/" {
			snap["disk.root.total_bytes"] = domain.IntValue(int64(total))
			snap["disk.root.used_bytes"] = domain.IntValue(int64(used))
			snap["disk.root.available_bytes"] = domain.IntValue(int64(available))
			snap["disk.root.usage_percent"] = domain.FloatValue(
				domain.Percent(float64(used), float64(total)))
		}

		if isPseudoMount(p.Mountpoint) {
			continue
		}
		totalSpace += total
		totalUsed += used
	}

	snap["disk.total_bytes"] = domain.IntValue(int64(totalSpace))
	snap["disk.used_bytes"] = domain.IntValue(int64(totalUsed))
	snap["disk.usage_percent"] = domain.FloatValue(
		domain.Percent(float64(totalUsed), float64(totalSpace)))
}

func (m *DiskMonitor) sampleIO(snap domain.Snapshot) {
	counters, err := m.probe.IOCounters()
	if err != nil {
		m.log.Warn("disk io counters read failed", zap.Error(err))
		return
	}

	var readBytes, writeBytes, readOps, writeOps uint64
	for name, c := range counters {
		if isPartition(name) {
			continue
		}
		readBytes += c.ReadBytes
		writeBytes += c.WriteBytes
		readOps += c.ReadCount
		writeOps += c.WriteCount
	}

	now := m.now()
	var readOpsRate, writeOpsRate float64
	var opsOK bool

	if rate, ok := m.readBytes.Observe(readBytes, now); ok {
		snap["disk.io_read_bytes_per_sec"] = domain.IntValue(int64(rate))
	}
	if rate, ok := m.writeBytes.Observe(writeBytes, now); ok {
		snap["disk.io_write_bytes_per_sec"] = domain.IntValue(int64(rate))
	}
	if rate, ok := m.readOps.Observe(readOps, now); ok {
		snap["disk.io_read_ops_per_sec"] = domain.IntValue(int64(rate))
		readOpsRate, opsOK = rate, true
	}
	if rate, ok := m.writeOps.Observe(writeOps, now); ok {
		snap["disk.io_write_ops_per_sec"] = domain.IntValue(int64(rate))
		writeOpsRate = rate
	} else {
		opsOK = false
	}
	if opsOK {
		snap["disk.io_total_ops_per_sec"] = domain.IntValue(int64(readOpsRate + writeOpsRate))
	}
}

func isPseudoMount(mountpoint string) bool {
	for _, prefix := range pseudoMountPrefixes {
		if strings.HasPrefix(mountpoint, prefix) {
			return true
		}
	}
	return false
}

// isPartition reports whether a device name refers to a partition rather
// than a whole device (sda1 vs sda). A trailing digit marks a partition.
func isPartition(name string) bool {
	if name == "" {
		return false
	}
	last := name[len(name)-1]
	return last >= '0' && last <= '9'
}
