package system

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
)

// NetworkMonitor samples cumulative traffic counters across all interfaces
// and derives per-second rates from them.
type NetworkMonitor struct {
	probe NetProbe
	log   *zap.Logger
	now   func() time.Time
	mu    sync.Mutex

	rxBytes   RateWindow
	txBytes   RateWindow
	rxPackets RateWindow
	txPackets RateWindow
}

// NewNetwork builds a network monitor over the given probe. The rate
// windows stay unprimed so the first sample emits no per-second keys.
func NewNetwork(probe NetProbe, log *zap.Logger) *NetworkMonitor {
	return &NetworkMonitor{probe: probe, log: log, now: time.Now}
}

// Sample collects one network snapshot.
func (m *NetworkMonitor) Sample() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := make(domain.Snapshot)

	counters, err := m.probe.IOCounters()
	if err != nil {
		m.log.Warn("network counters read failed", zap.Error(err))
	} else {
		m.sampleTraffic(snap, counters)
	}

	if conns, err := m.probe.Connections(); err == nil && len(conns) > 0 {
		snap["network.connections_active"] = domain.IntValue(int64(len(conns)))
	}

	return snap
}

func (m *NetworkMonitor) sampleTraffic(snap domain.Snapshot, counters []net.IOCountersStat) {
	var rxBytes, txBytes, rxPackets, txPackets uint64
	for _, c := range counters {
		rxBytes += c.BytesRecv
		txBytes += c.BytesSent
		rxPackets += c.PacketsRecv
		txPackets += c.PacketsSent
	}

	snap["network.rx_bytes_total"] = domain.IntValue(int64(rxBytes))
	snap["network.tx_bytes_total"] = domain.IntValue(int64(txBytes))
	snap["network.rx_packets_total"] = domain.IntValue(int64(rxPackets))
	snap["network.tx_packets_total"] = domain.IntValue(int64(txPackets))
	snap["network.interface_count"] = domain.IntValue(int64(len(counters)))

	now := m.now()
	var rxRate, txRate float64
	var bandwidthOK bool

	if rate, ok := m.rxBytes.Observe(rxBytes, now); ok {
		snap["network.rx_bytes_per_sec"] = domain.IntValue(int64(rate))
		rxRate, bandwidthOK = rate, true
	}
	if rate, ok := m.txBytes.Observe(txBytes, now); ok {
		snap["network.tx_bytes_per_sec"] = domain.IntValue(int64(rate))
		txRate = rate
	} else {
		bandwidthOK = false
	}
	if rate, ok := m.rxPackets.Observe(rxPackets, now); ok {
		snap["network.rx_packets_per_sec"] = domain.IntValue(int64(rate))
	}
	if rate, ok := m.txPackets.Observe(txPackets, now); ok {
		snap["network.tx_packets_per_sec"] = domain.IntValue(int64(rate))
	}
	if bandwidthOK {
		snap["network.bandwidth_bytes_per_sec"] = domain.IntValue(int64(rxRate + txRate))
	}
}
