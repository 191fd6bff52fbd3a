// Package ginserver serves the HTTP/JSON surface: host description, one
// structured metrics sample per request and a liveness probe.
package ginserver

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/services/telemetry"
)

const serviceName = "system_monitor"

// Handler exposes the read-only telemetry endpoints over the shared facade.
type Handler struct {
	log     *zap.Logger
	svc     *telemetry.Facade
	nodeID  string
	now     func() time.Time
	localIP func() string
}

// NewHandler wires the telemetry facade into a gin-compatible handler.
// nodeID is the default node identifier; callers can override it per
// request with the node_id query parameter.
func NewHandler(svc *telemetry.Facade, nodeID string, log *zap.Logger) *Handler {
	return &Handler{
		log:     log,
		svc:     svc,
		nodeID:  nodeID,
		now:     time.Now,
		localIP: outboundIP,
	}
}

// Health handles `GET /api/health`.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// SystemInfo handles `GET /api/system/info` with a fresh host description.
func (h *Handler) SystemInfo(c *gin.Context) {
	sample := h.svc.System()
	gpuCount, gpuInfo := h.svc.AcceleratorInventory()
	if gpuInfo == nil {
		gpuInfo = []string{}
	}

	hostname, err := os.Hostname()
	if err != nil {
		h.log.Warn("hostname read failed", zap.Error(err))
		hostname = "unknown"
	}

	cores := int(sample.CPU.Int("cpu.count"))
	c.JSON(http.StatusOK, SystemInfoResponse{
		Platform:     runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUModel:     cpuModelOrUnknown(sample),
		CPUCores:     cores,
		CPUThreads:   cores,
		MemoryTotal:  uint64(sample.Memory.Int("memory.total_bytes")),
		SwapTotal:    uint64(sample.Memory.Int("memory.swap_total_bytes")),
		DiskTotal:    uint64(sample.Disk.Int("disk.total_bytes")),
		GPUCount:     gpuCount,
		GPUInfo:      gpuInfo,
		Hostname:     hostname,
		IPAddress:    h.localIP(),
	})
}

// SystemMetrics handles `GET /api/system/metrics`. The response is an
// array with exactly one element so clients can treat it as a (short)
// series.
func (h *Handler) SystemMetrics(c *gin.Context) {
	nodeID := c.Query("node_id")
	if nodeID == "" {
		nodeID = h.nodeID
	}

	sample := h.svc.System()
	accel := h.svc.Accelerators(0, nil)

	resp := buildMetricsResponse(nodeID, h.now().UnixMilli(), sample, accel)
	c.JSON(http.StatusOK, []SystemMetricsResponse{resp})
}

func cpuModelOrUnknown(s telemetry.SystemSample) string {
	if brand := s.CPU.Str("cpu.brand"); brand != "" {
		return brand
	}
	return "Unknown"
}

// outboundIP discovers the host's primary address by opening a UDP socket
// toward a public resolver. No packet is sent; connect only fixes the
// local endpoint.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
