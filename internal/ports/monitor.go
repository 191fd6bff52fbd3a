// Package ports declares the contracts between the telemetry facade and
// the concrete samplers behind it.
package ports

import "github.com/vshulcz/sysmond/internal/domain"

// Monitor is a stateful sampler for one subsystem (CPU, memory, disk,
// network). Sample is the only mutation path; implementations serialize
// concurrent callers internally, so a Monitor must never be copied or
// duplicated across goroutines.
type Monitor interface {
	Sample() domain.Snapshot
}

// BackendMetadata describes the static environment an accelerator backend
// discovered at startup.
type BackendMetadata struct {
	Kind        string
	DeviceCount int
	Devices     []string
}

// DeviceSample carries the metrics of one accelerator device. Index is
// local to the backend that produced it; Fields hold bare field names
// ("utilization", "memory_used", ...) without any key prefix.
type DeviceSample struct {
	Fields domain.Snapshot
	Index  int
}

// AcceleratorBackend is one vendor-specific accelerator probe. Sample may
// restrict collection to a target process and an explicit device set; a nil
// deviceIDs slice means all devices, an empty non-nil slice selects none.
type AcceleratorBackend interface {
	Kind() string
	Sample(pid int32, deviceIDs []int32) ([]DeviceSample, error)
	Metadata() (BackendMetadata, error)
	Shutdown() error
}
