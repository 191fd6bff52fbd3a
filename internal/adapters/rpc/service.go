// Package rpc exposes the control surface consumed by the parent process:
// stats and metadata queries plus the remote teardown request. The wire
// format is line-delimited JSON-RPC over the handshake listener.
package rpc

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/lifecycle"
	"github.com/vshulcz/sysmond/internal/services/telemetry"
)

// ServiceName is the RPC namespace clients address methods under.
const ServiceName = "SystemMonitor"

// TearDownArgs is empty; teardown takes no parameters.
type TearDownArgs struct{}

// TearDownReply acknowledges the teardown request. The acknowledgement is
// sent before the process actually exits.
type TearDownReply struct {
	Acknowledged bool `json:"acknowledged"`
}

// MetadataArgs is empty; metadata takes no parameters.
type MetadataArgs struct{}

// MetadataReply carries the static environment descriptor.
type MetadataReply struct {
	Environment telemetry.Environment `json:"environment"`
}

// StatsArgs optionally narrows the stats query to a process and a set of
// global device indices. A nil DeviceIDs means all devices.
type StatsArgs struct {
	PID       int32   `json:"pid"`
	DeviceIDs []int32 `json:"device_ids"`
}

// StatsItem is one metric, with its value encoded as standalone JSON so
// clients can decode items independently of each other.
type StatsItem struct {
	Key       string `json:"key"`
	ValueJSON string `json:"value_json"`
}

// StatsReply is one stats record: a millisecond timestamp, a record type
// discriminator and the metric items.
type StatsReply struct {
	TimestampMS int64       `json:"timestamp_ms"`
	Type        string      `json:"type"`
	Items       []StatsItem `json:"items"`
}

// Service implements the control methods. Method signatures follow the
// net/rpc convention: exported, args plus pointer reply, error return.
type Service struct {
	log    *zap.Logger
	facade *telemetry.Facade
	signal *lifecycle.ShutdownSignal
}

// NewService wires the control surface over the telemetry facade.
func NewService(facade *telemetry.Facade, signal *lifecycle.ShutdownSignal, log *zap.Logger) *Service {
	return &Service{log: log, facade: facade, signal: signal}
}

// TearDown requests process shutdown. Repeat calls are acknowledged the
// same way; the underlying signal fires at most once.
func (s *Service) TearDown(_ *TearDownArgs, reply *TearDownReply) error {
	s.log.Info("teardown requested")
	s.signal.Fire()
	reply.Acknowledged = true
	return nil
}

// GetMetadata returns the environment descriptor.
func (s *Service) GetMetadata(_ *MetadataArgs, reply *MetadataReply) error {
	reply.Environment = s.facade.Metadata()
	return nil
}

// GetStats samples accelerator metrics and returns them as a typed record.
// Keys with the internal prefix never leave the process; the internal
// timestamp instead becomes the record's timestamp field.
func (s *Service) GetStats(args *StatsArgs, reply *StatsReply) error {
	snap := s.facade.Stats(args.PID, args.DeviceIDs)

	ts, ok := snap.FloatOpt("_timestamp")
	if !ok {
		return fmt.Errorf("stats snapshot missing timestamp")
	}

	items := make([]StatsItem, 0, len(snap))
	for _, key := range snap.Keys() {
		if domain.IsInternal(key) {
			continue
		}
		raw, err := json.Marshal(snap[key])
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		items = append(items, StatsItem{Key: key, ValueJSON: string(raw)})
	}

	reply.TimestampMS = int64(ts * 1000)
	reply.Type = "system"
	reply.Items = items
	return nil
}
