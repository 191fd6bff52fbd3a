package accel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/ports"
)

type fakeBackend struct {
	kind      string
	samples   []ports.DeviceSample
	sampleErr error
	meta      ports.BackendMetadata
	metaErr   error
	shutdowns int
	lastIDs   []int32
	lastPid   int32
}

func (f *fakeBackend) Kind() string { return f.kind }

func (f *fakeBackend) Sample(pid int32, deviceIDs []int32) ([]ports.DeviceSample, error) {
	f.lastPid = pid
	f.lastIDs = deviceIDs
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	if deviceIDs == nil {
		return f.samples, nil
	}
	keep := make(map[int32]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		keep[id] = true
	}
	var out []ports.DeviceSample
	for _, s := range f.samples {
		if keep[int32(s.Index)] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeBackend) Metadata() (ports.BackendMetadata, error) { return f.meta, f.metaErr }

func (f *fakeBackend) Shutdown() error {
	f.shutdowns++
	return nil
}

func deviceSample(index int, util float64) ports.DeviceSample {
	return ports.DeviceSample{
		Index: index,
		Fields: domain.Snapshot{
			"name":        domain.StringValue("dev"),
			"utilization": domain.FloatValue(util),
		},
	}
}

func TestAggregator_PrefixesAndOffsets(t *testing.T) {
	first := &fakeBackend{
		kind:    "nvidia",
		meta:    ports.BackendMetadata{Kind: "nvidia", DeviceCount: 2, Devices: []string{"gpu0", "gpu1"}},
		samples: []ports.DeviceSample{deviceSample(0, 10), deviceSample(1, 20)},
	}
	second := &fakeBackend{
		kind:    "amd",
		meta:    ports.BackendMetadata{Kind: "amd", DeviceCount: 1, Devices: []string{"gfx0"}},
		samples: []ports.DeviceSample{deviceSample(0, 30)},
	}
	agg := NewAggregator(zap.NewNop(), first, second)

	snap := agg.Sample(0, nil)

	assert.InDelta(t, 10.0, snap.Float("accelerator.0.utilization"), 1e-9)
	assert.InDelta(t, 20.0, snap.Float("accelerator.1.utilization"), 1e-9)
	assert.InDelta(t, 30.0, snap.Float("accelerator.2.utilization"), 1e-9)

	count, descriptions := agg.Metadata()
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"gpu0", "gpu1", "gfx0"}, descriptions)
}

func TestAggregator_DeviceFilterIsGlobal(t *testing.T) {
	first := &fakeBackend{
		kind:    "nvidia",
		meta:    ports.BackendMetadata{DeviceCount: 2},
		samples: []ports.DeviceSample{deviceSample(0, 10), deviceSample(1, 20)},
	}
	second := &fakeBackend{
		kind:    "amd",
		meta:    ports.BackendMetadata{DeviceCount: 1},
		samples: []ports.DeviceSample{deviceSample(0, 30)},
	}
	agg := NewAggregator(zap.NewNop(), first, second)

	// Global index 2 is the second backend's local device 0.
	snap := agg.Sample(0, []int32{2})

	_, ok := snap["accelerator.0.utilization"]
	assert.False(t, ok)
	_, ok = snap["accelerator.1.utilization"]
	assert.False(t, ok)
	assert.InDelta(t, 30.0, snap.Float("accelerator.2.utilization"), 1e-9)

	require.NotNil(t, first.lastIDs)
	assert.Empty(t, first.lastIDs, "first backend must receive an empty (none) selection")
	assert.Equal(t, []int32{0}, second.lastIDs)
}

func TestAggregator_FailingBackendIsSkipped(t *testing.T) {
	broken := &fakeBackend{
		kind:      "nvidia",
		meta:      ports.BackendMetadata{DeviceCount: 2},
		sampleErr: errors.New("driver wedged"),
	}
	healthy := &fakeBackend{
		kind:    "amd",
		meta:    ports.BackendMetadata{DeviceCount: 1},
		samples: []ports.DeviceSample{deviceSample(0, 55)},
	}
	agg := NewAggregator(zap.NewNop(), broken, healthy)

	snap := agg.Sample(0, nil)

	// The broken backend still reserves its index range.
	assert.InDelta(t, 55.0, snap.Float("accelerator.2.utilization"), 1e-9)
}

func TestAggregator_MetadataFailureKeepsOffsetsStable(t *testing.T) {
	flaky := &fakeBackend{
		kind:    "nvidia",
		meta:    ports.BackendMetadata{DeviceCount: 2},
		samples: []ports.DeviceSample{deviceSample(0, 10), deviceSample(1, 20)},
	}
	healthy := &fakeBackend{
		kind:    "amd",
		meta:    ports.BackendMetadata{DeviceCount: 1},
		samples: []ports.DeviceSample{deviceSample(0, 55)},
	}
	agg := NewAggregator(zap.NewNop(), flaky, healthy)

	snap := agg.Sample(0, nil)
	assert.InDelta(t, 55.0, snap.Float("accelerator.2.utilization"), 1e-9)

	// The first backend's metadata read starts failing; its last-known
	// device count must still reserve global indices 0 and 1.
	flaky.metaErr = errors.New("driver wedged")
	snap = agg.Sample(0, nil)

	_, ok := snap["accelerator.0.utilization"]
	assert.False(t, ok)
	_, ok = snap["accelerator.1.utilization"]
	assert.False(t, ok)
	assert.InDelta(t, 55.0, snap.Float("accelerator.2.utilization"), 1e-9)
}

func TestAggregator_EmptyAggregator(t *testing.T) {
	agg := NewAggregator(zap.NewNop())

	assert.Empty(t, agg.Sample(0, nil))
	count, descriptions := agg.Metadata()
	assert.Zero(t, count)
	assert.Empty(t, descriptions)
	assert.NoError(t, agg.Shutdown())
}

func TestAggregator_ShutdownReachesEveryBackend(t *testing.T) {
	first := &fakeBackend{kind: "nvidia"}
	second := &fakeBackend{kind: "amd"}
	agg := NewAggregator(zap.NewNop(), first, second)

	require.NoError(t, agg.Shutdown())
	assert.Equal(t, 1, first.shutdowns)
	assert.Equal(t, 1, second.shutdowns)
}
