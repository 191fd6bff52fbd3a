package rpc

import (
	"encoding/json"
	"errors"
	"net"
	"net/rpc/jsonrpc"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/adapters/accel"
	"github.com/vshulcz/sysmond/internal/domain"
	"github.com/vshulcz/sysmond/internal/lifecycle"
	"github.com/vshulcz/sysmond/internal/ports"
	"github.com/vshulcz/sysmond/internal/services/telemetry"
)

type staticMonitor struct{ snap domain.Snapshot }

func (m staticMonitor) Sample() domain.Snapshot { return m.snap }

type staticBackend struct {
	samples []ports.DeviceSample
	meta    ports.BackendMetadata
}

func (b staticBackend) Kind() string { return "nvidia" }

func (b staticBackend) Sample(pid int32, deviceIDs []int32) ([]ports.DeviceSample, error) {
	return b.samples, nil
}

func (b staticBackend) Metadata() (ports.BackendMetadata, error) { return b.meta, nil }

func (b staticBackend) Shutdown() error { return nil }

type testHarness struct {
	signal *lifecycle.ShutdownSignal
	addr   string
	done   chan struct{}
}

func startServer(t *testing.T) *testHarness {
	t.Helper()
	log := zap.NewNop()

	backend := staticBackend{
		samples: []ports.DeviceSample{{
			Index: 0,
			Fields: domain.Snapshot{
				"name":        domain.StringValue("Fake GPU"),
				"utilization": domain.FloatValue(64),
			},
		}},
		meta: ports.BackendMetadata{Kind: "nvidia", DeviceCount: 1, Devices: []string{"Fake GPU"}},
	}
	facade := telemetry.New(log,
		staticMonitor{snap: domain.Snapshot{
			"cpu.brand": domain.StringValue("Fake CPU"),
			"cpu.count": domain.IntValue(4),
		}},
		staticMonitor{snap: domain.Snapshot{}},
		staticMonitor{snap: domain.Snapshot{}},
		staticMonitor{snap: domain.Snapshot{}},
		accel.NewAggregator(log, backend),
	)

	signal := lifecycle.NewShutdownSignal()
	srv, err := NewServer(NewService(facade, signal, log), signal, log)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	h := &testHarness{signal: signal, addr: ln.Addr().String(), done: make(chan struct{})}
	go func() {
		srv.Serve(ln)
		close(h.done)
	}()
	t.Cleanup(func() {
		signal.Fire()
		<-h.done
	})
	return h
}

func TestServer_GetStats(t *testing.T) {
	h := startServer(t)
	client, err := jsonrpc.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer client.Close()

	var reply StatsReply
	require.NoError(t, client.Call(ServiceName+".GetStats", &StatsArgs{}, &reply))

	assert.Equal(t, "system", reply.Type)
	assert.InDelta(t, time.Now().UnixMilli(), reply.TimestampMS, 5000)

	byKey := map[string]string{}
	for _, item := range reply.Items {
		assert.False(t, strings.HasPrefix(item.Key, "_"),
			"internal keys must not cross the wire: %s", item.Key)
		byKey[item.Key] = item.ValueJSON
	}

	var util float64
	require.Contains(t, byKey, "accelerator.0.utilization")
	require.NoError(t, json.Unmarshal([]byte(byKey["accelerator.0.utilization"]), &util))
	assert.InDelta(t, 64, util, 1e-9)

	var name string
	require.Contains(t, byKey, "accelerator.0.name")
	require.NoError(t, json.Unmarshal([]byte(byKey["accelerator.0.name"]), &name))
	assert.Equal(t, "Fake GPU", name)
}

func TestServer_GetMetadata(t *testing.T) {
	h := startServer(t)
	client, err := jsonrpc.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer client.Close()

	var reply MetadataReply
	require.NoError(t, client.Call(ServiceName+".GetMetadata", &MetadataArgs{}, &reply))

	assert.Equal(t, "Fake CPU", reply.Environment.CPUModel)
	assert.Equal(t, 4, reply.Environment.CPUCores)
	assert.Equal(t, 1, reply.Environment.AcceleratorCount)
	assert.Equal(t, []string{"Fake GPU"}, reply.Environment.Accelerators)
}

func TestServer_TearDownFiresSignalAndDrains(t *testing.T) {
	h := startServer(t)
	client, err := jsonrpc.Dial("tcp", h.addr)
	require.NoError(t, err)

	var reply TearDownReply
	require.NoError(t, client.Call(ServiceName+".TearDown", &TearDownArgs{}, &reply))
	assert.True(t, reply.Acknowledged)
	assert.True(t, h.signal.Fired())

	client.Close()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not drain after teardown")
	}
}

type flakyListener struct {
	mu       sync.Mutex
	failures int
	closed   chan struct{}
	once     sync.Once
}

func newFlakyListener(failures int) *flakyListener {
	return &flakyListener{failures: failures, closed: make(chan struct{})}
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, errors.New("accept: out of file descriptors")
	}
	l.mu.Unlock()
	<-l.closed
	return nil, net.ErrClosed
}

func (l *flakyListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServer_ServeSurvivesTransientAcceptErrors(t *testing.T) {
	log := zap.NewNop()
	signal := lifecycle.NewShutdownSignal()
	srv, err := NewServer(&Service{log: log, signal: signal}, signal, log)
	require.NoError(t, err)

	ln := newFlakyListener(2)
	done := make(chan struct{})
	go func() {
		srv.Serve(ln)
		close(done)
	}()

	// The loop must retry past the failures and keep serving until the
	// signal fires, not exit on the first error.
	select {
	case <-done:
		t.Fatal("Serve exited on a transient accept error")
	case <-time.After(300 * time.Millisecond):
	}

	signal.Fire()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestServer_TearDownIsIdempotent(t *testing.T) {
	h := startServer(t)
	client, err := jsonrpc.Dial("tcp", h.addr)
	require.NoError(t, err)

	var first, second TearDownReply
	require.NoError(t, client.Call(ServiceName+".TearDown", &TearDownArgs{}, &first))
	require.NoError(t, client.Call(ServiceName+".TearDown", &TearDownArgs{}, &second))
	assert.True(t, first.Acknowledged)
	assert.True(t, second.Acknowledged)
	client.Close()
}
