package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/lifecycle"
)

// Pause after a failed Accept so a persistent error (fd exhaustion, for
// example) does not spin the loop.
const acceptRetryDelay = 100 * time.Millisecond

// Server accepts connections on the handshake listener and serves each one
// with the JSON codec until the shutdown signal fires. Serve drains every
// in-flight connection before returning so a teardown reply always reaches
// the caller that asked for it.
type Server struct {
	log    *zap.Logger
	rpc    *rpc.Server
	signal *lifecycle.ShutdownSignal
}

// NewServer registers the service under ServiceName on a private rpc.Server
// so the process-global default server stays untouched.
func NewServer(svc *Service, signal *lifecycle.ShutdownSignal, log *zap.Logger) (*Server, error) {
	inner := rpc.NewServer()
	if err := inner.RegisterName(ServiceName, svc); err != nil {
		return nil, err
	}
	return &Server{log: log, rpc: inner, signal: signal}, nil
}

// Serve runs the accept loop until the shutdown signal fires, then waits
// for in-flight connections to finish. The listener is closed from a side
// goroutine to unblock Accept; the caller still owns final listener
// cleanup (socket file removal).
func (s *Server) Serve(ln net.Listener) {
	var wg sync.WaitGroup

	stop := make(chan struct{})
	go func() {
		select {
		case <-s.signal.Done():
			ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.signal.Fired() || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(acceptRetryDelay)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}

	close(stop)
	wg.Wait()
	s.log.Debug("rpc server drained")
}
