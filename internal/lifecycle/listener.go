package lifecycle

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Token is the externally visible address descriptor written to the
// handshake file: "sock=<port>" for loopback TCP, "unix=<path>" for a
// domain socket. Immutable after creation.
type Token struct {
	network string
	address string
}

// String renders the single-line handshake form of the token.
func (t Token) String() string {
	if t.network == "tcp" {
		return "sock=" + t.address
	}
	return "unix=" + t.address
}

// Listener wraps the chosen transport plus its handshake token. The Unix
// socket file is removed on Close.
type Listener struct {
	net.Listener
	token      Token
	socketPath string
}

// ListenOptions selects the listener transport.
type ListenOptions struct {
	// ListenOnLocalhost forces loopback TCP instead of a Unix socket.
	// Windows has no Unix socket support in the clients we serve, so TCP
	// is used there unconditionally.
	ListenOnLocalhost bool
	// ParentPID namespaces the Unix socket filename.
	ParentPID int
}

// Listen binds the transport chosen by opts. A bind failure is fatal to
// the caller: without a listener the parent handshake can never succeed.
func Listen(opts ListenOptions, log *zap.Logger) (*Listener, error) {
	useTCP := opts.ListenOnLocalhost || runtime.GOOS == "windows"

	if useTCP {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("bind loopback: %w", err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		log.Debug("listening on loopback tcp", zap.Int("port", port))
		return &Listener{
			Listener: ln,
			token:    Token{network: "tcp", address: fmt.Sprintf("%d", port)},
		}, nil
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("sysmond-%d-%d-%d.sock",
		opts.ParentPID, os.Getpid(), time.Now().UnixMilli()))
	// A stale socket from a crashed run blocks the bind.
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind unix socket: %w", err)
	}
	log.Debug("listening on unix socket", zap.String("path", path))
	return &Listener{
		Listener:   ln,
		token:      Token{network: "unix", address: path},
		socketPath: path,
	}, nil
}

// Token returns the handshake descriptor for this listener.
func (l *Listener) Token() Token { return l.token }

// WriteHandshake writes the token as a single line to the portfile.
// Consumers treat the file's existence plus a successful parse as the
// readiness signal, so this must happen before accepting connections.
func (l *Listener) WriteHandshake(portfile string) error {
	if err := os.WriteFile(portfile, []byte(l.token.String()), 0o600); err != nil {
		return fmt.Errorf("write handshake file: %w", err)
	}
	return nil
}

// Close shuts the listener and removes the Unix socket file if one was
// created.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.socketPath != "" {
		_ = os.Remove(l.socketPath)
	}
	return err
}
