// Package config loads the process configuration from command line flags
// and SYSMOND_-prefixed environment variables. Flags set on the command
// line win over the environment; the environment wins over defaults.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHTTPPort = 8080
	defaultNodeID   = "localhost"
)

type Config struct {
	// Portfile is where the handshake token is written. Required: without
	// it the parent can never find the listener.
	Portfile string
	// ParentPID enables the parent-liveness watchdog when > 0.
	ParentPID int
	Verbose   bool
	// EnableDCGMProfiling adds clock and profiling fields to accelerator
	// samples.
	EnableDCGMProfiling bool
	// ListenOnLocalhost forces loopback TCP instead of a Unix socket.
	ListenOnLocalhost bool
	EnableHTTP        bool
	HTTPPort          int
	NodeID            string
}

// Load parses args (without the program name). Usage and error output
// goes to out; pass nil to discard it.
func Load(args []string, out io.Writer) (Config, error) {
	if out == nil {
		out = io.Discard
	}

	fs := pflag.NewFlagSet("sysmond", pflag.ContinueOnError)
	fs.SetOutput(out)

	fs.String("portfile", "", "file to write the listener handshake token to (required)")
	fs.Int("parent-pid", 0, "parent process id to watch; 0 disables the watchdog")
	fs.Bool("verbose", false, "enable debug logging")
	fs.Bool("enable-dcgm-profiling", false, "collect accelerator clock and profiling metrics")
	fs.Bool("listen-on-localhost", false, "listen on loopback TCP instead of a unix socket")
	fs.Bool("enable-http", true, "serve the HTTP/JSON metrics API")
	fs.Int("http-port", defaultHTTPPort, "HTTP API port")
	fs.String("node-id", defaultNodeID, "node identifier reported in metrics responses")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SYSMOND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	cfg := Config{
		Portfile:            strings.TrimSpace(v.GetString("portfile")),
		ParentPID:           v.GetInt("parent-pid"),
		Verbose:             v.GetBool("verbose"),
		EnableDCGMProfiling: v.GetBool("enable-dcgm-profiling"),
		ListenOnLocalhost:   v.GetBool("listen-on-localhost"),
		EnableHTTP:          v.GetBool("enable-http"),
		HTTPPort:            v.GetInt("http-port"),
		NodeID:              strings.TrimSpace(v.GetString("node-id")),
	}

	if cfg.Portfile == "" {
		return Config{}, fmt.Errorf("portfile is required")
	}
	if cfg.ParentPID < 0 {
		return Config{}, fmt.Errorf("parent-pid must be >= 0, got %d", cfg.ParentPID)
	}
	if cfg.EnableHTTP && (cfg.HTTPPort < 1 || cfg.HTTPPort > 65535) {
		return Config{}, fmt.Errorf("http-port out of range: %d", cfg.HTTPPort)
	}
	if cfg.NodeID == "" {
		cfg.NodeID = defaultNodeID
	}

	return cfg, nil
}
