package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vshulcz/sysmond/internal/adapters/http/ginserver"
	"github.com/vshulcz/sysmond/internal/adapters/http/ginserver/middlewares"
	"github.com/vshulcz/sysmond/internal/adapters/rpc"
	"github.com/vshulcz/sysmond/internal/config"
	"github.com/vshulcz/sysmond/internal/lifecycle"
	"github.com/vshulcz/sysmond/internal/services/telemetry"
	"github.com/vshulcz/sysmond/pkg/util"
)

// Set via -ldflags at build time.
var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	util.PrintBuildInfo(buildVersion, buildDate, buildCommit)

	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	shutdown := lifecycle.NewShutdownSignal()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			logger.Info("signal received, shutting down", zap.String("signal", s.String()))
			shutdown.Fire()
		case <-shutdown.Done():
		}
	}()

	facade := telemetry.NewDefault(logger, cfg.EnableDCGMProfiling)

	// The HTTP surface starts before the handshake so the API is usable as
	// soon as the parent sees the portfile. It is closed last, after the
	// RPC loop has drained.
	var httpSrv *http.Server
	httpDone := make(chan struct{})
	if cfg.EnableHTTP {
		h := ginserver.NewHandler(facade, cfg.NodeID, logger)
		r := ginserver.NewRouter(h, logger,
			middlewares.ZapLogger(logger),
			middlewares.GzipResponse(),
			middlewares.AllowAll(),
		)
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: r}
		go func() {
			defer close(httpDone)
			logger.Info("http api listening", zap.Int("port", cfg.HTTPPort))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", zap.Error(err))
			}
		}()
	} else {
		close(httpDone)
	}

	ln, err := lifecycle.Listen(lifecycle.ListenOptions{
		ListenOnLocalhost: cfg.ListenOnLocalhost,
		ParentPID:         cfg.ParentPID,
	}, logger)
	if err != nil {
		logger.Fatal("listener bind failed", zap.Error(err))
	}
	defer ln.Close()

	if err := ln.WriteHandshake(cfg.Portfile); err != nil {
		logger.Fatal("handshake write failed", zap.Error(err))
	}
	logger.Info("ready", zap.String("token", ln.Token().String()))

	if cfg.ParentPID > 0 {
		lifecycle.NewWatchdog(cfg.ParentPID, shutdown, logger).Start()
	}

	rpcSrv, err := rpc.NewServer(rpc.NewService(facade, shutdown, logger), shutdown, logger)
	if err != nil {
		logger.Fatal("rpc setup failed", zap.Error(err))
	}
	rpcSrv.Serve(ln)

	if err := facade.Shutdown(); err != nil {
		logger.Warn("accelerator shutdown failed", zap.Error(err))
	}
	_ = os.Remove(cfg.Portfile)

	if httpSrv != nil {
		_ = httpSrv.Close()
	}
	<-httpDone

	logger.Info("shutdown complete")
}
