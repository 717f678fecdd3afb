// agentbusd runs the message-bus agent kernel: a fleet of AgentRuntimes
// supervised by a Supervisor, exposed over the ControlPlane's HTTP/WebSocket
// surface.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/controlplane"
	"github.com/codeready-toolchain/agentbus/pkg/store"
	"github.com/codeready-toolchain/agentbus/pkg/supervisor"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory (expects agentbus.yaml and optional .env)")
	addr := flag.String("addr",
		getEnv("AGENTBUS_ADDR", ":8090"),
		"Address the ControlPlane HTTP/WebSocket server listens on")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DataDir + "/message_backlog.db")
	if err != nil {
		slog.Error("failed to open message store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing message store", "error", err)
		}
	}()

	retentionCtx, stopRetention := context.WithCancel(ctx)
	defer stopRetention()
	go store.NewRetention(st, cfg.Runtime.RetentionSweepSchedule).Start(retentionCtx)

	sup, err := supervisor.New(cfg, st)
	if err != nil {
		slog.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	logMux := controlplane.NewLogMux(slog.Default().Handler(), 5*time.Second)
	slog.SetDefault(slog.New(logMux.Handler()))

	srv := controlplane.NewServer(sup, cfg.AgentRegistry, logMux)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		slog.Error("failed to bind control plane listener", "addr", *addr, "error", err)
		os.Exit(1)
	}

	go func() {
		slog.Info("control plane listening", "addr", *addr)
		if err := srv.StartWithListener(ln); err != nil {
			slog.Error("control plane server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	stopGrace := cfg.Runtime.StopGrace
	if stopGrace <= 0 {
		stopGrace = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, stopGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("control plane shutdown error", "error", err)
	}

	sup.Shutdown()
	slog.Info("agentbusd stopped")
}
