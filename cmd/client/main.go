package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/logging"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/client"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultClientStateBufferSize = 100
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	zapLogger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	rootLogger := logging.Adapt(zapLogger)

	close := func() {
		_ = zapLogger.Sync()
		os.Exit(1)
	}

	cfg, err := config.LoadConsoleConfig(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "path", *configPath, "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ops, err := stateops.NewStateOps(rootLogger.With("component", "state-ops"), prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to initialize State Ops", "error", err)
		close()
	}

	stream, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.ServerURL,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       DefaultClientStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.ServerURL, "error", err)
		close()
	}

	for {
		select {
		case state := <-stream.State():
			pools, _ := state.Protocols[constantproduct.ProtocolID].Data.([]constantproduct.Pool)
			rootLogger.Info("state",
				"sequence", state.Sequence,
				"pools", len(pools),
				"errors", state.HasErrors(),
			)
		case err := <-stream.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}
