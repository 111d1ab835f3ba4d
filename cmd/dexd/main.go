package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/logging"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/defistate/defistate-dex-go/storage"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/server"
	"github.com/defistate/defistate-dex-go/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:          "dexd",
		Short:        "Constant-product exchange server",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the exchange and serve it over JSON-RPC",
		RunE:  runExchange,
	}

	runCmd.Flags().String("http-addr", "127.0.0.1:8545", "JSON-RPC listen address (HTTP and WebSocket)")
	runCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed browser origins (comma-separated)")
	runCmd.Flags().Float64("rate-limit", 0, "requests per second per client IP, 0 disables")
	runCmd.Flags().Int("rate-burst", 50, "rate limiter burst")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "prometheus listen address, empty disables")
	runCmd.Flags().String("genesis", "genesis.yaml", "genesis file path")
	runCmd.Flags().String("exchange-address", "0x000000000000000000000000000000000000dE10", "exchange account address")
	runCmd.Flags().Uint("fee-bps", uint(dex.DefaultFeeBps), "swap fee in basis points")
	runCmd.Flags().String("events-jsonl", "", "append exchange events to this JSONL file")
	runCmd.Flags().String("postgres-dsn", "", "record exchange events in Postgres")
	runCmd.Flags().String("clickhouse-dsn", "", "record swaps in ClickHouse")
	runCmd.Flags().Int("recorder-batch-size", 100, "events per storage write")
	runCmd.Flags().Duration("recorder-flush-interval", time.Second, "maximum delay before pending events are written")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	genesisCmd := &cobra.Command{
		Use:   "genesis [file]",
		Short: "Validate a genesis file and print the token addresses it produces",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runGenesisCheck,
	}
	genesisCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(genesisCmd)
	root.AddCommand(newEventsCmd())
	root.AddCommand(newVolumeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runExchange(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	zapLogger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	logger := logging.Adapt(zapLogger)

	genesis, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.DefaultRegisterer

	ledger := tokenregistry.NewLedger(logger.With("component", "token-ledger"))
	exchange, err := dex.NewExchange(&dex.Config{
		Address:    cfg.ExchangeAddress,
		FeeBps:     cfg.FeeBps,
		Transferer: ledger,
		Tokens:     ledger,
		Logger:     logger.With("component", "exchange"),
		Registry:   registry,
	})
	if err != nil {
		return fmt.Errorf("create exchange: %w", err)
	}
	defer exchange.Close()

	tokens, err := applyGenesis(ctx, genesis, ledger, exchange)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	for symbol, addr := range tokens {
		logger.Info("genesis token", "symbol", symbol, "address", addr.Hex())
	}

	ops, err := stateops.NewStateOps(logger.With("component", "state-ops"), registry)
	if err != nil {
		return fmt.Errorf("create state ops: %w", err)
	}

	rpcServer, err := server.NewServer(&server.Config{
		Exchange:    exchange,
		Differ:      ops,
		Ledger:      ledger,
		Logger:      logger.With("component", "jsonrpc-server"),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer rpcServer.Stop()

	group, ctx := errgroup.WithContext(ctx)

	if cfg.RecordsEvents() {
		writers, closeWriters, err := openWriters(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeWriters()

		recorder, err := storage.NewRecorder(&storage.RecorderConfig{
			Source:        exchange,
			Writers:       writers,
			BatchSize:     cfg.RecorderBatchSize,
			FlushInterval: cfg.RecorderFlushInterval,
			Logger:        logger.With("component", "recorder"),
			Registry:      registry,
		})
		if err != nil {
			return fmt.Errorf("create recorder: %w", err)
		}
		group.Go(func() error { return recorder.Run(ctx) })
	}

	group.Go(func() error {
		return serve(ctx, &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           rpcServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	})
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		group.Go(func() error {
			return serve(ctx, &http.Server{
				Addr:              cfg.MetricsAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			})
		})
	}

	logger.Info("dexd start",
		"http_addr", cfg.HTTPAddr,
		"metrics_addr", cfg.MetricsAddr,
		"exchange", cfg.ExchangeAddress.Hex(),
		"fee_bps", cfg.FeeBps,
		"tokens", len(genesis.Tokens),
		"pools", len(genesis.Pools),
		"recording", cfg.RecordsEvents(),
	)

	err = group.Wait()
	logger.Info("dexd stopped", "sequence", exchange.Sequence())
	return err
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGenesisCheck(cmd *cobra.Command, args []string) error {
	path := "genesis.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	level, _ := cmd.Flags().GetString("log-level")
	zapLogger, err := logging.New(level)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	logger := logging.Adapt(zapLogger)

	genesis, err := config.LoadGenesis(path)
	if err != nil {
		return err
	}

	// dry run against a throwaway exchange so pool and allocation errors surface too
	ledger := tokenregistry.NewLedger(logger)
	exchange, err := dex.NewExchange(&dex.Config{
		Address:    dryRunExchange,
		FeeBps:     dex.DefaultFeeBps,
		Transferer: ledger,
		Tokens:     ledger,
		Logger:     logger,
		Registry:   prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}
	defer exchange.Close()

	tokens, err := applyGenesis(cmd.Context(), genesis, ledger, exchange)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, t := range ledger.Tokens() {
		fmt.Fprintf(out, "%-8s %s supply=%s\n", t.Symbol, tokens[t.Symbol].Hex(),
			tokenregistry.FormatUnits(t.TotalSupply, t.Decimals))
	}
	for _, p := range exchange.Pools() {
		fmt.Fprintf(out, "pool     %s\n", p.Key)
	}
	return nil
}
