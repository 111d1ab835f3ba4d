package main

import (
	"context"
	"fmt"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/logging"
	"github.com/defistate/defistate-dex-go/storage"
	"github.com/defistate/defistate-dex-go/storage/clickhouse"
	"github.com/defistate/defistate-dex-go/storage/jsonl"
	"github.com/defistate/defistate-dex-go/storage/postgres"
)

// openWriters connects every configured event sink and runs its migrations. The returned
// func closes them.
func openWriters(ctx context.Context, cfg config.Config, logger *logging.Logger) (map[string]storage.EventWriter, func(), error) {
	writers := make(map[string]storage.EventWriter)
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.EventsJSONL != "" {
		writers["jsonl"] = jsonl.NewEventFile(cfg.EventsJSONL)
		logger.Info("recording events to file", "path", cfg.EventsJSONL)
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := pool.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		writers["postgres"] = postgres.NewEventStore(pool)
		logger.Info("recording events to postgres")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		if err := conn.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
		}
		writers["clickhouse"] = clickhouse.NewSwapStore(conn)
		logger.Info("recording swaps to clickhouse")
	}

	return writers, closeAll, nil
}
