package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/storage/clickhouse"
	"github.com/defistate/defistate-dex-go/storage/jsonl"
	"github.com/defistate/defistate-dex-go/storage/memory"
	"github.com/defistate/defistate-dex-go/storage/postgres"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print recorded exchange events from a JSONL file or Postgres",
		RunE:  runEvents,
	}
	cmd.Flags().String("events-jsonl", "", "JSONL event file")
	cmd.Flags().String("postgres-dsn", "", "Postgres event store")
	cmd.Flags().String("pool", "", "only events of this pool key")
	cmd.Flags().Int("limit", 50, "maximum events printed")
	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("events-jsonl")
	dsn, _ := cmd.Flags().GetString("postgres-dsn")
	poolFlag, _ := cmd.Flags().GetString("pool")
	limit, _ := cmd.Flags().GetInt("limit")

	var pool poolregistry.PoolKey
	if poolFlag != "" {
		key, err := poolregistry.HexToPoolKey(poolFlag)
		if err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		pool = key
	}

	var events []dex.Event
	switch {
	case file != "":
		recorded, err := jsonl.ReadEvents(file)
		if err != nil {
			return err
		}
		store := memory.NewEventStore()
		if err := store.WriteEvents(cmd.Context(), recorded); err != nil {
			return err
		}
		if pool.IsZero() {
			events = store.Events()
		} else {
			events = store.ByPool(pool)
		}
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	case dsn != "":
		if pool.IsZero() {
			return errors.New("--pool is required with --postgres-dsn")
		}
		pgPool, err := postgres.NewPool(cmd.Context(), dsn)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		events, err = postgres.NewEventStore(pgPool).EventsByPool(cmd.Context(), pool, limit)
		if err != nil {
			return err
		}
	default:
		return errors.New("one of --events-jsonl or --postgres-dsn is required")
	}

	printEvents(cmd.OutOrStdout(), events)
	return nil
}

func printEvents(out io.Writer, events []dex.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tPOOL\tACCOUNT\tRESERVE0\tRESERVE1\t")
	for _, ev := range events {
		account := "-"
		if ev.Account != (common.Address{}) {
			account = ev.Account.Hex()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			ev.Sequence,
			time.Unix(0, ev.Timestamp).UTC().Format(time.RFC3339),
			ev.Type,
			shortKey(ev.Pool),
			account,
			ev.Reserve0, ev.Reserve1,
		)
	}
	w.Flush()
}

func shortKey(key poolregistry.PoolKey) string {
	s := key.String()
	if len(s) <= 14 {
		return s
	}
	return s[:10] + ".." + s[len(s)-4:]
}

func newVolumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Print swap volume of a pool recorded in ClickHouse",
		RunE:  runVolume,
	}
	cmd.Flags().String("clickhouse-dsn", "", "ClickHouse swap store")
	cmd.Flags().String("token-a", "", "first token address")
	cmd.Flags().String("token-b", "", "second token address")
	cmd.Flags().Duration("since", 24*time.Hour, "look-back window")
	return cmd
}

func runVolume(cmd *cobra.Command, _ []string) error {
	dsn, _ := cmd.Flags().GetString("clickhouse-dsn")
	tokenA, _ := cmd.Flags().GetString("token-a")
	tokenB, _ := cmd.Flags().GetString("token-b")
	since, _ := cmd.Flags().GetDuration("since")

	if dsn == "" {
		return errors.New("--clickhouse-dsn is required")
	}
	if !common.IsHexAddress(tokenA) || !common.IsHexAddress(tokenB) {
		return errors.New("--token-a and --token-b must be hex addresses")
	}
	pair, err := poolregistry.NewPair(common.HexToAddress(tokenA), common.HexToAddress(tokenB))
	if err != nil {
		return err
	}

	conn, err := clickhouse.NewConn(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer conn.Close()

	volume, err := clickhouse.NewSwapStore(conn).Volume(cmd.Context(), pair, time.Now().Add(-since))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool     %s\n", pair.Key())
	fmt.Fprintf(out, "swaps    %d\n", volume.Swaps)
	fmt.Fprintf(out, "token0   %s in, %s out\n", volume.Token0In, volume.Token0Out)
	fmt.Fprintf(out, "token1   %s in, %s out\n", volume.Token1In, volume.Token1Out)
	return nil
}
