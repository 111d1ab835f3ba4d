package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/storage"
)

// SwapStore implements storage.EventWriter for swapExecuted events; other event types are
// ignored. Duplicate rows collapse on merge.
type SwapStore struct {
	conn *Conn
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(conn *Conn) *SwapStore {
	return &SwapStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventWriter = (*SwapStore)(nil)

// PoolVolume aggregates the swaps of one pool.
type PoolVolume struct {
	Pool  string
	Swaps uint64
	// In and Out are summed per input token.
	Token0In  *big.Int
	Token1In  *big.Int
	Token0Out *big.Int
	Token1Out *big.Int
}

func (s *SwapStore) WriteEvents(ctx context.Context, events []dex.Event) error {
	var swaps []dex.Event
	for _, ev := range events {
		if ev.Type == dex.EventSwapExecuted {
			swaps = append(swaps, ev)
		}
	}
	if len(swaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_events (
			id, sequence, occurred_at, pool, trader, token_in, token_out,
			amount_in, amount_out, reserve0, reserve1
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range swaps {
		err = batch.Append(
			ev.ID, ev.Sequence, time.Unix(0, ev.Timestamp).UTC(), ev.Pool.String(),
			ev.Account.Hex(), ev.TokenIn.Hex(), ev.TokenOut.Hex(),
			ev.AmountIn, ev.AmountOut, ev.Reserve0, ev.Reserve1,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Volume sums the swaps of a pool since the given time, split by direction.
func (s *SwapStore) Volume(ctx context.Context, pair poolregistry.Pair, since time.Time) (PoolVolume, error) {
	query := `
		SELECT
			count() AS swaps,
			sumIf(amount_in, token_in = ?) AS token0_in,
			sumIf(amount_in, token_in != ?) AS token1_in,
			sumIf(amount_out, token_out = ?) AS token0_out,
			sumIf(amount_out, token_out != ?) AS token1_out
		FROM (SELECT * FROM swap_events FINAL)
		WHERE pool = ? AND occurred_at >= ?
	`
	v := PoolVolume{
		Pool:      pair.Key().String(),
		Token0In:  new(big.Int),
		Token1In:  new(big.Int),
		Token0Out: new(big.Int),
		Token1Out: new(big.Int),
	}
	token0 := pair.Token0.Hex()
	row := s.conn.QueryRow(ctx, query, token0, token0, token0, token0, v.Pool, since.UTC())
	if err := row.Scan(&v.Swaps, &v.Token0In, &v.Token1In, &v.Token0Out, &v.Token1Out); err != nil {
		return PoolVolume{}, fmt.Errorf("query volume: %w", err)
	}
	return v, nil
}
