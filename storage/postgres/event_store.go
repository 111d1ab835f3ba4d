package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventStore implements storage.EventWriter using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventWriter = (*EventStore)(nil)

const insertEvent = `
	INSERT INTO dex_events (
		id, sequence, type, occurred_at, pool, token0, token1, account,
		token_in, token_out, amount_in, amount_out, amount0, amount1, shares,
		reserve0, reserve1, total_shares
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11::numeric, $12::numeric, $13::numeric, $14::numeric, $15::numeric,
		$16::numeric, $17::numeric, $18::numeric
	)
	ON CONFLICT (id) DO NOTHING
`

const selectEvent = `
	SELECT id, sequence, type, occurred_at, pool, token0, token1, account,
		token_in, token_out, amount_in::text, amount_out::text, amount0::text, amount1::text, shares::text,
		reserve0::text, reserve1::text, total_shares::text
	FROM dex_events
`

// WriteEvents inserts a batch in one round trip. Events already stored are skipped.
func (s *EventStore) WriteEvents(ctx context.Context, events []dex.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEvent,
			ev.ID,
			int64(ev.Sequence),
			string(ev.Type),
			time.Unix(0, ev.Timestamp).UTC(),
			ev.Pool.String(),
			ev.Token0.Hex(),
			ev.Token1.Hex(),
			ev.Account.Hex(),
			optionalAddress(ev.TokenIn),
			optionalAddress(ev.TokenOut),
			numeric(ev.AmountIn),
			numeric(ev.AmountOut),
			numeric(ev.Amount0),
			numeric(ev.Amount1),
			numeric(ev.Shares),
			numeric(ev.Reserve0),
			numeric(ev.Reserve1),
			numeric(ev.TotalShares),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, ev := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Sequence, err)
		}
	}
	return nil
}

// Event returns the event with the given id, or storage.ErrNotFound.
func (s *EventStore) Event(ctx context.Context, id uuid.UUID) (dex.Event, error) {
	row := s.pool.QueryRow(ctx, selectEvent+` WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return dex.Event{}, storage.ErrNotFound
	}
	return ev, err
}

// EventsByPool returns up to limit events of one pool, newest first.
func (s *EventStore) EventsByPool(ctx context.Context, pool poolregistry.PoolKey, limit int) ([]dex.Event, error) {
	rows, err := s.pool.Query(ctx, selectEvent+` WHERE pool = $1 ORDER BY recorded_at DESC, sequence DESC LIMIT $2`, pool.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []dex.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (dex.Event, error) {
	var (
		ev                                            dex.Event
		seq                                           int64
		typ, pool, token0, token1, account            string
		occurredAt                                    time.Time
		tokenIn, tokenOut                             *string
		amountIn, amountOut, amount0, amount1, shares *string
		reserve0, reserve1, totalShares               string
	)
	err := row.Scan(&ev.ID, &seq, &typ, &occurredAt, &pool, &token0, &token1, &account,
		&tokenIn, &tokenOut, &amountIn, &amountOut, &amount0, &amount1, &shares,
		&reserve0, &reserve1, &totalShares)
	if err != nil {
		return dex.Event{}, err
	}
	if err := ev.Pool.UnmarshalText([]byte(pool)); err != nil {
		return dex.Event{}, fmt.Errorf("decode pool key: %w", err)
	}
	ev.Sequence = uint64(seq)
	ev.Type = dex.EventType(typ)
	ev.Timestamp = occurredAt.UnixNano()
	ev.Token0 = common.HexToAddress(token0)
	ev.Token1 = common.HexToAddress(token1)
	ev.Account = common.HexToAddress(account)
	if tokenIn != nil {
		ev.TokenIn = common.HexToAddress(*tokenIn)
	}
	if tokenOut != nil {
		ev.TokenOut = common.HexToAddress(*tokenOut)
	}
	ev.AmountIn = parseNumeric(amountIn)
	ev.AmountOut = parseNumeric(amountOut)
	ev.Amount0 = parseNumeric(amount0)
	ev.Amount1 = parseNumeric(amount1)
	ev.Shares = parseNumeric(shares)
	ev.Reserve0 = parseNumeric(&reserve0)
	ev.Reserve1 = parseNumeric(&reserve1)
	ev.TotalShares = parseNumeric(&totalShares)
	return ev, nil
}

// numeric passes amounts as decimal text so no precision is lost in transit.
func numeric(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func parseNumeric(s *string) *big.Int {
	if s == nil {
		return nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil
	}
	return v
}

func optionalAddress(a common.Address) *string {
	if a == (common.Address{}) {
		return nil
	}
	s := a.Hex()
	return &s
}
