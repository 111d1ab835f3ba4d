package dex

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct/calculator"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	tokenregistry "github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// poolState is the live state of one pool.
//
// mu serializes mutations and is held for the whole operation, token transfers included.
// snapshot is replaced only after a mutation commits, so readers that load it never
// block and always see a consistent (Reserve0, Reserve1, TotalShares) triple.
type poolState struct {
	mu        sync.RWMutex
	snapshot  atomic.Pointer[constantproduct.Pool]
	positions map[common.Address]*big.Int
}

func (ps *poolState) load() constantproduct.Pool {
	return *ps.snapshot.Load()
}

// Exchange is a constant-product market maker over many token pairs.
// It is safe for concurrent use.
type Exchange struct {
	address    common.Address
	feeBps     uint16
	transferer TokenTransferer
	tokens     TokenSource
	logger     Logger
	metrics    *Metrics

	mu    sync.RWMutex
	pools map[poolregistry.PoolKey]*poolState
	order []poolregistry.PoolKey

	// commitMu lets State() observe every pool at one sequence number. Commits hold it
	// shared while they assign a sequence and publish a snapshot.
	commitMu sync.RWMutex
	sequence atomic.Uint64

	feed  event.Feed
	scope event.SubscriptionScope
}

// NewExchange constructs an Exchange from a configuration, returning an error if the config is invalid.
func NewExchange(cfg *Config) (*Exchange, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Exchange{
		address:    cfg.Address,
		feeBps:     cfg.FeeBps,
		transferer: cfg.Transferer,
		tokens:     cfg.Tokens,
		logger:     cfg.Logger,
		metrics:    NewMetrics(cfg.Registry),
		pools:      make(map[poolregistry.PoolKey]*poolState),
	}, nil
}

// Address returns the exchange's own token account.
func (e *Exchange) Address() common.Address {
	return e.address
}

// FeeBps returns the swap fee charged by new pools.
func (e *Exchange) FeeBps() uint16 {
	return e.feeBps
}

// Sequence returns the number of operations committed so far.
func (e *Exchange) Sequence() uint64 {
	return e.sequence.Load()
}

// SubscribeEvents delivers every committed operation to ch. Sends block until every
// subscriber has received the event, so ch should be buffered and drained promptly.
func (e *Exchange) SubscribeEvents(ch chan<- Event) event.Subscription {
	return e.scope.Track(e.feed.Subscribe(ch))
}

// Close ends all event subscriptions.
func (e *Exchange) Close() {
	e.scope.Close()
}

// CreatePool registers an empty pool for the pair. The pair may be given in either order.
func (e *Exchange) CreatePool(ctx context.Context, tokenA, tokenB common.Address) (constantproduct.Pool, error) {
	const op = "createPool"
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	pool, seq, err := e.createPool(ctx, tokenA, tokenB)
	e.observe(op, err)
	if err != nil {
		e.logger.Debug("create pool rejected", "tokenA", tokenA.Hex(), "tokenB", tokenB.Hex(), "error", err)
		return constantproduct.Pool{}, err
	}

	e.metrics.poolsTotal.Inc()
	e.logger.Info("pool created",
		"pool", pool.Key.String(),
		"token0", pool.Token0.Hex(),
		"token1", pool.Token1.Hex(),
		"feeBps", pool.FeeBps,
		"sequence", seq,
	)
	return pool, nil
}

func (e *Exchange) createPool(ctx context.Context, tokenA, tokenB common.Address) (constantproduct.Pool, uint64, error) {
	if err := ctx.Err(); err != nil {
		return constantproduct.Pool{}, 0, err
	}
	pair, err := newPair(tokenA, tokenB)
	if err != nil {
		return constantproduct.Pool{}, 0, err
	}

	e.mu.Lock()
	key := pair.Key()
	if _, exists := e.pools[key]; exists {
		e.mu.Unlock()
		return constantproduct.Pool{}, 0, errorsmod.Wrapf(ErrPoolAlreadyExists, "%s/%s", pair.Token0.Hex(), pair.Token1.Hex())
	}

	pool := constantproduct.NewPool(pair, e.feeBps)
	ps := &poolState{positions: make(map[common.Address]*big.Int)}
	// held until the creation event is out so no later event for this pool can overtake it
	ps.mu.Lock()
	defer ps.mu.Unlock()

	seq := e.commit(ps, pool)
	e.pools[key] = ps
	e.order = append(e.order, key)
	e.mu.Unlock()

	e.feed.Send(e.newEvent(EventPoolCreated, seq, pool))
	return pool.Clone(), seq, nil
}

// PoolExists reports whether a pool exists for the pair, in either order.
func (e *Exchange) PoolExists(tokenA, tokenB common.Address) bool {
	_, err := e.lookup(tokenA, tokenB)
	return err == nil
}

// GetPoolInfo returns a consistent snapshot of the pool for the pair, in canonical order.
func (e *Exchange) GetPoolInfo(tokenA, tokenB common.Address) (constantproduct.Pool, error) {
	ps, err := e.lookup(tokenA, tokenB)
	if err != nil {
		return constantproduct.Pool{}, err
	}
	return ps.load().Clone(), nil
}

// Pool returns the pool with the given key.
func (e *Exchange) Pool(key poolregistry.PoolKey) (constantproduct.Pool, bool) {
	e.mu.RLock()
	ps, ok := e.pools[key]
	e.mu.RUnlock()
	if !ok {
		return constantproduct.Pool{}, false
	}
	return ps.load().Clone(), true
}

// Pools returns a snapshot of every pool, in creation order.
func (e *Exchange) Pools() []constantproduct.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pools := make([]constantproduct.Pool, 0, len(e.order))
	for _, key := range e.order {
		pools = append(pools, e.pools[key].load().Clone())
	}
	return pools
}

// GetUserLiquidity returns provider's shares in the pair's pool, zero if it holds none
// or the pool does not exist.
func (e *Exchange) GetUserLiquidity(provider, tokenA, tokenB common.Address) *big.Int {
	ps, err := e.lookup(tokenA, tokenB)
	if err != nil {
		return new(big.Int)
	}

	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if shares, ok := ps.positions[provider]; ok {
		return new(big.Int).Set(shares)
	}
	return new(big.Int)
}

// Positions returns every non-zero position held by provider, in pool creation order.
func (e *Exchange) Positions(provider common.Address) []constantproduct.Position {
	e.mu.RLock()
	states := make([]*poolState, 0, len(e.order))
	keys := make([]poolregistry.PoolKey, 0, len(e.order))
	for _, key := range e.order {
		states = append(states, e.pools[key])
		keys = append(keys, key)
	}
	e.mu.RUnlock()

	var positions []constantproduct.Position
	for i, ps := range states {
		ps.mu.RLock()
		shares, ok := ps.positions[provider]
		if ok {
			positions = append(positions, constantproduct.Position{
				Pool:     keys[i],
				Provider: provider,
				Shares:   new(big.Int).Set(shares),
			})
		}
		ps.mu.RUnlock()
	}
	return positions
}

// GetAmountOut prices a swap whose fee has already been deducted. It is a pure function
// of its arguments.
func (e *Exchange) GetAmountOut(amountInAfterFee, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	out, err := calculator.GetAmountOut(amountInAfterFee, reserveIn, reserveOut)
	if err != nil {
		return nil, mapCalculatorError(err)
	}
	return out, nil
}

// Quote returns what Swap would pay out for amountIn against the pool's current reserves,
// fee included.
func (e *Exchange) Quote(tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := checkPositive(amountIn); err != nil {
		return nil, err
	}
	ps, err := e.lookup(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	out, err := calculator.QuoteSwap(amountIn, tokenIn, tokenOut, ps.load())
	if err != nil {
		return nil, mapCalculatorError(err)
	}
	return out, nil
}

// QuoteIn returns the smallest input that Swap would price at amountOut or more.
func (e *Exchange) QuoteIn(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	if err := checkPositive(amountOut); err != nil {
		return nil, err
	}
	ps, err := e.lookup(tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	in, err := calculator.GetAmountIn(amountOut, tokenIn, tokenOut, ps.load())
	if err != nil {
		return nil, mapCalculatorError(err)
	}
	return in, nil
}

// State returns an immutable snapshot of every pool, and of the token registry when one
// is configured, taken at a single sequence number.
func (e *Exchange) State() *engine.State {
	// registry lock first so a pool created after the sequence is read cannot be missed
	e.mu.RLock()
	e.commitMu.Lock()
	seq := e.sequence.Load()
	pools := make([]constantproduct.Pool, 0, len(e.order))
	for _, key := range e.order {
		pools = append(pools, e.pools[key].load())
	}
	e.commitMu.Unlock()
	e.mu.RUnlock()

	// snapshots are immutable, clone outside the lock
	for i := range pools {
		pools[i] = pools[i].Clone()
	}

	protocols := map[engine.ProtocolID]engine.ProtocolState{
		constantproduct.ProtocolID: {
			Meta:   engine.ProtocolMeta{Name: constantproduct.Name, Tags: []string{"dex"}},
			Schema: constantproduct.Schema,
			Data:   pools,
		},
	}
	if e.tokens != nil {
		protocols[tokenregistry.ProtocolID] = engine.ProtocolState{
			Meta:   engine.ProtocolMeta{Name: tokenregistry.Name, Tags: []string{"tokens"}},
			Schema: tokenregistry.Schema,
			Data:   e.tokens.Tokens(),
		}
	}

	return &engine.State{
		Exchange:  e.address,
		Sequence:  seq,
		Timestamp: uint64(time.Now().UnixNano()),
		Protocols: protocols,
	}
}

// lookup resolves a pair to its pool. Pools are never removed, so the returned pointer
// stays valid.
func (e *Exchange) lookup(tokenA, tokenB common.Address) (*poolState, error) {
	pair, err := newPair(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	ps, ok := e.pools[pair.Key()]
	e.mu.RUnlock()
	if !ok {
		return nil, errorsmod.Wrapf(ErrPoolNotFound, "%s/%s", pair.Token0.Hex(), pair.Token1.Hex())
	}
	return ps, nil
}

// commit assigns the next sequence number and publishes pool as the pool's snapshot.
func (e *Exchange) commit(ps *poolState, pool constantproduct.Pool) uint64 {
	e.commitMu.RLock()
	defer e.commitMu.RUnlock()

	seq := e.sequence.Add(1)
	ps.snapshot.Store(&pool)
	return seq
}

func (e *Exchange) newEvent(typ EventType, seq uint64, pool constantproduct.Pool) Event {
	return Event{
		ID:          uuid.New(),
		Sequence:    seq,
		Type:        typ,
		Timestamp:   time.Now().UnixNano(),
		Pool:        pool.Key,
		Token0:      pool.Token0,
		Token1:      pool.Token1,
		Reserve0:    new(big.Int).Set(pool.Reserve0),
		Reserve1:    new(big.Int).Set(pool.Reserve1),
		TotalShares: new(big.Int).Set(pool.TotalShares),
	}
}

func (e *Exchange) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if kind := KindOf(err); kind != nil {
			result = kind.Error()
		}
	}
	e.metrics.operationsTotal.WithLabelValues(op, result).Inc()
}

func (e *Exchange) recordPool(pool constantproduct.Pool) {
	key := pool.Key.String()
	r0, _ := new(big.Float).SetInt(pool.Reserve0).Float64()
	r1, _ := new(big.Float).SetInt(pool.Reserve1).Float64()
	shares, _ := new(big.Float).SetInt(pool.TotalShares).Float64()
	e.metrics.poolReserves.WithLabelValues(key, pool.Token0.Hex()).Set(r0)
	e.metrics.poolReserves.WithLabelValues(key, pool.Token1.Hex()).Set(r1)
	e.metrics.poolShares.WithLabelValues(key).Set(shares)
}

func newPair(tokenA, tokenB common.Address) (poolregistry.Pair, error) {
	pair, err := poolregistry.NewPair(tokenA, tokenB)
	switch {
	case errors.Is(err, poolregistry.ErrIdenticalTokens):
		return poolregistry.Pair{}, errorsmod.Wrap(ErrIdenticalTokens, tokenA.Hex())
	case errors.Is(err, poolregistry.ErrZeroAddress):
		return poolregistry.Pair{}, errorsmod.Wrap(ErrInvalidToken, "zero address")
	case err != nil:
		return poolregistry.Pair{}, errorsmod.Wrap(ErrInvalidToken, err.Error())
	}
	return pair, nil
}

func checkPositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errorsmod.Wrapf(ErrInvalidAmount, "amount must be positive, got %v", amount)
	}
	return checkBounds(amount)
}

// checkBounds fails with ErrOverflow unless every value fits in an unsigned 256-bit word.
func checkBounds(values ...*big.Int) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, overflow := uint256.FromBig(v); overflow || v.Sign() < 0 {
			return errorsmod.Wrapf(ErrOverflow, "%s does not fit in 256 bits", v)
		}
	}
	return nil
}

func mapCalculatorError(err error) error {
	switch {
	case errors.Is(err, calculator.ErrInvalidAmount), errors.Is(err, calculator.ErrNilAmount):
		return errorsmod.Wrap(ErrInvalidAmount, err.Error())
	case errors.Is(err, calculator.ErrInvalidReserves):
		return errorsmod.Wrap(ErrInvalidReserves, err.Error())
	case errors.Is(err, calculator.ErrInsufficientLiquidity):
		return errorsmod.Wrap(ErrInsufficientLiquidity, err.Error())
	case errors.Is(err, calculator.ErrInsufficientLiquidityMinted):
		return errorsmod.Wrap(ErrInsufficientLiquidityMinted, err.Error())
	case errors.Is(err, calculator.ErrInsufficientShares):
		return errorsmod.Wrap(ErrInsufficientShares, err.Error())
	case errors.Is(err, calculator.ErrTokenMismatch):
		return errorsmod.Wrap(ErrPoolNotFound, err.Error())
	}
	return err
}
