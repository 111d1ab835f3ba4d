package dex

import (
	"context"
	"errors"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// LiquidityResult describes a committed deposit or withdrawal.
// AmountA and AmountB follow the caller's token argument order.
type LiquidityResult struct {
	Pool     constantproduct.Pool
	Shares   *big.Int
	AmountA  *big.Int
	AmountB  *big.Int
	Sequence uint64
}

// AddLiquidity deposits up to amountA of tokenA and amountB of tokenB into the pair's pool
// and credits provider with newly minted shares.
//
// Only the amounts matching the pool's current ratio are pulled from provider; see
// calculator.SimulateAddLiquidity. The pool must already exist.
func (e *Exchange) AddLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, amountA, amountB *big.Int) (LiquidityResult, error) {
	const op = "addLiquidity"
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	result, ev, err := e.addLiquidity(ctx, provider, tokenA, tokenB, amountA, amountB)
	e.observe(op, err)
	if err != nil {
		e.logger.Debug("add liquidity rejected", "provider", provider.Hex(), "tokenA", tokenA.Hex(), "tokenB", tokenB.Hex(), "error", err)
		return LiquidityResult{}, err
	}

	e.recordPool(result.Pool)
	e.logger.Debug("liquidity added",
		"pool", result.Pool.Key.String(),
		"provider", provider.Hex(),
		"shares", result.Shares.String(),
		"amount0", ev.Amount0.String(),
		"amount1", ev.Amount1.String(),
		"sequence", result.Sequence,
	)
	return result, nil
}

func (e *Exchange) addLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, amountA, amountB *big.Int) (LiquidityResult, Event, error) {
	if err := ctx.Err(); err != nil {
		return LiquidityResult{}, Event{}, err
	}
	if provider == (common.Address{}) {
		return LiquidityResult{}, Event{}, errorsmod.Wrap(ErrInvalidToken, "zero provider address")
	}
	if err := checkPositive(amountA); err != nil {
		return LiquidityResult{}, Event{}, err
	}
	if err := checkPositive(amountB); err != nil {
		return LiquidityResult{}, Event{}, err
	}

	ps, err := e.lookup(tokenA, tokenB)
	if err != nil {
		return LiquidityResult{}, Event{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	pool := ps.load()
	amount0, amount1 := amountA, amountB
	if tokenA != pool.Token0 {
		amount0, amount1 = amountB, amountA
	}

	change, err := calculator.SimulateAddLiquidity(amount0, amount1, pool)
	if err != nil {
		return LiquidityResult{}, Event{}, mapCalculatorError(err)
	}

	position := new(big.Int).Add(positionOf(ps, provider), change.Shares)
	if err := checkBounds(change.Pool.Reserve0, change.Pool.Reserve1, change.Pool.TotalShares, position); err != nil {
		return LiquidityResult{}, Event{}, err
	}

	// transfers run to completion or rollback once started
	tctx := context.WithoutCancel(ctx)
	if err := e.transferer.TransferFrom(tctx, pool.Token0, e.address, provider, e.address, change.Amount0); err != nil {
		return LiquidityResult{}, Event{}, errorsmod.Wrapf(ErrTransferFailed, "pull %s of %s: %v", change.Amount0, pool.Token0.Hex(), err)
	}
	if err := e.transferer.TransferFrom(tctx, pool.Token1, e.address, provider, e.address, change.Amount1); err != nil {
		failure := errorsmod.Wrapf(ErrTransferFailed, "pull %s of %s: %v", change.Amount1, pool.Token1.Hex(), err)
		if rerr := e.transferer.Transfer(tctx, pool.Token0, e.address, provider, change.Amount0); rerr != nil {
			e.logger.Error("refund after failed deposit failed",
				"pool", pool.Key.String(),
				"provider", provider.Hex(),
				"token", pool.Token0.Hex(),
				"amount", change.Amount0.String(),
				"error", rerr,
			)
			return LiquidityResult{}, Event{}, errors.Join(failure, rerr)
		}
		return LiquidityResult{}, Event{}, failure
	}

	ps.positions[provider] = position
	seq := e.commit(ps, change.Pool)

	ev := e.newEvent(EventLiquidityAdded, seq, change.Pool)
	ev.Account = provider
	ev.Amount0 = change.Amount0
	ev.Amount1 = change.Amount1
	ev.Shares = change.Shares

	// delivered under the pool lock so one pool's events stay in sequence order
	e.feed.Send(ev)

	amountAUsed, amountBUsed := change.Amount0, change.Amount1
	if tokenA != pool.Token0 {
		amountAUsed, amountBUsed = change.Amount1, change.Amount0
	}
	return LiquidityResult{
		Pool:     change.Pool.Clone(),
		Shares:   new(big.Int).Set(change.Shares),
		AmountA:  new(big.Int).Set(amountAUsed),
		AmountB:  new(big.Int).Set(amountBUsed),
		Sequence: seq,
	}, ev, nil
}

// RemoveLiquidity burns shares of provider's position and pays out the pro-rata reserves.
func (e *Exchange) RemoveLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, shares *big.Int) (LiquidityResult, error) {
	const op = "removeLiquidity"
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	result, ev, err := e.removeLiquidity(ctx, provider, tokenA, tokenB, shares)
	e.observe(op, err)
	if err != nil {
		e.logger.Debug("remove liquidity rejected", "provider", provider.Hex(), "tokenA", tokenA.Hex(), "tokenB", tokenB.Hex(), "error", err)
		return LiquidityResult{}, err
	}

	e.recordPool(result.Pool)
	e.logger.Debug("liquidity removed",
		"pool", result.Pool.Key.String(),
		"provider", provider.Hex(),
		"shares", result.Shares.String(),
		"amount0", ev.Amount0.String(),
		"amount1", ev.Amount1.String(),
		"sequence", result.Sequence,
	)
	return result, nil
}

func (e *Exchange) removeLiquidity(ctx context.Context, provider, tokenA, tokenB common.Address, shares *big.Int) (LiquidityResult, Event, error) {
	if err := ctx.Err(); err != nil {
		return LiquidityResult{}, Event{}, err
	}

	ps, err := e.lookup(tokenA, tokenB)
	if err != nil {
		return LiquidityResult{}, Event{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	owned := positionOf(ps, provider)
	if shares == nil || shares.Sign() <= 0 || shares.Cmp(owned) > 0 {
		return LiquidityResult{}, Event{}, errorsmod.Wrapf(ErrInsufficientShares, "burning %v of %s", shares, owned)
	}

	pool := ps.load()
	change, err := calculator.SimulateRemoveLiquidity(shares, pool)
	if err != nil {
		return LiquidityResult{}, Event{}, mapCalculatorError(err)
	}

	// both payouts must be covered before either one moves
	if err := e.ensureHeld(pool.Token0, change.Amount0); err != nil {
		return LiquidityResult{}, Event{}, err
	}
	if err := e.ensureHeld(pool.Token1, change.Amount1); err != nil {
		return LiquidityResult{}, Event{}, err
	}

	tctx := context.WithoutCancel(ctx)
	if err := e.payout(tctx, pool.Token0, provider, change.Amount0); err != nil {
		return LiquidityResult{}, Event{}, errorsmod.Wrapf(ErrTransferFailed, "pay %s of %s: %v", change.Amount0, pool.Token0.Hex(), err)
	}
	if err := e.payout(tctx, pool.Token1, provider, change.Amount1); err != nil {
		failure := errorsmod.Wrapf(ErrTransferFailed, "pay %s of %s: %v", change.Amount1, pool.Token1.Hex(), err)
		if rerr := e.reclaim(tctx, pool.Token0, provider, change.Amount0); rerr != nil {
			e.logger.Error("reclaim after failed withdrawal failed",
				"pool", pool.Key.String(),
				"provider", provider.Hex(),
				"token", pool.Token0.Hex(),
				"amount", change.Amount0.String(),
				"error", rerr,
			)
			return LiquidityResult{}, Event{}, errors.Join(failure, rerr)
		}
		return LiquidityResult{}, Event{}, failure
	}

	remaining := new(big.Int).Sub(owned, shares)
	if remaining.Sign() == 0 {
		delete(ps.positions, provider)
	} else {
		ps.positions[provider] = remaining
	}
	seq := e.commit(ps, change.Pool)

	ev := e.newEvent(EventLiquidityRemoved, seq, change.Pool)
	ev.Account = provider
	ev.Amount0 = change.Amount0
	ev.Amount1 = change.Amount1
	ev.Shares = change.Shares

	e.feed.Send(ev)

	amountAOut, amountBOut := change.Amount0, change.Amount1
	if tokenA != pool.Token0 {
		amountAOut, amountBOut = change.Amount1, change.Amount0
	}
	return LiquidityResult{
		Pool:     change.Pool.Clone(),
		Shares:   new(big.Int).Set(change.Shares),
		AmountA:  new(big.Int).Set(amountAOut),
		AmountB:  new(big.Int).Set(amountBOut),
		Sequence: seq,
	}, ev, nil
}

// payout sends amount of token from the exchange to to. Zero amounts are skipped.
func (e *Exchange) payout(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return e.transferer.Transfer(ctx, token, e.address, to, amount)
}

// reclaim reverses a payout made inside the same pool lock. It does not spend an allowance,
// so a provider who revoked theirs cannot keep a half-finished withdrawal.
func (e *Exchange) reclaim(ctx context.Context, token, from common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return e.transferer.Transfer(ctx, token, from, e.address, amount)
}

// ensureHeld fails with ErrTransferFailed unless the exchange account holds at least amount
// of token.
func (e *Exchange) ensureHeld(token common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	held, err := e.transferer.BalanceOf(token, e.address)
	if err != nil {
		return errorsmod.Wrapf(ErrTransferFailed, "balance of %s: %v", token.Hex(), err)
	}
	if held.Cmp(amount) < 0 {
		return errorsmod.Wrapf(ErrTransferFailed, "exchange holds %s of %s, owes %s", held, token.Hex(), amount)
	}
	return nil
}

// positionOf must be called with ps.mu held.
func positionOf(ps *poolState, provider common.Address) *big.Int {
	if shares, ok := ps.positions[provider]; ok {
		return shares
	}
	return new(big.Int)
}
