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

// SwapResult describes a committed swap.
type SwapResult struct {
	Pool      constantproduct.Pool
	AmountIn  *big.Int
	AmountOut *big.Int
	Sequence  uint64
}

// Swap sells amountIn of tokenIn for tokenOut. The whole amountIn, fee included, stays in the
// pool. It fails with ErrSlippageExceeded when the output would be below minAmountOut; a nil
// minAmountOut accepts any positive output.
func (e *Exchange) Swap(ctx context.Context, trader, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (SwapResult, error) {
	const op = "swap"
	timer := prometheus.NewTimer(e.metrics.operationDuration.WithLabelValues(op))
	defer timer.ObserveDuration()

	result, err := e.swap(ctx, trader, tokenIn, tokenOut, amountIn, minAmountOut)
	e.observe(op, err)
	if err != nil {
		e.logger.Debug("swap rejected",
			"trader", trader.Hex(),
			"tokenIn", tokenIn.Hex(),
			"tokenOut", tokenOut.Hex(),
			"amountIn", amountIn,
			"error", err,
		)
		return SwapResult{}, err
	}

	e.recordPool(result.Pool)
	volume, _ := new(big.Float).SetInt(result.AmountIn).Float64()
	e.metrics.swapVolume.WithLabelValues(result.Pool.Key.String(), tokenIn.Hex()).Add(volume)
	e.logger.Debug("swap executed",
		"pool", result.Pool.Key.String(),
		"trader", trader.Hex(),
		"tokenIn", tokenIn.Hex(),
		"amountIn", result.AmountIn.String(),
		"amountOut", result.AmountOut.String(),
		"sequence", result.Sequence,
	)
	return result, nil
}

func (e *Exchange) swap(ctx context.Context, trader, tokenIn, tokenOut common.Address, amountIn, minAmountOut *big.Int) (SwapResult, error) {
	if err := ctx.Err(); err != nil {
		return SwapResult{}, err
	}
	if trader == (common.Address{}) {
		return SwapResult{}, errorsmod.Wrap(ErrInvalidToken, "zero trader address")
	}
	if err := checkPositive(amountIn); err != nil {
		return SwapResult{}, err
	}
	if minAmountOut != nil && minAmountOut.Sign() < 0 {
		return SwapResult{}, errorsmod.Wrapf(ErrInvalidAmount, "negative minAmountOut %s", minAmountOut)
	}

	ps, err := e.lookup(tokenIn, tokenOut)
	if err != nil {
		return SwapResult{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	pool := ps.load()
	if pool.IsEmpty() {
		return SwapResult{}, errorsmod.Wrapf(ErrInvalidReserves, "pool %s has no liquidity", pool.Key)
	}

	amountOut, next, err := calculator.SimulateSwap(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return SwapResult{}, mapCalculatorError(err)
	}
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return SwapResult{}, errorsmod.Wrapf(ErrSlippageExceeded, "output %s below minimum %s", amountOut, minAmountOut)
	}
	if amountOut.Sign() == 0 {
		return SwapResult{}, errorsmod.Wrapf(ErrInsufficientOutputAmount, "%s in yields nothing", amountIn)
	}
	if err := checkBounds(next.Reserve0, next.Reserve1); err != nil {
		return SwapResult{}, err
	}

	if err := e.ensureHeld(tokenOut, amountOut); err != nil {
		return SwapResult{}, err
	}

	tctx := context.WithoutCancel(ctx)
	if err := e.transferer.TransferFrom(tctx, tokenIn, e.address, trader, e.address, amountIn); err != nil {
		return SwapResult{}, errorsmod.Wrapf(ErrTransferFailed, "pull %s of %s: %v", amountIn, tokenIn.Hex(), err)
	}
	if err := e.transferer.Transfer(tctx, tokenOut, e.address, trader, amountOut); err != nil {
		failure := errorsmod.Wrapf(ErrTransferFailed, "pay %s of %s: %v", amountOut, tokenOut.Hex(), err)
		if rerr := e.transferer.Transfer(tctx, tokenIn, e.address, trader, amountIn); rerr != nil {
			e.logger.Error("refund after failed swap payout failed",
				"pool", pool.Key.String(),
				"trader", trader.Hex(),
				"token", tokenIn.Hex(),
				"amount", amountIn.String(),
				"error", rerr,
			)
			return SwapResult{}, errors.Join(failure, rerr)
		}
		return SwapResult{}, failure
	}

	seq := e.commit(ps, next)

	ev := e.newEvent(EventSwapExecuted, seq, next)
	ev.Account = trader
	ev.TokenIn = tokenIn
	ev.TokenOut = tokenOut
	ev.AmountIn = new(big.Int).Set(amountIn)
	ev.AmountOut = new(big.Int).Set(amountOut)
	e.feed.Send(ev)

	return SwapResult{
		Pool:      next.Clone(),
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: amountOut,
		Sequence:  seq,
	}, nil
}
