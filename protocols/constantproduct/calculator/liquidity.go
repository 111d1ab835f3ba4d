package calculator

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
)

// LiquidityChange describes a deposit or withdrawal against a pool.
// Amount0 and Amount1 are the token amounts actually moved, in pool order.
type LiquidityChange struct {
	Shares  *big.Int
	Amount0 *big.Int
	Amount1 *big.Int
	Pool    constantproduct.Pool
}

// SimulateAddLiquidity computes the shares minted for a deposit of up to amount0/amount1.
//
// The first deposit into an empty pool mints isqrt(amount0 * amount1) shares and
// consumes both amounts exactly. Later deposits mint
//
//	shares = min(amount0 * T / R0, amount1 * T / R1)
//
// and consume only ceil(shares * Ri / T) of each token, which never exceeds the amount
// offered. The remainder is left with the provider.
func SimulateAddLiquidity(amount0, amount1 *big.Int, pool constantproduct.Pool) (LiquidityChange, error) {
	if err := validatePositive(amount0); err != nil {
		return LiquidityChange{}, fmt.Errorf("amount0: %w", err)
	}
	if err := validatePositive(amount1); err != nil {
		return LiquidityChange{}, fmt.Errorf("amount1: %w", err)
	}

	var shares, used0, used1 *big.Int
	if pool.IsEmpty() {
		shares = new(big.Int).Sqrt(new(big.Int).Mul(amount0, amount1))
		used0 = new(big.Int).Set(amount0)
		used1 = new(big.Int).Set(amount1)
	} else {
		if pool.Reserve0.Sign() <= 0 || pool.Reserve1.Sign() <= 0 {
			return LiquidityChange{}, ErrInvalidReserves
		}
		shares0 := new(big.Int).Mul(amount0, pool.TotalShares)
		shares0.Quo(shares0, pool.Reserve0)
		shares1 := new(big.Int).Mul(amount1, pool.TotalShares)
		shares1.Quo(shares1, pool.Reserve1)

		shares = shares0
		if shares1.Cmp(shares0) < 0 {
			shares = shares1
		}
		if shares.Sign() > 0 {
			used0 = ceilDiv(new(big.Int).Mul(shares, pool.Reserve0), pool.TotalShares)
			used1 = ceilDiv(new(big.Int).Mul(shares, pool.Reserve1), pool.TotalShares)
		}
	}

	if shares.Sign() == 0 {
		return LiquidityChange{}, ErrInsufficientLiquidityMinted
	}

	newPool := pool.Clone()
	newPool.Reserve0.Add(newPool.Reserve0, used0)
	newPool.Reserve1.Add(newPool.Reserve1, used1)
	newPool.TotalShares.Add(newPool.TotalShares, shares)

	return LiquidityChange{
		Shares:  shares,
		Amount0: used0,
		Amount1: used1,
		Pool:    newPool,
	}, nil
}

// SimulateRemoveLiquidity computes the amounts paid out for burning shares:
//
//	amount_i = R_i * shares / T
//
// rounded down, so any dust stays in the pool. Burning every share empties the pool.
func SimulateRemoveLiquidity(shares *big.Int, pool constantproduct.Pool) (LiquidityChange, error) {
	if shares == nil || shares.Sign() <= 0 {
		return LiquidityChange{}, ErrInsufficientShares
	}
	if pool.IsEmpty() || shares.Cmp(pool.TotalShares) > 0 {
		return LiquidityChange{}, fmt.Errorf("%w: burning %s of %s", ErrInsufficientShares, shares, pool.TotalShares)
	}

	amount0 := new(big.Int).Mul(pool.Reserve0, shares)
	amount0.Quo(amount0, pool.TotalShares)
	amount1 := new(big.Int).Mul(pool.Reserve1, shares)
	amount1.Quo(amount1, pool.TotalShares)

	newPool := pool.Clone()
	newPool.Reserve0.Sub(newPool.Reserve0, amount0)
	newPool.Reserve1.Sub(newPool.Reserve1, amount1)
	newPool.TotalShares.Sub(newPool.TotalShares, shares)

	return LiquidityChange{
		Shares:  new(big.Int).Set(shares),
		Amount0: amount0,
		Amount1: amount1,
		Pool:    newPool,
	}, nil
}
