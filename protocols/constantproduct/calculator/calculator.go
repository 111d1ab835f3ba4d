package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	// ErrInvalidAmount is returned when an amount is negative, or zero where a positive amount is required.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidFee is returned when a fee is 100% or more.
	ErrInvalidFee = errors.New("fee must be below 10000 basis points")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidReserves is returned when pricing against a pool with a zero reserve.
	ErrInvalidReserves = errors.New("reserves must be positive")
	// ErrInsufficientLiquidity is returned when a swap would drain the output reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrInsufficientLiquidityMinted is returned when a deposit is too small to mint a single share.
	ErrInsufficientLiquidityMinted = errors.New("deposit mints zero shares")
	// ErrInsufficientShares is returned when burning zero shares or more than the pool has issued.
	ErrInsufficientShares = errors.New("insufficient shares")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	feeMultiplier    *big.Int
	amountInAfterFee *big.Int
	numerator        *big.Int
	denominator      *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:    new(big.Int),
			amountInAfterFee: new(big.Int),
			numerator:        new(big.Int),
			denominator:      new(big.Int),
		}
	},
}

func validateAmount(amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validatePositive(amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyFee returns amountIn * (10000 - feeBps) / 10000, rounded down.
// With a 30 bps fee this is amountIn * 9970 / 10000.
func ApplyFee(amountIn *big.Int, feeBps uint16) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.applyFee(amountIn, feeBps)
}

// GetAmountOut prices a swap whose fee has already been deducted:
//
//	amountOut = amountInAfterFee * reserveOut / (reserveIn + amountInAfterFee)
//
// rounded down. It does not apply a fee.
func GetAmountOut(amountInAfterFee, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountInAfterFee, reserveIn, reserveOut)
}

// QuoteSwap deducts the pool fee from amountIn and prices the remainder against the pool.
func QuoteSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool constantproduct.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.quoteSwap(amountIn, tokenIn, tokenOut, pool)
}

// GetAmountIn returns the smallest input that QuoteSwap prices at amountOut or more.
func GetAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool constantproduct.Pool,
) (*big.Int, error) {
	if err := validatePositive(amountOut); err != nil {
		return nil, err
	}
	if pool.FeeBps >= 10000 {
		return nil, ErrInvalidFee
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInvalidReserves
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	// afterFee = ceil(amountOut * reserveIn / (reserveOut - amountOut))
	afterFee := ceilDiv(
		new(big.Int).Mul(amountOut, reserveIn),
		new(big.Int).Sub(reserveOut, amountOut),
	)

	// amountIn = ceil(afterFee * 10000 / (10000 - fee))
	feeMultiplier := new(big.Int).Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	return ceilDiv(new(big.Int).Mul(afterFee, basisPointDivisor), feeMultiplier), nil
}

// SimulateSwap prices a swap and returns the pool as it would be after the swap.
// The whole amountIn, fee included, is added to the input reserve.
func SimulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool constantproduct.Pool,
) (*big.Int, constantproduct.Pool, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, tokenIn, tokenOut, pool)
}

func (c *Calculator) applyFee(amountIn *big.Int, feeBps uint16) (*big.Int, error) {
	if err := validateAmount(amountIn); err != nil {
		return nil, err
	}
	if feeBps >= 10000 {
		return nil, ErrInvalidFee
	}

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(feeBps)))
	c.amountInAfterFee.Mul(amountIn, c.feeMultiplier)
	return new(big.Int).Quo(c.amountInAfterFee, basisPointDivisor), nil
}

func (c *Calculator) getAmountOut(amountInAfterFee, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if err := validateAmount(amountInAfterFee); err != nil {
		return nil, err
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInvalidReserves
	}

	c.numerator.Mul(amountInAfterFee, reserveOut)
	c.denominator.Add(reserveIn, amountInAfterFee)

	return new(big.Int).Quo(c.numerator, c.denominator), nil
}

func (c *Calculator) quoteSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool constantproduct.Pool,
) (*big.Int, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, err
	}

	afterFee, err := c.applyFee(amountIn, pool.FeeBps)
	if err != nil {
		return nil, err
	}

	return c.getAmountOut(afterFee, reserveIn, reserveOut)
}

func (c *Calculator) simulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	pool constantproduct.Pool,
) (*big.Int, constantproduct.Pool, error) {
	amountOut, err := c.quoteSwap(amountIn, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, constantproduct.Pool{}, err
	}

	_, reserveOut, _ := GetReserves(tokenIn, tokenOut, pool)
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, constantproduct.Pool{}, fmt.Errorf("%w: amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut, reserveOut)
	}

	newPoolState := pool.Clone()
	if tokenIn == pool.Token0 {
		newPoolState.Reserve0.Add(newPoolState.Reserve0, amountIn)
		newPoolState.Reserve1.Sub(newPoolState.Reserve1, amountOut)
	} else { // tokenIn == pool.Token1
		newPoolState.Reserve1.Add(newPoolState.Reserve1, amountIn)
		newPoolState.Reserve0.Sub(newPoolState.Reserve0, amountOut)
	}

	return amountOut, newPoolState, nil
}

// GetReserves returns the reserves for the given swap direction.
func GetReserves(tokenIn, tokenOut common.Address, pool constantproduct.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == pool.Token0 && tokenOut == pool.Token1 {
		return pool.Reserve0, pool.Reserve1, nil
	} else if tokenIn == pool.Token1 && tokenOut == pool.Token0 {
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Key, tokenIn.Hex(), tokenOut.Hex())
}

func ceilDiv(x, y *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
