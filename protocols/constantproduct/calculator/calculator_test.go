package calculator

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48") // token0
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") // token1
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

// newBigIntFromString is a helper function to create a big.Int from a string,
// which is necessary for numbers larger than a standard int64.
func newBigIntFromString(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("failed to set string for big.Int")
	}
	return n
}

func newPool(reserve0, reserve1, totalShares *big.Int, feeBps uint16) constantproduct.Pool {
	pair, err := poolregistry.NewPair(usdc, weth)
	if err != nil {
		panic(err)
	}
	p := constantproduct.NewPool(pair, feeBps)
	p.Reserve0 = reserve0
	p.Reserve1 = reserve1
	p.TotalShares = totalShares
	return p
}

func TestApplyFee(t *testing.T) {
	testCases := []struct {
		name        string
		amountIn    *big.Int
		feeBps      uint16
		expected    *big.Int
		expectedErr error
	}{
		{name: "30 bps", amountIn: big.NewInt(10_000), feeBps: 30, expected: big.NewInt(9_970)},
		{name: "rounds down", amountIn: big.NewInt(999), feeBps: 30, expected: big.NewInt(996)},
		{name: "zero fee", amountIn: big.NewInt(12345), feeBps: 0, expected: big.NewInt(12345)},
		{name: "zero amount", amountIn: big.NewInt(0), feeBps: 30, expected: big.NewInt(0)},
		{name: "nil amount", amountIn: nil, feeBps: 30, expectedErr: ErrNilAmount},
		{name: "negative amount", amountIn: big.NewInt(-1), feeBps: 30, expectedErr: ErrInvalidAmount},
		{name: "fee of 100%", amountIn: big.NewInt(1), feeBps: 10000, expectedErr: ErrInvalidFee},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyFee(tc.amountIn, tc.feeBps)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expected.Cmp(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name             string
		amountInAfterFee *big.Int
		reserveIn        *big.Int
		reserveOut       *big.Int
		expected         *big.Int
		expectedErr      error
	}{
		{
			name:             "worked example",
			amountInAfterFee: newBigIntFromString("9970000000000000000"),
			reserveIn:        newBigIntFromString("1000000000000000000000"),
			reserveOut:       newBigIntFromString("2000000000000000000000"),
			expected:         newBigIntFromString("19743160687941225977"),
		},
		{
			name:             "does not deduct a fee",
			amountInAfterFee: big.NewInt(100),
			reserveIn:        big.NewInt(100),
			reserveOut:       big.NewInt(100),
			expected:         big.NewInt(50),
		},
		{
			name:             "zero input",
			amountInAfterFee: big.NewInt(0),
			reserveIn:        big.NewInt(100),
			reserveOut:       big.NewInt(100),
			expected:         big.NewInt(0),
		},
		{
			name:             "zero reserve in",
			amountInAfterFee: big.NewInt(1),
			reserveIn:        big.NewInt(0),
			reserveOut:       big.NewInt(100),
			expectedErr:      ErrInvalidReserves,
		},
		{
			name:             "zero reserve out",
			amountInAfterFee: big.NewInt(1),
			reserveIn:        big.NewInt(100),
			reserveOut:       big.NewInt(0),
			expectedErr:      ErrInvalidReserves,
		},
		{
			name:             "negative input",
			amountInAfterFee: big.NewInt(-5),
			reserveIn:        big.NewInt(100),
			reserveOut:       big.NewInt(100),
			expectedErr:      ErrInvalidAmount,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetAmountOut(tc.amountInAfterFee, tc.reserveIn, tc.reserveOut)
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tc.expected.Cmp(got), "expected %s, got %s", tc.expected, got)
		})
	}
}

func TestQuoteSwap(t *testing.T) {
	pool := newPool(big.NewInt(100_000_000), newBigIntFromString("50000000000000000000"), big.NewInt(1), 30)

	t.Run("token0 to token1", func(t *testing.T) {
		got, err := QuoteSwap(big.NewInt(1_000_000), usdc, weth, pool)
		require.NoError(t, err)
		assert.Equal(t, "493579017198530649", got.String())
	})

	t.Run("token1 to token0", func(t *testing.T) {
		got, err := QuoteSwap(newBigIntFromString("1000000000000000000"), weth, usdc, pool)
		require.NoError(t, err)
		assert.Equal(t, int64(1955016), got.Int64())
	})

	t.Run("is GetAmountOut after ApplyFee", func(t *testing.T) {
		amountIn := big.NewInt(1_000_000)
		afterFee, err := ApplyFee(amountIn, pool.FeeBps)
		require.NoError(t, err)
		want, err := GetAmountOut(afterFee, pool.Reserve0, pool.Reserve1)
		require.NoError(t, err)

		got, err := QuoteSwap(amountIn, usdc, weth, pool)
		require.NoError(t, err)
		assert.Equal(t, 0, want.Cmp(got), "expected %s, got %s", want, got)
	})

	t.Run("higher fee returns less", func(t *testing.T) {
		highFee := pool.Clone()
		highFee.FeeBps = 100
		standard, err := QuoteSwap(big.NewInt(1_000_000), usdc, weth, pool)
		require.NoError(t, err)
		got, err := QuoteSwap(big.NewInt(1_000_000), usdc, weth, highFee)
		require.NoError(t, err)
		assert.Equal(t, -1, got.Cmp(standard))
	})

	t.Run("token mismatch", func(t *testing.T) {
		_, err := QuoteSwap(big.NewInt(1), usdc, dai, pool)
		assert.ErrorIs(t, err, ErrTokenMismatch)
	})

	t.Run("empty pool", func(t *testing.T) {
		_, err := QuoteSwap(big.NewInt(1), usdc, weth, newPool(new(big.Int), new(big.Int), new(big.Int), 30))
		assert.ErrorIs(t, err, ErrInvalidReserves)
	})
}

func TestGetAmountIn(t *testing.T) {
	pool := newPool(big.NewInt(100_000_000), newBigIntFromString("50000000000000000000"), big.NewInt(1), 30)

	t.Run("is the minimal input for the requested output", func(t *testing.T) {
		target := newBigIntFromString("493579017198530649")

		amountIn, err := GetAmountIn(target, usdc, weth, pool)
		require.NoError(t, err)

		out, err := QuoteSwap(amountIn, usdc, weth, pool)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Cmp(target), 0)

		less, err := QuoteSwap(new(big.Int).Sub(amountIn, big.NewInt(1)), usdc, weth, pool)
		require.NoError(t, err)
		assert.Equal(t, -1, less.Cmp(target))
	})

	t.Run("cannot drain the reserve", func(t *testing.T) {
		_, err := GetAmountIn(big.NewInt(100_000_000), weth, usdc, pool)
		assert.ErrorIs(t, err, ErrInsufficientLiquidity)
	})

	t.Run("zero output", func(t *testing.T) {
		_, err := GetAmountIn(big.NewInt(0), weth, usdc, pool)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestSimulateSwap(t *testing.T) {
	reserve0 := newBigIntFromString("1000000000000000000000")
	reserve1 := newBigIntFromString("2000000000000000000000")
	pool := newPool(reserve0, reserve1, newBigIntFromString("1414213562373095048801"), 30)
	amountIn := newBigIntFromString("10000000000000000000")

	amountOut, newState, err := SimulateSwap(amountIn, usdc, weth, pool)
	require.NoError(t, err)

	assert.Equal(t, "19743160687941225977", amountOut.String())
	assert.Equal(t, "1010000000000000000000", newState.Reserve0.String(), "the full input, fee included, is added")
	assert.Equal(t, new(big.Int).Sub(reserve1, amountOut).String(), newState.Reserve1.String())
	assert.Equal(t, pool.TotalShares.String(), newState.TotalShares.String())
	assert.Equal(t, 1, newState.K().Cmp(pool.K()), "k strictly increases with a non-zero fee")

	assert.Equal(t, "1000000000000000000000", pool.Reserve0.String(), "input pool must not be mutated")
}

func TestSimulateAddLiquidity(t *testing.T) {
	t.Run("first deposit mints the geometric mean", func(t *testing.T) {
		empty := newPool(new(big.Int), new(big.Int), new(big.Int), 30)
		change, err := SimulateAddLiquidity(
			newBigIntFromString("1000000000000000000000"),
			newBigIntFromString("2000000000000000000000"),
			empty,
		)
		require.NoError(t, err)
		assert.Equal(t, "1414213562373095048801", change.Shares.String())
		assert.Equal(t, "1000000000000000000000", change.Amount0.String())
		assert.Equal(t, "2000000000000000000000", change.Amount1.String())
		assert.Equal(t, change.Shares.String(), change.Pool.TotalShares.String())
		assert.True(t, empty.IsEmpty(), "input pool must not be mutated")
	})

	t.Run("proportional deposit", func(t *testing.T) {
		pool := newPool(big.NewInt(1000), big.NewInt(2000), big.NewInt(1414), 30)
		change, err := SimulateAddLiquidity(big.NewInt(100), big.NewInt(200), pool)
		require.NoError(t, err)
		assert.Equal(t, int64(141), change.Shares.Int64())
		// ceil(141 * 1000 / 1414) = 100, ceil(141 * 2000 / 1414) = 200
		assert.Equal(t, int64(100), change.Amount0.Int64())
		assert.Equal(t, int64(200), change.Amount1.Int64())
	})

	t.Run("excess of one side is not consumed", func(t *testing.T) {
		pool := newPool(big.NewInt(1000), big.NewInt(2000), big.NewInt(1000), 30)
		change, err := SimulateAddLiquidity(big.NewInt(100), big.NewInt(1000), pool)
		require.NoError(t, err)
		assert.Equal(t, int64(100), change.Shares.Int64())
		assert.Equal(t, int64(100), change.Amount0.Int64())
		assert.Equal(t, int64(200), change.Amount1.Int64())
		assert.Equal(t, int64(1100), change.Pool.Reserve0.Int64())
		assert.Equal(t, int64(2200), change.Pool.Reserve1.Int64())
	})

	t.Run("dust deposit mints nothing", func(t *testing.T) {
		pool := newPool(big.NewInt(1_000_000), big.NewInt(1_000_000), big.NewInt(1000), 30)
		_, err := SimulateAddLiquidity(big.NewInt(1), big.NewInt(1), pool)
		assert.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
	})

	t.Run("non-positive amounts", func(t *testing.T) {
		pool := newPool(new(big.Int), new(big.Int), new(big.Int), 30)
		_, err := SimulateAddLiquidity(big.NewInt(0), big.NewInt(1), pool)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = SimulateAddLiquidity(big.NewInt(1), big.NewInt(-1), pool)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = SimulateAddLiquidity(nil, big.NewInt(1), pool)
		assert.ErrorIs(t, err, ErrNilAmount)
	})
}

func TestSimulateRemoveLiquidity(t *testing.T) {
	pool := newPool(big.NewInt(1001), big.NewInt(2000), big.NewInt(1414), 30)

	t.Run("pays out pro rata, rounding down", func(t *testing.T) {
		change, err := SimulateRemoveLiquidity(big.NewInt(707), pool)
		require.NoError(t, err)
		assert.Equal(t, int64(500), change.Amount0.Int64()) // 1001*707/1414 = 500.5
		assert.Equal(t, int64(1000), change.Amount1.Int64())
		assert.Equal(t, int64(501), change.Pool.Reserve0.Int64())
		assert.Equal(t, int64(707), change.Pool.TotalShares.Int64())
	})

	t.Run("burning everything empties the pool", func(t *testing.T) {
		change, err := SimulateRemoveLiquidity(big.NewInt(1414), pool)
		require.NoError(t, err)
		assert.Equal(t, int64(1001), change.Amount0.Int64())
		assert.Equal(t, int64(2000), change.Amount1.Int64())
		assert.True(t, change.Pool.IsEmpty())
		assert.Zero(t, change.Pool.Reserve0.Sign())
		assert.Zero(t, change.Pool.Reserve1.Sign())
	})

	t.Run("rejects zero, negative and excess shares", func(t *testing.T) {
		for _, shares := range []*big.Int{nil, big.NewInt(0), big.NewInt(-1), big.NewInt(1415)} {
			_, err := SimulateRemoveLiquidity(shares, pool)
			assert.ErrorIs(t, err, ErrInsufficientShares, "shares=%v", shares)
		}
	})
}
