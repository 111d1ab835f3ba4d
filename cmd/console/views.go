package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	poolindexer "github.com/defistate/defistate-dex-go/protocols/constantproduct/indexer"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	tokenindexer "github.com/defistate/defistate-dex-go/protocols/tokenregistry/indexer"
	"github.com/ethereum/go-ethereum/common"
)

const priceDecimals = 4

func tokensOf(state *engine.State) []tokenregistry.Token {
	tokens, _ := state.Protocols[tokenregistry.ProtocolID].Data.([]tokenregistry.Token)
	return tokens
}

func poolsOf(state *engine.State) []constantproduct.Pool {
	pools, _ := state.Protocols[constantproduct.ProtocolID].Data.([]constantproduct.Pool)
	return pools
}

func tokenIndex(state *engine.State) tokenindexer.IndexedTokenSystem {
	return tokenindexer.New().Index(tokensOf(state))
}

func poolIndex(state *engine.State) poolindexer.IndexedPools {
	return poolindexer.New().Index(poolsOf(state))
}

// findToken resolves a symbol (case-insensitive) or a hex address.
func findToken(state *engine.State, input string) (tokenregistry.Token, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return tokenregistry.Token{}, fmt.Errorf("empty input")
	}
	index := tokenIndex(state)
	if common.IsHexAddress(input) {
		if t, ok := index.GetByAddress(common.HexToAddress(input)); ok {
			return t, nil
		}
	} else if t, ok := index.GetBySymbol(input); ok {
		return t, nil
	}
	return tokenregistry.Token{}, fmt.Errorf("token %q not found in registry", input)
}

func tokenByAddress(state *engine.State, addr common.Address) (tokenregistry.Token, bool) {
	return tokenIndex(state).GetByAddress(addr)
}

// symbolOf falls back to a shortened address for unknown tokens.
func symbolOf(state *engine.State, addr common.Address) string {
	if t, ok := tokenByAddress(state, addr); ok {
		return t.Symbol
	}
	hex := addr.Hex()
	return hex[:6] + ".." + hex[len(hex)-4:]
}

func decimalsOf(state *engine.State, addr common.Address) uint8 {
	if t, ok := tokenByAddress(state, addr); ok {
		return t.Decimals
	}
	return 18
}

func findPool(state *engine.State, tokenA, tokenB common.Address) (constantproduct.Pool, bool) {
	return poolIndex(state).GetByPair(tokenA, tokenB)
}

func poolByKey(state *engine.State, key poolregistry.PoolKey) (constantproduct.Pool, bool) {
	return poolIndex(state).GetByKey(key)
}

// reservesFor orders the pool reserves as (base, quote).
func reservesFor(pool constantproduct.Pool, base common.Address) (baseReserve, quoteReserve *big.Int) {
	if pool.Token0 == base {
		return pool.Reserve0, pool.Reserve1
	}
	return pool.Reserve1, pool.Reserve0
}

// priceLine renders "1 BASE = x QUOTE" from the pool reserves.
func priceLine(state *engine.State, pool constantproduct.Pool, base common.Address) string {
	quote, _ := pool.Pair().Other(base)
	baseReserve, quoteReserve := reservesFor(pool, base)
	if pool.IsEmpty() {
		return fmt.Sprintf("1 %s = ? %s (no liquidity)", symbolOf(state, base), symbolOf(state, quote))
	}
	ratio := tokenregistry.Ratio(quoteReserve, decimalsOf(state, quote), baseReserve, decimalsOf(state, base), priceDecimals)
	return fmt.Sprintf("1 %s = %s %s", symbolOf(state, base), ratio, symbolOf(state, quote))
}

// minimumOut applies a slippage tolerance to a quoted output, rounding down.
func minimumOut(quoted *big.Int, slippageBps uint16) *big.Int {
	out := new(big.Int).Mul(quoted, big.NewInt(int64(10000-int(slippageBps))))
	return out.Quo(out, big.NewInt(10000))
}

// shareValue is what shares of the pool would withdraw right now.
func shareValue(pool constantproduct.Pool, shares *big.Int) (amount0, amount1 *big.Int) {
	if pool.TotalShares == nil || pool.TotalShares.Sign() == 0 || shares == nil {
		return new(big.Int), new(big.Int)
	}
	amount0 = new(big.Int).Mul(pool.Reserve0, shares)
	amount0.Quo(amount0, pool.TotalShares)
	amount1 = new(big.Int).Mul(pool.Reserve1, shares)
	amount1.Quo(amount1, pool.TotalShares)
	return amount0, amount1
}

// portion returns pct percent of shares, rounding down.
func portion(shares *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(shares, big.NewInt(pct))
	return out.Quo(out, big.NewInt(100))
}

func formatAmount(state *engine.State, token common.Address, amount *big.Int) string {
	return tokenregistry.FormatUnitsFixed(amount, decimalsOf(state, token), priceDecimals)
}
