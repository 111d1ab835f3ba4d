package constantproduct

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ProtocolID engine.ProtocolID     = "constant-product"
	Schema     engine.ProtocolSchema = "defistate/constantproduct/pool@v1"
	Name       engine.ProtocolName   = "Constant Product AMM"
)

// Pool is an immutable snapshot of a constant-product pool.
// Token0 always sorts before Token1. Reserves and TotalShares are either all zero
// (the pool is empty) or all positive.
type Pool struct {
	Key         poolregistry.PoolKey `json:"key"`
	Token0      common.Address       `json:"token0"`
	Token1      common.Address       `json:"token1"`
	Reserve0    *big.Int             `json:"reserve0"`
	Reserve1    *big.Int             `json:"reserve1"`
	TotalShares *big.Int             `json:"totalShares"`
	FeeBps      uint16               `json:"feeBps"` // i.e 30 for 0.3%
}

// NewPool returns an empty pool for the pair.
func NewPool(pair poolregistry.Pair, feeBps uint16) Pool {
	return Pool{
		Key:         pair.Key(),
		Token0:      pair.Token0,
		Token1:      pair.Token1,
		Reserve0:    new(big.Int),
		Reserve1:    new(big.Int),
		TotalShares: new(big.Int),
		FeeBps:      feeBps,
	}
}

// Pair returns the pool's canonical token pair.
func (p Pool) Pair() poolregistry.Pair {
	return poolregistry.Pair{Token0: p.Token0, Token1: p.Token1}
}

// IsEmpty reports whether the pool holds no liquidity.
func (p Pool) IsEmpty() bool {
	return p.TotalShares == nil || p.TotalShares.Sign() == 0
}

// Clone returns a copy of the pool that shares no memory with the original.
func (p Pool) Clone() Pool {
	newPool := p
	if p.Reserve0 != nil {
		newPool.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		newPool.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	if p.TotalShares != nil {
		newPool.TotalShares = new(big.Int).Set(p.TotalShares)
	}
	return newPool
}

// K returns Reserve0 * Reserve1.
func (p Pool) K() *big.Int {
	if p.Reserve0 == nil || p.Reserve1 == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(p.Reserve0, p.Reserve1)
}

func (p Pool) String() string {
	return fmt.Sprintf("pool(%s/%s r0=%s r1=%s shares=%s)", p.Token0.Hex(), p.Token1.Hex(), p.Reserve0, p.Reserve1, p.TotalShares)
}

// Position is a provider's share balance in a pool.
type Position struct {
	Pool     poolregistry.PoolKey `json:"pool"`
	Provider common.Address       `json:"provider"`
	Shares   *big.Int             `json:"shares"`
}
