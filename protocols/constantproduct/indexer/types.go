package indexer

import (
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedPools defines the methods for accessing indexed constant-product pool data.
type IndexedPools interface {
	GetByKey(key poolregistry.PoolKey) (constantproduct.Pool, bool)
	GetByPair(tokenA, tokenB common.Address) (constantproduct.Pool, bool)
	PoolsForToken(token common.Address) []constantproduct.Pool
	All() []constantproduct.Pool
}
