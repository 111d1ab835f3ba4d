package indexer

import (
	"github.com/defistate/defistate-dex-go/protocols/constantproduct"
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedPools views from raw pool snapshots.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool system from a raw slice of pools.
func (i *Indexer) Index(pools []constantproduct.Pool) IndexedPools {
	return NewIndexablePoolSystem(pools)
}

// IndexablePoolSystem provides fast, indexed access to pool data.
type IndexablePoolSystem struct {
	byKey   map[poolregistry.PoolKey]constantproduct.Pool
	byToken map[common.Address][]poolregistry.PoolKey
	all     []constantproduct.Pool
}

// NewIndexablePoolSystem creates a new indexed pool system.
func NewIndexablePoolSystem(pools []constantproduct.Pool) *IndexablePoolSystem {
	byKey := make(map[poolregistry.PoolKey]constantproduct.Pool, len(pools))
	byToken := make(map[common.Address][]poolregistry.PoolKey)

	for _, p := range pools {
		byKey[p.Key] = p
		byToken[p.Token0] = append(byToken[p.Token0], p.Key)
		byToken[p.Token1] = append(byToken[p.Token1], p.Key)
	}

	return &IndexablePoolSystem{
		byKey:   byKey,
		byToken: byToken,
		all:     pools,
	}
}

// GetByKey retrieves a pool by its key.
func (ips *IndexablePoolSystem) GetByKey(key poolregistry.PoolKey) (constantproduct.Pool, bool) {
	p, ok := ips.byKey[key]
	return p, ok
}

// GetByPair retrieves the pool for a token pair given in either order.
func (ips *IndexablePoolSystem) GetByPair(tokenA, tokenB common.Address) (constantproduct.Pool, bool) {
	key, err := poolregistry.PairToPoolKey(tokenA, tokenB)
	if err != nil {
		return constantproduct.Pool{}, false
	}
	return ips.GetByKey(key)
}

// PoolsForToken returns every pool that holds token.
func (ips *IndexablePoolSystem) PoolsForToken(token common.Address) []constantproduct.Pool {
	keys := ips.byToken[token]
	pools := make([]constantproduct.Pool, 0, len(keys))
	for _, key := range keys {
		pools = append(pools, ips.byKey[key])
	}
	return pools
}

// All returns a copy of the slice of all pools.
func (ips *IndexablePoolSystem) All() []constantproduct.Pool {
	allCopy := make([]constantproduct.Pool, len(ips.all))
	copy(allCopy, ips.all)
	return allCopy
}
