package constantproduct

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
)

func cmpBig(a, b *big.Int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Cmp(b)
}

// Patcher constructs a new pool snapshot by applying a diff to a previous one.
// The previous snapshot is never mutated; every pool in the result is a deep copy.
// Existing pools keep their position and additions are appended in diff order.
func Patcher(prevState []Pool, diff PoolSystemDiff) ([]Pool, error) {
	deleted := make(map[poolregistry.PoolKey]struct{}, len(diff.Deletions))
	for _, key := range diff.Deletions {
		deleted[key] = struct{}{}
	}

	updated := make(map[poolregistry.PoolKey]Pool, len(diff.Updates))
	for _, pool := range diff.Updates {
		updated[pool.Key] = pool
	}

	finalState := make([]Pool, 0, len(prevState)+len(diff.Additions))
	present := make(map[poolregistry.PoolKey]struct{}, len(prevState)+len(diff.Additions))

	for _, pool := range prevState {
		if _, ok := deleted[pool.Key]; ok {
			continue
		}
		if u, ok := updated[pool.Key]; ok {
			pool = u
			delete(updated, pool.Key)
		}
		present[pool.Key] = struct{}{}
		finalState = append(finalState, pool.Clone())
	}

	if len(updated) > 0 {
		for key := range updated {
			return nil, fmt.Errorf("update for unknown pool %s", key)
		}
	}

	for _, pool := range diff.Additions {
		if _, ok := present[pool.Key]; ok {
			return nil, fmt.Errorf("addition of existing pool %s", pool.Key)
		}
		present[pool.Key] = struct{}{}
		finalState = append(finalState, pool.Clone())
	}

	return finalState, nil
}
