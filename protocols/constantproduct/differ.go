package constantproduct

import (
	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
)

type PoolSystemDiff struct {
	Additions []Pool                 `json:"additions,omitempty"`
	Updates   []Pool                 `json:"updates,omitempty"`
	Deletions []poolregistry.PoolKey `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two pool snapshots.
// Pools are matched by key; a pool present in both snapshots is an update only if its
// reserves, total shares or fee changed.
func Differ(old, new []Pool) PoolSystemDiff {
	oldPoolsMap := make(map[poolregistry.PoolKey]Pool, len(old))
	for _, pool := range old {
		oldPoolsMap[pool.Key] = pool
	}

	var additions []Pool
	var updates []Pool
	var deletions []poolregistry.PoolKey

	seen := make(map[poolregistry.PoolKey]struct{}, len(new))
	// walk the new slice rather than a map so additions keep creation order
	for _, newPool := range new {
		seen[newPool.Key] = struct{}{}

		oldPool, exists := oldPoolsMap[newPool.Key]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		if changed(oldPool, newPool) {
			updates = append(updates, newPool)
		}
	}

	for _, pool := range old {
		if _, exists := seen[pool.Key]; !exists {
			deletions = append(deletions, pool.Key)
		}
	}

	return PoolSystemDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

func changed(a, b Pool) bool {
	return cmpBig(a.Reserve0, b.Reserve0) != 0 ||
		cmpBig(a.Reserve1, b.Reserve1) != 0 ||
		cmpBig(a.TotalShares, b.TotalShares) != 0 ||
		a.FeeBps != b.FeeBps
}
