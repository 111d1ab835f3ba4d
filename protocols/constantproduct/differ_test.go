package constantproduct

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-dex-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPool builds a pool between two synthetic tokens derived from n.
func newTestPool(n byte, r0, r1, shares int64) Pool {
	pair, err := poolregistry.NewPair(
		common.BytesToAddress([]byte{n, 1}),
		common.BytesToAddress([]byte{n, 2}),
	)
	if err != nil {
		panic(err)
	}
	pool := NewPool(pair, 30)
	pool.Reserve0 = big.NewInt(r0)
	pool.Reserve1 = big.NewInt(r1)
	pool.TotalShares = big.NewInt(shares)
	return pool
}

func TestDiffer(t *testing.T) {
	pool1Old := newTestPool(1, 1000, 2000, 1414)
	pool2Old := newTestPool(2, 3000, 4000, 3464)
	pool3Old := newTestPool(3, 5000, 6000, 5477)

	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old}, []Pool{pool1Old, pool2Old})

		assert.Len(t, diff.Additions, 1, "Should have one addition")
		assert.Equal(t, pool2Old.Key, diff.Additions[0].Key)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{pool1Old})

		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		require.Len(t, diff.Deletions, 1)
		assert.Equal(t, pool2Old.Key, diff.Deletions[0])
	})

	t.Run("should identify reserve and share updates", func(t *testing.T) {
		reserveChanged := newTestPool(1, 1001, 2000, 1414)
		sharesChanged := newTestPool(2, 3000, 4000, 3465)

		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{reserveChanged, sharesChanged})

		assert.Empty(t, diff.Additions)
		assert.Len(t, diff.Updates, 2)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should keep creation order for additions", func(t *testing.T) {
		diff := Differ(nil, []Pool{pool3Old, pool1Old, pool2Old})

		require.Len(t, diff.Additions, 3)
		assert.Equal(t, pool3Old.Key, diff.Additions[0].Key)
		assert.Equal(t, pool1Old.Key, diff.Additions[1].Key)
		assert.Equal(t, pool2Old.Key, diff.Additions[2].Key)
	})

	t.Run("should produce an empty diff when there are no changes", func(t *testing.T) {
		diff := Differ([]Pool{pool1Old, pool2Old}, []Pool{pool1Old.Clone(), pool2Old.Clone()})
		assert.True(t, diff.IsEmpty())
	})
}

func TestPatcher(t *testing.T) {
	pool1Old := newTestPool(1, 1000, 5000, 2236)
	pool2Old := newTestPool(2, 2000, 6000, 3464)
	initialState := []Pool{pool1Old, pool2Old}

	t.Run("applies additions, updates and deletions", func(t *testing.T) {
		pool1Updated := newTestPool(1, 1100, 4546, 2236)
		pool3New := newTestPool(3, 0, 0, 0)

		newState, err := Patcher(initialState, PoolSystemDiff{
			Additions: []Pool{pool3New},
			Updates:   []Pool{pool1Updated},
			Deletions: []poolregistry.PoolKey{pool2Old.Key},
		})
		require.NoError(t, err)
		require.Len(t, newState, 2)
		assert.Equal(t, pool1Old.Key, newState[0].Key)
		assert.Equal(t, int64(1100), newState[0].Reserve0.Int64())
		assert.Equal(t, pool3New.Key, newState[1].Key)
	})

	t.Run("does not share memory with inputs", func(t *testing.T) {
		newState, err := Patcher(initialState, PoolSystemDiff{})
		require.NoError(t, err)

		newState[0].Reserve0.SetInt64(1)
		assert.Equal(t, int64(1000), pool1Old.Reserve0.Int64(), "previous state must not be mutated")
	})

	t.Run("rejects updates for unknown pools", func(t *testing.T) {
		_, err := Patcher(initialState, PoolSystemDiff{Updates: []Pool{newTestPool(9, 1, 1, 1)}})
		assert.Error(t, err)
	})

	t.Run("rejects duplicate additions", func(t *testing.T) {
		_, err := Patcher(initialState, PoolSystemDiff{Additions: []Pool{pool1Old}})
		assert.Error(t, err)
	})

	t.Run("differ and patcher agree", func(t *testing.T) {
		target := []Pool{newTestPool(2, 2500, 4800, 3464), newTestPool(4, 10, 10, 10)}
		patched, err := Patcher(initialState, Differ(initialState, target))
		require.NoError(t, err)
		assert.True(t, Differ(patched, target).IsEmpty())
	})
}
