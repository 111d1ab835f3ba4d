package poolregistry

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolKey is a fixed-size 32-byte identifier for a pool.
//
// Constant-product pools have no contract address of their own; their identity is
// the keccak256 hash of the canonical token pair:
//
//	key = keccak256(token0 ‖ token1), token0 < token1
//
// Two pools with the same tokens therefore always share a key, regardless of the
// order in which the tokens were supplied.
type PoolKey [32]byte

// Bytes returns the raw underlying byte slice.
func (p PoolKey) Bytes() []byte {
	return p[:]
}

// String returns the hex string representation of the key, "0x" prefixed.
func (p PoolKey) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// IsZero reports whether the key is unset.
func (p PoolKey) IsZero() bool {
	return p == PoolKey{}
}

// MarshalJSON serializes the key as a hex string.
func (p PoolKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// MarshalText lets PoolKey be used as a JSON map key.
func (p PoolKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON parses a hex string into the key.
//
// The "0x" prefix is optional. Decoded bytes are copied into the start of the key
// and the remainder is zero-padded.
func (p *PoolKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

// UnmarshalText is the inverse of MarshalText.
func (p *PoolKey) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")

	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) > 32 {
		return errors.New("pool key too long")
	}

	// Wipe existing data to prevent dirty reads if reusing the struct
	*p = PoolKey{}
	copy(p[:], b)

	return nil
}

// HexToPoolKey parses a hex string into a PoolKey.
func HexToPoolKey(s string) (PoolKey, error) {
	var key PoolKey
	err := key.UnmarshalText([]byte(s))
	return key, err
}

// PairToPoolKey derives the key of the pool holding the given tokens.
// The tokens may be supplied in either order.
func PairToPoolKey(tokenA, tokenB common.Address) (PoolKey, error) {
	pair, err := NewPair(tokenA, tokenB)
	if err != nil {
		return PoolKey{}, err
	}
	return pair.Key(), nil
}

func pairKey(token0, token1 common.Address) PoolKey {
	return PoolKey(crypto.Keccak256Hash(token0.Bytes(), token1.Bytes()))
}
