package poolregistry

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrIdenticalTokens is returned when both sides of a pair are the same token.
	ErrIdenticalTokens = errors.New("identical tokens")
	// ErrZeroAddress is returned when either side of a pair is the zero address.
	ErrZeroAddress = errors.New("zero token address")
)

// Pair is an unordered token pair stored in canonical order: Token0 sorts before
// Token1 when both addresses are compared as raw bytes. Byte order matches
// lexicographic order of the lower-case hex strings.
type Pair struct {
	Token0 common.Address `json:"token0"`
	Token1 common.Address `json:"token1"`
}

// SortTokens returns the two tokens in canonical order.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address, err error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	}
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) < 0 {
		return tokenA, tokenB, nil
	}
	return tokenB, tokenA, nil
}

// NewPair canonicalizes (tokenA, tokenB) into a Pair.
func NewPair(tokenA, tokenB common.Address) (Pair, error) {
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return Pair{}, ErrZeroAddress
	}
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Token0: token0, Token1: token1}, nil
}

// Key returns the PoolKey of the pair.
func (p Pair) Key() PoolKey {
	return pairKey(p.Token0, p.Token1)
}

// Contains reports whether token is one side of the pair.
func (p Pair) Contains(token common.Address) bool {
	return token == p.Token0 || token == p.Token1
}

// IsToken0 reports whether token is the pair's Token0. It does not check membership.
func (p Pair) IsToken0(token common.Address) bool {
	return token == p.Token0
}

// Other returns the opposite side of the pair.
func (p Pair) Other(token common.Address) (common.Address, bool) {
	switch token {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	}
	return common.Address{}, false
}
