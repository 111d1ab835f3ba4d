package tokenregistry

import (
	"math/big"

	"github.com/defistate/defistate-dex-go/engine"
	"github.com/ethereum/go-ethereum/common"
)

const (
	ProtocolID engine.ProtocolID     = "tokens"
	Schema     engine.ProtocolSchema = "defistate/tokenregistry/token@v1"
	Name       engine.ProtocolName   = "Token Registry"
)

// Token is a safe, structured representation of a token's data for external use.
type Token struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply *big.Int       `json:"totalSupply"`
}

// Clone returns a copy of the token that shares no memory with the original.
func (t Token) Clone() Token {
	c := t
	if t.TotalSupply != nil {
		c.TotalSupply = new(big.Int).Set(t.TotalSupply)
	}
	return c
}
