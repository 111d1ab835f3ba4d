package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Genesis describes the tokens, balances and pools an exchange starts with.
type Genesis struct {
	Tokens      []GenesisToken      `yaml:"tokens"`
	Allocations []GenesisAllocation `yaml:"allocations"`
	Pools       []GenesisPool       `yaml:"pools"`
}

// GenesisToken is a token deployed at startup. Supply is in whole tokens. When Address is
// empty the address is derived from the owner's deployment count.
type GenesisToken struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Supply   string `yaml:"supply"`
	Owner    string `yaml:"owner"`
	Address  string `yaml:"address,omitempty"`
}

// GenesisAllocation moves Amount whole tokens from the token owner to Account.
type GenesisAllocation struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// GenesisPool is a pool created empty at startup, by token symbol.
type GenesisPool struct {
	TokenA string `yaml:"tokenA"`
	TokenB string `yaml:"tokenB"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks that every reference resolves and every amount parses.
func (g *Genesis) Validate() error {
	symbols := make(map[string]GenesisToken, len(g.Tokens))
	for i, t := range g.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("genesis: token %d has no symbol", i)
		}
		key := strings.ToUpper(t.Symbol)
		if _, dup := symbols[key]; dup {
			return fmt.Errorf("genesis: duplicate token symbol %s", t.Symbol)
		}
		if !common.IsHexAddress(t.Owner) {
			return fmt.Errorf("genesis: token %s owner %q is not a hex address", t.Symbol, t.Owner)
		}
		if t.Address != "" && !common.IsHexAddress(t.Address) {
			return fmt.Errorf("genesis: token %s address %q is not a hex address", t.Symbol, t.Address)
		}
		if _, err := t.SupplyUnits(); err != nil {
			return fmt.Errorf("genesis: token %s: %w", t.Symbol, err)
		}
		symbols[key] = t
	}

	for i, a := range g.Allocations {
		t, ok := symbols[strings.ToUpper(a.Token)]
		if !ok {
			return fmt.Errorf("genesis: allocation %d references unknown token %s", i, a.Token)
		}
		if !common.IsHexAddress(a.Account) {
			return fmt.Errorf("genesis: allocation %d account %q is not a hex address", i, a.Account)
		}
		if _, err := tokenregistry.ParseUnits(a.Amount, t.Decimals); err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}

	for i, p := range g.Pools {
		a, okA := symbols[strings.ToUpper(p.TokenA)]
		b, okB := symbols[strings.ToUpper(p.TokenB)]
		if !okA || !okB {
			return fmt.Errorf("genesis: pool %d references unknown token", i)
		}
		if strings.EqualFold(a.Symbol, b.Symbol) {
			return fmt.Errorf("genesis: pool %d pairs %s with itself", i, a.Symbol)
		}
	}
	return nil
}

// Token returns the token with the given symbol, ignoring case.
func (g *Genesis) Token(symbol string) (GenesisToken, bool) {
	for _, t := range g.Tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return GenesisToken{}, false
}

// SupplyUnits returns the total supply in base units.
func (t GenesisToken) SupplyUnits() (*big.Int, error) {
	if t.Supply == "" {
		return nil, errors.New("supply is required")
	}
	return tokenregistry.ParseUnits(t.Supply, t.Decimals)
}

func (t GenesisToken) OwnerAddress() common.Address {
	return common.HexToAddress(t.Owner)
}

// FixedAddress returns the configured address, if any.
func (t GenesisToken) FixedAddress() (common.Address, bool) {
	if t.Address == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(t.Address), true
}
