package main

import (
	"context"
	"fmt"

	"github.com/defistate/defistate-dex-go/config"
	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
)

var dryRunExchange = common.HexToAddress("0x000000000000000000000000000000000000dE10")

// applyGenesis deploys the genesis tokens, makes the allocations and creates the pools.
// It returns the token addresses by symbol.
func applyGenesis(ctx context.Context, g *config.Genesis, ledger *tokenregistry.Ledger, exchange *dex.Exchange) (map[string]common.Address, error) {
	addresses := make(map[string]common.Address, len(g.Tokens))
	bySymbol := func(symbol string) (config.GenesisToken, common.Address) {
		t, _ := g.Token(symbol)
		return t, addresses[t.Symbol]
	}

	for _, t := range g.Tokens {
		supply, err := t.SupplyUnits()
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		if addr, ok := t.FixedAddress(); ok {
			token := tokenregistry.Token{
				Address:     addr,
				Name:        t.Name,
				Symbol:      t.Symbol,
				Decimals:    t.Decimals,
				TotalSupply: supply,
			}
			if err := ledger.Register(token, t.OwnerAddress()); err != nil {
				return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
			}
			addresses[t.Symbol] = addr
			continue
		}
		token, err := ledger.Deploy(t.OwnerAddress(), t.Name, t.Symbol, t.Decimals, supply)
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Symbol, err)
		}
		addresses[t.Symbol] = token.Address
	}

	for _, a := range g.Allocations {
		t, addr := bySymbol(a.Token)
		amount, err := tokenregistry.ParseUnits(a.Amount, t.Decimals)
		if err != nil {
			return nil, fmt.Errorf("allocation of %s: %w", t.Symbol, err)
		}
		if err := ledger.Transfer(ctx, addr, t.OwnerAddress(), common.HexToAddress(a.Account), amount); err != nil {
			return nil, fmt.Errorf("allocation of %s to %s: %w", t.Symbol, a.Account, err)
		}
	}

	for _, p := range g.Pools {
		_, tokenA := bySymbol(p.TokenA)
		_, tokenB := bySymbol(p.TokenB)
		if _, err := exchange.CreatePool(ctx, tokenA, tokenB); err != nil {
			return nil, fmt.Errorf("pool %s/%s: %w", p.TokenA, p.TokenB, err)
		}
	}
	return addresses, nil
}
