package dex

import (
	"context"
	"errors"
	"math/big"

	tokenregistry "github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultFeeBps is the swap fee charged by every pool: 30 basis points (0.3%).
const DefaultFeeBps uint16 = 30

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenTransferer moves ERC20-style tokens on the exchange's behalf.
//
// TransferFrom pulls tokens the owner has approved the exchange to spend. Transfer is the
// ledger's privileged move: the exchange uses it for payouts from its own balance and to
// take back a payout when a withdrawal rolls back. Either call may fail, in which case no
// tokens moved.
type TokenTransferer interface {
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	BalanceOf(token, account common.Address) (*big.Int, error)
}

// TokenSource lists token metadata for inclusion in state snapshots.
type TokenSource interface {
	Tokens() []tokenregistry.Token
}

// Config holds the configuration for an Exchange.
type Config struct {
	// Address is the exchange's own account: pulled tokens are credited to it and
	// payouts are debited from it.
	Address common.Address
	// FeeBps is the swap fee applied to new pools.
	FeeBps     uint16
	Transferer TokenTransferer
	// Tokens is optional; when set, State() includes the token registry.
	Tokens   TokenSource
	Logger   Logger
	Registry prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.FeeBps >= 10000 {
		return errors.New("config: FeeBps must be below 10000")
	}
	if c.Transferer == nil {
		return errors.New("config: Transferer is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}
