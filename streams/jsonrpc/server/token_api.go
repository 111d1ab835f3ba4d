package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/defistate-dex-go/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrExchangeAccount is returned when a token call would debit or spend from the exchange's
// own account. Only the exchange moves its reserves.
var ErrExchangeAccount = errors.New("the exchange account cannot be debited over rpc")

// TokenAPI is registered under the "token" namespace. Calls are unauthenticated: the
// owner named in a request is trusted, except for the exchange account.
type TokenAPI struct {
	ledger   TokenLedger
	exchange common.Address
}

func (api *TokenAPI) Tokens() []tokenregistry.Token {
	return api.ledger.Tokens()
}

func (api *TokenAPI) BalanceOf(token, account common.Address) (*hexutil.Big, error) {
	balance, err := api.ledger.BalanceOf(token, account)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance), nil
}

func (api *TokenAPI) Allowance(token, owner, spender common.Address) (*hexutil.Big, error) {
	allowance, err := api.ledger.Allowance(token, owner, spender)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(allowance), nil
}

func (api *TokenAPI) Approve(ctx context.Context, token, owner, spender common.Address, amount *hexutil.Big) (bool, error) {
	if amount == nil {
		return false, fmt.Errorf("amount is required")
	}
	if owner == api.exchange {
		return false, ErrExchangeAccount
	}
	if err := api.ledger.Approve(ctx, token, owner, spender, amount.ToInt()); err != nil {
		return false, err
	}
	return true, nil
}

func (api *TokenAPI) Transfer(ctx context.Context, token, from, to common.Address, amount *hexutil.Big) (bool, error) {
	if amount == nil {
		return false, fmt.Errorf("amount is required")
	}
	if from == api.exchange {
		return false, ErrExchangeAccount
	}
	if err := api.ledger.Transfer(ctx, token, from, to, amount.ToInt()); err != nil {
		return false, err
	}
	return true, nil
}
