package dex

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace namespaces the exchange's registered error codes.
const Codespace = "dex"

// Exchange error kinds. Every failed operation leaves pool state unchanged and returns
// an error that matches exactly one of these with errors.Is.
var (
	ErrPoolAlreadyExists           = errorsmod.Register(Codespace, 2, "pool already exists")
	ErrPoolNotFound                = errorsmod.Register(Codespace, 3, "pool not found")
	ErrIdenticalTokens             = errorsmod.Register(Codespace, 4, "identical tokens")
	ErrInvalidReserves             = errorsmod.Register(Codespace, 5, "invalid reserves")
	ErrInsufficientShares          = errorsmod.Register(Codespace, 6, "insufficient liquidity shares")
	ErrInsufficientLiquidity       = errorsmod.Register(Codespace, 7, "insufficient liquidity")
	ErrSlippageExceeded            = errorsmod.Register(Codespace, 8, "slippage exceeded")
	ErrTransferFailed              = errorsmod.Register(Codespace, 9, "token transfer failed")
	ErrInvalidAmount               = errorsmod.Register(Codespace, 10, "invalid amount")
	ErrInvalidToken                = errorsmod.Register(Codespace, 11, "invalid token")
	ErrInsufficientLiquidityMinted = errorsmod.Register(Codespace, 12, "insufficient liquidity minted")
	ErrInsufficientOutputAmount    = errorsmod.Register(Codespace, 13, "insufficient output amount")
	ErrOverflow                    = errorsmod.Register(Codespace, 14, "arithmetic overflow")
)

// Kinds lists every registered exchange error, in code order.
var Kinds = []*errorsmod.Error{
	ErrPoolAlreadyExists,
	ErrPoolNotFound,
	ErrIdenticalTokens,
	ErrInvalidReserves,
	ErrInsufficientShares,
	ErrInsufficientLiquidity,
	ErrSlippageExceeded,
	ErrTransferFailed,
	ErrInvalidAmount,
	ErrInvalidToken,
	ErrInsufficientLiquidityMinted,
	ErrInsufficientOutputAmount,
	ErrOverflow,
}

// KindOf returns the registered kind err wraps, or nil for foreign errors.
func KindOf(err error) *errorsmod.Error {
	if err == nil {
		return nil
	}
	for _, kind := range Kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

var kindNames = map[*errorsmod.Error]string{
	ErrPoolAlreadyExists:           "PoolAlreadyExists",
	ErrPoolNotFound:                "PoolNotFound",
	ErrIdenticalTokens:             "IdenticalTokens",
	ErrInvalidReserves:             "InvalidReserves",
	ErrInsufficientShares:          "InsufficientShares",
	ErrInsufficientLiquidity:       "InsufficientLiquidity",
	ErrSlippageExceeded:            "SlippageExceeded",
	ErrTransferFailed:              "TransferFailed",
	ErrInvalidAmount:               "InvalidAmount",
	ErrInvalidToken:                "InvalidToken",
	ErrInsufficientLiquidityMinted: "InsufficientLiquidityMinted",
	ErrInsufficientOutputAmount:    "InsufficientOutputAmount",
	ErrOverflow:                    "Overflow",
}

// KindName returns the stable wire name of a registered kind, e.g. "PoolNotFound".
func KindName(kind *errorsmod.Error) string {
	return kindNames[kind]
}

// KindByName is the inverse of KindName. It returns nil for unknown names.
func KindByName(name string) *errorsmod.Error {
	for kind, n := range kindNames {
		if n == name {
			return kind
		}
	}
	return nil
}
