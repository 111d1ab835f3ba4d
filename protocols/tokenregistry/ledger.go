package tokenregistry

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrTokenExists           = errors.New("token already registered")
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("amount must be non-negative and fit in 256 bits")
	ErrSupplyOverflow        = errors.New("total supply exceeds 256 bits")
	ErrZeroAddress           = errors.New("zero address")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ledgerEntry struct {
	token      Token
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int // owner -> spender -> amount
}

// Ledger is an in-memory, multi-token ERC20 ledger. It holds balances and allowances for
// every registered token and is safe for concurrent use.
//
// An allowance of 2^256-1 is treated as unlimited and is never decremented.
type Ledger struct {
	mu     sync.RWMutex
	tokens map[common.Address]*ledgerEntry
	order  []common.Address
	nonces map[common.Address]uint64
	logger Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger Logger) *Ledger {
	return &Ledger{
		tokens: make(map[common.Address]*ledgerEntry),
		nonces: make(map[common.Address]uint64),
		logger: logger,
	}
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() >= 0 && amount.Cmp(math.MaxBig256) <= 0
}

// Deploy creates a new token owned by deployer and credits deployer with the whole supply.
// The token address is derived from the deployer address and its deployment count, the same
// way contract creation addresses are.
func (l *Ledger) Deploy(deployer common.Address, name, symbol string, decimals uint8, supply *big.Int) (Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce := l.nonces[deployer]
	address := crypto.CreateAddress(deployer, nonce)
	token := Token{
		Address:     address,
		Name:        name,
		Symbol:      symbol,
		Decimals:    decimals,
		TotalSupply: supply,
	}
	if err := l.register(token, deployer); err != nil {
		return Token{}, err
	}
	l.nonces[deployer] = nonce + 1
	return l.tokens[address].token.Clone(), nil
}

// Register adds a token at a fixed address and credits holder with its TotalSupply.
func (l *Ledger) Register(token Token, holder common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.register(token, holder)
}

func (l *Ledger) register(token Token, holder common.Address) error {
	if token.Address == (common.Address{}) || holder == (common.Address{}) {
		return ErrZeroAddress
	}
	if _, exists := l.tokens[token.Address]; exists {
		return fmt.Errorf("%w: %s", ErrTokenExists, token.Address.Hex())
	}
	supply := new(big.Int)
	if token.TotalSupply != nil {
		supply.Set(token.TotalSupply)
	}
	if !validAmount(supply) {
		return ErrInvalidAmount
	}
	token.TotalSupply = supply

	entry := &ledgerEntry{
		token:      token,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	if supply.Sign() > 0 {
		entry.balances[holder] = new(big.Int).Set(supply)
	}
	l.tokens[token.Address] = entry
	l.order = append(l.order, token.Address)

	l.logger.Info("token registered",
		"address", token.Address.Hex(),
		"symbol", token.Symbol,
		"decimals", token.Decimals,
		"supply", supply.String(),
		"holder", holder.Hex(),
	)
	return nil
}

// Mint creates amount new units of token and credits them to to.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	newSupply := new(big.Int).Add(entry.token.TotalSupply, amount)
	if newSupply.Cmp(math.MaxBig256) > 0 {
		return ErrSupplyOverflow
	}
	entry.token.TotalSupply = newSupply
	entry.credit(to, amount)
	return nil
}

// Token returns the metadata of a registered token.
func (l *Ledger) Token(address common.Address) (Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.tokens[address]
	if !ok {
		return Token{}, false
	}
	return entry.token.Clone(), true
}

// Tokens returns every registered token in registration order.
func (l *Ledger) Tokens() []Token {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens := make([]Token, 0, len(l.order))
	for _, address := range l.order {
		tokens = append(tokens, l.tokens[address].token.Clone())
	}
	return tokens
}

// BalanceOf returns account's balance of token.
func (l *Ledger) BalanceOf(token, account common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return new(big.Int).Set(entry.balance(account)), nil
}

// Allowance returns how much of owner's token spender may move.
func (l *Ledger) Allowance(token, owner, spender common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return new(big.Int).Set(entry.allowance(owner, spender)), nil
}

// Approve sets spender's allowance over owner's token to amount.
func (l *Ledger) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	spenders, ok := entry.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		entry.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)

	l.logger.Debug("approval", "token", token.Hex(), "owner", owner.Hex(), "spender", spender.Hex(), "amount", amount.String())
	return nil
}

// Transfer moves amount of token from from to to.
func (l *Ledger) Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return entry.move(from, to, amount)
}

// TransferFrom moves amount of from's token to to, spending spender's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}

	allowance := entry.allowance(from, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allowed %s, needs %s", ErrInsufficientAllowance, spender.Hex(), allowance, amount)
	}
	if err := entry.move(from, to, amount); err != nil {
		return err
	}
	if allowance.Cmp(math.MaxBig256) != 0 {
		entry.allowances[from][spender] = new(big.Int).Sub(allowance, amount)
	}
	return nil
}

func (e *ledgerEntry) balance(account common.Address) *big.Int {
	if b, ok := e.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (e *ledgerEntry) allowance(owner, spender common.Address) *big.Int {
	if a, ok := e.allowances[owner][spender]; ok {
		return a
	}
	return new(big.Int)
}

func (e *ledgerEntry) credit(account common.Address, amount *big.Int) {
	e.balances[account] = new(big.Int).Add(e.balance(account), amount)
}

func (e *ledgerEntry) move(from, to common.Address, amount *big.Int) error {
	fromBalance := e.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBalance, e.token.Symbol, amount)
	}
	remaining := new(big.Int).Sub(fromBalance, amount)
	if remaining.Sign() == 0 {
		delete(e.balances, from)
	} else {
		e.balances[from] = remaining
	}
	e.credit(to, amount)
	return nil
}
