package tokenregistry

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	exchange = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

func newTestLedger(t *testing.T) (*Ledger, Token) {
	t.Helper()
	ledger := NewLedger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	token, err := ledger.Deploy(deployer, "Token A", "TKA", 18, big.NewInt(1_000_000))
	require.NoError(t, err)
	return ledger, token
}

func TestLedgerDeploy(t *testing.T) {
	ledger, token := newTestLedger(t)

	assert.Equal(t, crypto.CreateAddress(deployer, 0), token.Address)
	balance, err := ledger.BalanceOf(token.Address, deployer)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), balance.Int64())

	second, err := ledger.Deploy(deployer, "Token B", "TKB", 6, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(deployer, 1), second.Address, "each deployment gets a fresh address")

	tokens := ledger.Tokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, "TKA", tokens[0].Symbol)
	assert.Equal(t, "TKB", tokens[1].Symbol)

	err = ledger.Register(Token{Address: token.Address, Symbol: "DUP"}, deployer)
	assert.ErrorIs(t, err, ErrTokenExists)
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	ledger, token := newTestLedger(t)

	require.NoError(t, ledger.Transfer(ctx, token.Address, deployer, alice, big.NewInt(400)))

	balance, err := ledger.BalanceOf(token.Address, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance.Int64())

	err = ledger.Transfer(ctx, token.Address, alice, bob, big.NewInt(401))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, err = ledger.BalanceOf(token.Address, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance.Int64(), "failed transfer must not move funds")

	err = ledger.Transfer(ctx, common.HexToAddress("0x1234"), alice, bob, big.NewInt(1))
	assert.ErrorIs(t, err, ErrUnknownToken)

	err = ledger.Transfer(ctx, token.Address, alice, bob, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerTransferFrom(t *testing.T) {
	ctx := context.Background()
	ledger, token := newTestLedger(t)
	require.NoError(t, ledger.Transfer(ctx, token.Address, deployer, alice, big.NewInt(1000)))

	t.Run("requires an allowance", func(t *testing.T) {
		err := ledger.TransferFrom(ctx, token.Address, exchange, alice, exchange, big.NewInt(1))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("spends the allowance", func(t *testing.T) {
		require.NoError(t, ledger.Approve(ctx, token.Address, alice, exchange, big.NewInt(300)))
		require.NoError(t, ledger.TransferFrom(ctx, token.Address, exchange, alice, exchange, big.NewInt(100)))

		allowance, err := ledger.Allowance(token.Address, alice, exchange)
		require.NoError(t, err)
		assert.Equal(t, int64(200), allowance.Int64())

		balance, err := ledger.BalanceOf(token.Address, exchange)
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance.Int64())
	})

	t.Run("unlimited allowance is not decremented", func(t *testing.T) {
		require.NoError(t, ledger.Approve(ctx, token.Address, alice, exchange, math.MaxBig256))
		require.NoError(t, ledger.TransferFrom(ctx, token.Address, exchange, alice, exchange, big.NewInt(100)))

		allowance, err := ledger.Allowance(token.Address, alice, exchange)
		require.NoError(t, err)
		assert.Equal(t, 0, allowance.Cmp(math.MaxBig256))
	})

	t.Run("balance is still enforced", func(t *testing.T) {
		err := ledger.TransferFrom(ctx, token.Address, exchange, alice, exchange, big.NewInt(10_000))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("approve rejects amounts above 256 bits", func(t *testing.T) {
		tooBig := new(big.Int).Add(math.MaxBig256, big.NewInt(1))
		err := ledger.Approve(ctx, token.Address, alice, exchange, tooBig)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := ledger.Transfer(cancelled, token.Address, alice, bob, big.NewInt(1))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLedgerMint(t *testing.T) {
	ledger, token := newTestLedger(t)

	require.NoError(t, ledger.Mint(token.Address, bob, big.NewInt(50)))
	updated, ok := ledger.Token(token.Address)
	require.True(t, ok)
	assert.Equal(t, int64(1_000_050), updated.TotalSupply.Int64())

	err := ledger.Mint(token.Address, bob, math.MaxBig256)
	assert.ErrorIs(t, err, ErrSupplyOverflow)
}

func TestLedgerConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	ledger, token := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.Transfer(ctx, token.Address, deployer, alice, big.NewInt(10))
		}()
	}
	wg.Wait()

	aliceBalance, err := ledger.BalanceOf(token.Address, alice)
	require.NoError(t, err)
	deployerBalance, err := ledger.BalanceOf(token.Address, deployer)
	require.NoError(t, err)
	assert.Equal(t, int64(500), aliceBalance.Int64())
	assert.Equal(t, int64(1_000_000), new(big.Int).Add(aliceBalance, deployerBalance).Int64(), "supply is conserved")
}
