package credit_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/driveshare/internal/credit"
)

func TestMint(t *testing.T) {
	t.Run("should require the minter role", func(t *testing.T) {
		l := credit.NewLedger("authority")

		assert.ErrorIs(t, l.Mint("mallory", "mallory", 100), credit.ErrNotMinter)
		require.NoError(t, l.Mint("authority", "alice", 100))
		assert.Equal(t, uint64(100), l.BalanceOf("alice"))
		assert.Equal(t, uint64(100), l.TotalSupply())
	})

	t.Run("should guard total supply against overflow", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", math.MaxUint64))

		assert.ErrorIs(t, l.Mint("authority", "bob", 1), credit.ErrSupplyOverflow)
	})

	t.Run("should reject zero amounts", func(t *testing.T) {
		l := credit.NewLedger("authority")
		assert.ErrorIs(t, l.Mint("authority", "alice", 0), credit.ErrZeroAmount)
	})
}

func TestTransfer(t *testing.T) {
	t.Run("should move balances without changing supply", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", 100))

		require.NoError(t, l.Transfer("alice", "bob", 40))
		assert.Equal(t, uint64(60), l.BalanceOf("alice"))
		assert.Equal(t, uint64(40), l.BalanceOf("bob"))
		assert.Equal(t, uint64(100), l.TotalSupply())
	})

	t.Run("should reject insufficient balances", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", 10))

		err := l.Transfer("alice", "bob", 11)
		assert.ErrorIs(t, err, credit.ErrInsufficientBalance)
		assert.Equal(t, uint64(10), l.BalanceOf("alice"))
	})

	t.Run("unknown accounts hold zero", func(t *testing.T) {
		l := credit.NewLedger("authority")
		assert.Equal(t, uint64(0), l.BalanceOf("nobody"))
		assert.ErrorIs(t, l.Transfer("nobody", "bob", 1), credit.ErrInsufficientBalance)
	})
}

func TestApprovals(t *testing.T) {
	t.Run("transferFrom consumes the allowance", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", 100))

		l.Approve("alice", "spender", 50)
		assert.Equal(t, uint64(50), l.Allowance("alice", "spender"))

		require.NoError(t, l.TransferFrom("spender", "alice", "bob", 30))
		assert.Equal(t, uint64(20), l.Allowance("alice", "spender"))
		assert.Equal(t, uint64(30), l.BalanceOf("bob"))

		err := l.TransferFrom("spender", "alice", "bob", 30)
		assert.ErrorIs(t, err, credit.ErrInsufficientAllowance)
	})

	t.Run("a failed transfer leaves the allowance intact", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", 10))

		l.Approve("alice", "spender", 100)
		err := l.TransferFrom("spender", "alice", "bob", 50)
		assert.ErrorIs(t, err, credit.ErrInsufficientBalance)
		assert.Equal(t, uint64(100), l.Allowance("alice", "spender"))
	})

	t.Run("a new approval overwrites the previous one", func(t *testing.T) {
		l := credit.NewLedger("authority")
		l.Approve("alice", "spender", 100)
		l.Approve("alice", "spender", 7)
		assert.Equal(t, uint64(7), l.Allowance("alice", "spender"))
	})
}

func TestBurn(t *testing.T) {
	t.Run("should reduce balance and supply", func(t *testing.T) {
		l := credit.NewLedger("authority")
		require.NoError(t, l.Mint("authority", "alice", 100))

		require.NoError(t, l.Burn("alice", 40))
		assert.Equal(t, uint64(60), l.BalanceOf("alice"))
		assert.Equal(t, uint64(60), l.TotalSupply())

		assert.ErrorIs(t, l.Burn("alice", 100), credit.ErrInsufficientBalance)
	})
}
