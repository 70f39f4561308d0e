package insurance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/driveshare/internal/credit"
	"github.com/driveshare/driveshare/internal/insurance"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

const fund = "sys:insurance-fund"

func newLedger(t *testing.T) (*insurance.Ledger, *credit.Ledger, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	credits := credit.NewLedger("authority")
	require.NoError(t, credits.Mint("authority", "alice", 1_000))
	credits.Approve("alice", fund, 1_000)

	return insurance.NewLedger(credits, fund, clk, messaging.NewRecorder()), credits, clk
}

func TestPurchase(t *testing.T) {
	t.Run("should require payment of exactly the premium", func(t *testing.T) {
		l, credits, _ := newLedger(t)

		_, err := l.Purchase("alice", 1, 50, 500, time.Hour, 49)
		assert.ErrorIs(t, err, insurance.ErrIncorrectPremium)
		_, err = l.Purchase("alice", 1, 50, 500, time.Hour, 51)
		assert.ErrorIs(t, err, insurance.ErrIncorrectPremium)

		id, err := l.Purchase("alice", 1, 50, 500, time.Hour, 50)
		require.NoError(t, err)
		assert.Equal(t, uint64(950), credits.BalanceOf("alice"))
		assert.Equal(t, uint64(50), credits.BalanceOf(fund))

		p, err := l.GetPolicy(id)
		require.NoError(t, err)
		assert.True(t, p.Active)
		assert.Equal(t, uint64(500), p.CoverageAmount)
	})

	t.Run("a new purchase supersedes the vehicle mapping", func(t *testing.T) {
		l, _, _ := newLedger(t)

		first, err := l.Purchase("alice", 7, 10, 100, time.Hour, 10)
		require.NoError(t, err)
		second, err := l.Purchase("alice", 7, 10, 200, time.Hour, 10)
		require.NoError(t, err)

		current, err := l.PolicyForVehicle(7)
		require.NoError(t, err)
		assert.Equal(t, second, current.ID)

		// The prior policy is still addressable by id, just no longer
		// reachable through the vehicle.
		old, err := l.GetPolicy(first)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), old.CoverageAmount)
	})

	t.Run("should not record a policy when payment fails", func(t *testing.T) {
		l, credits, _ := newLedger(t)
		credits.Approve("alice", fund, 0)

		_, err := l.Purchase("alice", 1, 10, 100, time.Hour, 10)
		assert.ErrorIs(t, err, credit.ErrInsufficientAllowance)
		_, err = l.PolicyForVehicle(1)
		assert.ErrorIs(t, err, insurance.ErrPolicyNotFound)
	})
}

func TestClaim(t *testing.T) {
	t.Run("should deplete coverage and pay the owner", func(t *testing.T) {
		l, credits, _ := newLedger(t)
		id, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		require.NoError(t, l.Claim("alice", id, 4))
		assert.Equal(t, uint64(994), credits.BalanceOf("alice"))

		p, err := l.GetPolicy(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), p.CoverageAmount)
	})

	t.Run("should reject claims above remaining coverage", func(t *testing.T) {
		l, _, _ := newLedger(t)
		id, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		assert.ErrorIs(t, l.Claim("alice", id, 20), insurance.ErrClaimExceedsCoverage)

		require.NoError(t, l.Claim("alice", id, 10))
		assert.ErrorIs(t, l.Claim("alice", id, 1), insurance.ErrClaimExceedsCoverage)
	})

	t.Run("should gate on the policy owner", func(t *testing.T) {
		l, _, _ := newLedger(t)
		id, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		assert.ErrorIs(t, l.Claim("bob", id, 1), insurance.ErrNotPolicyOwner)
	})

	t.Run("should reject cancelled and expired policies", func(t *testing.T) {
		l, _, clk := newLedger(t)

		cancelled, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)
		require.NoError(t, l.Cancel("alice", cancelled))
		assert.ErrorIs(t, l.Claim("alice", cancelled, 1), insurance.ErrPolicyNotActive)

		expired, err := l.Purchase("alice", 2, 10, 10, time.Hour, 10)
		require.NoError(t, err)
		clk.Advance(61 * time.Minute)
		assert.ErrorIs(t, l.Claim("alice", expired, 1), insurance.ErrPolicyExpired)
	})

	t.Run("unknown policies are not claimable", func(t *testing.T) {
		l, _, _ := newLedger(t)
		assert.ErrorIs(t, l.Claim("alice", 404, 1), insurance.ErrPolicyNotFound)
	})
}

func TestCancel(t *testing.T) {
	l, _, _ := newLedger(t)
	id, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
	require.NoError(t, err)

	assert.ErrorIs(t, l.Cancel("bob", id), insurance.ErrNotPolicyOwner)
	require.NoError(t, l.Cancel("alice", id))
	assert.ErrorIs(t, l.Cancel("alice", id), insurance.ErrPolicyNotActive)
}

func TestHasActivePolicy(t *testing.T) {
	t.Run("expiry is evaluated lazily on read", func(t *testing.T) {
		l, _, clk := newLedger(t)
		_, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		assert.True(t, l.HasActivePolicy(1))

		// Never cancelled; merely past the expiration date.
		clk.Advance(2 * time.Hour)
		assert.False(t, l.HasActivePolicy(1))
	})

	t.Run("a policy active exactly at expiry still counts", func(t *testing.T) {
		l, _, clk := newLedger(t)
		_, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		clk.Advance(time.Hour)
		assert.True(t, l.HasActivePolicy(1))
	})

	t.Run("cancellation deactivates the vehicle check", func(t *testing.T) {
		l, _, _ := newLedger(t)
		id, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
		require.NoError(t, err)

		require.NoError(t, l.Cancel("alice", id))
		assert.False(t, l.HasActivePolicy(1))
	})

	t.Run("vehicles with no purchase history have no coverage", func(t *testing.T) {
		l, _, _ := newLedger(t)
		assert.False(t, l.HasActivePolicy(42))
	})
}

func TestActivePolicies(t *testing.T) {
	l, _, clk := newLedger(t)

	_, err := l.Purchase("alice", 1, 10, 10, time.Hour, 10)
	require.NoError(t, err)
	_, err = l.Purchase("alice", 2, 10, 10, 3*time.Hour, 10)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	active := l.ActivePolicies()
	require.Len(t, active, 1)
	assert.Equal(t, uint64(2), active[0].VehicleID)
}
