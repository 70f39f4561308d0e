package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/driveshare/internal/registry"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

func newRegistry() (*registry.Registry, *messaging.Recorder) {
	rec := messaging.NewRecorder()
	clk := clock.NewMock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	return registry.NewRegistry(rec, clk), rec
}

func TestRegister(t *testing.T) {
	t.Run("should assign monotonic ids and sane defaults", func(t *testing.T) {
		r, rec := newRegistry()
		due := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

		first, err := r.Register("alice", registry.CategoryCar, 100, due)
		require.NoError(t, err)
		second, err := r.Register("bob", registry.CategoryVan, 250, due)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)

		v := r.Get(first)
		assert.Equal(t, "alice", v.Owner)
		assert.Equal(t, registry.CategoryCar, v.Category)
		assert.True(t, v.Available)
		assert.False(t, v.HasInsurance)
		assert.Equal(t, due, v.MaintenanceDueDate)

		assert.Len(t, rec.BySubject(messaging.SubjectVehicleRegistered), 2)
	})

	t.Run("should reject categories outside the enum", func(t *testing.T) {
		r, _ := newRegistry()
		_, err := r.Register("alice", registry.Category("boat"), 100, time.Time{})
		assert.ErrorIs(t, err, registry.ErrInvalidCategory)
	})
}

func TestGetIsTotal(t *testing.T) {
	// Reads are total over the id space: unknown ids yield the zero
	// record rather than an error.
	r, _ := newRegistry()

	v := r.Get(9999)
	assert.Equal(t, registry.VehicleRecord{}, v)
	assert.False(t, r.IsAvailable(9999))
}

func TestUpdate(t *testing.T) {
	t.Run("should let only the owner mutate", func(t *testing.T) {
		r, _ := newRegistry()
		id, err := r.Register("alice", registry.CategoryBike, 10, time.Time{})
		require.NoError(t, err)

		assert.ErrorIs(t, r.Update("bob", id, 20, false, true), registry.ErrNotOwner)

		require.NoError(t, r.Update("alice", id, 20, false, true))
		v := r.Get(id)
		assert.Equal(t, uint64(20), v.RentalPricePerDay)
		assert.False(t, v.Available)
		assert.True(t, v.HasInsurance)
	})

	t.Run("should reject unknown vehicles", func(t *testing.T) {
		r, _ := newRegistry()
		assert.ErrorIs(t, r.Update("alice", 7, 1, true, false), registry.ErrVehicleNotFound)
	})
}

func TestTransferOwnership(t *testing.T) {
	r, _ := newRegistry()
	id, err := r.Register("alice", registry.CategoryCar, 10, time.Time{})
	require.NoError(t, err)
	require.NoError(t, r.Update("alice", id, 10, false, true))

	assert.ErrorIs(t, r.TransferOwnership("bob", id, "bob"), registry.ErrNotOwner)

	require.NoError(t, r.TransferOwnership("alice", id, "bob"))
	v := r.Get(id)
	assert.Equal(t, "bob", v.Owner)
	// Availability and the insurance flag survive a sale untouched.
	assert.False(t, v.Available)
	assert.True(t, v.HasInsurance)

	// The previous owner lost the mutation capability with the sale.
	assert.ErrorIs(t, r.Update("alice", id, 10, true, true), registry.ErrNotOwner)
}

func TestSetAvailability(t *testing.T) {
	r, _ := newRegistry()
	id, err := r.Register("alice", registry.CategoryCar, 42, time.Time{})
	require.NoError(t, err)

	require.NoError(t, r.SetAvailability(id, false))
	v := r.Get(id)
	assert.False(t, v.Available)
	assert.Equal(t, uint64(42), v.RentalPricePerDay)

	assert.ErrorIs(t, r.SetAvailability(99, false), registry.ErrVehicleNotFound)
}

func TestList(t *testing.T) {
	r, _ := newRegistry()
	for i := 0; i < 3; i++ {
		_, err := r.Register("alice", registry.CategoryCar, 10, time.Time{})
		require.NoError(t, err)
	}

	vehicles := r.List()
	require.Len(t, vehicles, 3)
	assert.Equal(t, uint64(1), vehicles[0].ID)
	assert.Equal(t, uint64(3), vehicles[2].ID)
}
