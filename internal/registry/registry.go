package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

var (
	ErrInvalidCategory = errors.New("invalid vehicle category")
	ErrNotOwner        = errors.New("caller is not the vehicle owner")
	ErrVehicleNotFound = errors.New("vehicle not found")
)

// Category is the kind of vehicle on offer.
type Category string

const (
	CategoryCar  Category = "car"
	CategoryBike Category = "bike"
	CategoryVan  Category = "van"
)

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryCar, CategoryBike, CategoryVan:
		return true
	}
	return false
}

// VehicleRecord is one registered vehicle. HasInsurance is advisory
// only; the insurance ledger is the authoritative coverage check.
type VehicleRecord struct {
	ID                 uint64    `json:"id"`
	Owner              string    `json:"owner"`
	Category           Category  `json:"category"`
	RentalPricePerDay  uint64    `json:"rental_price_per_day"`
	Available          bool      `json:"available"`
	MaintenanceDueDate time.Time `json:"maintenance_due_date"`
	HasInsurance       bool      `json:"has_insurance"`
}

// Registry owns all vehicle records. Ids are assigned from a counter
// held under the same lock as the records, are never reused, and
// records are never deleted.
type Registry struct {
	mu       sync.Mutex
	vehicles map[uint64]VehicleRecord
	nextID   uint64

	publisher messaging.Publisher
	clock     clock.Clock
}

// NewRegistry creates an empty registry. publisher may be nil for
// consumers that do not care about observations.
func NewRegistry(publisher messaging.Publisher, clk clock.Clock) *Registry {
	return &Registry{
		vehicles:  make(map[uint64]VehicleRecord),
		nextID:    1,
		publisher: publisher,
		clock:     clk,
	}
}

// Register records a new vehicle owned by caller. New vehicles start
// available and uninsured.
func (r *Registry) Register(caller string, category Category, pricePerDay uint64, maintenanceDue time.Time) (uint64, error) {
	if !category.Valid() {
		return 0, ErrInvalidCategory
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.vehicles[id] = VehicleRecord{
		ID:                 id,
		Owner:              caller,
		Category:           category,
		RentalPricePerDay:  pricePerDay,
		Available:          true,
		MaintenanceDueDate: maintenanceDue,
		HasInsurance:       false,
	}
	r.mu.Unlock()

	r.publish(messaging.SubjectVehicleRegistered, messaging.VehicleRegisteredEvent{
		VehicleID:   id,
		Owner:       caller,
		Category:    string(category),
		PricePerDay: pricePerDay,
	})
	return id, nil
}

// Update overwrites the three owner-mutable fields. Price bounds are
// deliberately not validated here; that is the caller's responsibility.
func (r *Registry) Update(caller string, id uint64, pricePerDay uint64, available, hasInsurance bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return ErrVehicleNotFound
	}
	if v.Owner != caller {
		return ErrNotOwner
	}
	v.RentalPricePerDay = pricePerDay
	v.Available = available
	v.HasInsurance = hasInsurance
	r.vehicles[id] = v
	return nil
}

// TransferOwnership reassigns the owner. Availability and any rental or
// policy state are untouched: a rental in progress is not invalidated
// by a sale.
func (r *Registry) TransferOwnership(caller string, id uint64, newOwner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return ErrVehicleNotFound
	}
	if v.Owner != caller {
		return ErrNotOwner
	}
	v.Owner = newOwner
	r.vehicles[id] = v
	return nil
}

// Get returns the record for id. Lookups are total over the id space:
// unknown ids return the zero record, never an error.
func (r *Registry) Get(id uint64) VehicleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vehicles[id]
}

// IsAvailable reports whether id is registered and currently available.
func (r *Registry) IsAvailable(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vehicles[id].Available
}

// SetAvailability flips the availability flag, preserving price and the
// insurance flag. Trusted mutator for the escrow engine; it bypasses
// the owner gate on purpose.
func (r *Registry) SetAvailability(id uint64, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return ErrVehicleNotFound
	}
	v.Available = available
	r.vehicles[id] = v
	return nil
}

// List returns a snapshot of every record, ordered by id.
func (r *Registry) List() []VehicleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]VehicleRecord, 0, len(r.vehicles))
	for id := uint64(1); id < r.nextID; id++ {
		if v, ok := r.vehicles[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Registry) publish(subject string, data interface{}) {
	if r.publisher == nil {
		return
	}
	now := time.Now()
	if r.clock != nil {
		now = r.clock.Now()
	}
	env, err := messaging.NewEnvelope(subject, "registry", now, data)
	if err != nil {
		return
	}
	r.publisher.Publish(subject, env)
}
