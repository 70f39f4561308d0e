package rental

import (
	"errors"
	"sync"
	"time"

	"github.com/driveshare/driveshare/internal/credit"
	"github.com/driveshare/driveshare/internal/insurance"
	"github.com/driveshare/driveshare/internal/registry"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
	"github.com/driveshare/driveshare/pkg/money"
)

var (
	ErrVehicleNotAvailable    = errors.New("vehicle is not available")
	ErrInsuranceRequired      = errors.New("vehicle has no active insurance policy")
	ErrInvalidRentalDays      = errors.New("rental days must be positive")
	ErrEscrowOverflow         = errors.New("escrow amount overflows")
	ErrRentalNotFound         = errors.New("rental not found")
	ErrNotRenter              = errors.New("caller is not the renter")
	ErrNotAdmin               = errors.New("caller is not an arbitrator")
	ErrRentalAlreadyCompleted = errors.New("rental already completed")
	ErrRentalPeriodNotOver    = errors.New("rental period has not elapsed")
)

// Rental is one escrow-backed rental. A rental is Active from creation
// until Completed flips; Completed is terminal on both the natural
// expiry path and the arbitrated path.
type Rental struct {
	ID           uint64    `json:"id"`
	Renter       string    `json:"renter"`
	VehicleID    uint64    `json:"vehicle_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	EscrowAmount uint64    `json:"escrow_amount"`
	Completed    bool      `json:"completed"`
}

// Config holds engine wiring.
type Config struct {
	// EscrowAccount is the credit ledger account that holds escrowed
	// value between initiation and resolution.
	EscrowAccount string
	// Admins are the accounts allowed to resolve disputes.
	Admins []string
	// DayLength is the duration of one rental day. Defaults to 24h.
	DayLength time.Duration
}

// Engine orchestrates the rental lifecycle: it gates initiation on
// vehicle availability and active insurance, escrows rental funds on
// the credit ledger, and releases escrow to exactly one party exactly
// once when a rental resolves.
//
// Every operation runs under a single lock, so validation, the credit
// transfer, record creation and dependent-entity updates are one atomic
// unit relative to other engine operations. Within an operation the
// credit transfer is the only fallible step after validation; no state
// is written before it succeeds.
type Engine struct {
	mu      sync.Mutex
	rentals map[uint64]*Rental
	nextID  uint64

	vehicles  *registry.Registry
	policies  *insurance.Ledger
	credits   *credit.Ledger
	clock     clock.Clock
	publisher messaging.Publisher

	escrowAccount string
	admins        map[string]struct{}
	dayLength     time.Duration
}

// NewEngine wires an engine over the three ledgers.
func NewEngine(cfg Config, vehicles *registry.Registry, policies *insurance.Ledger, credits *credit.Ledger, clk clock.Clock, publisher messaging.Publisher) *Engine {
	dayLength := cfg.DayLength
	if dayLength <= 0 {
		dayLength = 24 * time.Hour
	}
	admins := make(map[string]struct{}, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a] = struct{}{}
	}
	return &Engine{
		rentals:       make(map[uint64]*Rental),
		nextID:        1,
		vehicles:      vehicles,
		policies:      policies,
		credits:       credits,
		clock:         clk,
		publisher:     publisher,
		escrowAccount: cfg.EscrowAccount,
		admins:        admins,
		dayLength:     dayLength,
	}
}

// Initiate starts a rental of vehicleID for the caller. The caller must
// have pre-approved the escrow account to move at least
// pricePerDay×days of their credit.
//
// Availability and insurance are checked here and not re-checked at
// completion: the escrow plus the unavailable flag are the durable
// guarantee against double-booking.
func (e *Engine) Initiate(caller string, vehicleID, days uint64) (Rental, error) {
	if days == 0 {
		return Rental{}, ErrInvalidRentalDays
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.vehicles.Get(vehicleID)
	if !v.Available {
		// Unknown vehicles read as the zero record, so they fall
		// through here as simply unavailable.
		return Rental{}, ErrVehicleNotAvailable
	}
	if !e.policies.HasActivePolicy(vehicleID) {
		return Rental{}, ErrInsuranceRequired
	}

	escrow, err := money.Mul(v.RentalPricePerDay, days)
	if err != nil {
		return Rental{}, ErrEscrowOverflow
	}

	if err := e.credits.TransferFrom(e.escrowAccount, caller, e.escrowAccount, escrow); err != nil {
		return Rental{}, err
	}

	now := e.clock.Now()
	id := e.nextID
	e.nextID++
	r := &Rental{
		ID:           id,
		Renter:       caller,
		VehicleID:    vehicleID,
		StartDate:    now,
		EndDate:      now.Add(time.Duration(days) * e.dayLength),
		EscrowAmount: escrow,
	}
	e.rentals[id] = r
	e.vehicles.SetAvailability(vehicleID, false)

	e.publish(messaging.SubjectRentalInitiated, messaging.RentalInitiatedEvent{
		RentalID:     id,
		Renter:       caller,
		VehicleID:    vehicleID,
		EscrowAmount: escrow,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
	})
	return *r, nil
}

// Complete resolves a rental on the natural expiry path. Only the
// renter may complete, and only once the rental period has fully
// elapsed. Escrow is paid to the vehicle's current owner, re-read at
// completion time: a sale during the rental redirects payment to the
// new owner.
func (e *Engine) Complete(caller string, rentalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rentals[rentalID]
	if !ok {
		return ErrRentalNotFound
	}
	if r.Renter != caller {
		return ErrNotRenter
	}
	if r.Completed {
		return ErrRentalAlreadyCompleted
	}
	if e.clock.Now().Before(r.EndDate) {
		return ErrRentalPeriodNotOver
	}

	owner := e.vehicles.Get(r.VehicleID).Owner
	if err := e.credits.Transfer(e.escrowAccount, owner, r.EscrowAmount); err != nil {
		return err
	}
	r.Completed = true
	e.vehicles.SetAvailability(r.VehicleID, true)

	e.publish(messaging.SubjectRentalCompleted, messaging.RentalCompletedEvent{
		RentalID:  rentalID,
		Renter:    r.Renter,
		VehicleID: r.VehicleID,
		PaidTo:    owner,
		Amount:    r.EscrowAmount,
	})
	return nil
}

// RaiseDispute signals that out-of-band arbitration should begin. It is
// a pure notification hook: no rental state or escrow changes.
func (e *Engine) RaiseDispute(caller string, rentalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rentals[rentalID]
	if !ok {
		return ErrRentalNotFound
	}
	if r.Renter != caller {
		return ErrNotRenter
	}
	if r.Completed {
		return ErrRentalAlreadyCompleted
	}

	e.publish(messaging.SubjectDisputeRaised, messaging.DisputeRaisedEvent{
		RentalID:  rentalID,
		Renter:    r.Renter,
		VehicleID: r.VehicleID,
	})
	return nil
}

// ResolveDispute resolves a rental on the arbitrated path. Escrow goes
// to the renter when refundToRenter, otherwise to the vehicle's current
// owner. Resolving an already-completed rental fails, so escrow can
// never be released twice, and the vehicle is freed here exactly as on
// Complete.
func (e *Engine) ResolveDispute(caller string, rentalID uint64, refundToRenter bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.admins[caller]; !ok {
		return ErrNotAdmin
	}
	r, ok := e.rentals[rentalID]
	if !ok {
		return ErrRentalNotFound
	}
	if r.Completed {
		return ErrRentalAlreadyCompleted
	}

	payee := r.Renter
	if !refundToRenter {
		payee = e.vehicles.Get(r.VehicleID).Owner
	}
	if err := e.credits.Transfer(e.escrowAccount, payee, r.EscrowAmount); err != nil {
		return err
	}
	r.Completed = true
	e.vehicles.SetAvailability(r.VehicleID, true)

	e.publish(messaging.SubjectDisputeResolved, messaging.DisputeResolvedEvent{
		RentalID:       rentalID,
		RefundToRenter: refundToRenter,
		PaidTo:         payee,
		Amount:         r.EscrowAmount,
	})
	return nil
}

// Get returns the rental for id.
func (e *Engine) Get(rentalID uint64) (Rental, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.rentals[rentalID]
	if !ok {
		return Rental{}, ErrRentalNotFound
	}
	return *r, nil
}

// ListByRenter returns the caller's rentals, ordered by id.
func (e *Engine) ListByRenter(renter string) []Rental {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Rental
	for id := uint64(1); id < e.nextID; id++ {
		if r, ok := e.rentals[id]; ok && r.Renter == renter {
			out = append(out, *r)
		}
	}
	return out
}

// IsAdmin reports whether account holds the arbitrator role.
func (e *Engine) IsAdmin(account string) bool {
	_, ok := e.admins[account]
	return ok
}

func (e *Engine) publish(subject string, data interface{}) {
	if e.publisher == nil {
		return
	}
	env, err := messaging.NewEnvelope(subject, "rental-engine", e.clock.Now(), data)
	if err != nil {
		return
	}
	e.publisher.Publish(subject, env)
}
