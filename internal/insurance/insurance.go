package insurance

import (
	"errors"
	"sync"
	"time"

	"github.com/driveshare/driveshare/internal/credit"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

var (
	ErrNotPolicyOwner       = errors.New("caller is not the policy owner")
	ErrPolicyNotFound       = errors.New("policy not found")
	ErrPolicyNotActive      = errors.New("policy is not active")
	ErrPolicyExpired        = errors.New("policy has expired")
	ErrClaimExceedsCoverage = errors.New("claim exceeds remaining coverage")
	ErrIncorrectPremium     = errors.New("payment does not match premium")
)

// Policy is an insurance contract covering a vehicle for a bounded time
// window with a capped, depletable coverage amount.
type Policy struct {
	ID             uint64    `json:"id"`
	VehicleOwner   string    `json:"vehicle_owner"`
	VehicleID      uint64    `json:"vehicle_id"`
	Premium        uint64    `json:"premium"`
	CoverageAmount uint64    `json:"coverage_amount"`
	ExpirationDate time.Time `json:"expiration_date"`
	Active         bool      `json:"active"`
}

// Ledger owns insurance policies, keyed by policy id and by vehicle id.
// Exactly one "latest" policy is tracked per vehicle: a new purchase
// supersedes the previous mapping, leaving the prior policy addressable
// by id but unreachable by vehicle lookup. Expiry is evaluated lazily
// at read and claim time against the injected clock; nothing sweeps
// expired policies.
type Ledger struct {
	mu              sync.Mutex
	policies        map[uint64]*Policy
	latestByVehicle map[uint64]uint64
	nextID          uint64

	credits     *credit.Ledger
	fundAccount string
	clock       clock.Clock
	publisher   messaging.Publisher
}

// NewLedger creates an empty insurance ledger. Premiums are pulled into
// and claims paid out of fundAccount on the credit ledger.
func NewLedger(credits *credit.Ledger, fundAccount string, clk clock.Clock, publisher messaging.Publisher) *Ledger {
	return &Ledger{
		policies:        make(map[uint64]*Policy),
		latestByVehicle: make(map[uint64]uint64),
		nextID:          1,
		credits:         credits,
		fundAccount:     fundAccount,
		clock:           clk,
		publisher:       publisher,
	}
}

// Purchase buys a policy for vehicleID. payment must equal premium
// exactly and is pulled from the caller's pre-approved credit balance
// into the insurance fund. The vehicle's latest-policy mapping is
// overwritten.
func (l *Ledger) Purchase(caller string, vehicleID, premium, coverage uint64, duration time.Duration, payment uint64) (uint64, error) {
	if payment != premium {
		return 0, ErrIncorrectPremium
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// The transfer is the only fallible step; nothing is recorded
	// before it succeeds.
	if err := l.credits.TransferFrom(l.fundAccount, caller, l.fundAccount, premium); err != nil {
		return 0, err
	}

	now := l.clock.Now()
	id := l.nextID
	l.nextID++
	p := &Policy{
		ID:             id,
		VehicleOwner:   caller,
		VehicleID:      vehicleID,
		Premium:        premium,
		CoverageAmount: coverage,
		ExpirationDate: now.Add(duration),
		Active:         true,
	}
	l.policies[id] = p
	l.latestByVehicle[vehicleID] = id

	l.publish(messaging.SubjectPolicyPurchased, messaging.PolicyPurchasedEvent{
		PolicyID:       id,
		VehicleID:      vehicleID,
		VehicleOwner:   caller,
		Premium:        premium,
		CoverageAmount: coverage,
		ExpirationDate: p.ExpirationDate,
	})
	return id, nil
}

// Claim pays amount from the fund to the policy owner and decrements
// the remaining coverage. Coverage only ever decreases.
func (l *Ledger) Claim(caller string, policyID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.policies[policyID]
	if !ok {
		return ErrPolicyNotFound
	}
	if p.VehicleOwner != caller {
		return ErrNotPolicyOwner
	}
	if !p.Active {
		return ErrPolicyNotActive
	}
	if l.clock.Now().After(p.ExpirationDate) {
		return ErrPolicyExpired
	}
	if amount > p.CoverageAmount {
		return ErrClaimExceedsCoverage
	}

	if err := l.credits.Transfer(l.fundAccount, caller, amount); err != nil {
		return err
	}
	p.CoverageAmount -= amount

	l.publish(messaging.SubjectPolicyClaimed, messaging.PolicyClaimedEvent{
		PolicyID:          policyID,
		VehicleID:         p.VehicleID,
		Amount:            amount,
		RemainingCoverage: p.CoverageAmount,
	})
	return nil
}

// Cancel deactivates a policy. Cancelling twice fails.
func (l *Ledger) Cancel(caller string, policyID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.policies[policyID]
	if !ok {
		return ErrPolicyNotFound
	}
	if p.VehicleOwner != caller {
		return ErrNotPolicyOwner
	}
	if !p.Active {
		return ErrPolicyNotActive
	}
	p.Active = false
	return nil
}

// HasActivePolicy reports whether the latest policy mapped to vehicleID
// is active and unexpired. Policy history before the latest purchase is
// invisible to this check.
func (l *Ledger) HasActivePolicy(vehicleID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.latestByVehicle[vehicleID]
	if !ok {
		return false
	}
	p := l.policies[id]
	return p.Active && !l.clock.Now().After(p.ExpirationDate)
}

// GetPolicy returns the policy for id.
func (l *Ledger) GetPolicy(policyID uint64) (Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.policies[policyID]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return *p, nil
}

// PolicyForVehicle returns the latest policy mapped to vehicleID.
func (l *Ledger) PolicyForVehicle(vehicleID uint64) (Policy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.latestByVehicle[vehicleID]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return *l.policies[id], nil
}

// ActivePolicies returns a snapshot of every active, unexpired latest
// policy. Used by the advisory alert monitor.
func (l *Ledger) ActivePolicies() []Policy {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	out := make([]Policy, 0, len(l.latestByVehicle))
	for _, id := range l.latestByVehicle {
		p := l.policies[id]
		if p.Active && !now.After(p.ExpirationDate) {
			out = append(out, *p)
		}
	}
	return out
}

func (l *Ledger) publish(subject string, data interface{}) {
	if l.publisher == nil {
		return
	}
	env, err := messaging.NewEnvelope(subject, "insurance", l.clock.Now(), data)
	if err != nil {
		return
	}
	l.publisher.Publish(subject, env)
}
