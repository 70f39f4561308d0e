package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subjects for observations emitted by the core services. External
// subscribers (the archive, the gateway websocket stream, anything
// else) consume these; the core never depends on who is listening.
const (
	SubjectRentalInitiated = "rental.initiated"
	SubjectRentalCompleted = "rental.completed"
	SubjectDisputeRaised   = "dispute.raised"
	SubjectDisputeResolved = "dispute.resolved"

	SubjectVehicleRegistered = "vehicle.registered"
	SubjectPolicyPurchased   = "policy.purchased"
	SubjectPolicyClaimed     = "policy.claimed"

	SubjectMaintenanceDue = "alert.maintenance_due"
	SubjectPolicyExpiring = "alert.policy_expiring"
)

// Envelope is the wire form of every observation.
type Envelope struct {
	ID        uuid.UUID       `json:"id"`
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(subject, source string, now time.Time, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.New(),
		Subject:   subject,
		Timestamp: now,
		Source:    source,
		Data:      raw,
	}, nil
}

// ParseData decodes an envelope payload into the given type.
func ParseData[T any](env *Envelope) (*T, error) {
	var data T
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// RentalInitiatedEvent is published when escrow is committed and a
// rental becomes active.
type RentalInitiatedEvent struct {
	RentalID     uint64    `json:"rental_id"`
	Renter       string    `json:"renter"`
	VehicleID    uint64    `json:"vehicle_id"`
	EscrowAmount uint64    `json:"escrow_amount"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// RentalCompletedEvent is published on the natural expiry path.
type RentalCompletedEvent struct {
	RentalID  uint64 `json:"rental_id"`
	Renter    string `json:"renter"`
	VehicleID uint64 `json:"vehicle_id"`
	PaidTo    string `json:"paid_to"`
	Amount    uint64 `json:"amount"`
}

// DisputeRaisedEvent signals that out-of-band arbitration should begin.
// It carries no state change.
type DisputeRaisedEvent struct {
	RentalID  uint64 `json:"rental_id"`
	Renter    string `json:"renter"`
	VehicleID uint64 `json:"vehicle_id"`
}

// DisputeResolvedEvent is published on the arbitrated resolution path.
type DisputeResolvedEvent struct {
	RentalID       uint64 `json:"rental_id"`
	RefundToRenter bool   `json:"refund_to_renter"`
	PaidTo         string `json:"paid_to"`
	Amount         uint64 `json:"amount"`
}

// VehicleRegisteredEvent is published on registration.
type VehicleRegisteredEvent struct {
	VehicleID   uint64 `json:"vehicle_id"`
	Owner       string `json:"owner"`
	Category    string `json:"category"`
	PricePerDay uint64 `json:"price_per_day"`
}

// PolicyPurchasedEvent is published when a policy is bought.
type PolicyPurchasedEvent struct {
	PolicyID       uint64    `json:"policy_id"`
	VehicleID      uint64    `json:"vehicle_id"`
	VehicleOwner   string    `json:"vehicle_owner"`
	Premium        uint64    `json:"premium"`
	CoverageAmount uint64    `json:"coverage_amount"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// PolicyClaimedEvent is published when a claim pays out.
type PolicyClaimedEvent struct {
	PolicyID          uint64 `json:"policy_id"`
	VehicleID         uint64 `json:"vehicle_id"`
	Amount            uint64 `json:"amount"`
	RemainingCoverage uint64 `json:"remaining_coverage"`
}

// MaintenanceDueEvent is an advisory alert for vehicles past their
// maintenance due date.
type MaintenanceDueEvent struct {
	VehicleID uint64    `json:"vehicle_id"`
	Owner     string    `json:"owner"`
	DueDate   time.Time `json:"due_date"`
}

// PolicyExpiringEvent is an advisory alert for active policies inside
// the expiry warning window.
type PolicyExpiringEvent struct {
	PolicyID       uint64    `json:"policy_id"`
	VehicleID      uint64    `json:"vehicle_id"`
	ExpirationDate time.Time `json:"expiration_date"`
}
