package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/driveshare/driveshare/pkg/messaging"
	"github.com/driveshare/driveshare/pkg/money"
)

// Store persists every observation the core emits into Postgres so the
// marketplace has a queryable history independent of the in-memory
// engine. The archive is a subscriber: the core never waits on it.
type Store struct {
	db *sql.DB
}

// StoredEvent is one archived observation.
type StoredEvent struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	RentalID   sql.NullInt64   `json:"rental_id"`
	VehicleID  sql.NullInt64   `json:"vehicle_id"`
	Amount     sql.NullInt64   `json:"amount"`
	Payload    json.RawMessage `json:"payload"`
}

// Summary aggregates the archived rental activity. Display amounts are
// derived from the smallest-denomination totals.
type Summary struct {
	RentalsInitiated int64           `json:"rentals_initiated"`
	RentalsCompleted int64           `json:"rentals_completed"`
	DisputesRaised   int64           `json:"disputes_raised"`
	DisputesResolved int64           `json:"disputes_resolved"`
	EscrowVolume     uint64          `json:"escrow_volume"`
	EscrowCredits    decimal.Decimal `json:"escrow_credits"`
}

// NewStore creates an archive over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the events table if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rental_events (
			id          TEXT PRIMARY KEY,
			subject     TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			source      TEXT NOT NULL,
			rental_id   BIGINT,
			vehicle_id  BIGINT,
			amount      BIGINT,
			payload     JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to migrate rental_events: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS rental_events_vehicle_idx ON rental_events (vehicle_id)`)
	if err != nil {
		return fmt.Errorf("failed to index rental_events: %w", err)
	}
	return nil
}

// Record archives one envelope. Duplicate deliveries (same envelope id)
// are ignored so redelivery is harmless.
func (s *Store) Record(ctx context.Context, env *messaging.Envelope) error {
	rentalID, vehicleID, amount := indexFields(env)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rental_events (id, subject, occurred_at, source, rental_id, vehicle_id, amount, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		env.ID.String(), env.Subject, env.Timestamp, env.Source,
		rentalID, vehicleID, amount, []byte(env.Data),
	)
	if err != nil {
		return fmt.Errorf("failed to archive event: %w", err)
	}
	return nil
}

// indexFields pulls the queryable columns out of the typed payloads.
func indexFields(env *messaging.Envelope) (rentalID, vehicleID, amount sql.NullInt64) {
	set := func(dst *sql.NullInt64, v uint64) {
		dst.Int64, dst.Valid = int64(v), true
	}

	switch env.Subject {
	case messaging.SubjectRentalInitiated:
		if ev, err := messaging.ParseData[messaging.RentalInitiatedEvent](env); err == nil {
			set(&rentalID, ev.RentalID)
			set(&vehicleID, ev.VehicleID)
			set(&amount, ev.EscrowAmount)
		}
	case messaging.SubjectRentalCompleted:
		if ev, err := messaging.ParseData[messaging.RentalCompletedEvent](env); err == nil {
			set(&rentalID, ev.RentalID)
			set(&vehicleID, ev.VehicleID)
			set(&amount, ev.Amount)
		}
	case messaging.SubjectDisputeRaised:
		if ev, err := messaging.ParseData[messaging.DisputeRaisedEvent](env); err == nil {
			set(&rentalID, ev.RentalID)
			set(&vehicleID, ev.VehicleID)
		}
	case messaging.SubjectDisputeResolved:
		if ev, err := messaging.ParseData[messaging.DisputeResolvedEvent](env); err == nil {
			set(&rentalID, ev.RentalID)
			set(&amount, ev.Amount)
		}
	case messaging.SubjectVehicleRegistered:
		if ev, err := messaging.ParseData[messaging.VehicleRegisteredEvent](env); err == nil {
			set(&vehicleID, ev.VehicleID)
		}
	case messaging.SubjectPolicyPurchased:
		if ev, err := messaging.ParseData[messaging.PolicyPurchasedEvent](env); err == nil {
			set(&vehicleID, ev.VehicleID)
			set(&amount, ev.Premium)
		}
	case messaging.SubjectPolicyClaimed:
		if ev, err := messaging.ParseData[messaging.PolicyClaimedEvent](env); err == nil {
			set(&vehicleID, ev.VehicleID)
			set(&amount, ev.Amount)
		}
	}
	return rentalID, vehicleID, amount
}

// VehicleHistory returns the archived events for one vehicle, oldest
// first.
func (s *Store) VehicleHistory(ctx context.Context, vehicleID uint64, limit int) ([]StoredEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, occurred_at, rental_id, vehicle_id, amount, payload
		FROM rental_events
		WHERE vehicle_id = $1
		ORDER BY occurred_at ASC
		LIMIT $2`,
		int64(vehicleID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle history: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.Subject, &ev.OccurredAt, &ev.RentalID, &ev.VehicleID, &ev.Amount, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarketSummary aggregates totals across every archived event.
func (s *Store) MarketSummary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE subject = $1),
			COUNT(*) FILTER (WHERE subject = $2),
			COUNT(*) FILTER (WHERE subject = $3),
			COUNT(*) FILTER (WHERE subject = $4),
			COALESCE(SUM(amount) FILTER (WHERE subject = $1), 0)
		FROM rental_events`,
		messaging.SubjectRentalInitiated,
		messaging.SubjectRentalCompleted,
		messaging.SubjectDisputeRaised,
		messaging.SubjectDisputeResolved,
	).Scan(&sum.RentalsInitiated, &sum.RentalsCompleted, &sum.DisputesRaised, &sum.DisputesResolved, &sum.EscrowVolume)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	sum.EscrowCredits = money.Credits(sum.EscrowVolume)
	return &sum, nil
}
