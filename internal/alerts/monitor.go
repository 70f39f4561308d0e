package alerts

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driveshare/driveshare/internal/insurance"
	"github.com/driveshare/driveshare/internal/registry"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

// Monitor periodically scans the registry and the insurance ledger and
// publishes advisory alerts: vehicles past their maintenance due date
// and active policies close to expiry.
//
// Alerts are strictly advisory. Rental gating never depends on them;
// correctness-relevant expiry stays lazy, evaluated at use time.
type Monitor struct {
	vehicles  *registry.Registry
	policies  *insurance.Ledger
	clock     clock.Clock
	publisher messaging.Publisher
	logger    *zap.Logger

	interval     time.Duration
	expiryWindow time.Duration

	mu       sync.Mutex
	notified map[string]struct{} // alert key -> already published
}

// Config holds monitor tuning.
type Config struct {
	// Interval between scans. Defaults to time.Minute.
	Interval time.Duration
	// ExpiryWindow is how far before policy expiration to warn.
	// Defaults to 24h.
	ExpiryWindow time.Duration
}

// NewMonitor wires a Monitor.
func NewMonitor(cfg Config, vehicles *registry.Registry, policies *insurance.Ledger, clk clock.Clock, publisher messaging.Publisher, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = 24 * time.Hour
	}
	return &Monitor{
		vehicles:     vehicles,
		policies:     policies,
		clock:        clk,
		publisher:    publisher,
		logger:       logger,
		interval:     cfg.Interval,
		expiryWindow: cfg.ExpiryWindow,
		notified:     make(map[string]struct{}),
	}
}

// Run scans on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Scan()
		}
	}
}

// Scan performs one pass. Each alert is published at most once per
// monitor lifetime.
func (m *Monitor) Scan() {
	now := m.clock.Now()

	for _, v := range m.vehicles.List() {
		if v.MaintenanceDueDate.IsZero() || now.Before(v.MaintenanceDueDate) {
			continue
		}
		if !m.markNotified("maintenance", v.ID) {
			continue
		}
		m.publish(messaging.SubjectMaintenanceDue, now, messaging.MaintenanceDueEvent{
			VehicleID: v.ID,
			Owner:     v.Owner,
			DueDate:   v.MaintenanceDueDate,
		})
	}

	for _, p := range m.policies.ActivePolicies() {
		if p.ExpirationDate.Sub(now) > m.expiryWindow {
			continue
		}
		if !m.markNotified("policy", p.ID) {
			continue
		}
		m.publish(messaging.SubjectPolicyExpiring, now, messaging.PolicyExpiringEvent{
			PolicyID:       p.ID,
			VehicleID:      p.VehicleID,
			ExpirationDate: p.ExpirationDate,
		})
	}
}

func (m *Monitor) markNotified(kind string, id uint64) bool {
	key := kind + ":" + strconv.FormatUint(id, 10)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.notified[key]; seen {
		return false
	}
	m.notified[key] = struct{}{}
	return true
}

func (m *Monitor) publish(subject string, now time.Time, data interface{}) {
	env, err := messaging.NewEnvelope(subject, "alert-monitor", now, data)
	if err != nil {
		return
	}
	if err := m.publisher.Publish(subject, env); err != nil && m.logger != nil {
		m.logger.Warn("failed to publish alert", zap.String("subject", subject), zap.Error(err))
	}
}
