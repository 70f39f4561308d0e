package alerts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/driveshare/internal/alerts"
	"github.com/driveshare/driveshare/internal/credit"
	"github.com/driveshare/driveshare/internal/insurance"
	"github.com/driveshare/driveshare/internal/registry"
	"github.com/driveshare/driveshare/pkg/clock"
	"github.com/driveshare/driveshare/pkg/messaging"
)

func newMonitor(t *testing.T) (*alerts.Monitor, *registry.Registry, *insurance.Ledger, *credit.Ledger, *clock.Mock, *messaging.Recorder) {
	t.Helper()

	clk := clock.NewMock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	rec := messaging.NewRecorder()
	credits := credit.NewLedger("authority")
	require.NoError(t, credits.Mint("authority", "alice", 1_000))
	credits.Approve("alice", "fund", 1_000)

	vehicles := registry.NewRegistry(nil, clk)
	policies := insurance.NewLedger(credits, "fund", clk, nil)
	m := alerts.NewMonitor(alerts.Config{ExpiryWindow: time.Hour}, vehicles, policies, clk, rec, nil)
	return m, vehicles, policies, credits, clk, rec
}

func TestMaintenanceAlerts(t *testing.T) {
	m, vehicles, _, _, clk, rec := newMonitor(t)

	_, err := vehicles.Register("alice", registry.CategoryCar, 10, clk.Now().Add(48*time.Hour))
	require.NoError(t, err)

	m.Scan()
	assert.Empty(t, rec.BySubject(messaging.SubjectMaintenanceDue))

	clk.Advance(49 * time.Hour)
	m.Scan()
	assert.Len(t, rec.BySubject(messaging.SubjectMaintenanceDue), 1)

	// A second scan does not repeat the alert.
	m.Scan()
	assert.Len(t, rec.BySubject(messaging.SubjectMaintenanceDue), 1)
}

func TestPolicyExpiryAlerts(t *testing.T) {
	m, _, policies, _, clk, rec := newMonitor(t)

	_, err := policies.Purchase("alice", 1, 10, 100, 3*time.Hour, 10)
	require.NoError(t, err)

	m.Scan()
	assert.Empty(t, rec.BySubject(messaging.SubjectPolicyExpiring))

	// Inside the one-hour warning window but still active.
	clk.Advance(150 * time.Minute)
	m.Scan()
	assert.Len(t, rec.BySubject(messaging.SubjectPolicyExpiring), 1)

	// Once lapsed the policy leaves the active set; no further alert.
	clk.Advance(time.Hour)
	m.Scan()
	assert.Len(t, rec.BySubject(messaging.SubjectPolicyExpiring), 1)
}
