package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/intake"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/memory"
)

// Epoch is the starting time of every test Clock.
var Epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// Clock is a settable domain.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at Epoch.
func NewClock() *Clock { return &Clock{now: Epoch} }

// Now implements domain.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Lab is an in-memory inventory with an intake service for seeding stock.
type Lab struct {
	Store  *memory.Store
	Clock  *Clock
	Intake *intake.Service
}

// NewLab returns an empty in-memory lab.
func NewLab(t *testing.T) *Lab {
	t.Helper()
	s := memory.New()
	clock := NewClock()
	return &Lab{Store: s, Clock: clock, Intake: intake.New(s, clock)}
}

// DiscreteType registers a discrete type and receives units of it. It
// returns the unit IDs in ascending order.
func (l *Lab) DiscreteType(t *testing.T, id string, units, minimum int) []string {
	t.Helper()
	ctx := context.Background()
	_, err := l.Intake.RegisterType(ctx, domain.ConsumableType{
		ID: id, Name: id, Category: "glassware", Unit: "piece", MinimumStock: minimum,
	})
	require.NoError(t, err)
	if units == 0 {
		return nil
	}
	received, err := l.Intake.ReceiveUnits(ctx, id, units)
	require.NoError(t, err)
	ids := make([]string, len(received))
	for i, u := range received {
		ids[i] = u.ID
	}
	return ids
}

// ChemicalType registers a chemical type and receives one batch of quantity.
func (l *Lab) ChemicalType(t *testing.T, id, quantity string) {
	t.Helper()
	ctx := context.Background()
	_, err := l.Intake.RegisterType(ctx, domain.ConsumableType{
		ID: id, Name: id, Category: "reagent", Unit: "ml", IsChemical: true,
	})
	require.NoError(t, err)
	_, err = l.Intake.ReceiveBatch(ctx, id, decimal.RequireFromString(quantity))
	require.NoError(t, err)
}

// UnitCounts returns the per-state unit counts of a type.
func (l *Lab) UnitCounts(t *testing.T, typeID string) map[domain.UnitState]int {
	t.Helper()
	var counts map[domain.UnitState]int
	require.NoError(t, l.Store.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		counts, err = tx.CountUnitsByState(ctx, typeID)
		return err
	}))
	return counts
}

// UnitState returns the state of one unit.
func (l *Lab) UnitState(t *testing.T, unitID string) domain.UnitState {
	t.Helper()
	u, ok := l.Store.Snapshot().Units[unitID]
	require.True(t, ok, "unit %s", unitID)
	return u.State
}

// RequireConserved asserts that the units of a type across all states add up
// to the number received.
func (l *Lab) RequireConserved(t *testing.T, typeID string, received int) {
	t.Helper()
	total := 0
	for _, n := range l.UnitCounts(t, typeID) {
		total += n
	}
	require.Equal(t, received, total, "units of %s not conserved", typeID)
}
