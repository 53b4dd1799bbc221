// Package storetest is the behavioural contract shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/store"
)

// Factory returns an empty store. The store is closed by the caller.
type Factory func(t *testing.T) store.Store

var errAbort = errors.New("abort")

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("reference data and units", func(t *testing.T) { testUnits(t, newStore(t)) })
	t.Run("rollback discards writes", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("orders round trip with line items", func(t *testing.T) { testOrders(t, newStore(t)) })
	t.Run("deliveries returns and incidents", func(t *testing.T) { testDeliveryChain(t, newStore(t)) })
	t.Run("experiments", func(t *testing.T) { testExperiments(t, newStore(t)) })
}

var received = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func seedType(t *testing.T, s store.Store, ct domain.ConsumableType, units ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveConsumableType(ctx, ct); err != nil {
			return err
		}
		for _, id := range units {
			if err := tx.InsertSupplyUnit(ctx, domain.SupplyUnit{
				ID: id, ConsumableTypeID: ct.ID, State: domain.UnitAvailable, ReceivedAt: received,
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func testUnits(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	seedType(t, s, domain.ConsumableType{ID: "type-b", Name: "Beaker", Category: "glass", Unit: "piece", MinimumStock: 1}, "u-3", "u-1", "u-2")
	seedType(t, s, domain.ConsumableType{ID: "type-a", Name: "Ethanol", Category: "solvent", Unit: "ml", IsChemical: true})

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.LockConsumableTypes(ctx, []string{"type-a", "type-b"}))

		units, err := tx.ListSupplyUnits(ctx, store.UnitFilter{ConsumableTypeID: "type-b", State: domain.UnitAvailable, Limit: 2})
		require.NoError(t, err)
		require.Len(t, units, 2)
		require.Equal(t, "u-1", units[0].ID)
		require.Equal(t, "u-2", units[1].ID)

		require.NoError(t, tx.TransitionUnit(ctx, "u-1", domain.UnitAvailable, domain.UnitReserved))
		err = tx.TransitionUnit(ctx, "u-1", domain.UnitAvailable, domain.UnitReserved)
		require.ErrorIs(t, err, store.ErrStateMismatch)

		return tx.InsertChemicalBatch(ctx, domain.ChemicalBatch{
			ID: "batch-1", ConsumableTypeID: "type-a", Quantity: decimal.RequireFromString("250.5"), ReceivedOn: received,
		})
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		counts, err := tx.CountUnitsByState(ctx, "type-b")
		require.NoError(t, err)
		require.Equal(t, 2, counts[domain.UnitAvailable])
		require.Equal(t, 1, counts[domain.UnitReserved])

		batches, err := tx.ListChemicalBatches(ctx, "type-a")
		require.NoError(t, err)
		require.Len(t, batches, 1)
		require.True(t, batches[0].Quantity.Equal(decimal.RequireFromString("250.5")))

		types, err := tx.ListConsumableTypes(ctx)
		require.NoError(t, err)
		require.Len(t, types, 2)
		require.Equal(t, "type-a", types[0].ID)
		require.True(t, types[0].IsChemical)

		_, err = tx.GetConsumableType(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetSupplyUnit(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func testRollback(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	seedType(t, s, domain.ConsumableType{ID: "type-a", Name: "Pipette", Category: "glass", Unit: "piece"}, "u-1")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.TransitionUnit(ctx, "u-1", domain.UnitAvailable, domain.UnitReserved))
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.GetSupplyUnit(ctx, "u-1")
		require.NoError(t, err)
		require.Equal(t, domain.UnitAvailable, u.State)
		return nil
	}))
}

func testOrders(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	seedType(t, s, domain.ConsumableType{ID: "type-a", Name: "Flask", Category: "glass", Unit: "piece"}, "u-1", "u-2")

	startsAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:          "order-1",
		RequesterID: "instructor-1",
		CourseID:    "chem-101",
		Schedule:    domain.Schedule{Date: startsAt.Truncate(24 * time.Hour), StartsAt: startsAt},
		GroupCount:  2,
		State:       domain.OrderApproved,
		LineItems: []domain.LineItem{{
			ID: "line-1", ConsumableTypeID: "type-a", QuantityPerGroup: 1,
			State: domain.LineReserved, ReservedUnitIDs: []string{"u-1", "u-2"},
		}},
		CreatedAt: received,
		UpdatedAt: received,
	}
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveOrder(ctx, order)
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOrder(ctx, "order-1")
		require.NoError(t, err)
		require.Equal(t, "chem-101", got.CourseID)
		require.True(t, got.Schedule.StartsAt.Equal(startsAt))
		require.Len(t, got.LineItems, 1)
		require.Equal(t, []string{"u-1", "u-2"}, got.LineItems[0].ReservedUnitIDs)

		got.State = domain.OrderCancelled
		got.LineItems[0].State = domain.LineCancelled
		return tx.SaveOrder(ctx, got)
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		cutoff := startsAt.Add(time.Hour)
		approved, err := tx.ListOrders(ctx, store.OrderFilter{State: domain.OrderApproved, StartsBefore: &cutoff})
		require.NoError(t, err)
		require.Empty(t, approved)

		cancelled, err := tx.ListOrders(ctx, store.OrderFilter{State: domain.OrderCancelled})
		require.NoError(t, err)
		require.Len(t, cancelled, 1)
		require.Equal(t, domain.LineCancelled, cancelled[0].LineItems[0].State)

		_, err = tx.GetOrder(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func testDeliveryChain(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	seedType(t, s, domain.ConsumableType{ID: "type-a", Name: "Tube", Category: "glass", Unit: "piece"}, "u-1", "u-2")
	seedType(t, s, domain.ConsumableType{ID: "type-c", Name: "HCl", Category: "acid", Unit: "ml", IsChemical: true})

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveOrder(ctx, domain.Order{
			ID: "order-1", RequesterID: "instructor-1", GroupCount: 2, State: domain.OrderDelivered,
			CreatedAt: received, UpdatedAt: received,
		}); err != nil {
			return err
		}
		for i, unit := range []string{"u-1", "u-2"} {
			if err := tx.SaveDelivery(ctx, domain.Delivery{
				ID: "delivery-" + unit, OrderID: "order-1", GroupNumber: 2 - i, State: domain.DeliveryOpen,
				UnitIDs:   []string{unit},
				Chemicals: []domain.ChemicalRef{{ConsumableTypeID: "type-c", QuantityPerGroup: 5, BatchIDs: []string{"batch-1"}}},
				CreatedAt: received, UpdatedAt: received,
			}); err != nil {
				return err
			}
		}
		decided := received.Add(time.Hour)
		if err := tx.SaveReturn(ctx, domain.Return{
			ID: "return-1", DeliveryID: "delivery-u-1", OrderID: "order-1", RecipientID: "student-1",
			State:     domain.ReturnApproved,
			LineItems: []domain.ReturnLineItem{{UnitID: "u-1", Condition: domain.ConditionDamaged, Notes: "cracked"}},
			CreatedAt: received, DecidedAt: &decided,
		}); err != nil {
			return err
		}
		return tx.SaveIncident(ctx, domain.Incident{
			ID: "incident-1", Description: "cracked tube", ReturnID: "return-1", UnitID: "u-1",
			RecipientID: "student-1", State: domain.IncidentReported, ReportedAt: received,
		})
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		deliveries, err := tx.ListDeliveries(ctx, "order-1")
		require.NoError(t, err)
		require.Len(t, deliveries, 2)
		require.Equal(t, 1, deliveries[0].GroupNumber)
		require.Equal(t, []string{"u-2"}, deliveries[0].UnitIDs)
		require.Len(t, deliveries[0].Chemicals, 1)
		require.Equal(t, []string{"batch-1"}, deliveries[0].Chemicals[0].BatchIDs)

		r, err := tx.GetReturn(ctx, "return-1")
		require.NoError(t, err)
		require.NotNil(t, r.DecidedAt)
		require.Equal(t, domain.ConditionDamaged, r.LineItems[0].Condition)
		require.Equal(t, "cracked", r.LineItems[0].Notes)

		returns, err := tx.ListReturns(ctx, "delivery-u-1")
		require.NoError(t, err)
		require.Len(t, returns, 1)

		incidents, err := tx.ListIncidents(ctx, store.IncidentFilter{ReturnID: "return-1"})
		require.NoError(t, err)
		require.Len(t, incidents, 1)
		require.Nil(t, incidents[0].ResolvedAt)

		none, err := tx.ListIncidents(ctx, store.IncidentFilter{State: domain.IncidentResolved})
		require.NoError(t, err)
		require.Empty(t, none)

		_, err = tx.GetDelivery(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = tx.GetIncident(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func testExperiments(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, e := range []domain.Experiment{
			{ID: "exp-2", Name: "Distillation", Lines: []domain.ExperimentLine{{ConsumableTypeID: "type-a", QuantityPerGroup: 20}}},
			{ID: "exp-1", Name: "Titration", Lines: []domain.ExperimentLine{
				{ConsumableTypeID: "type-a", QuantityPerGroup: 10},
				{ConsumableTypeID: "type-b", QuantityPerGroup: 1},
			}},
		} {
			e.CreatedAt, e.UpdatedAt = received, received
			if err := tx.SaveExperiment(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := tx.GetExperiment(ctx, "exp-2")
		require.NoError(t, err)
		e.Name = "Fractional distillation"
		e.UpdatedAt = received.Add(time.Hour)
		return tx.SaveExperiment(ctx, e)
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := tx.GetExperiment(ctx, "exp-1")
		require.NoError(t, err)
		require.Equal(t, "Titration", e.Name)
		require.Equal(t, []domain.ExperimentLine{
			{ConsumableTypeID: "type-a", QuantityPerGroup: 10},
			{ConsumableTypeID: "type-b", QuantityPerGroup: 1},
		}, e.Lines)
		require.True(t, e.CreatedAt.Equal(received))

		all, err := tx.ListExperiments(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, "exp-1", all[0].ID)
		require.Equal(t, "Fractional distillation", all[1].Name)

		_, err = tx.GetExperiment(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}
