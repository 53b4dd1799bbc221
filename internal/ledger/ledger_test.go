package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestIsLow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		available string
		minimum   int
		want      bool
	}{
		{"no minimum", "0", 0, false},
		{"under minimum", "2", 3, true},
		{"at minimum", "3", 3, false},
		{"fractional under", "2.99", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsLow(decimal.RequireFromString(tt.available), tt.minimum))
		})
	}
}

func TestAvailableUnitCount(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	ids := lab.DiscreteType(t, "flask", 4, 0)
	lab.ChemicalType(t, "ethanol", "10")
	l := New(lab.Store)
	ctx := context.Background()

	require.NoError(t, lab.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.TransitionUnit(ctx, ids[0], domain.UnitAvailable, domain.UnitReserved)
	}))

	n, err := l.AvailableUnitCount(ctx, "flask")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = l.AvailableUnitCount(ctx, "ethanol")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = l.AvailableUnitCount(ctx, "ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAvailableChemicalQuantity_SumsBatches(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	lab.ChemicalType(t, "ethanol", "10.25")
	lab.DiscreteType(t, "flask", 1, 0)
	ctx := context.Background()
	_, err := lab.Intake.ReceiveBatch(ctx, "ethanol", decimal.RequireFromString("4.75"))
	require.NoError(t, err)
	l := New(lab.Store)

	qty, err := l.AvailableChemicalQuantity(ctx, "ethanol")
	require.NoError(t, err)
	require.Equal(t, "15", qty.String())

	_, err = l.AvailableChemicalQuantity(ctx, "flask")
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestStockLevels(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	lab.DiscreteType(t, "beaker", 2, 3)
	lab.DiscreteType(t, "flask", 5, 3)
	lab.ChemicalType(t, "acetone", "1")
	l := New(lab.Store)

	levels, err := l.StockLevels(context.Background())
	require.NoError(t, err)
	require.Len(t, levels, 3)

	byID := map[string]domain.StockLevel{}
	for _, lv := range levels {
		byID[lv.ConsumableTypeID] = lv
	}
	require.True(t, byID["beaker"].Low)
	require.False(t, byID["flask"].Low)
	require.Equal(t, 5, byID["flask"].UnitCounts[domain.UnitAvailable])
	require.True(t, byID["acetone"].IsChemical)
	require.Nil(t, byID["acetone"].UnitCounts)

	one, err := l.StockLevel(context.Background(), "beaker")
	require.NoError(t, err)
	require.Equal(t, "2", one.Available.String())
}

func TestLowStockEvents(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	lab.DiscreteType(t, "beaker", 2, 3)
	lab.DiscreteType(t, "flask", 5, 3)

	var events []domain.DomainEvent
	require.NoError(t, lab.Store.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		events, err = LowStockEvents(ctx, tx, []string{"beaker", "flask"}, testutil.Epoch)
		return err
	}))
	require.Len(t, events, 1)
	require.Equal(t, domain.EventStockLow, events[0].EventType)
	require.Equal(t, "beaker", events[0].AggregateID)

	var p domain.StockPayload
	require.NoError(t, events[0].Decode(&p))
	require.Equal(t, "2", p.Available)
	require.Equal(t, 3, p.MinimumStock)
}
