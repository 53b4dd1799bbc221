package report

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/blob"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

func seededLab(t *testing.T) *testutil.Lab {
	t.Helper()
	lab := testutil.NewLab(t)
	lab.DiscreteType(t, "beaker", 2, 3)
	lab.ChemicalType(t, "ethanol", "1.5")

	// A second intake three days later.
	lab.Clock.Advance(72 * time.Hour)
	ctx := context.Background()
	_, err := lab.Intake.ReceiveUnits(ctx, "beaker", 4)
	require.NoError(t, err)
	_, err = lab.Intake.ReceiveBatch(ctx, "ethanol", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	return lab
}

func rowsByID(inv Inventory) map[string]Row {
	out := map[string]Row{}
	for _, r := range inv.Rows {
		out[r.ConsumableTypeID] = r
	}
	return out
}

func TestGenerate_AllTypes(t *testing.T) {
	t.Parallel()
	lab := seededLab(t)
	inv, err := NewGenerator(lab.Store, lab.Clock).Generate(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, inv.Rows, 2)

	rows := rowsByID(inv)
	require.Equal(t, "6", rows["beaker"].Received.String())
	require.Equal(t, "6", rows["beaker"].Available.String())
	require.False(t, rows["beaker"].Low)
	require.Equal(t, testutil.Epoch.Add(72*time.Hour), *rows["beaker"].LastIntake)
	require.Equal(t, "2", rows["ethanol"].Received.String())
	require.Equal(t, "glassware", rows["beaker"].Category)
}

func TestGenerate_Filters(t *testing.T) {
	t.Parallel()
	lab := seededLab(t)
	g := NewGenerator(lab.Store, lab.Clock)
	ctx := context.Background()

	inv, err := g.Generate(ctx, Filter{Kind: KindChemical})
	require.NoError(t, err)
	require.Len(t, inv.Rows, 1)
	require.Equal(t, "ethanol", inv.Rows[0].ConsumableTypeID)

	inv, err = g.Generate(ctx, Filter{Category: "glassware"})
	require.NoError(t, err)
	require.Len(t, inv.Rows, 1)
	require.Equal(t, "beaker", inv.Rows[0].ConsumableTypeID)

	from := testutil.Epoch
	to := testutil.Epoch.Add(24 * time.Hour)
	inv, err = g.Generate(ctx, Filter{From: &from, To: &to})
	require.NoError(t, err)
	rows := rowsByID(inv)
	require.Equal(t, "2", rows["beaker"].Received.String())
	require.Equal(t, "6", rows["beaker"].Available.String())
	require.Equal(t, "1.5", rows["ethanol"].Received.String())
	require.Equal(t, testutil.Epoch, *rows["ethanol"].LastIntake)

	// A window with no intake leaves LastIntake unset.
	later := testutil.Epoch.Add(30 * 24 * time.Hour)
	inv, err = g.Generate(ctx, Filter{From: &later, To: &later})
	require.NoError(t, err)
	for _, r := range inv.Rows {
		require.True(t, r.Received.IsZero())
		require.Nil(t, r.LastIntake)
	}
}

func TestGenerate_Validation(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	g := NewGenerator(lab.Store, lab.Clock)

	_, err := g.Generate(context.Background(), Filter{Kind: "gas"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	from := testutil.Epoch
	to := from.Add(-48 * time.Hour)
	_, err = g.Generate(context.Background(), Filter{From: &from, To: &to})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestExporter_WritesJSON(t *testing.T) {
	t.Parallel()
	lab := seededLab(t)
	blobs, err := blob.NewFS(t.TempDir())
	require.NoError(t, err)
	e := NewExporter(NewGenerator(lab.Store, lab.Clock), blobs, "inventory/")

	info, err := e.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, "inventory/inventory-20260305T080000Z.json", info.Key)

	rc, err := blobs.Get(context.Background(), info.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var inv Inventory
	require.NoError(t, json.Unmarshal(data, &inv))
	require.Len(t, inv.Rows, 2)
}
