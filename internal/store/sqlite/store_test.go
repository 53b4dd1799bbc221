package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "kalium.db"))
		require.NoError(t, err)
		return s
	})
}

func TestReopenRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kalium.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	reported := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "type-a", Name: "Burette", Unit: "piece"}); err != nil {
			return err
		}
		return tx.SaveIncident(ctx, domain.Incident{
			ID: "incident-1", Description: "chipped", State: domain.IncidentReported, ReportedAt: reported,
		})
	}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, path, reopened.Path())

	require.NoError(t, reopened.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := tx.GetConsumableType(ctx, "type-a")
		require.NoError(t, err)
		require.Equal(t, "Burette", ct.Name)

		inc, err := tx.GetIncident(ctx, "incident-1")
		require.NoError(t, err)
		require.True(t, inc.ReportedAt.Equal(reported))
		return nil
	}))
}

func TestFailedTransactionIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kalium.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "type-a"}))
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Empty(t, reopened.Snapshot().ConsumableTypes)
}

func TestPersistWritesOnlyChangedBuckets(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "kalium.db"))
	require.NoError(t, err)
	defer s.Close()

	buckets := func() []string {
		rows, err := s.db.QueryContext(ctx, `SELECT bucket FROM state ORDER BY bucket`)
		require.NoError(t, err)
		defer rows.Close()
		var out []string
		for rows.Next() {
			var b string
			require.NoError(t, rows.Scan(&b))
			out = append(out, b)
		}
		require.NoError(t, rows.Err())
		return out
	}

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "type-a", Name: "Burette"})
	}))
	require.Equal(t, []string{"consumable_types"}, buckets())

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveExperiment(ctx, domain.Experiment{
			ID: "exp-1", Name: "Titration",
			Lines: []domain.ExperimentLine{{ConsumableTypeID: "type-a", QuantityPerGroup: 1}},
		})
	}))
	require.Equal(t, []string{"consumable_types", "experiments"}, buckets())

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.ListOrders(ctx, store.OrderFilter{})
		return err
	}))
	require.Equal(t, []string{"consumable_types", "experiments"}, buckets())
}
