package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestView_RejectsWrites(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "t"})
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestCommitHookFailureKeepsPreviousState(t *testing.T) {
	hookErr := errors.New("disk full")
	s := NewWithState(NewState(), func(context.Context, State, []Bucket) error { return hookErr })

	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "t"})
	})
	require.ErrorIs(t, err, hookErr)
	require.Empty(t, s.Snapshot().ConsumableTypes)
}

func TestCommitHookReceivesChangedBuckets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func(ctx context.Context, tx store.Tx) error
		want [][]Bucket
	}{
		{
			name: "read only transaction skips the hook",
			fn: func(ctx context.Context, tx store.Tx) error {
				_, err := tx.ListOrders(ctx, store.OrderFilter{})
				return err
			},
		},
		{
			name: "one bucket",
			fn: func(ctx context.Context, tx store.Tx) error {
				return tx.SaveConsumableType(ctx, domain.ConsumableType{ID: "t"})
			},
			want: [][]Bucket{{BucketConsumableTypes}},
		},
		{
			name: "buckets in declaration order",
			fn: func(ctx context.Context, tx store.Tx) error {
				if err := tx.SaveExperiment(ctx, domain.Experiment{ID: "e"}); err != nil {
					return err
				}
				if err := tx.InsertSupplyUnit(ctx, domain.SupplyUnit{ID: "u", State: domain.UnitAvailable}); err != nil {
					return err
				}
				return tx.TransitionUnit(ctx, "u", domain.UnitAvailable, domain.UnitReserved)
			},
			want: [][]Bucket{{BucketUnits, BucketExperiments}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got [][]Bucket
			s := NewWithState(NewState(), func(_ context.Context, _ State, changed []Bucket) error {
				got = append(got, changed)
				return nil
			})
			require.NoError(t, s.InTx(context.Background(), tt.fn))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestInTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().InTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := New()
	require.NoError(t, s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SaveOrder(ctx, domain.Order{ID: "o", LineItems: []domain.LineItem{{ID: "l", ReservedUnitIDs: []string{"u"}}}})
	}))

	snap := s.Snapshot()
	o := snap.Orders["o"]
	o.LineItems[0].ReservedUnitIDs[0] = "changed"

	require.Equal(t, "u", s.Snapshot().Orders["o"].LineItems[0].ReservedUnitIDs[0])
}
