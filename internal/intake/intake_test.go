package intake

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store/memory"
)

func init() {
	_ = logger.Init("error", "json")
}

var receivedAt = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newService() (*Service, *memory.Store) {
	s := memory.New()
	return New(s, domain.ClockFunc(func() time.Time { return receivedAt })), s
}

func TestRegisterType_Validation(t *testing.T) {
	t.Parallel()
	svc, _ := newService()

	tests := []struct {
		name  string
		ct    domain.ConsumableType
		field string
	}{
		{"blank name", domain.ConsumableType{Name: "  "}, "name"},
		{"negative minimum", domain.ConsumableType{Name: "flask", MinimumStock: -1}, "minimum_stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterType(context.Background(), tt.ct)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			require.Equal(t, tt.field, appErr.FieldErrors[0].Field)
		})
	}
}

func TestRegisterType_GeneratesIDAndUpdates(t *testing.T) {
	t.Parallel()
	svc, s := newService()
	ctx := context.Background()

	ct, err := svc.RegisterType(ctx, domain.ConsumableType{Name: " Beaker 250ml ", MinimumStock: 2})
	require.NoError(t, err)
	require.NotEmpty(t, ct.ID)
	require.Equal(t, "Beaker 250ml", ct.Name)

	ct.MinimumStock = 5
	_, err = svc.RegisterType(ctx, ct)
	require.NoError(t, err)
	require.Len(t, s.Snapshot().ConsumableTypes, 1)
	require.Equal(t, 5, s.Snapshot().ConsumableTypes[ct.ID].MinimumStock)
}

func TestRegisterType_TrackingModeLockedOnceStocked(t *testing.T) {
	t.Parallel()
	svc, _ := newService()
	ctx := context.Background()

	ct, err := svc.RegisterType(ctx, domain.ConsumableType{ID: "pipette", Name: "pipette"})
	require.NoError(t, err)

	// Still empty, so the mode can change.
	ct.IsChemical = true
	_, err = svc.RegisterType(ctx, ct)
	require.NoError(t, err)

	_, err = svc.ReceiveBatch(ctx, ct.ID, decimal.NewFromInt(10))
	require.NoError(t, err)

	ct.IsChemical = false
	_, err = svc.RegisterType(ctx, ct)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestReceiveUnits(t *testing.T) {
	t.Parallel()
	svc, s := newService()
	ctx := context.Background()
	_, err := svc.RegisterType(ctx, domain.ConsumableType{ID: "flask", Name: "flask"})
	require.NoError(t, err)

	units, err := svc.ReceiveUnits(ctx, "flask", 3)
	require.NoError(t, err)
	require.Len(t, units, 3)
	for _, u := range units {
		require.Equal(t, domain.UnitAvailable, u.State)
		require.Equal(t, receivedAt, u.ReceivedAt)
	}
	require.Len(t, s.Snapshot().Units, 3)

	_, err = svc.ReceiveUnits(ctx, "flask", 0)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.ReceiveUnits(ctx, "ghost", 1)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReceive_RespectsTrackingMode(t *testing.T) {
	t.Parallel()
	svc, s := newService()
	ctx := context.Background()
	_, err := svc.RegisterType(ctx, domain.ConsumableType{ID: "flask", Name: "flask"})
	require.NoError(t, err)
	_, err = svc.RegisterType(ctx, domain.ConsumableType{ID: "ethanol", Name: "ethanol", IsChemical: true})
	require.NoError(t, err)

	_, err = svc.ReceiveUnits(ctx, "ethanol", 1)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.ReceiveBatch(ctx, "flask", decimal.NewFromInt(1))
	require.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.ReceiveBatch(ctx, "ethanol", decimal.Zero)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	b, err := svc.ReceiveBatch(ctx, "ethanol", decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("2.5").Equal(b.Quantity))
	require.Empty(t, s.Snapshot().Units)
}

func TestDefineExperiment_Validation(t *testing.T) {
	t.Parallel()
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.RegisterType(ctx, domain.ConsumableType{ID: "flask", Name: "flask"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		e     domain.Experiment
		field string
	}{
		{"blank name", domain.Experiment{Name: " ", Lines: []domain.ExperimentLine{{ConsumableTypeID: "flask", QuantityPerGroup: 1}}}, "name"},
		{"no lines", domain.Experiment{Name: "titration"}, "lines"},
		{"zero quantity", domain.Experiment{Name: "titration", Lines: []domain.ExperimentLine{{ConsumableTypeID: "flask"}}}, "quantity_per_group"},
		{"duplicate type", domain.Experiment{Name: "titration", Lines: []domain.ExperimentLine{
			{ConsumableTypeID: "flask", QuantityPerGroup: 1},
			{ConsumableTypeID: "flask", QuantityPerGroup: 2},
		}}, "consumable_type_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.DefineExperiment(ctx, tt.e)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			require.Equal(t, tt.field, appErr.FieldErrors[0].Field)
		})
	}

	_, err = svc.DefineExperiment(ctx, domain.Experiment{
		Name: "titration", Lines: []domain.ExperimentLine{{ConsumableTypeID: "ghost", QuantityPerGroup: 1}},
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDefineExperiment_CreatesAndReplaces(t *testing.T) {
	t.Parallel()
	svc, s := newService()
	ctx := context.Background()
	for _, id := range []string{"flask", "ethanol"} {
		_, err := svc.RegisterType(ctx, domain.ConsumableType{ID: id, Name: id, IsChemical: id == "ethanol"})
		require.NoError(t, err)
	}

	e, err := svc.DefineExperiment(ctx, domain.Experiment{
		Name:  " Titration ",
		Lines: []domain.ExperimentLine{{ConsumableTypeID: "flask", QuantityPerGroup: 2}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	require.Equal(t, "Titration", e.Name)
	require.Equal(t, receivedAt, e.CreatedAt)

	e.Lines = append(e.Lines, domain.ExperimentLine{ConsumableTypeID: "ethanol", QuantityPerGroup: 25})
	_, err = svc.DefineExperiment(ctx, e)
	require.NoError(t, err)
	require.Len(t, s.Snapshot().Experiments, 1)

	got, err := svc.GetExperiment(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	require.Equal(t, receivedAt, got.CreatedAt)

	all, err := svc.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = svc.GetExperiment(ctx, "ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.CodeExperimentNotFound, appErr.Code)
}
