package incident

import (
	"context"
	"testing"
	"time"

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

func report(t *testing.T, tr *Tracker) domain.Incident {
	t.Helper()
	inc, events, err := tr.Report(context.Background(), NewIncident{Description: "broken thermometer", RecipientID: "student-1"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventIncidentReported, events[0].EventType)
	return inc
}

func TestReport(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	tr := New(lab.Store, lab.Clock)
	ctx := context.Background()

	_, _, err := tr.Report(ctx, NewIncident{Description: "   "})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = tr.Report(ctx, NewIncident{Description: "lost", ReturnID: "missing"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, _, err = tr.Report(ctx, NewIncident{Description: "lost", UnitID: "missing"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	inc := report(t, tr)
	require.Equal(t, domain.IncidentReported, inc.State)
	require.Equal(t, testutil.Epoch, inc.ReportedAt)
	require.Nil(t, inc.ResolvedAt)
}

func TestReport_InheritsReturnRecipient(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	tr := New(lab.Store, lab.Clock)
	ctx := context.Background()
	require.NoError(t, lab.Store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SaveReturn(ctx, domain.Return{ID: "return-1", RecipientID: "student-9", State: domain.ReturnPending})
	}))

	inc, _, err := tr.Report(ctx, NewIncident{Description: "spill", ReturnID: "return-1"})
	require.NoError(t, err)
	require.Equal(t, "student-9", inc.RecipientID)
}

func TestChangeState_TransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    []domain.IncidentState
		target  domain.IncidentState
		allowed bool
	}{
		{"reported to in review", nil, domain.IncidentInReview, true},
		{"reported to resolved skips review", nil, domain.IncidentResolved, false},
		{"reported to cancelled", nil, domain.IncidentCancelled, true},
		{"in review to resolved", []domain.IncidentState{domain.IncidentInReview}, domain.IncidentResolved, true},
		{"in review to cancelled", []domain.IncidentState{domain.IncidentInReview}, domain.IncidentCancelled, true},
		{"in review back to reported", []domain.IncidentState{domain.IncidentInReview}, domain.IncidentReported, false},
		{"resolved is terminal", []domain.IncidentState{domain.IncidentInReview, domain.IncidentResolved}, domain.IncidentCancelled, false},
		{"cancelled is terminal", []domain.IncidentState{domain.IncidentCancelled}, domain.IncidentInReview, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lab := testutil.NewLab(t)
			tr := New(lab.Store, lab.Clock)
			ctx := context.Background()
			inc := report(t, tr)
			for _, s := range tt.path {
				_, _, err := tr.ChangeState(ctx, inc.ID, s)
				require.NoError(t, err)
			}
			before, err := tr.Get(ctx, inc.ID)
			require.NoError(t, err)

			got, events, err := tr.ChangeState(ctx, inc.ID, tt.target)
			if !tt.allowed {
				require.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
				after, err := tr.Get(ctx, inc.ID)
				require.NoError(t, err)
				require.Equal(t, before, after)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.target, got.State)
			require.Len(t, events, 1)
		})
	}
}

func TestResolve_StampsResolvedAt(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	tr := New(lab.Store, lab.Clock)
	ctx := context.Background()
	inc := report(t, tr)

	_, events, err := tr.PutInReview(ctx, inc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EventIncidentInReview, events[0].EventType)

	lab.Clock.Advance(2 * time.Hour)
	resolved, events, err := tr.Resolve(ctx, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	require.Equal(t, testutil.Epoch.Add(2*time.Hour), *resolved.ResolvedAt)
	require.Equal(t, domain.EventIncidentResolved, events[0].EventType)

	var payload domain.IncidentPayload
	require.NoError(t, events[0].Decode(&payload))
	require.Equal(t, "student-1", payload.RecipientID)
}

func TestChangeState_UnknownTargetAndMissing(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	tr := New(lab.Store, lab.Clock)
	ctx := context.Background()

	_, _, err := tr.ChangeState(ctx, "any", domain.IncidentState("ARCHIVED"))
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = tr.Cancel(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList(t *testing.T) {
	t.Parallel()
	lab := testutil.NewLab(t)
	tr := New(lab.Store, lab.Clock)
	ctx := context.Background()
	first := report(t, tr)
	report(t, tr)
	_, _, err := tr.Cancel(ctx, first.ID)
	require.NoError(t, err)

	open, err := tr.List(ctx, store.IncidentFilter{State: domain.IncidentReported})
	require.NoError(t, err)
	require.Len(t, open, 1)

	all, err := tr.List(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = tr.List(ctx, store.IncidentFilter{State: "BOGUS"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
