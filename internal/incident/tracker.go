// Package incident tracks damage and loss reports to resolution.
//
// Transitions: REPORTED -> IN_REVIEW -> RESOLVED, and CANCELLED from
// REPORTED or IN_REVIEW. RESOLVED and CANCELLED are terminal.
package incident

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// NewIncident is the input of Report.
type NewIncident struct {
	Description string
	ReturnID    string
	UnitID      string
	RecipientID string
}

// Tracker runs incident operations.
type Tracker struct {
	store store.Store
	clock domain.Clock
}

// New creates a Tracker.
func New(s store.Store, clock domain.Clock) *Tracker {
	return &Tracker{store: s, clock: clock}
}

// Raise stores a REPORTED incident inside an open transaction and returns its
// INCIDENT_REPORTED event. The return workflow calls it for damaged and
// missing units.
func Raise(ctx context.Context, tx store.Tx, in NewIncident, now time.Time) (domain.Incident, domain.DomainEvent, error) {
	inc := domain.Incident{
		ID:          domain.NewID(),
		Description: in.Description,
		ReturnID:    in.ReturnID,
		UnitID:      in.UnitID,
		RecipientID: in.RecipientID,
		State:       domain.IncidentReported,
		ReportedAt:  now,
	}
	if err := tx.SaveIncident(ctx, inc); err != nil {
		return domain.Incident{}, domain.DomainEvent{}, err
	}
	ev, err := incidentEvent(domain.EventIncidentReported, inc, now)
	if err != nil {
		return domain.Incident{}, domain.DomainEvent{}, err
	}
	return inc, ev, nil
}

// Report creates an incident by hand. When ReturnID is set the return must
// exist and its recipient is used if none is given.
func (t *Tracker) Report(ctx context.Context, in NewIncident) (domain.Incident, []domain.DomainEvent, error) {
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return domain.Incident{}, nil, apperrors.ErrValidationf("description", "description is required")
	}
	now := t.clock.Now()
	var (
		inc    domain.Incident
		events []domain.DomainEvent
	)
	err := t.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if in.ReturnID != "" {
			r, err := tx.GetReturn(ctx, in.ReturnID)
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.ErrEntityNotFoundf(apperrors.CodeReturnNotFound, "return", in.ReturnID)
			}
			if err != nil {
				return err
			}
			if in.RecipientID == "" {
				in.RecipientID = r.RecipientID
			}
		}
		if in.UnitID != "" {
			if _, err := tx.GetSupplyUnit(ctx, in.UnitID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperrors.ErrEntityNotFoundf(apperrors.CodeSupplyUnitNotFound, "supply unit", in.UnitID)
				}
				return err
			}
		}
		var (
			ev  domain.DomainEvent
			err error
		)
		inc, ev, err = Raise(ctx, tx, in, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Incident{}, nil, err
	}
	logger.Info("Incident reported",
		zap.String("incident_id", inc.ID),
		zap.String("return_id", inc.ReturnID),
	)
	return inc, events, nil
}

// PutInReview moves a REPORTED incident to IN_REVIEW.
func (t *Tracker) PutInReview(ctx context.Context, id string) (domain.Incident, []domain.DomainEvent, error) {
	return t.ChangeState(ctx, id, domain.IncidentInReview)
}

// Resolve moves an IN_REVIEW incident to RESOLVED and stamps ResolvedAt.
func (t *Tracker) Resolve(ctx context.Context, id string) (domain.Incident, []domain.DomainEvent, error) {
	return t.ChangeState(ctx, id, domain.IncidentResolved)
}

// Cancel cancels a REPORTED or IN_REVIEW incident.
func (t *Tracker) Cancel(ctx context.Context, id string) (domain.Incident, []domain.DomainEvent, error) {
	return t.ChangeState(ctx, id, domain.IncidentCancelled)
}

var stateEvents = map[domain.IncidentState]domain.EventType{
	domain.IncidentInReview:  domain.EventIncidentInReview,
	domain.IncidentResolved:  domain.EventIncidentResolved,
	domain.IncidentCancelled: domain.EventIncidentCancelled,
}

// ChangeState moves an incident to target if the transition table allows it.
func (t *Tracker) ChangeState(ctx context.Context, id string, target domain.IncidentState) (domain.Incident, []domain.DomainEvent, error) {
	if !target.Valid() {
		return domain.Incident{}, nil, apperrors.ErrValidationf("state", "unknown incident state "+string(target))
	}
	now := t.clock.Now()
	var (
		inc    domain.Incident
		events []domain.DomainEvent
	)
	err := t.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		inc, err = getIncident(ctx, tx, id)
		if err != nil {
			return err
		}
		if !inc.State.CanTransitionTo(target) {
			return apperrors.ErrInvalidStateTransitionf("incident", inc.ID, inc.State, target)
		}
		inc.State = target
		if target == domain.IncidentResolved {
			inc.ResolvedAt = &now
		}
		if err := tx.SaveIncident(ctx, inc); err != nil {
			return err
		}
		ev, err := incidentEvent(stateEvents[target], inc, now)
		if err != nil {
			return err
		}
		events = []domain.DomainEvent{ev}
		return nil
	})
	if err != nil {
		return domain.Incident{}, nil, err
	}
	logger.Info("Incident state changed",
		zap.String("incident_id", inc.ID),
		zap.String("state", inc.State.String()),
	)
	return inc, events, nil
}

// Get returns one incident.
func (t *Tracker) Get(ctx context.Context, id string) (domain.Incident, error) {
	var inc domain.Incident
	err := t.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		inc, err = getIncident(ctx, tx, id)
		return err
	})
	return inc, err
}

// List returns incidents matching the filter.
func (t *Tracker) List(ctx context.Context, f store.IncidentFilter) ([]domain.Incident, error) {
	if f.State != "" && !f.State.Valid() {
		return nil, apperrors.ErrValidationf("state", "unknown incident state "+string(f.State))
	}
	var out []domain.Incident
	err := t.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListIncidents(ctx, f)
		return err
	})
	return out, err
}

func getIncident(ctx context.Context, tx store.Tx, id string) (domain.Incident, error) {
	inc, err := tx.GetIncident(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return inc, apperrors.ErrEntityNotFoundf(apperrors.CodeIncidentNotFound, "incident", id)
	}
	return inc, err
}

func incidentEvent(t domain.EventType, inc domain.Incident, now time.Time) (domain.DomainEvent, error) {
	return domain.NewEvent(t, domain.AggregateIncident, inc.ID, domain.IncidentPayload{
		IncidentID:  inc.ID,
		Description: inc.Description,
		ReturnID:    inc.ReturnID,
		UnitID:      inc.UnitID,
		RecipientID: inc.RecipientID,
		State:       inc.State,
	}, now)
}
