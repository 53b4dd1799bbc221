// Package intake registers consumable types and receives stock.
package intake

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// Service writes reference data and new stock.
type Service struct {
	store store.Store
	clock domain.Clock
}

// New creates an intake Service.
func New(s store.Store, clock domain.Clock) *Service {
	return &Service{store: s, clock: clock}
}

// RegisterType creates or updates a consumable type. An empty ID is generated.
// Changing IsChemical of a type that already holds stock is rejected.
func (s *Service) RegisterType(ctx context.Context, ct domain.ConsumableType) (domain.ConsumableType, error) {
	ct.Name = strings.TrimSpace(ct.Name)
	if ct.Name == "" {
		return ct, apperrors.ErrValidationf("name", "name is required")
	}
	if ct.MinimumStock < 0 {
		return ct, apperrors.ErrValidationf("minimum_stock", "minimum stock must not be negative")
	}
	if ct.ID == "" {
		ct.ID = domain.NewID()
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetConsumableType(ctx, ct.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case existing.IsChemical != ct.IsChemical:
			held, err := holdsStock(ctx, tx, existing)
			if err != nil {
				return err
			}
			if held {
				return apperrors.ErrValidationf("is_chemical", "cannot change tracking mode of a type with stock")
			}
		}
		return tx.SaveConsumableType(ctx, ct)
	})
	if err != nil {
		return ct, err
	}
	logger.Info("Consumable type registered", zap.String("consumable_type_id", ct.ID), zap.String("name", ct.Name))
	return ct, nil
}

// ReceiveUnits adds count AVAILABLE units of a discrete type.
func (s *Service) ReceiveUnits(ctx context.Context, typeID string, count int) ([]domain.SupplyUnit, error) {
	if count <= 0 {
		return nil, apperrors.ErrValidationf("count", "count must be positive")
	}
	now := s.clock.Now()
	units := make([]domain.SupplyUnit, 0, count)

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := getType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if ct.IsChemical {
			return apperrors.ErrValidationf("consumable_type_id", "chemical types are received as batches")
		}
		for range count {
			u := domain.SupplyUnit{
				ID:               domain.NewID(),
				ConsumableTypeID: typeID,
				State:            domain.UnitAvailable,
				ReceivedAt:       now,
			}
			if err := tx.InsertSupplyUnit(ctx, u); err != nil {
				return err
			}
			units = append(units, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Supply units received", zap.String("consumable_type_id", typeID), zap.Int("count", count))
	return units, nil
}

// ReceiveBatch records a received quantity of a chemical type.
func (s *Service) ReceiveBatch(ctx context.Context, typeID string, quantity decimal.Decimal) (domain.ChemicalBatch, error) {
	if !quantity.IsPositive() {
		return domain.ChemicalBatch{}, apperrors.ErrValidationf("quantity", "quantity must be positive")
	}
	batch := domain.ChemicalBatch{
		ID:               domain.NewID(),
		ConsumableTypeID: typeID,
		Quantity:         quantity,
		ReceivedOn:       s.clock.Now(),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := getType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if !ct.IsChemical {
			return apperrors.ErrValidationf("consumable_type_id", "discrete types are received as units")
		}
		return tx.InsertChemicalBatch(ctx, batch)
	})
	if err != nil {
		return domain.ChemicalBatch{}, err
	}
	logger.Info("Chemical batch received",
		zap.String("consumable_type_id", typeID),
		zap.String("quantity", quantity.String()),
	)
	return batch, nil
}

// DefineExperiment creates or replaces an experiment template. An empty ID is
// generated. Every line must name an existing consumable type once with a
// positive per-group quantity.
func (s *Service) DefineExperiment(ctx context.Context, e domain.Experiment) (domain.Experiment, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return e, apperrors.ErrValidationf("name", "name is required")
	}
	if len(e.Lines) == 0 {
		return e, apperrors.ErrValidationf("lines", "at least one line is required")
	}
	seen := make(map[string]bool, len(e.Lines))
	for _, l := range e.Lines {
		if l.QuantityPerGroup <= 0 {
			return e, apperrors.ErrValidationf("quantity_per_group", "quantity per group must be positive")
		}
		if seen[l.ConsumableTypeID] {
			return e, apperrors.ErrValidationf("consumable_type_id", "consumable type "+l.ConsumableTypeID+" listed twice")
		}
		seen[l.ConsumableTypeID] = true
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	now := s.clock.Now()

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, l := range e.Lines {
			if _, err := getType(ctx, tx, l.ConsumableTypeID); err != nil {
				return err
			}
		}
		existing, err := tx.GetExperiment(ctx, e.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			e.CreatedAt = now
		case err != nil:
			return err
		default:
			e.CreatedAt = existing.CreatedAt
		}
		e.UpdatedAt = now
		return tx.SaveExperiment(ctx, e)
	})
	if err != nil {
		return e, err
	}
	logger.Info("Experiment defined",
		zap.String("experiment_id", e.ID),
		zap.String("name", e.Name),
		zap.Int("lines", len(e.Lines)),
	)
	return e, nil
}

// GetExperiment loads one experiment template.
func (s *Service) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	var e domain.Experiment
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		e, err = tx.GetExperiment(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.ErrEntityNotFoundf(apperrors.CodeExperimentNotFound, "experiment", id)
		}
		return err
	})
	return e, err
}

// ListExperiments returns every experiment template ordered by ID.
func (s *Service) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	var out []domain.Experiment
	err := s.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListExperiments(ctx)
		return err
	})
	return out, err
}

func holdsStock(ctx context.Context, tx store.Tx, ct domain.ConsumableType) (bool, error) {
	if ct.IsChemical {
		batches, err := tx.ListChemicalBatches(ctx, ct.ID)
		return len(batches) > 0, err
	}
	units, err := tx.ListSupplyUnits(ctx, store.UnitFilter{ConsumableTypeID: ct.ID, Limit: 1})
	return len(units) > 0, err
}

func getType(ctx context.Context, tx store.Tx, id string) (domain.ConsumableType, error) {
	ct, err := tx.GetConsumableType(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ct, apperrors.ErrEntityNotFoundf(apperrors.CodeConsumableTypeNotFound, "consumable type", id)
	}
	return ct, err
}
