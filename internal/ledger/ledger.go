// Package ledger answers stock availability questions.
//
// Discrete types count AVAILABLE supply units; chemical types sum the
// quantities of their batches. Chemical stock is never decremented by
// reservations or deliveries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"kalium.io/kalium/internal/domain"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/store"
)

// Ledger is the read-only stock query service.
type Ledger struct {
	store store.Store
}

// New creates a Ledger.
func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// AvailableUnitCount returns how many units of a discrete type are AVAILABLE.
func (l *Ledger) AvailableUnitCount(ctx context.Context, typeID string) (int, error) {
	var n int
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := getType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if ct.IsChemical {
			return apperrors.ErrValidationf("consumable_type_id", "consumable type is a chemical")
		}
		counts, err := tx.CountUnitsByState(ctx, typeID)
		if err != nil {
			return err
		}
		n = counts[domain.UnitAvailable]
		return nil
	})
	return n, err
}

// AvailableChemicalQuantity returns the summed batch quantity of a chemical type.
func (l *Ledger) AvailableChemicalQuantity(ctx context.Context, typeID string) (decimal.Decimal, error) {
	qty := decimal.Zero
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := getType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if !ct.IsChemical {
			return apperrors.ErrValidationf("consumable_type_id", "consumable type is not a chemical")
		}
		qty, err = chemicalQuantity(ctx, tx, typeID)
		return err
	})
	return qty, err
}

// StockLevel returns the availability of one type.
func (l *Ledger) StockLevel(ctx context.Context, typeID string) (domain.StockLevel, error) {
	var level domain.StockLevel
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		ct, err := getType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		level, err = Level(ctx, tx, ct)
		return err
	})
	return level, err
}

// StockLevels returns the availability of every type, ordered by type ID.
func (l *Ledger) StockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	var levels []domain.StockLevel
	err := l.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		types, err := tx.ListConsumableTypes(ctx)
		if err != nil {
			return err
		}
		levels = make([]domain.StockLevel, 0, len(types))
		for _, ct := range types {
			level, err := Level(ctx, tx, ct)
			if err != nil {
				return err
			}
			levels = append(levels, level)
		}
		return nil
	})
	return levels, err
}

// Level computes the stock level of ct inside an open transaction.
func Level(ctx context.Context, tx store.Tx, ct domain.ConsumableType) (domain.StockLevel, error) {
	level := domain.StockLevel{
		ConsumableTypeID: ct.ID,
		IsChemical:       ct.IsChemical,
		MinimumStock:     ct.MinimumStock,
	}
	if ct.IsChemical {
		qty, err := chemicalQuantity(ctx, tx, ct.ID)
		if err != nil {
			return level, err
		}
		level.Available = qty
	} else {
		counts, err := tx.CountUnitsByState(ctx, ct.ID)
		if err != nil {
			return level, fmt.Errorf("count units of %s: %w", ct.ID, err)
		}
		level.UnitCounts = counts
		level.Available = decimal.NewFromInt(int64(counts[domain.UnitAvailable]))
	}
	level.Low = IsLow(level.Available, ct.MinimumStock)
	return level, nil
}

// IsLow reports whether available is under a positive minimum.
func IsLow(available decimal.Decimal, minimum int) bool {
	return minimum > 0 && available.LessThan(decimal.NewFromInt(int64(minimum)))
}

// LowStockEvents returns a STOCK_LOW event for every type in typeIDs whose
// level is under its minimum. Call it after the transaction's unit writes.
func LowStockEvents(ctx context.Context, tx store.Tx, typeIDs []string, now time.Time) ([]domain.DomainEvent, error) {
	var events []domain.DomainEvent
	for _, id := range typeIDs {
		ct, err := getType(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		level, err := Level(ctx, tx, ct)
		if err != nil {
			return nil, err
		}
		if !level.Low {
			continue
		}
		ev, err := domain.NewEvent(domain.EventStockLow, domain.AggregateConsumableType, ct.ID, domain.StockPayload{
			ConsumableTypeID: ct.ID,
			Name:             ct.Name,
			Available:        level.Available.String(),
			MinimumStock:     ct.MinimumStock,
		}, now)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func chemicalQuantity(ctx context.Context, tx store.Tx, typeID string) (decimal.Decimal, error) {
	batches, err := tx.ListChemicalBatches(ctx, typeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list batches of %s: %w", typeID, err)
	}
	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.Quantity)
	}
	return sum, nil
}

func getType(ctx context.Context, tx store.Tx, id string) (domain.ConsumableType, error) {
	ct, err := tx.GetConsumableType(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ct, apperrors.ErrEntityNotFoundf(apperrors.CodeConsumableTypeNotFound, "consumable type", id)
	}
	return ct, err
}
