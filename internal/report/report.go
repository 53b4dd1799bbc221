// Package report builds the inventory report and exports it to blob storage.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kalium.io/kalium/internal/blob"
	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/ledger"
	apperrors "kalium.io/kalium/internal/pkg/errors"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
)

// Kind restricts the report to one tracking mode.
type Kind string

// Report kinds.
const (
	KindAll      Kind = ""
	KindChemical Kind = "chemical"
	KindDiscrete Kind = "discrete"
)

// Filter selects the rows of a report. The intake window applies only when
// both From and To are set; both dates are inclusive.
type Filter struct {
	Kind     Kind       `json:"kind,omitempty"`
	Category string     `json:"category,omitempty"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
}

// Row is one consumable type in the report.
type Row struct {
	ConsumableTypeID string          `json:"consumable_type_id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Unit             string          `json:"unit"`
	IsChemical       bool            `json:"is_chemical"`
	Received         decimal.Decimal `json:"received"`
	Available        decimal.Decimal `json:"available"`
	MinimumStock     int             `json:"minimum_stock"`
	Low              bool            `json:"low"`
	LastIntake       *time.Time      `json:"last_intake,omitempty"`
}

// Inventory is a generated report.
type Inventory struct {
	GeneratedAt time.Time `json:"generated_at"`
	Filter      Filter    `json:"filter"`
	Rows        []Row     `json:"rows"`
}

// Generator reads the inventory.
type Generator struct {
	store store.Store
	clock domain.Clock
}

// NewGenerator creates a Generator.
func NewGenerator(s store.Store, clock domain.Clock) *Generator {
	return &Generator{store: s, clock: clock}
}

// Generate builds the report for f. Received counts the intake inside the
// window; Available and Low always reflect current stock.
func (g *Generator) Generate(ctx context.Context, f Filter) (Inventory, error) {
	switch f.Kind {
	case KindAll, KindChemical, KindDiscrete:
	default:
		return Inventory{}, apperrors.ErrValidationf("kind", "kind must be chemical or discrete")
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return Inventory{}, apperrors.ErrValidationf("to", "to must not be before from")
	}

	inv := Inventory{GeneratedAt: g.clock.Now(), Filter: f, Rows: []Row{}}
	err := g.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		types, err := tx.ListConsumableTypes(ctx)
		if err != nil {
			return err
		}
		for _, ct := range types {
			if !f.matches(ct) {
				continue
			}
			row, err := buildRow(ctx, tx, ct, f)
			if err != nil {
				return err
			}
			inv.Rows = append(inv.Rows, row)
		}
		return nil
	})
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

func (f Filter) matches(ct domain.ConsumableType) bool {
	switch {
	case f.Kind == KindChemical && !ct.IsChemical:
		return false
	case f.Kind == KindDiscrete && ct.IsChemical:
		return false
	case f.Category != "" && f.Category != ct.Category:
		return false
	}
	return true
}

func (f Filter) inWindow(t time.Time) bool {
	if f.From == nil || f.To == nil {
		return true
	}
	day := t.Truncate(24 * time.Hour)
	return !day.Before(f.From.Truncate(24*time.Hour)) && !day.After(f.To.Truncate(24*time.Hour))
}

func buildRow(ctx context.Context, tx store.Tx, ct domain.ConsumableType, f Filter) (Row, error) {
	level, err := ledger.Level(ctx, tx, ct)
	if err != nil {
		return Row{}, err
	}
	row := Row{
		ConsumableTypeID: ct.ID,
		Name:             ct.Name,
		Category:         ct.Category,
		Unit:             ct.Unit,
		IsChemical:       ct.IsChemical,
		Received:         decimal.Zero,
		Available:        level.Available,
		MinimumStock:     ct.MinimumStock,
		Low:              level.Low,
	}

	var last time.Time
	if ct.IsChemical {
		batches, err := tx.ListChemicalBatches(ctx, ct.ID)
		if err != nil {
			return Row{}, fmt.Errorf("list batches of %s: %w", ct.ID, err)
		}
		for _, b := range batches {
			if !f.inWindow(b.ReceivedOn) {
				continue
			}
			row.Received = row.Received.Add(b.Quantity)
			if b.ReceivedOn.After(last) {
				last = b.ReceivedOn
			}
		}
	} else {
		units, err := tx.ListSupplyUnits(ctx, store.UnitFilter{ConsumableTypeID: ct.ID})
		if err != nil {
			return Row{}, fmt.Errorf("list units of %s: %w", ct.ID, err)
		}
		n := 0
		for _, u := range units {
			if !f.inWindow(u.ReceivedAt) {
				continue
			}
			n++
			if u.ReceivedAt.After(last) {
				last = u.ReceivedAt
			}
		}
		row.Received = decimal.NewFromInt(int64(n))
	}
	if !last.IsZero() {
		row.LastIntake = &last
	}
	return row, nil
}

// Exporter writes generated reports to a blob store as JSON documents.
type Exporter struct {
	gen    *Generator
	blobs  blob.Store
	prefix string
}

// NewExporter creates an Exporter writing under prefix.
func NewExporter(gen *Generator, blobs blob.Store, prefix string) *Exporter {
	return &Exporter{gen: gen, blobs: blobs, prefix: prefix}
}

// Export generates the unfiltered report and stores it under a key derived
// from the generation time.
func (e *Exporter) Export(ctx context.Context) (blob.Info, error) {
	inv, err := e.gen.Generate(ctx, Filter{})
	if err != nil {
		return blob.Info{}, fmt.Errorf("generate inventory report: %w", err)
	}
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode inventory report: %w", err)
	}
	key := e.prefix + "inventory-" + inv.GeneratedAt.UTC().Format("20060102T150405Z") + ".json"
	info, err := e.blobs.Put(ctx, key, bytes.NewReader(data), "application/json")
	if err != nil {
		return blob.Info{}, fmt.Errorf("store inventory report: %w", err)
	}
	logger.Info("Inventory report exported",
		zap.String("key", info.Key),
		zap.Int("rows", len(inv.Rows)),
		zap.Int64("bytes", info.Size),
	)
	return info, nil
}
