// Package main seeds the consumable catalog and opening stock from a YAML
// file.
//
// Seeding is idempotent: types are upserted and opening stock is only
// received for types that hold no stock yet.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"kalium.io/kalium/internal/config"
	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/infrastructure"
	"kalium.io/kalium/internal/pkg/logger"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/store/memory"
	"kalium.io/kalium/internal/store/sqlite"
	"kalium.io/kalium/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	catalogPath := flag.String("catalog", "catalog.yaml", "path to the YAML consumable catalog")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	f, err := os.Open(*catalogPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	catalog, err := parseCatalog(f)
	if err != nil {
		return fmt.Errorf("parse catalog %s: %w", *catalogPath, err)
	}

	ctx := context.Background()
	s, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("Starting catalog seeding...", zap.Int("types", len(catalog.Types)))
	if err := seedCatalog(ctx, usecase.NewService(usecase.Deps{Store: s}), catalog); err != nil {
		return err
	}
	logger.Info("Catalog seeding completed successfully")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("init database: %w", err)
		}
		// Schema migrations are expected to run before seeding.
		return db.Store, db.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		logger.Warn("Seeding the in-memory store has no lasting effect")
		return memory.New(), func() {}, nil
	}
}

// Catalog is the seed file layout.
type Catalog struct {
	Types []CatalogType `yaml:"types"`
}

// CatalogType is one consumable type with its opening stock.
type CatalogType struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	Unit         string `yaml:"unit"`
	IsChemical   bool   `yaml:"is_chemical"`
	MinimumStock int    `yaml:"minimum_stock"`

	// InitialUnits is received for discrete types.
	InitialUnits int `yaml:"initial_units"`
	// InitialQuantity is received as one batch for chemical types.
	InitialQuantity string `yaml:"initial_quantity"`
}

func parseCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, err
	}

	seen := make(map[string]bool, len(c.Types))
	for i, t := range c.Types {
		switch {
		case t.ID == "":
			return Catalog{}, fmt.Errorf("types[%d]: id is required", i)
		case seen[t.ID]:
			return Catalog{}, fmt.Errorf("types[%d]: duplicate id %s", i, t.ID)
		case t.IsChemical && t.InitialUnits != 0:
			return Catalog{}, fmt.Errorf("type %s: chemical types take initial_quantity", t.ID)
		case !t.IsChemical && t.InitialQuantity != "":
			return Catalog{}, fmt.Errorf("type %s: discrete types take initial_units", t.ID)
		}
		if t.InitialQuantity != "" {
			if _, err := decimal.NewFromString(t.InitialQuantity); err != nil {
				return Catalog{}, fmt.Errorf("type %s: initial_quantity: %w", t.ID, err)
			}
		}
		seen[t.ID] = true
	}
	return c, nil
}

func seedCatalog(ctx context.Context, svc *usecase.Service, c Catalog) error {
	for _, t := range c.Types {
		ct, err := svc.RegisterType(ctx, domain.ConsumableType{
			ID:           t.ID,
			Name:         t.Name,
			Category:     t.Category,
			Unit:         t.Unit,
			IsChemical:   t.IsChemical,
			MinimumStock: t.MinimumStock,
		})
		if err != nil {
			return fmt.Errorf("register type %s: %w", t.ID, err)
		}

		level, err := svc.StockLevel(ctx, ct.ID)
		if err != nil {
			return fmt.Errorf("stock level %s: %w", ct.ID, err)
		}
		if hasStock(level) {
			logger.Info("Type already stocked, skipping opening stock", zap.String("consumable_type_id", ct.ID))
			continue
		}

		switch {
		case ct.IsChemical && t.InitialQuantity != "":
			qty, _ := decimal.NewFromString(t.InitialQuantity)
			if _, err := svc.ReceiveBatch(ctx, ct.ID, qty); err != nil {
				return fmt.Errorf("receive batch %s: %w", ct.ID, err)
			}
		case !ct.IsChemical && t.InitialUnits > 0:
			if _, err := svc.ReceiveUnits(ctx, ct.ID, t.InitialUnits); err != nil {
				return fmt.Errorf("receive units %s: %w", ct.ID, err)
			}
		}
		logger.Info("Seeded consumable type", zap.String("consumable_type_id", ct.ID))
	}
	return nil
}

func hasStock(level domain.StockLevel) bool {
	if level.IsChemical {
		return level.Available.IsPositive()
	}
	for _, n := range level.UnitCounts {
		if n > 0 {
			return true
		}
	}
	return false
}
