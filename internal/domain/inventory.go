// Package domain holds the entities, lifecycle states and events of the lab
// consumables inventory.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumableType is a catalog entry. Discrete types are tracked per unit,
// chemical types as batch quantities.
type ConsumableType struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Category     string `json:"category"`
	Unit         string `json:"unit"`
	IsChemical   bool   `json:"is_chemical"`
	MinimumStock int    `json:"minimum_stock"`
}

// SupplyUnit is one physical, individually tracked item.
type SupplyUnit struct {
	ID               string    `json:"id"`
	ConsumableTypeID string    `json:"consumable_type_id"`
	State            UnitState `json:"state"`
	ReceivedAt       time.Time `json:"received_at"`
}

// ChemicalBatch is a received quantity of a chemical type.
type ChemicalBatch struct {
	ID               string          `json:"id"`
	ConsumableTypeID string          `json:"consumable_type_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReceivedOn       time.Time       `json:"received_on"`
}

// StockLevel is the availability of one consumable type.
type StockLevel struct {
	ConsumableTypeID string            `json:"consumable_type_id"`
	IsChemical       bool              `json:"is_chemical"`
	Available        decimal.Decimal   `json:"available"`
	MinimumStock     int               `json:"minimum_stock"`
	Low              bool              `json:"low"`
	UnitCounts       map[UnitState]int `json:"unit_counts,omitempty"`
}
