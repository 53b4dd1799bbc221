package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Entity names used by the persisted state catalog.
const (
	EntitySupplyUnit = "supply_unit"
	EntityOrder      = "order"
	EntityLineItem   = "order_line_item"
	EntityDelivery   = "delivery"
	EntityReturn     = "return"
	EntityCondition  = "return_condition"
	EntityIncident   = "incident"
)

// StateCatalog returns the state codes every entity needs to exist in the
// store's reference table.
func StateCatalog() map[string][]string {
	return map[string][]string{
		EntitySupplyUnit: codes(UnitStates),
		EntityOrder:      codes(OrderStates),
		EntityLineItem:   codes(LineItemStates),
		EntityDelivery:   codes(DeliveryStates),
		EntityReturn:     codes(ReturnStates),
		EntityCondition:  codes(Conditions),
		EntityIncident:   codes(IncidentStates),
	}
}

// ValidateStateCatalog compares persisted state codes with StateCatalog and
// reports every missing code. Startup must abort on error.
func ValidateStateCatalog(present map[string][]string) error {
	var missing []string
	for entity, want := range StateCatalog() {
		have := present[entity]
		for _, code := range want {
			if !slices.Contains(have, code) {
				missing = append(missing, entity+"."+code)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("state catalog is missing %d codes: %s", len(missing), strings.Join(missing, ", "))
}

func codes[S ~string](states []S) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
