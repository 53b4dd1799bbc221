package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of lifecycle event.
type EventType string

const (
	// Order events
	EventOrderCreated       EventType = "ORDER_CREATED"
	EventOrderApproved      EventType = "ORDER_APPROVED"
	EventOrderInPreparation EventType = "ORDER_IN_PREPARATION"
	EventOrderRejected      EventType = "ORDER_REJECTED"
	EventOrderCancelled     EventType = "ORDER_CANCELLED"

	// Delivery events
	EventDeliveriesGenerated EventType = "DELIVERIES_GENERATED"
	EventDeliveryAssigned    EventType = "DELIVERY_ASSIGNED"

	// Return events
	EventReturnOpened   EventType = "RETURN_OPENED"
	EventReturnApproved EventType = "RETURN_APPROVED"
	EventReturnRejected EventType = "RETURN_REJECTED"

	// Incident events
	EventIncidentReported  EventType = "INCIDENT_REPORTED"
	EventIncidentInReview  EventType = "INCIDENT_IN_REVIEW"
	EventIncidentResolved  EventType = "INCIDENT_RESOLVED"
	EventIncidentCancelled EventType = "INCIDENT_CANCELLED"

	// Stock events
	EventStockLow EventType = "STOCK_LOW"
)

// Aggregate types carried by events.
const (
	AggregateOrder          = "order"
	AggregateDelivery       = "delivery"
	AggregateReturn         = "return"
	AggregateIncident       = "incident"
	AggregateConsumableType = "consumable_type"
)

// DomainEvent is an immutable record of a committed lifecycle transition.
// Engines return events; they are dispatched only after the transaction
// that produced them commits.
type DomainEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
}

// Payload is implemented by every event payload.
type Payload interface {
	ToJSON() ([]byte, error)
}

// NewEvent builds an event with a time-ordered ID.
func NewEvent(eventType EventType, aggregateType, aggregateID string, payload Payload, now time.Time) (DomainEvent, error) {
	data, err := payload.ToJSON()
	if err != nil {
		return DomainEvent{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return DomainEvent{}, fmt.Errorf("generate event id: %w", err)
	}
	return DomainEvent{
		EventID:       id.String(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       data,
		CreatedAt:     now,
	}, nil
}

// Decode unmarshals the payload into v.
func (e DomainEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// OrderPayload is the payload for order events.
type OrderPayload struct {
	OrderID     string     `json:"order_id"`
	RequesterID string     `json:"requester_id"`
	State       OrderState `json:"state"`
	Reason      string     `json:"reason,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p OrderPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// DeliveryPayload is the payload for delivery events.
type DeliveryPayload struct {
	OrderID     string   `json:"order_id"`
	DeliveryIDs []string `json:"delivery_ids"`
	GroupNumber int      `json:"group_number,omitempty"`
	RecipientID string   `json:"recipient_id,omitempty"`
	RequesterID string   `json:"requester_id,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p DeliveryPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ReturnPayload is the payload for return events.
type ReturnPayload struct {
	ReturnID    string `json:"return_id"`
	DeliveryID  string `json:"delivery_id"`
	RecipientID string `json:"recipient_id"`
	Reason      string `json:"reason,omitempty"`
}

// ToJSON converts payload to JSON bytes.
func (p ReturnPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// IncidentPayload is the payload for incident events.
type IncidentPayload struct {
	IncidentID  string        `json:"incident_id"`
	Description string        `json:"description"`
	ReturnID    string        `json:"return_id,omitempty"`
	UnitID      string        `json:"unit_id,omitempty"`
	RecipientID string        `json:"recipient_id,omitempty"`
	State       IncidentState `json:"state"`
}

// ToJSON converts payload to JSON bytes.
func (p IncidentPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// StockPayload is the payload for low-stock events.
type StockPayload struct {
	ConsumableTypeID string `json:"consumable_type_id"`
	Name             string `json:"name"`
	Available        string `json:"available"`
	MinimumStock     int    `json:"minimum_stock"`
}

// ToJSON converts payload to JSON bytes.
func (p StockPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}
