// Package usecase is the application facade over the lifecycle engines.
//
// Every method runs one engine operation, records a span and operation
// metrics, and publishes the committed events. HTTP handlers, the seed
// command and the background jobs all go through Service.
package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"kalium.io/kalium/internal/delivery"
	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/incident"
	"kalium.io/kalium/internal/intake"
	"kalium.io/kalium/internal/ledger"
	"kalium.io/kalium/internal/observability"
	"kalium.io/kalium/internal/report"
	"kalium.io/kalium/internal/reservation"
	"kalium.io/kalium/internal/returns"
	"kalium.io/kalium/internal/store"
	"kalium.io/kalium/internal/sweeper"
)

// Deps are the Service collaborators. Tracer, Metrics and Publisher are
// optional.
type Deps struct {
	Store     store.Store
	Clock     domain.Clock
	Publisher *Publisher
	Tracer    trace.Tracer
	Metrics   *observability.Metrics
}

// Service exposes every lifecycle operation.
type Service struct {
	orders     *reservation.Engine
	deliveries *delivery.Splitter
	returns    *returns.Workflow
	incidents  *incident.Tracker
	ledger     *ledger.Ledger
	intake     *intake.Service
	reports    *report.Generator
	sweeper    *sweeper.Sweeper

	publisher *Publisher
	tracer    trace.Tracer
	metrics   *observability.Metrics
}

// NewService wires the engines over one store and clock.
func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = domain.SystemClock{}
	}
	if d.Tracer == nil {
		d.Tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	orders := reservation.New(d.Store, d.Clock)
	return &Service{
		orders:     orders,
		deliveries: delivery.New(d.Store, d.Clock),
		returns:    returns.New(d.Store, d.Clock),
		incidents:  incident.New(d.Store, d.Clock),
		ledger:     ledger.New(d.Store),
		intake:     intake.New(d.Store, d.Clock),
		reports:    report.NewGenerator(d.Store, d.Clock),
		sweeper:    sweeper.New(d.Store, orders, d.Clock, d.Publisher, reservation.ReasonExpired),
		publisher:  d.Publisher,
		tracer:     d.Tracer,
		metrics:    d.Metrics,
	}
}

// Reports returns the report generator, shared with the export job.
func (s *Service) Reports() *report.Generator { return s.reports }

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "usecase."+op, trace.WithAttributes(attrs...))
	started := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, started, err)
		}
	}
}

func (s *Service) publish(ctx context.Context, events []domain.DomainEvent) {
	if s.publisher != nil {
		s.publisher.Publish(ctx, events)
	}
}

func mutate[T any](s *Service, ctx context.Context, op string, fn func(ctx context.Context) (T, []domain.DomainEvent, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, end := s.start(ctx, op, attrs...)
	v, events, err := fn(ctx)
	end(err)
	if err != nil {
		return v, err
	}
	s.publish(ctx, events)
	return v, nil
}

func query[T any](s *Service, ctx context.Context, op string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, end := s.start(ctx, op, attrs...)
	v, err := fn(ctx)
	end(err)
	return v, err
}

func orderAttr(id string) attribute.KeyValue    { return attribute.String("kalium.order_id", id) }
func deliveryAttr(id string) attribute.KeyValue { return attribute.String("kalium.delivery_id", id) }
func returnAttr(id string) attribute.KeyValue   { return attribute.String("kalium.return_id", id) }
func incidentAttr(id string) attribute.KeyValue { return attribute.String("kalium.incident_id", id) }
func typeAttr(id string) attribute.KeyValue     { return attribute.String("kalium.consumable_type_id", id) }
func experimentAttr(id string) attribute.KeyValue {
	return attribute.String("kalium.experiment_id", id)
}

// --- Intake ---

// RegisterType creates or updates a consumable type.
func (s *Service) RegisterType(ctx context.Context, ct domain.ConsumableType) (domain.ConsumableType, error) {
	return query(s, ctx, "register_type", func(ctx context.Context) (domain.ConsumableType, error) {
		return s.intake.RegisterType(ctx, ct)
	}, typeAttr(ct.ID))
}

// ReceiveUnits adds units of a discrete type.
func (s *Service) ReceiveUnits(ctx context.Context, typeID string, count int) ([]domain.SupplyUnit, error) {
	return query(s, ctx, "receive_units", func(ctx context.Context) ([]domain.SupplyUnit, error) {
		return s.intake.ReceiveUnits(ctx, typeID, count)
	}, typeAttr(typeID))
}

// ReceiveBatch adds a batch of a chemical type.
func (s *Service) ReceiveBatch(ctx context.Context, typeID string, qty decimal.Decimal) (domain.ChemicalBatch, error) {
	return query(s, ctx, "receive_batch", func(ctx context.Context) (domain.ChemicalBatch, error) {
		return s.intake.ReceiveBatch(ctx, typeID, qty)
	}, typeAttr(typeID))
}

// DefineExperiment creates or replaces an experiment template.
func (s *Service) DefineExperiment(ctx context.Context, e domain.Experiment) (domain.Experiment, error) {
	return query(s, ctx, "define_experiment", func(ctx context.Context) (domain.Experiment, error) {
		return s.intake.DefineExperiment(ctx, e)
	}, experimentAttr(e.ID))
}

// GetExperiment loads an experiment template.
func (s *Service) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	return query(s, ctx, "get_experiment", func(ctx context.Context) (domain.Experiment, error) {
		return s.intake.GetExperiment(ctx, id)
	}, experimentAttr(id))
}

// ListExperiments lists experiment templates.
func (s *Service) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	return query(s, ctx, "list_experiments", func(ctx context.Context) ([]domain.Experiment, error) {
		return s.intake.ListExperiments(ctx)
	})
}

// --- Orders ---

// PlaceOrder creates an order in CREATED.
func (s *Service) PlaceOrder(ctx context.Context, req reservation.NewOrder) (domain.Order, error) {
	return mutate(s, ctx, "place_order", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.PlaceOrder(ctx, req)
	})
}

// PlaceOrderFromExperiment creates an order in CREATED from an experiment
// template.
func (s *Service) PlaceOrderFromExperiment(ctx context.Context, req reservation.ExperimentOrder) (domain.Order, error) {
	return mutate(s, ctx, "place_order_from_experiment", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.PlaceOrderFromExperiment(ctx, req)
	}, experimentAttr(req.ExperimentID))
}

// Approve reserves the order's discrete units.
func (s *Service) Approve(ctx context.Context, orderID string) (domain.Order, error) {
	return mutate(s, ctx, "approve_order", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.Approve(ctx, orderID)
	}, orderAttr(orderID))
}

// Cancel cancels an order and releases its reservation.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return mutate(s, ctx, "cancel_order", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.Cancel(ctx, orderID, reason)
	}, orderAttr(orderID))
}

// Reject rejects an order and releases its reservation.
func (s *Service) Reject(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return mutate(s, ctx, "reject_order", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.Reject(ctx, orderID, reason)
	}, orderAttr(orderID))
}

// MarkInPreparation moves an approved order to IN_PREPARATION.
func (s *Service) MarkInPreparation(ctx context.Context, orderID string) (domain.Order, error) {
	return mutate(s, ctx, "prepare_order", func(ctx context.Context) (domain.Order, []domain.DomainEvent, error) {
		return s.orders.MarkInPreparation(ctx, orderID)
	}, orderAttr(orderID))
}

// GetOrder loads an order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return query(s, ctx, "get_order", func(ctx context.Context) (domain.Order, error) {
		return s.orders.Get(ctx, orderID)
	}, orderAttr(orderID))
}

// ListOrders lists orders matching f.
func (s *Service) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	return query(s, ctx, "list_orders", func(ctx context.Context) ([]domain.Order, error) {
		return s.orders.List(ctx, f)
	})
}

// --- Deliveries ---

// GenerateDeliveries splits an order into one delivery per group.
func (s *Service) GenerateDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	return mutate(s, ctx, "generate_deliveries", func(ctx context.Context) ([]domain.Delivery, []domain.DomainEvent, error) {
		return s.deliveries.GenerateDeliveries(ctx, orderID)
	}, orderAttr(orderID))
}

// ListDeliveries lists the deliveries of an order, optionally only those
// without a recipient.
func (s *Service) ListDeliveries(ctx context.Context, orderID string, unassignedOnly bool) ([]domain.Delivery, error) {
	return query(s, ctx, "list_deliveries", func(ctx context.Context) ([]domain.Delivery, error) {
		if unassignedOnly {
			return s.deliveries.ListUnassigned(ctx, orderID)
		}
		return s.deliveries.List(ctx, orderID)
	}, orderAttr(orderID))
}

// GetDelivery loads a delivery.
func (s *Service) GetDelivery(ctx context.Context, deliveryID string) (domain.Delivery, error) {
	return query(s, ctx, "get_delivery", func(ctx context.Context) (domain.Delivery, error) {
		return s.deliveries.Get(ctx, deliveryID)
	}, deliveryAttr(deliveryID))
}

// AssignRecipient sets the student responsible for a delivery.
func (s *Service) AssignRecipient(ctx context.Context, deliveryID, studentID string) (domain.Delivery, error) {
	return mutate(s, ctx, "assign_recipient", func(ctx context.Context) (domain.Delivery, []domain.DomainEvent, error) {
		return s.deliveries.AssignRecipient(ctx, deliveryID, studentID)
	}, deliveryAttr(deliveryID))
}

// --- Returns ---

// OpenReturn starts the return of a delivery.
func (s *Service) OpenReturn(ctx context.Context, deliveryID string) (domain.Return, error) {
	return mutate(s, ctx, "open_return", func(ctx context.Context) (domain.Return, []domain.DomainEvent, error) {
		return s.returns.Open(ctx, deliveryID)
	}, deliveryAttr(deliveryID))
}

// RecordReturnLineItem classifies one returned unit.
func (s *Service) RecordReturnLineItem(ctx context.Context, returnID, unitID string, condition domain.Condition, notes string) (domain.Return, error) {
	return mutate(s, ctx, "record_return_line", func(ctx context.Context) (domain.Return, []domain.DomainEvent, error) {
		return s.returns.RecordLineItem(ctx, returnID, unitID, condition, notes)
	}, returnAttr(returnID))
}

// ApproveReturn applies the reviewed conditions to stock.
func (s *Service) ApproveReturn(ctx context.Context, returnID string) (domain.Return, error) {
	return mutate(s, ctx, "approve_return", func(ctx context.Context) (domain.Return, []domain.DomainEvent, error) {
		return s.returns.Approve(ctx, returnID)
	}, returnAttr(returnID))
}

// RejectReturn rejects a return; its units stay in use.
func (s *Service) RejectReturn(ctx context.Context, returnID, reason string) (domain.Return, error) {
	return mutate(s, ctx, "reject_return", func(ctx context.Context) (domain.Return, []domain.DomainEvent, error) {
		return s.returns.Reject(ctx, returnID, reason)
	}, returnAttr(returnID))
}

// IsComplete reports whether every line of a return is reviewed.
func (s *Service) IsComplete(ctx context.Context, returnID string) (bool, error) {
	return query(s, ctx, "return_completeness", func(ctx context.Context) (bool, error) {
		return s.returns.IsComplete(ctx, returnID)
	}, returnAttr(returnID))
}

// GetReturn loads a return.
func (s *Service) GetReturn(ctx context.Context, returnID string) (domain.Return, error) {
	return query(s, ctx, "get_return", func(ctx context.Context) (domain.Return, error) {
		return s.returns.Get(ctx, returnID)
	}, returnAttr(returnID))
}

// ListReturns lists the returns of a delivery.
func (s *Service) ListReturns(ctx context.Context, deliveryID string) ([]domain.Return, error) {
	return query(s, ctx, "list_returns", func(ctx context.Context) ([]domain.Return, error) {
		return s.returns.List(ctx, deliveryID)
	}, deliveryAttr(deliveryID))
}

// --- Incidents ---

// ReportIncident records a manual incident.
func (s *Service) ReportIncident(ctx context.Context, in incident.NewIncident) (domain.Incident, error) {
	return mutate(s, ctx, "report_incident", func(ctx context.Context) (domain.Incident, []domain.DomainEvent, error) {
		return s.incidents.Report(ctx, in)
	})
}

// ChangeIncidentState moves an incident along its transition table.
func (s *Service) ChangeIncidentState(ctx context.Context, id string, target domain.IncidentState) (domain.Incident, error) {
	return mutate(s, ctx, "change_incident_state", func(ctx context.Context) (domain.Incident, []domain.DomainEvent, error) {
		return s.incidents.ChangeState(ctx, id, target)
	}, incidentAttr(id), attribute.String("kalium.target_state", string(target)))
}

// GetIncident loads an incident.
func (s *Service) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	return query(s, ctx, "get_incident", func(ctx context.Context) (domain.Incident, error) {
		return s.incidents.Get(ctx, id)
	}, incidentAttr(id))
}

// ListIncidents lists incidents matching f.
func (s *Service) ListIncidents(ctx context.Context, f store.IncidentFilter) ([]domain.Incident, error) {
	return query(s, ctx, "list_incidents", func(ctx context.Context) ([]domain.Incident, error) {
		return s.incidents.List(ctx, f)
	})
}

// --- Stock ---

// AvailableUnitCount returns the AVAILABLE units of a discrete type.
func (s *Service) AvailableUnitCount(ctx context.Context, typeID string) (int, error) {
	return query(s, ctx, "available_units", func(ctx context.Context) (int, error) {
		return s.ledger.AvailableUnitCount(ctx, typeID)
	}, typeAttr(typeID))
}

// AvailableChemicalQuantity returns the summed quantity of a chemical type.
func (s *Service) AvailableChemicalQuantity(ctx context.Context, typeID string) (decimal.Decimal, error) {
	return query(s, ctx, "available_chemical", func(ctx context.Context) (decimal.Decimal, error) {
		return s.ledger.AvailableChemicalQuantity(ctx, typeID)
	}, typeAttr(typeID))
}

// StockLevel returns the availability of one type.
func (s *Service) StockLevel(ctx context.Context, typeID string) (domain.StockLevel, error) {
	return query(s, ctx, "stock_level", func(ctx context.Context) (domain.StockLevel, error) {
		return s.ledger.StockLevel(ctx, typeID)
	}, typeAttr(typeID))
}

// StockLevels returns the availability of every type.
func (s *Service) StockLevels(ctx context.Context) ([]domain.StockLevel, error) {
	return query(s, ctx, "stock_levels", s.ledger.StockLevels)
}

// InventoryReport builds the inventory report for f.
func (s *Service) InventoryReport(ctx context.Context, f report.Filter) (report.Inventory, error) {
	return query(s, ctx, "inventory_report", func(ctx context.Context) (report.Inventory, error) {
		return s.reports.Generate(ctx, f)
	})
}

// --- Sweeper ---

// Sweep cancels every approved order whose session already started.
func (s *Service) Sweep(ctx context.Context) (sweeper.Result, error) {
	res, err := query(s, ctx, "expiration_sweep", s.sweeper.Sweep)
	if err == nil && s.metrics != nil {
		s.metrics.SweepObserved(res.Cancelled, res.Failed)
	}
	return res, err
}
