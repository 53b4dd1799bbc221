// Package postgres implements store.Store on PostgreSQL through the shared
// pgx pool.
//
// Locking: aggregates read inside InTx are selected FOR UPDATE, consumable
// types are locked in ascending ID order before unit selection, and unit
// state changes are compare-and-swap updates.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store is the PostgreSQL store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a pool. The pool is owned by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates tables and seeds the state catalog. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ValidateStateCatalog fails when the lifecycle_states table lacks a code
// the engines use.
func (s *Store) ValidateStateCatalog(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT entity, code FROM lifecycle_states`)
	if err != nil {
		return fmt.Errorf("load state catalog: %w", err)
	}
	defer rows.Close()

	present := map[string][]string{}
	for rows.Next() {
		var entity, code string
		if err := rows.Scan(&entity, &code); err != nil {
			return fmt.Errorf("scan state catalog: %w", err)
		}
		present[entity] = append(present[entity], code)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state catalog: %w", err)
	}
	return domain.ValidateStateCatalog(present)
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, lock: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Close is a no-op: the pool belongs to the infrastructure layer.
func (s *Store) Close() error { return nil }

type pgTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *pgTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// --- consumable types ---

const consumableTypeColumns = `id, name, description, category, unit, is_chemical, minimum_stock`

func scanConsumableType(row pgx.Row) (domain.ConsumableType, error) {
	var ct domain.ConsumableType
	err := row.Scan(&ct.ID, &ct.Name, &ct.Description, &ct.Category, &ct.Unit, &ct.IsChemical, &ct.MinimumStock)
	return ct, err
}

func (t *pgTx) GetConsumableType(ctx context.Context, id string) (domain.ConsumableType, error) {
	ct, err := scanConsumableType(t.tx.QueryRow(ctx,
		`SELECT `+consumableTypeColumns+` FROM consumable_types WHERE id = $1`, id))
	if err != nil {
		return domain.ConsumableType{}, fmt.Errorf("get consumable type %s: %w", id, notFound(err))
	}
	return ct, nil
}

func (t *pgTx) ListConsumableTypes(ctx context.Context) ([]domain.ConsumableType, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+consumableTypeColumns+` FROM consumable_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list consumable types: %w", err)
	}
	defer rows.Close()

	var out []domain.ConsumableType
	for rows.Next() {
		ct, err := scanConsumableType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumable type: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveConsumableType(ctx context.Context, ct domain.ConsumableType) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO consumable_types (`+consumableTypeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			unit = EXCLUDED.unit,
			is_chemical = EXCLUDED.is_chemical,
			minimum_stock = EXCLUDED.minimum_stock`,
		ct.ID, ct.Name, ct.Description, ct.Category, ct.Unit, ct.IsChemical, ct.MinimumStock,
	)
	if err != nil {
		return fmt.Errorf("save consumable type %s: %w", ct.ID, err)
	}
	return nil
}

func (t *pgTx) LockConsumableTypes(ctx context.Context, ids []string) error {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for _, id := range slices.Compact(sorted) {
		var locked string
		err := t.tx.QueryRow(ctx, `SELECT id FROM consumable_types WHERE id = $1`+t.forUpdate(), id).Scan(&locked)
		if err != nil {
			return fmt.Errorf("lock consumable type %s: %w", id, notFound(err))
		}
	}
	return nil
}

// --- supply units ---

func (t *pgTx) GetSupplyUnit(ctx context.Context, id string) (domain.SupplyUnit, error) {
	var u domain.SupplyUnit
	err := t.tx.QueryRow(ctx,
		`SELECT id, consumable_type_id, state, received_at FROM supply_units WHERE id = $1`, id,
	).Scan(&u.ID, &u.ConsumableTypeID, &u.State, &u.ReceivedAt)
	if err != nil {
		return domain.SupplyUnit{}, fmt.Errorf("get supply unit %s: %w", id, notFound(err))
	}
	return u, nil
}

func (t *pgTx) InsertSupplyUnit(ctx context.Context, u domain.SupplyUnit) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO supply_units (id, consumable_type_id, state, received_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.ConsumableTypeID, string(u.State), u.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert supply unit %s: %w", u.ID, err)
	}
	return nil
}

func (t *pgTx) ListSupplyUnits(ctx context.Context, f store.UnitFilter) ([]domain.SupplyUnit, error) {
	var (
		where []string
		args  []any
	)
	if f.ConsumableTypeID != "" {
		args = append(args, f.ConsumableTypeID)
		where = append(where, fmt.Sprintf("consumable_type_id = $%d", len(args)))
	}
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	query := `SELECT id, consumable_type_id, state, received_at FROM supply_units`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list supply units: %w", err)
	}
	defer rows.Close()

	var out []domain.SupplyUnit
	for rows.Next() {
		var u domain.SupplyUnit
		if err := rows.Scan(&u.ID, &u.ConsumableTypeID, &u.State, &u.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan supply unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (t *pgTx) TransitionUnit(ctx context.Context, id string, from, to domain.UnitState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE supply_units SET state = $3 WHERE id = $1 AND state = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("transition supply unit %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := t.GetSupplyUnit(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("unit %s is not %s: %w", id, from, store.ErrStateMismatch)
	}
	return nil
}

func (t *pgTx) CountUnitsByState(ctx context.Context, consumableTypeID string) (map[domain.UnitState]int, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT state, count(*) FROM supply_units WHERE consumable_type_id = $1 GROUP BY state`,
		consumableTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("count supply units: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.UnitState]int, len(domain.UnitStates))
	for rows.Next() {
		var state domain.UnitState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan unit count: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// --- chemical batches ---

func (t *pgTx) InsertChemicalBatch(ctx context.Context, b domain.ChemicalBatch) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO chemical_batches (id, consumable_type_id, quantity, received_on) VALUES ($1, $2, $3::numeric, $4)`,
		b.ID, b.ConsumableTypeID, b.Quantity.String(), b.ReceivedOn,
	)
	if err != nil {
		return fmt.Errorf("insert chemical batch %s: %w", b.ID, err)
	}
	return nil
}

func (t *pgTx) ListChemicalBatches(ctx context.Context, consumableTypeID string) ([]domain.ChemicalBatch, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, consumable_type_id, quantity::text, received_on FROM chemical_batches
		 WHERE consumable_type_id = $1 ORDER BY id`,
		consumableTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chemical batches: %w", err)
	}
	defer rows.Close()

	var out []domain.ChemicalBatch
	for rows.Next() {
		var b domain.ChemicalBatch
		var qty string
		if err := rows.Scan(&b.ID, &b.ConsumableTypeID, &qty, &b.ReceivedOn); err != nil {
			return nil, fmt.Errorf("scan chemical batch: %w", err)
		}
		if b.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity of batch %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- orders ---

const orderColumns = `id, requester_id, course_id, schedule_date, starts_at, group_count, state, reason, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.RequesterID, &o.CourseID, &o.Schedule.Date, &o.Schedule.StartsAt,
		&o.GroupCount, &o.State, &o.Reason, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+t.forUpdate(), id))
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", id, notFound(err))
	}
	lines, err := t.lineItems(ctx, []string{id})
	if err != nil {
		return domain.Order{}, err
	}
	o.LineItems = lines[id]
	return o, nil
}

func (t *pgTx) lineItems(ctx context.Context, orderIDs []string) (map[string][]domain.LineItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, id, consumable_type_id, is_chemical, quantity_per_group, state, reserved_unit_ids
		FROM order_line_items WHERE order_id = ANY($1) ORDER BY order_id, position`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list order line items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.LineItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var li domain.LineItem
		if err := rows.Scan(&orderID, &li.ID, &li.ConsumableTypeID, &li.IsChemical,
			&li.QuantityPerGroup, &li.State, &li.ReservedUnitIDs); err != nil {
			return nil, fmt.Errorf("scan order line item: %w", err)
		}
		if len(li.ReservedUnitIDs) == 0 {
			li.ReservedUnitIDs = nil
		}
		out[orderID] = append(out[orderID], li)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at`,
		o.ID, o.RequesterID, o.CourseID, o.Schedule.Date, o.Schedule.StartsAt,
		o.GroupCount, string(o.State), o.Reason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}

	for pos, li := range o.LineItems {
		reserved := li.ReservedUnitIDs
		if reserved == nil {
			reserved = []string{}
		}
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_line_items
				(id, order_id, position, consumable_type_id, is_chemical, quantity_per_group, state, reserved_unit_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				state = EXCLUDED.state,
				reserved_unit_ids = EXCLUDED.reserved_unit_ids`,
			li.ID, o.ID, pos, li.ConsumableTypeID, li.IsChemical, li.QuantityPerGroup, string(li.State), reserved,
		)
		if err != nil {
			return fmt.Errorf("save line item %s of order %s: %w", li.ID, o.ID, err)
		}
	}
	return nil
}

func (t *pgTx) ListOrders(ctx context.Context, f store.OrderFilter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.StartsBefore != nil {
		args = append(args, *f.StartsBefore)
		where = append(where, fmt.Sprintf("starts_at < $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	var (
		out []domain.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	lines, err := t.lineItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].LineItems = lines[out[i].ID]
	}
	return out, nil
}

// --- deliveries ---

const deliveryColumns = `id, order_id, group_number, schedule_date, starts_at, recipient_id, state,
	unit_ids, returned_unit_ids, chemicals, created_at, updated_at`

func scanDelivery(row pgx.Row) (domain.Delivery, error) {
	var (
		d         domain.Delivery
		chemicals []byte
	)
	err := row.Scan(&d.ID, &d.OrderID, &d.GroupNumber, &d.Schedule.Date, &d.Schedule.StartsAt,
		&d.RecipientID, &d.State, &d.UnitIDs, &d.ReturnedUnitIDs, &chemicals, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if len(d.ReturnedUnitIDs) == 0 {
		d.ReturnedUnitIDs = nil
	}
	if err := json.Unmarshal(chemicals, &d.Chemicals); err != nil {
		return d, fmt.Errorf("decode chemicals of delivery %s: %w", d.ID, err)
	}
	if len(d.Chemicals) == 0 {
		d.Chemicals = nil
	}
	return d, nil
}

func (t *pgTx) GetDelivery(ctx context.Context, id string) (domain.Delivery, error) {
	d, err := scanDelivery(t.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`+t.forUpdate(), id))
	if err != nil {
		return domain.Delivery{}, fmt.Errorf("get delivery %s: %w", id, notFound(err))
	}
	return d, nil
}

func (t *pgTx) SaveDelivery(ctx context.Context, d domain.Delivery) error {
	chemicals := d.Chemicals
	if chemicals == nil {
		chemicals = []domain.ChemicalRef{}
	}
	chemJSON, err := json.Marshal(chemicals)
	if err != nil {
		return fmt.Errorf("encode chemicals of delivery %s: %w", d.ID, err)
	}
	unitIDs, returned := d.UnitIDs, d.ReturnedUnitIDs
	if unitIDs == nil {
		unitIDs = []string{}
	}
	if returned == nil {
		returned = []string{}
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			recipient_id = EXCLUDED.recipient_id,
			state = EXCLUDED.state,
			returned_unit_ids = EXCLUDED.returned_unit_ids,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.OrderID, d.GroupNumber, d.Schedule.Date, d.Schedule.StartsAt, d.RecipientID,
		string(d.State), unitIDs, returned, chemJSON, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save delivery %s: %w", d.ID, err)
	}
	return nil
}

func (t *pgTx) ListDeliveries(ctx context.Context, orderID string) ([]domain.Delivery, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = $1 ORDER BY group_number`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries of order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- returns ---

const returnColumns = `id, delivery_id, order_id, recipient_id, state, reason, line_items, created_at, decided_at`

func scanReturn(row pgx.Row) (domain.Return, error) {
	var (
		r     domain.Return
		lines []byte
	)
	if err := row.Scan(&r.ID, &r.DeliveryID, &r.OrderID, &r.RecipientID, &r.State, &r.Reason,
		&lines, &r.CreatedAt, &r.DecidedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal(lines, &r.LineItems); err != nil {
		return r, fmt.Errorf("decode line items of return %s: %w", r.ID, err)
	}
	return r, nil
}

func (t *pgTx) GetReturn(ctx context.Context, id string) (domain.Return, error) {
	r, err := scanReturn(t.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM returns WHERE id = $1`+t.forUpdate(), id))
	if err != nil {
		return domain.Return{}, fmt.Errorf("get return %s: %w", id, notFound(err))
	}
	return r, nil
}

func (t *pgTx) SaveReturn(ctx context.Context, r domain.Return) error {
	lines := r.LineItems
	if lines == nil {
		lines = []domain.ReturnLineItem{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode line items of return %s: %w", r.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO returns (`+returnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			line_items = EXCLUDED.line_items,
			decided_at = EXCLUDED.decided_at`,
		r.ID, r.DeliveryID, r.OrderID, r.RecipientID, string(r.State), r.Reason, linesJSON, r.CreatedAt, r.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("save return %s: %w", r.ID, err)
	}
	return nil
}

func (t *pgTx) ListReturns(ctx context.Context, deliveryID string) ([]domain.Return, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+returnColumns+` FROM returns WHERE delivery_id = $1 ORDER BY id`, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("list returns of delivery %s: %w", deliveryID, err)
	}
	defer rows.Close()

	var out []domain.Return
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- incidents ---

const incidentColumns = `id, description, return_id, unit_id, recipient_id, state, reported_at, resolved_at`

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var i domain.Incident
	err := row.Scan(&i.ID, &i.Description, &i.ReturnID, &i.UnitID, &i.RecipientID, &i.State, &i.ReportedAt, &i.ResolvedAt)
	return i, err
}

func (t *pgTx) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	i, err := scanIncident(t.tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`+t.forUpdate(), id))
	if err != nil {
		return domain.Incident{}, fmt.Errorf("get incident %s: %w", id, notFound(err))
	}
	return i, nil
}

func (t *pgTx) SaveIncident(ctx context.Context, i domain.Incident) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			resolved_at = EXCLUDED.resolved_at`,
		i.ID, i.Description, i.ReturnID, i.UnitID, i.RecipientID, string(i.State), i.ReportedAt, i.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save incident %s: %w", i.ID, err)
	}
	return nil
}

func (t *pgTx) ListIncidents(ctx context.Context, f store.IncidentFilter) ([]domain.Incident, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, fmt.Sprintf("state = $%d", len(args)))
	}
	if f.ReturnID != "" {
		args = append(args, f.ReturnID)
		where = append(where, fmt.Sprintf("return_id = $%d", len(args)))
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// --- experiments ---

const experimentColumns = `id, name, lines, created_at, updated_at`

func scanExperiment(row pgx.Row) (domain.Experiment, error) {
	var (
		e     domain.Experiment
		lines []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &lines, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return e, err
	}
	if err := json.Unmarshal(lines, &e.Lines); err != nil {
		return e, fmt.Errorf("decode lines of experiment %s: %w", e.ID, err)
	}
	return e, nil
}

func (t *pgTx) GetExperiment(ctx context.Context, id string) (domain.Experiment, error) {
	e, err := scanExperiment(t.tx.QueryRow(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = $1`+t.forUpdate(), id))
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("get experiment %s: %w", id, notFound(err))
	}
	return e, nil
}

func (t *pgTx) SaveExperiment(ctx context.Context, e domain.Experiment) error {
	lines := e.Lines
	if lines == nil {
		lines = []domain.ExperimentLine{}
	}
	linesJSON, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode lines of experiment %s: %w", e.ID, err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO experiments (`+experimentColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			lines = EXCLUDED.lines,
			updated_at = EXCLUDED.updated_at`,
		e.ID, e.Name, linesJSON, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save experiment %s: %w", e.ID, err)
	}
	return nil
}

func (t *pgTx) ListExperiments(ctx context.Context) ([]domain.Experiment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+experimentColumns+` FROM experiments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var out []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*pgTx)(nil)
)
