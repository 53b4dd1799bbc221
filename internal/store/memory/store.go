// Package memory is an in-process store. Transactions run serially against a
// cloned copy of the state that replaces the live state only on success.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"kalium.io/kalium/internal/domain"
	"kalium.io/kalium/internal/store"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("memory store: write in read-only transaction")

// State is the full content of the store. It is also the snapshot format of
// the sqlite store.
type State struct {
	ConsumableTypes map[string]domain.ConsumableType `json:"consumable_types"`
	Units           map[string]domain.SupplyUnit     `json:"units"`
	Batches         map[string]domain.ChemicalBatch  `json:"batches"`
	Orders          map[string]domain.Order          `json:"orders"`
	Deliveries      map[string]domain.Delivery       `json:"deliveries"`
	Returns         map[string]domain.Return         `json:"returns"`
	Incidents       map[string]domain.Incident       `json:"incidents"`
	Experiments     map[string]domain.Experiment     `json:"experiments"`
}

// Bucket names one map of State. The names match the JSON keys.
type Bucket string

const (
	BucketConsumableTypes Bucket = "consumable_types"
	BucketUnits           Bucket = "units"
	BucketBatches         Bucket = "batches"
	BucketOrders          Bucket = "orders"
	BucketDeliveries      Bucket = "deliveries"
	BucketReturns         Bucket = "returns"
	BucketIncidents       Bucket = "incidents"
	BucketExperiments     Bucket = "experiments"
)

// Buckets lists every bucket of State.
var Buckets = []Bucket{
	BucketConsumableTypes, BucketUnits, BucketBatches, BucketOrders,
	BucketDeliveries, BucketReturns, BucketIncidents, BucketExperiments,
}

// Target returns a pointer to the map stored under b, or nil for an unknown
// bucket.
func (s *State) Target(b Bucket) any {
	switch b {
	case BucketConsumableTypes:
		return &s.ConsumableTypes
	case BucketUnits:
		return &s.Units
	case BucketBatches:
		return &s.Batches
	case BucketOrders:
		return &s.Orders
	case BucketDeliveries:
		return &s.Deliveries
	case BucketReturns:
		return &s.Returns
	case BucketIncidents:
		return &s.Incidents
	case BucketExperiments:
		return &s.Experiments
	default:
		return nil
	}
}

// NewState returns an empty state with all maps allocated.
func NewState() State {
	return State{
		ConsumableTypes: map[string]domain.ConsumableType{},
		Units:           map[string]domain.SupplyUnit{},
		Batches:         map[string]domain.ChemicalBatch{},
		Orders:          map[string]domain.Order{},
		Deliveries:      map[string]domain.Delivery{},
		Returns:         map[string]domain.Return{},
		Incidents:       map[string]domain.Incident{},
		Experiments:     map[string]domain.Experiment{},
	}
}

// Normalize allocates nil maps, e.g. after decoding an older snapshot.
func (s *State) Normalize() {
	if s.ConsumableTypes == nil {
		s.ConsumableTypes = map[string]domain.ConsumableType{}
	}
	if s.Units == nil {
		s.Units = map[string]domain.SupplyUnit{}
	}
	if s.Batches == nil {
		s.Batches = map[string]domain.ChemicalBatch{}
	}
	if s.Orders == nil {
		s.Orders = map[string]domain.Order{}
	}
	if s.Deliveries == nil {
		s.Deliveries = map[string]domain.Delivery{}
	}
	if s.Returns == nil {
		s.Returns = map[string]domain.Return{}
	}
	if s.Incidents == nil {
		s.Incidents = map[string]domain.Incident{}
	}
	if s.Experiments == nil {
		s.Experiments = map[string]domain.Experiment{}
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := State{
		ConsumableTypes: maps.Clone(s.ConsumableTypes),
		Units:           maps.Clone(s.Units),
		Batches:         maps.Clone(s.Batches),
		Orders:          make(map[string]domain.Order, len(s.Orders)),
		Deliveries:      make(map[string]domain.Delivery, len(s.Deliveries)),
		Returns:         make(map[string]domain.Return, len(s.Returns)),
		Incidents:       make(map[string]domain.Incident, len(s.Incidents)),
		Experiments:     make(map[string]domain.Experiment, len(s.Experiments)),
	}
	for k, v := range s.Orders {
		c.Orders[k] = v.Clone()
	}
	for k, v := range s.Deliveries {
		c.Deliveries[k] = v.Clone()
	}
	for k, v := range s.Returns {
		c.Returns[k] = v.Clone()
	}
	for k, v := range s.Incidents {
		c.Incidents[k] = v.Clone()
	}
	for k, v := range s.Experiments {
		c.Experiments[k] = v.Clone()
	}
	c.Normalize()
	return c
}

// CommitHook runs with the candidate state before it replaces the live one.
// changed lists the buckets the transaction wrote, in Buckets order; the hook
// is not called when it is empty. An error aborts the commit.
type CommitHook func(ctx context.Context, next State, changed []Bucket) error

// Store is the in-memory store.Store.
type Store struct {
	mu     sync.RWMutex
	state  State
	commit CommitHook
}

// New creates an empty store.
func New() *Store {
	return &Store{state: NewState()}
}

// NewWithState creates a store seeded with state. hook may be nil.
func NewWithState(state State, hook CommitHook) *Store {
	state.Normalize()
	return &Store{state: state, commit: hook}
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{state: s.state.Clone(), dirty: map[Bucket]bool{}}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if changed := t.changed(); s.commit != nil && len(changed) > 0 {
		if err := s.commit(ctx, t.state, changed); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	s.state = t.state
	return nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{state: s.state, readOnly: true})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

type tx struct {
	state    State
	readOnly bool
	dirty    map[Bucket]bool
}

// write checks the transaction may write and marks b as changed.
func (t *tx) write(b Bucket) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.dirty[b] = true
	return nil
}

func (t *tx) changed() []Bucket {
	var out []Bucket
	for _, b := range Buckets {
		if t.dirty[b] {
			out = append(out, b)
		}
	}
	return out
}

func (t *tx) GetConsumableType(_ context.Context, id string) (domain.ConsumableType, error) {
	ct, ok := t.state.ConsumableTypes[id]
	if !ok {
		return domain.ConsumableType{}, store.ErrNotFound
	}
	return ct, nil
}

func (t *tx) ListConsumableTypes(_ context.Context) ([]domain.ConsumableType, error) {
	out := slices.Collect(maps.Values(t.state.ConsumableTypes))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) SaveConsumableType(_ context.Context, ct domain.ConsumableType) error {
	if err := t.write(BucketConsumableTypes); err != nil {
		return err
	}
	t.state.ConsumableTypes[ct.ID] = ct
	return nil
}

// LockConsumableTypes only checks existence: InTx already holds the store lock.
func (t *tx) LockConsumableTypes(_ context.Context, ids []string) error {
	for _, id := range ids {
		if _, ok := t.state.ConsumableTypes[id]; !ok {
			return fmt.Errorf("lock consumable type %s: %w", id, store.ErrNotFound)
		}
	}
	return nil
}

func (t *tx) GetSupplyUnit(_ context.Context, id string) (domain.SupplyUnit, error) {
	u, ok := t.state.Units[id]
	if !ok {
		return domain.SupplyUnit{}, store.ErrNotFound
	}
	return u, nil
}

func (t *tx) InsertSupplyUnit(_ context.Context, u domain.SupplyUnit) error {
	if err := t.write(BucketUnits); err != nil {
		return err
	}
	if _, ok := t.state.Units[u.ID]; ok {
		return fmt.Errorf("supply unit %s already exists", u.ID)
	}
	t.state.Units[u.ID] = u
	return nil
}

func (t *tx) ListSupplyUnits(_ context.Context, f store.UnitFilter) ([]domain.SupplyUnit, error) {
	var out []domain.SupplyUnit
	for _, u := range t.state.Units {
		if f.ConsumableTypeID != "" && u.ConsumableTypeID != f.ConsumableTypeID {
			continue
		}
		if f.State != "" && u.State != f.State {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (t *tx) TransitionUnit(_ context.Context, id string, from, to domain.UnitState) error {
	if err := t.write(BucketUnits); err != nil {
		return err
	}
	u, ok := t.state.Units[id]
	if !ok {
		return store.ErrNotFound
	}
	if u.State != from {
		return fmt.Errorf("unit %s is %s, want %s: %w", id, u.State, from, store.ErrStateMismatch)
	}
	u.State = to
	t.state.Units[id] = u
	return nil
}

func (t *tx) CountUnitsByState(_ context.Context, consumableTypeID string) (map[domain.UnitState]int, error) {
	counts := make(map[domain.UnitState]int, len(domain.UnitStates))
	for _, u := range t.state.Units {
		if u.ConsumableTypeID == consumableTypeID {
			counts[u.State]++
		}
	}
	return counts, nil
}

func (t *tx) InsertChemicalBatch(_ context.Context, b domain.ChemicalBatch) error {
	if err := t.write(BucketBatches); err != nil {
		return err
	}
	t.state.Batches[b.ID] = b
	return nil
}

func (t *tx) ListChemicalBatches(_ context.Context, consumableTypeID string) ([]domain.ChemicalBatch, error) {
	var out []domain.ChemicalBatch
	for _, b := range t.state.Batches {
		if b.ConsumableTypeID == consumableTypeID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := t.state.Orders[id]
	if !ok {
		return domain.Order{}, store.ErrNotFound
	}
	return o.Clone(), nil
}

func (t *tx) SaveOrder(_ context.Context, o domain.Order) error {
	if err := t.write(BucketOrders); err != nil {
		return err
	}
	t.state.Orders[o.ID] = o.Clone()
	return nil
}

func (t *tx) ListOrders(_ context.Context, f store.OrderFilter) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range t.state.Orders {
		if f.State != "" && o.State != f.State {
			continue
		}
		if f.StartsBefore != nil && !o.Schedule.StartsAt.Before(*f.StartsBefore) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetDelivery(_ context.Context, id string) (domain.Delivery, error) {
	d, ok := t.state.Deliveries[id]
	if !ok {
		return domain.Delivery{}, store.ErrNotFound
	}
	return d.Clone(), nil
}

func (t *tx) SaveDelivery(_ context.Context, d domain.Delivery) error {
	if err := t.write(BucketDeliveries); err != nil {
		return err
	}
	t.state.Deliveries[d.ID] = d.Clone()
	return nil
}

func (t *tx) ListDeliveries(_ context.Context, orderID string) ([]domain.Delivery, error) {
	var out []domain.Delivery
	for _, d := range t.state.Deliveries {
		if d.OrderID == orderID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNumber < out[j].GroupNumber })
	return out, nil
}

func (t *tx) GetReturn(_ context.Context, id string) (domain.Return, error) {
	r, ok := t.state.Returns[id]
	if !ok {
		return domain.Return{}, store.ErrNotFound
	}
	return r.Clone(), nil
}

func (t *tx) SaveReturn(_ context.Context, r domain.Return) error {
	if err := t.write(BucketReturns); err != nil {
		return err
	}
	t.state.Returns[r.ID] = r.Clone()
	return nil
}

func (t *tx) ListReturns(_ context.Context, deliveryID string) ([]domain.Return, error) {
	var out []domain.Return
	for _, r := range t.state.Returns {
		if r.DeliveryID == deliveryID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetIncident(_ context.Context, id string) (domain.Incident, error) {
	i, ok := t.state.Incidents[id]
	if !ok {
		return domain.Incident{}, store.ErrNotFound
	}
	return i.Clone(), nil
}

func (t *tx) SaveIncident(_ context.Context, i domain.Incident) error {
	if err := t.write(BucketIncidents); err != nil {
		return err
	}
	t.state.Incidents[i.ID] = i.Clone()
	return nil
}

func (t *tx) ListIncidents(_ context.Context, f store.IncidentFilter) ([]domain.Incident, error) {
	var out []domain.Incident
	for _, i := range t.state.Incidents {
		if f.State != "" && i.State != f.State {
			continue
		}
		if f.ReturnID != "" && i.ReturnID != f.ReturnID {
			continue
		}
		out = append(out, i.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetExperiment(_ context.Context, id string) (domain.Experiment, error) {
	e, ok := t.state.Experiments[id]
	if !ok {
		return domain.Experiment{}, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (t *tx) SaveExperiment(_ context.Context, e domain.Experiment) error {
	if err := t.write(BucketExperiments); err != nil {
		return err
	}
	t.state.Experiments[e.ID] = e.Clone()
	return nil
}

func (t *tx) ListExperiments(_ context.Context) ([]domain.Experiment, error) {
	out := make([]domain.Experiment, 0, len(t.state.Experiments))
	for _, e := range t.state.Experiments {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)
