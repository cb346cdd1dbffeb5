package ledger_test

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	applend "github.com/jhoicas/ledger-inventario/internal/application/ledger"
	"github.com/jhoicas/ledger-inventario/internal/domain"
	"github.com/jhoicas/ledger-inventario/internal/domain/entity"
)

// fakeStore es el almacén en memoria compartido por los repositorios falsos.
// Guarda valores (no punteros) para que las lecturas devuelvan copias y el
// rollback del fakeTxRunner pueda restaurar un snapshot.
type fakeStore struct {
	events       map[entity.AggregateKey][]entity.Event
	projections  map[entity.AggregateKey]entity.InventoryProjection
	reservations []entity.Reservation
	batches      []entity.Batch
	serials      []entity.Serial

	// failUpdates fuerza ErrStaleProjection en los próximos N Update de
	// proyección, para ejercitar el reintento de la capa de comandos.
	failUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:      make(map[entity.AggregateKey][]entity.Event),
		projections: make(map[entity.AggregateKey]entity.InventoryProjection),
	}
}

type storeSnapshot struct {
	events       map[entity.AggregateKey][]entity.Event
	projections  map[entity.AggregateKey]entity.InventoryProjection
	reservations []entity.Reservation
	batches      []entity.Batch
	serials      []entity.Serial
}

func (s *fakeStore) snapshot() storeSnapshot {
	sn := storeSnapshot{
		events:       make(map[entity.AggregateKey][]entity.Event, len(s.events)),
		projections:  make(map[entity.AggregateKey]entity.InventoryProjection, len(s.projections)),
		reservations: append([]entity.Reservation(nil), s.reservations...),
		batches:      append([]entity.Batch(nil), s.batches...),
		serials:      append([]entity.Serial(nil), s.serials...),
	}
	for k, evs := range s.events {
		sn.events[k] = append([]entity.Event(nil), evs...)
	}
	for k, p := range s.projections {
		sn.projections[k] = copyProjection(p)
	}
	return sn
}

func (s *fakeStore) restore(sn storeSnapshot) {
	s.events = sn.events
	s.projections = sn.projections
	s.reservations = sn.reservations
	s.batches = sn.batches
	s.serials = sn.serials
}

func copyProjection(p entity.InventoryProjection) entity.InventoryProjection {
	p.CostLayers = append([]entity.CostLayer(nil), p.CostLayers...)
	if len(p.CostLayers) == 0 {
		p.CostLayers = nil
	}
	return p
}

func (s *fakeStore) repos() applend.Repos {
	return applend.Repos{
		Events:       &fakeEventRepo{s: s},
		Projections:  &fakeProjectionRepo{s: s},
		Reservations: &fakeReservationRepo{s: s},
		Batches:      &fakeBatchRepo{s: s},
		Serials:      &fakeSerialRepo{s: s},
	}
}

// fakeTxRunner ejecuta fn sobre el almacén en memoria y restaura el snapshot
// si fn falla, imitando el rollback de una transacción real.
type fakeTxRunner struct {
	s *fakeStore
}

func (tr *fakeTxRunner) Run(_ context.Context, fn func(r applend.Repos) error) error {
	sn := tr.s.snapshot()
	if err := fn(tr.s.repos()); err != nil {
		tr.s.restore(sn)
		return err
	}
	return nil
}

// ── event store ──────────────────────────────────────────────────────────────

type fakeEventRepo struct {
	s *fakeStore
}

func (f *fakeEventRepo) Append(_ context.Context, e *entity.Event) error {
	key := e.Key()
	for _, existing := range f.s.events[key] {
		if existing.SequenceNumber == e.SequenceNumber {
			return domain.ErrStaleProjection
		}
		if existing.IdempotencyKey == e.IdempotencyKey {
			return domain.ErrDuplicateEvent
		}
	}
	f.s.events[key] = append(f.s.events[key], *e)
	return nil
}

func (f *fakeEventRepo) ExistsIdempotencyKey(_ context.Context, key entity.AggregateKey, idempotencyKey string) (bool, error) {
	for _, e := range f.s.events[key] {
		if e.IdempotencyKey == idempotencyKey {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) ListByAggregate(_ context.Context, key entity.AggregateKey, asOfSequence int64) ([]*entity.Event, error) {
	evs := append([]entity.Event(nil), f.s.events[key]...)
	sort.Slice(evs, func(i, j int) bool { return evs[i].SequenceNumber < evs[j].SequenceNumber })
	out := make([]*entity.Event, 0, len(evs))
	for i := range evs {
		if asOfSequence > 0 && evs[i].SequenceNumber > asOfSequence {
			continue
		}
		out = append(out, &evs[i])
	}
	return out, nil
}

func (f *fakeEventRepo) ListByAggregatePaged(_ context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Event, error) {
	evs := append([]entity.Event(nil), f.s.events[key]...)
	sort.Slice(evs, func(i, j int) bool { return evs[i].SequenceNumber > evs[j].SequenceNumber })
	if offset >= len(evs) {
		return nil, nil
	}
	evs = evs[offset:]
	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
	}
	out := make([]*entity.Event, 0, len(evs))
	for i := range evs {
		out = append(out, &evs[i])
	}
	return out, nil
}

// ── proyecciones ─────────────────────────────────────────────────────────────

type fakeProjectionRepo struct {
	s *fakeStore
}

func (f *fakeProjectionRepo) Get(_ context.Context, key entity.AggregateKey) (*entity.InventoryProjection, error) {
	p, ok := f.s.projections[key]
	if !ok {
		return nil, nil
	}
	cp := copyProjection(p)
	return &cp, nil
}

func (f *fakeProjectionRepo) EnsureExists(_ context.Context, key entity.AggregateKey) error {
	if _, ok := f.s.projections[key]; !ok {
		f.s.projections[key] = *entity.NewProjection(key)
	}
	return nil
}

func (f *fakeProjectionRepo) GetForUpdate(_ context.Context, key entity.AggregateKey, _ time.Duration) (*entity.InventoryProjection, error) {
	p, ok := f.s.projections[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := copyProjection(p)
	return &cp, nil
}

func (f *fakeProjectionRepo) Update(_ context.Context, p *entity.InventoryProjection, expectedVersion int64) error {
	if f.s.failUpdates > 0 {
		f.s.failUpdates--
		return domain.ErrStaleProjection
	}
	key := p.Key()
	cur, ok := f.s.projections[key]
	if !ok || cur.Version != expectedVersion {
		return domain.ErrStaleProjection
	}
	f.s.projections[key] = copyProjection(*p)
	return nil
}

func (f *fakeProjectionRepo) ListByWarehouse(_ context.Context, institutionID, warehouseID string, limit, offset int) ([]*entity.InventoryProjection, error) {
	var out []*entity.InventoryProjection
	for _, p := range f.s.projections {
		if p.InstitutionID == institutionID && p.WarehouseID == warehouseID {
			cp := copyProjection(p)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// ── reservas ─────────────────────────────────────────────────────────────────

type fakeReservationRepo struct {
	s *fakeStore
}

func (f *fakeReservationRepo) Create(_ context.Context, r *entity.Reservation) error {
	for _, existing := range f.s.reservations {
		if existing.Status == entity.ReservationReserved &&
			existing.InstitutionID == r.InstitutionID &&
			existing.ItemID == r.ItemID &&
			existing.WarehouseID == r.WarehouseID &&
			existing.OrderRef == r.OrderRef {
			return domain.ErrDuplicate
		}
	}
	f.s.reservations = append(f.s.reservations, *r)
	return nil
}

func (f *fakeReservationRepo) GetActiveByOrderRef(_ context.Context, key entity.AggregateKey, orderRef string) (*entity.Reservation, error) {
	for i := range f.s.reservations {
		r := f.s.reservations[i]
		if r.Status == entity.ReservationReserved &&
			r.InstitutionID == key.InstitutionID &&
			r.ItemID == key.ItemID &&
			r.WarehouseID == key.WarehouseID &&
			r.OrderRef == orderRef {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeReservationRepo) Update(_ context.Context, r *entity.Reservation) error {
	for i := range f.s.reservations {
		if f.s.reservations[i].ID == r.ID {
			f.s.reservations[i] = *r
			return nil
		}
	}
	return domain.ErrReservationNotFound
}

func (f *fakeReservationRepo) ListByAggregate(_ context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Reservation, error) {
	var out []*entity.Reservation
	for i := range f.s.reservations {
		r := f.s.reservations[i]
		if r.InstitutionID == key.InstitutionID && r.ItemID == key.ItemID && r.WarehouseID == key.WarehouseID {
			cp := r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── lotes ────────────────────────────────────────────────────────────────────

type fakeBatchRepo struct {
	s *fakeStore
}

func (f *fakeBatchRepo) Create(_ context.Context, b *entity.Batch) error {
	f.s.batches = append(f.s.batches, *b)
	return nil
}

func (f *fakeBatchRepo) GetByNumber(_ context.Context, key entity.AggregateKey, batchNumber string) (*entity.Batch, error) {
	for i := range f.s.batches {
		b := f.s.batches[i]
		if b.InstitutionID == key.InstitutionID && b.ItemID == key.ItemID &&
			b.WarehouseID == key.WarehouseID && b.BatchNumber == batchNumber {
			cp := b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBatchRepo) ListConsumable(_ context.Context, key entity.AggregateKey, byExpiry bool) ([]*entity.Batch, error) {
	var out []*entity.Batch
	for i := range f.s.batches {
		b := f.s.batches[i]
		if b.InstitutionID == key.InstitutionID && b.ItemID == key.ItemID &&
			b.WarehouseID == key.WarehouseID &&
			b.Status == entity.BatchActive && b.QuantityRemaining.GreaterThan(decimal.Zero) {
			cp := b
			out = append(out, &cp)
		}
	}
	if byExpiry {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].ExpiryDate == nil {
				return false
			}
			if out[j].ExpiryDate == nil {
				return true
			}
			return out[i].ExpiryDate.Before(*out[j].ExpiryDate)
		})
	}
	return out, nil
}

func (f *fakeBatchRepo) UpdateRemaining(_ context.Context, id string, remaining decimal.Decimal) error {
	for i := range f.s.batches {
		if f.s.batches[i].ID == id {
			f.s.batches[i].QuantityRemaining = remaining
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeBatchRepo) AddQuantity(_ context.Context, id string, qty decimal.Decimal) error {
	for i := range f.s.batches {
		if f.s.batches[i].ID == id {
			f.s.batches[i].QuantityReceived = f.s.batches[i].QuantityReceived.Add(qty)
			f.s.batches[i].QuantityRemaining = f.s.batches[i].QuantityRemaining.Add(qty)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeBatchRepo) UpdateStatus(_ context.Context, id, status string) error {
	for i := range f.s.batches {
		if f.s.batches[i].ID == id {
			f.s.batches[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeBatchRepo) ListByAggregate(_ context.Context, key entity.AggregateKey, limit, offset int) ([]*entity.Batch, error) {
	var out []*entity.Batch
	for i := range f.s.batches {
		b := f.s.batches[i]
		if b.InstitutionID == key.InstitutionID && b.ItemID == key.ItemID && b.WarehouseID == key.WarehouseID {
			cp := b
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── seriales ─────────────────────────────────────────────────────────────────

type fakeSerialRepo struct {
	s *fakeStore
}

func (f *fakeSerialRepo) CreateMany(_ context.Context, serials []*entity.Serial) error {
	for _, s := range serials {
		for _, existing := range f.s.serials {
			if existing.InstitutionID == s.InstitutionID && existing.ItemID == s.ItemID &&
				existing.SerialNumber == s.SerialNumber {
				return domain.ErrDuplicate
			}
		}
		f.s.serials = append(f.s.serials, *s)
	}
	return nil
}

func (f *fakeSerialRepo) GetBySerialNumber(_ context.Context, institutionID, itemID, serialNumber string) (*entity.Serial, error) {
	for i := range f.s.serials {
		s := f.s.serials[i]
		if s.InstitutionID == institutionID && s.ItemID == itemID && s.SerialNumber == serialNumber {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSerialRepo) UpdateStatus(_ context.Context, id, status, warehouseID string) error {
	for i := range f.s.serials {
		if f.s.serials[i].ID == id {
			f.s.serials[i].Status = status
			f.s.serials[i].WarehouseID = warehouseID
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeSerialRepo) ListByAggregate(_ context.Context, key entity.AggregateKey, status string, limit, offset int) ([]*entity.Serial, error) {
	var out []*entity.Serial
	for i := range f.s.serials {
		s := f.s.serials[i]
		if s.InstitutionID != key.InstitutionID || s.ItemID != key.ItemID || s.WarehouseID != key.WarehouseID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		cp := s
		out = append(out, &cp)
	}
	// Mismo orden determinista que el repositorio real
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SerialNumber < out[j].SerialNumber
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── catálogo ─────────────────────────────────────────────────────────────────

type fakeItemRepo struct {
	items map[string]*entity.Item
}

func (f *fakeItemRepo) Create(_ context.Context, item *entity.Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeItemRepo) GetByID(_ context.Context, id string) (*entity.Item, error) {
	return f.items[id], nil
}

func (f *fakeItemRepo) GetBySKU(_ context.Context, institutionID, sku string) (*entity.Item, error) {
	for _, item := range f.items {
		if item.InstitutionID == institutionID && item.SKU == sku && item.Active() {
			return item, nil
		}
	}
	return nil, nil
}

func (f *fakeItemRepo) List(_ context.Context, institutionID string, limit, offset int) ([]*entity.Item, error) {
	return nil, nil
}

func (f *fakeItemRepo) Update(_ context.Context, item *entity.Item) error {
	f.items[item.ID] = item
	return nil
}

func (f *fakeItemRepo) SoftDelete(_ context.Context, id string) error {
	if item, ok := f.items[id]; ok {
		now := time.Now()
		item.DeletedAt = &now
	}
	return nil
}

type fakeWarehouseRepo struct {
	warehouses map[string]*entity.Warehouse
}

func (f *fakeWarehouseRepo) Create(_ context.Context, w *entity.Warehouse) error {
	f.warehouses[w.ID] = w
	return nil
}

func (f *fakeWarehouseRepo) GetByID(_ context.Context, id string) (*entity.Warehouse, error) {
	return f.warehouses[id], nil
}

func (f *fakeWarehouseRepo) List(_ context.Context, institutionID string, limit, offset int) ([]*entity.Warehouse, error) {
	return nil, nil
}

// fakeAlertEvaluator registra las claves evaluadas tras cada comando.
type fakeAlertEvaluator struct {
	evaluated []entity.AggregateKey
}

func (f *fakeAlertEvaluator) Evaluate(_ context.Context, key entity.AggregateKey) error {
	f.evaluated = append(f.evaluated, key)
	return nil
}
