package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"batch-service/internal/models"
	"batch-service/internal/store"
)

// memStore is an in-memory store.Storage double. WithinTx serializes
// transactions under one mutex and restores a snapshot on error, which gives
// the engine the same all-or-nothing and no-double-decrement guarantees the
// real store provides.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	nextID        int64
	clock         int64
	productsByExt map[string]*models.Product
	productsByID  map[int64]*models.Product
	batches       map[int64]*models.Batch
	ordersByExt   map[string]*models.Order
	ordersByID    map[int64]*models.Order
	consumptions  []*models.Consumption
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		productsByExt: make(map[string]*models.Product),
		productsByID:  make(map[int64]*models.Product),
		batches:       make(map[int64]*models.Batch),
		ordersByExt:   make(map[string]*models.Order),
		ordersByID:    make(map[int64]*models.Order),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	c.clock = s.clock
	for k, v := range s.productsByExt {
		p := *v
		c.productsByExt[k] = &p
		c.productsByID[p.ID] = &p
	}
	for k, v := range s.batches {
		b := *v
		c.batches[k] = &b
	}
	for k, v := range s.ordersByExt {
		o := *v
		c.ordersByExt[k] = &o
		c.ordersByID[o.ID] = &o
	}
	for _, v := range s.consumptions {
		cons := *v
		c.consumptions = append(c.consumptions, &cons)
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

// tick produces strictly increasing creation timestamps so creation-time
// ordering is deterministic.
func (s *memState) tick() time.Time {
	s.clock++
	return time.Unix(1700000000, 0).Add(time.Duration(s.clock) * time.Second)
}

func (m *memStore) WithinTx(ctx context.Context, fn func(store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	backup := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = backup
		return err
	}
	return nil
}

// Autocommit variants lock per call and delegate to the state.

func (m *memStore) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertOrder(ctx, order)
}

func (m *memStore) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetOrderByExternalID(ctx, externalID)
}

func (m *memStore) EnsureProduct(ctx context.Context, externalID, name, sku string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.EnsureProduct(ctx, externalID, name, sku)
}

func (m *memStore) ListFulfillableBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListFulfillableBatches(ctx, productID)
}

func (m *memStore) CreateBatch(ctx context.Context, batch *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateBatch(ctx, batch)
}

func (m *memStore) DecrementBatch(ctx context.Context, batchID int64, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DecrementBatch(ctx, batchID, amount)
}

func (m *memStore) InsertConsumption(ctx context.Context, c *models.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertConsumption(ctx, c)
}

func (m *memStore) OrderConsumptions(ctx context.Context, orderID int64) ([]models.OrderConsumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.OrderConsumptions(ctx, orderID)
}

func (m *memStore) GetBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBatch(ctx, batchID)
}

func (m *memStore) ListBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBatches(ctx, productID)
}

func (m *memStore) UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateBatch(ctx, batchID, expiry, quantity)
}

func (m *memStore) DeleteBatch(ctx context.Context, batchID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteBatch(ctx, batchID)
}

func (m *memStore) BatchHasConsumptions(ctx context.Context, batchID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.BatchHasConsumptions(ctx, batchID)
}

func (m *memStore) FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.FindOrdersByBatchNumber(ctx, batchNumber)
}

// --- memState: store.Tx and Storage semantics ---

func (s *memState) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	if _, exists := s.ordersByExt[order.ExternalID]; exists {
		return false, nil
	}
	order.ID = s.id()
	order.CreatedAt = s.tick()
	stored := *order
	s.ordersByExt[order.ExternalID] = &stored
	s.ordersByID[order.ID] = &stored
	return true, nil
}

func (s *memState) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	order, ok := s.ordersByExt[externalID]
	if !ok {
		return nil, nil
	}
	o := *order
	return &o, nil
}

func (s *memState) EnsureProduct(ctx context.Context, externalID, name, sku string) (*models.Product, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external product id", models.ErrInvalidInput)
	}
	if existing, ok := s.productsByExt[externalID]; ok {
		p := *existing
		return &p, nil
	}
	product := &models.Product{
		ID:         s.id(),
		ExternalID: externalID,
		Name:       name,
		SKU:        sku,
		CreatedAt:  s.tick(),
	}
	s.productsByExt[externalID] = product
	s.productsByID[product.ID] = product
	p := *product
	return &p, nil
}

func (s *memState) ListFulfillableBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	batches := []models.Batch{}
	for _, b := range s.batches {
		if b.ProductID == productID && b.Remaining > 0 {
			batches = append(batches, *b)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID < b.ID
		}
	})
	return batches, nil
}

func (s *memState) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if _, ok := s.productsByID[batch.ProductID]; !ok {
		return fmt.Errorf("product %d: %w", batch.ProductID, models.ErrUnknownProduct)
	}
	for _, b := range s.batches {
		if b.BatchNumber == batch.BatchNumber {
			return fmt.Errorf("batch number %s: %w", batch.BatchNumber, models.ErrDuplicateBatchNumber)
		}
	}
	batch.ID = s.id()
	batch.Remaining = batch.InitialQuantity
	batch.CreatedAt = s.tick()
	stored := *batch
	s.batches[batch.ID] = &stored
	return nil
}

func (s *memState) DecrementBatch(ctx context.Context, batchID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive decrement %d", models.ErrInvalidInput, amount)
	}
	batch, ok := s.batches[batchID]
	if !ok || batch.Remaining < amount {
		return fmt.Errorf("batch %d, amount %d: %w", batchID, amount, models.ErrInsufficientStock)
	}
	batch.Remaining -= amount
	return nil
}

func (s *memState) InsertConsumption(ctx context.Context, c *models.Consumption) error {
	c.ID = s.id()
	stored := *c
	s.consumptions = append(s.consumptions, &stored)
	return nil
}

func (s *memState) OrderConsumptions(ctx context.Context, orderID int64) ([]models.OrderConsumption, error) {
	result := []models.OrderConsumption{}
	for _, c := range s.consumptions {
		if c.OrderID != orderID {
			continue
		}
		result = append(result, models.OrderConsumption{
			ExternalProductID: s.productsByID[c.ProductID].ExternalID,
			BatchNumber:       s.batches[c.BatchID].BatchNumber,
			Quantity:          c.Quantity,
		})
	}
	return result, nil
}

func (s *memState) GetBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	b := *batch
	return &b, nil
}

func (s *memState) ListBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	batches := []models.Batch{}
	for _, b := range s.batches {
		if b.ProductID == productID {
			batches = append(batches, *b)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (s *memState) UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) error {
	batch, ok := s.batches[batchID]
	if !ok {
		return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	// Matches the store's conditional update: consumed batches are immutable,
	// checked atomically with the write.
	for _, c := range s.consumptions {
		if c.BatchID == batchID {
			return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchConsumed)
		}
	}
	if expiry == nil && quantity == nil {
		return fmt.Errorf("%w: nothing to update", models.ErrInvalidInput)
	}
	if expiry != nil {
		e := *expiry
		batch.ExpiryDate = &e
	}
	if quantity != nil {
		if *quantity < 0 {
			return fmt.Errorf("%w: negative quantity %d", models.ErrInvalidInput, *quantity)
		}
		batch.Remaining = *quantity
		batch.InitialQuantity = *quantity
	}
	return nil
}

func (s *memState) DeleteBatch(ctx context.Context, batchID int64) error {
	if _, ok := s.batches[batchID]; !ok {
		return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	for _, c := range s.consumptions {
		if c.BatchID == batchID {
			return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchHasConsumptions)
		}
	}
	delete(s.batches, batchID)
	return nil
}

func (s *memState) BatchHasConsumptions(ctx context.Context, batchID int64) (bool, error) {
	for _, c := range s.consumptions {
		if c.BatchID == batchID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memState) FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error) {
	entries := []models.TraceEntry{}
	for _, c := range s.consumptions {
		batch := s.batches[c.BatchID]
		if batch == nil || batch.BatchNumber != batchNumber {
			continue
		}
		order := s.ordersByID[c.OrderID]
		entries = append(entries, models.TraceEntry{
			OrderID:         order.ID,
			ExternalOrderID: order.ExternalID,
			Customer:        order.Customer,
			OrderDate:       order.OrderDate,
			ProductName:     s.productsByID[c.ProductID].Name,
			Quantity:        c.Quantity,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OrderDate.Equal(entries[j].OrderDate) {
			return entries[i].OrderDate.After(entries[j].OrderDate)
		}
		return entries[i].OrderID > entries[j].OrderID
	})
	return entries, nil
}

// --- test doubles for the engine's collaborators ---

type stubResolver struct {
	mu    sync.Mutex
	hints models.ProductHints
	err   error
	calls int
}

func (r *stubResolver) ResolveProductHints(ctx context.Context, tenant, externalProductID string) (models.ProductHints, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return models.ProductHints{}, r.err
	}
	return r.hints, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	processed  []*models.OrderProcessedEvent
	shortfalls []*models.AllocationShortfallEvent
}

func (p *recordingPublisher) PublishOrderProcessed(ctx context.Context, event *models.OrderProcessedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, event)
	return nil
}

func (p *recordingPublisher) PublishAllocationShortfall(ctx context.Context, event *models.AllocationShortfallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shortfalls = append(p.shortfalls, event)
	return nil
}

func intPtr(v int) *int { return &v }

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}
