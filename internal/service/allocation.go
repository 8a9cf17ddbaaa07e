package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"batch-service/internal/models"
	"batch-service/internal/store"
	"batch-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventPublisher publishes allocation outcomes for downstream consumers.
type EventPublisher interface {
	PublishOrderProcessed(ctx context.Context, event *models.OrderProcessedEvent) error
	PublishAllocationShortfall(ctx context.Context, event *models.AllocationShortfallEvent) error
}

// AllocationEngine consumes an order's line items and deducts them from
// batches first-expired-first-out, inside a single all-or-nothing
// transaction. Processing is idempotent on the external order identifier.
type AllocationEngine struct {
	storage    store.Storage
	resolver   HintResolver
	events     EventPublisher
	synthesize bool
	logger     *zap.Logger
}

// NewAllocationEngine creates an allocation engine. synthesizeOnShortfall
// controls whether a shortfall creates a new batch or is recorded as an
// operator-visible shortfall.
func NewAllocationEngine(storage store.Storage, resolver HintResolver, events EventPublisher, synthesizeOnShortfall bool) *AllocationEngine {
	return &AllocationEngine{
		storage:    storage,
		resolver:   resolver,
		events:     events,
		synthesize: synthesizeOnShortfall,
		logger:     util.GetLogger(),
	}
}

// OrderRequest is the canonical inbound order shape. Both entry points (the
// direct API call and the platform webhook/topic) produce this before the
// engine ever sees the order.
type OrderRequest struct {
	ExternalOrderID string     `json:"external_order_id" binding:"required"`
	Customer        string     `json:"customer"`
	OrderDate       time.Time  `json:"order_date"`
	Items           []LineItem `json:"items" binding:"required,min=1,dive"`
}

// LineItem is one product-and-quantity pair of an order. Zero and negative
// quantities are filtered silently; upstream sources legitimately send them.
type LineItem struct {
	ExternalProductID string `json:"external_product_id" binding:"required"`
	Name              string `json:"name"`
	SKU               string `json:"sku"`
	Quantity          int    `json:"quantity"`
}

// Shortfall reports an uncovered remainder on one order line.
type Shortfall struct {
	ExternalProductID string `json:"external_product_id"`
	Missing           int    `json:"missing"`
}

// OrderResult is the outcome of processing one order. A resubmission of an
// already-processed order returns the original outcome with
// AlreadyProcessed set.
type OrderResult struct {
	OrderID          int64                     `json:"order_id"`
	ExternalOrderID  string                    `json:"external_order_id"`
	AlreadyProcessed bool                      `json:"already_processed"`
	Consumptions     []models.OrderConsumption `json:"consumptions"`
	Shortfalls       []Shortfall               `json:"shortfalls,omitempty"`
}

// ProcessOrder allocates every line item of the order against existing
// batches in FEFO order, synthesizing new batches on shortfall, and records
// the order together with its consumptions. Either everything commits or
// nothing does.
func (e *AllocationEngine) ProcessOrder(ctx context.Context, tenant string, req *OrderRequest) (*OrderResult, error) {
	ctx, span := util.StartSpan(ctx, "AllocationEngine.ProcessOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.AllocationLatency.Observe(time.Since(start).Seconds())
	}()

	items := filterItems(req.Items)
	if req.ExternalOrderID == "" {
		util.OrdersFailedTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: missing external order id", models.ErrInvalidInput)
	}
	if len(items) == 0 {
		util.OrdersFailedTotal.WithLabelValues("invalid_input").Inc()
		return nil, fmt.Errorf("%w: no line items with positive quantity", models.ErrInvalidInput)
	}

	orderDate := req.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}

	var result *OrderResult
	err := e.storage.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = e.processInTx(ctx, tx, tenant, req, items, orderDate)
		return err
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("tx_error").Inc()
		return nil, err
	}

	if result.AlreadyProcessed {
		util.OrdersDuplicateTotal.Inc()
		e.logger.Info("Duplicate order submission",
			zap.String("external_order_id", req.ExternalOrderID),
			zap.Int64("order_id", result.OrderID))
		return result, nil
	}

	util.OrdersProcessedTotal.Inc()
	e.publishOutcome(ctx, tenant, result)

	e.logger.Info("Order processed",
		zap.String("tenant", tenant),
		zap.String("external_order_id", req.ExternalOrderID),
		zap.Int64("order_id", result.OrderID),
		zap.Int("consumptions", len(result.Consumptions)),
		zap.Int("shortfalls", len(result.Shortfalls)))

	return result, nil
}

func (e *AllocationEngine) processInTx(ctx context.Context, tx store.Tx, tenant string, req *OrderRequest, items []LineItem, orderDate time.Time) (*OrderResult, error) {
	order := &models.Order{
		ExternalID: req.ExternalOrderID,
		Customer:   req.Customer,
		OrderDate:  orderDate,
	}

	inserted, err := tx.InsertOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Exactly-once: a previous (possibly concurrent) submission already
		// recorded this order. Return its outcome, touch nothing.
		existing, err := tx.GetOrderByExternalID(ctx, req.ExternalOrderID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("order %s vanished after conflict", req.ExternalOrderID)
		}
		consumptions, err := tx.OrderConsumptions(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &OrderResult{
			OrderID:          existing.ID,
			ExternalOrderID:  existing.ExternalID,
			AlreadyProcessed: true,
			Consumptions:     consumptions,
			Shortfalls:       deriveShortfalls(items, consumptions),
		}, nil
	}

	result := &OrderResult{
		OrderID:         order.ID,
		ExternalOrderID: order.ExternalID,
		Consumptions:    []models.OrderConsumption{},
	}

	for _, item := range items {
		if err := e.allocateLine(ctx, tx, tenant, order, item, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// allocateLine walks the product's fulfillable batches in FEFO order,
// consuming min(outstanding, remaining) from each until the line is covered,
// then falls back to synthesis.
func (e *AllocationEngine) allocateLine(ctx context.Context, tx store.Tx, tenant string, order *models.Order, item LineItem, result *OrderResult) error {
	product, err := tx.EnsureProduct(ctx, item.ExternalProductID, item.Name, item.SKU)
	if err != nil {
		return err
	}

	outstanding := item.Quantity

	batches, err := tx.ListFulfillableBatches(ctx, product.ID)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		if outstanding == 0 {
			break
		}
		take := outstanding
		if batch.Remaining < take {
			take = batch.Remaining
		}

		if err := tx.DecrementBatch(ctx, batch.ID, take); err != nil {
			if errors.Is(err, models.ErrInsufficientStock) {
				// A concurrent order drained this batch between the snapshot
				// and our decrement; move on to the next candidate.
				continue
			}
			return err
		}

		if err := e.recordConsumption(ctx, tx, order, product, batch.BatchNumber, batch.ID, take, result); err != nil {
			return err
		}
		outstanding -= take
	}

	if outstanding == 0 {
		return nil
	}

	if !e.synthesize {
		e.recordShortfall(tenant, order.ExternalID, item.ExternalProductID, outstanding, result)
		return nil
	}

	batch, err := e.synthesizeBatch(ctx, tx, tenant, product, item, order.OrderDate, outstanding)
	if err != nil {
		return err
	}
	if err := tx.DecrementBatch(ctx, batch.ID, outstanding); err != nil {
		return err
	}
	return e.recordConsumption(ctx, tx, order, product, batch.BatchNumber, batch.ID, outstanding, result)
}

// synthesizeBatch creates a new batch from resolver hints. The batch is
// always at least large enough to cover the outstanding requirement, even
// when the default-quantity hint is smaller or absent.
func (e *AllocationEngine) synthesizeBatch(ctx context.Context, tx store.Tx, tenant string, product *models.Product, item LineItem, orderDate time.Time, outstanding int) (*models.Batch, error) {
	hints := e.lookupHints(ctx, tenant, item.ExternalProductID)

	quantity := outstanding
	if hints.DefaultBatchQuantity != nil && *hints.DefaultBatchQuantity > quantity {
		quantity = *hints.DefaultBatchQuantity
	}

	var expiry *time.Time
	if hints.ShelfLifeDays != nil {
		d := orderDate.AddDate(0, 0, *hints.ShelfLifeDays)
		expiry = &d
	}

	batch := &models.Batch{
		ProductID:       product.ID,
		BatchNumber:     synthesizeBatchNumber(product.SKU),
		ExpiryDate:      expiry,
		InitialQuantity: quantity,
	}
	if err := tx.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	util.BatchesSynthesizedTotal.Inc()
	e.logger.Info("Batch synthesized on shortfall",
		zap.String("tenant", tenant),
		zap.String("product", item.ExternalProductID),
		zap.String("batch_number", batch.BatchNumber),
		zap.Int("quantity", quantity))

	return batch, nil
}

// lookupHints consults the metadata resolver. Resolver failure never aborts
// an order: it degrades to empty hints.
func (e *AllocationEngine) lookupHints(ctx context.Context, tenant, externalProductID string) models.ProductHints {
	hints, err := e.resolver.ResolveProductHints(ctx, tenant, externalProductID)
	if err != nil {
		e.logger.Warn("Resolver unavailable, proceeding without hints",
			zap.String("tenant", tenant),
			zap.String("product", externalProductID),
			zap.Error(err))
		return models.ProductHints{}
	}
	return hints
}

func (e *AllocationEngine) recordConsumption(ctx context.Context, tx store.Tx, order *models.Order, product *models.Product, batchNumber string, batchID int64, quantity int, result *OrderResult) error {
	consumption := &models.Consumption{
		OrderID:   order.ID,
		ProductID: product.ID,
		BatchID:   batchID,
		Quantity:  quantity,
	}
	if err := tx.InsertConsumption(ctx, consumption); err != nil {
		return err
	}

	util.ConsumptionsRecordedTotal.Inc()
	result.Consumptions = append(result.Consumptions, models.OrderConsumption{
		ExternalProductID: product.ExternalID,
		BatchNumber:       batchNumber,
		Quantity:          quantity,
	})
	return nil
}

func (e *AllocationEngine) recordShortfall(tenant, externalOrderID, externalProductID string, missing int, result *OrderResult) {
	util.AllocationShortfallTotal.Inc()
	e.logger.Warn("Allocation shortfall",
		zap.String("tenant", tenant),
		zap.String("external_order_id", externalOrderID),
		zap.String("product", externalProductID),
		zap.Int("missing", missing))

	result.Shortfalls = append(result.Shortfalls, Shortfall{
		ExternalProductID: externalProductID,
		Missing:           missing,
	})
}

// publishOutcome emits the post-commit events. Publish failures are logged,
// never propagated: the order is already durable.
func (e *AllocationEngine) publishOutcome(ctx context.Context, tenant string, result *OrderResult) {
	if e.events == nil {
		return
	}

	processed := &models.OrderProcessedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderProcessed,
			Timestamp: time.Now(),
		},
		OrderID:         result.OrderID,
		ExternalOrderID: result.ExternalOrderID,
		Tenant:          tenant,
		Consumptions:    result.Consumptions,
	}
	if err := e.events.PublishOrderProcessed(ctx, processed); err != nil {
		e.logger.Error("Failed to publish OrderProcessed event", zap.Error(err))
	}

	for _, shortfall := range result.Shortfalls {
		event := &models.AllocationShortfallEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeAllocationShortfall,
				Timestamp: time.Now(),
			},
			Tenant:            tenant,
			ExternalOrderID:   result.ExternalOrderID,
			ExternalProductID: shortfall.ExternalProductID,
			Missing:           shortfall.Missing,
		}
		if err := e.events.PublishAllocationShortfall(ctx, event); err != nil {
			e.logger.Error("Failed to publish AllocationShortfall event", zap.Error(err))
		}
	}
}

// deriveShortfalls reconstructs the uncovered remainders of an already
// processed order by comparing the requested quantities against the persisted
// consumptions, so a resubmission reports the same outcome as the original
// call did.
func deriveShortfalls(items []LineItem, consumptions []models.OrderConsumption) []Shortfall {
	consumed := make(map[string]int, len(consumptions))
	for _, c := range consumptions {
		consumed[c.ExternalProductID] += c.Quantity
	}

	requested := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := requested[item.ExternalProductID]; !seen {
			order = append(order, item.ExternalProductID)
		}
		requested[item.ExternalProductID] += item.Quantity
	}

	var shortfalls []Shortfall
	for _, id := range order {
		if missing := requested[id] - consumed[id]; missing > 0 {
			shortfalls = append(shortfalls, Shortfall{ExternalProductID: id, Missing: missing})
		}
	}
	return shortfalls
}

// filterItems drops non-positive quantities before the transaction starts.
func filterItems(items []LineItem) []LineItem {
	kept := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity > 0 && item.ExternalProductID != "" {
			kept = append(kept, item)
		}
	}
	return kept
}

// synthesizeBatchNumber derives a collision-resistant batch number from the
// product SKU (or a fallback token), a timestamp component and a short random
// suffix.
func synthesizeBatchNumber(sku string) string {
	token := strings.ToUpper(strings.TrimSpace(sku))
	if token == "" {
		token = "LOT"
	}
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("%s-%s-%s", token, time.Now().UTC().Format("20060102T150405"), suffix)
}
