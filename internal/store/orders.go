package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batch-service/internal/models"
)

// InsertOrder writes the order row, returning false when an order with the
// same external identifier already exists. The unique index on external_id is
// the idempotency guard; a concurrent duplicate blocks on the conflict until
// the first writer commits and then reports false.
func (s *queries) InsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	err := s.q.GetContext(ctx, order, `
		INSERT INTO orders (external_id, customer, order_date)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, external_id, customer, order_date, created_at`,
		order.ExternalID, order.Customer, order.OrderDate)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}
	return true, nil
}

// GetOrderByExternalID retrieves an order by its external identifier; nil
// when none exists.
func (s *queries) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var order models.Order
	err := s.q.GetContext(ctx, &order,
		"SELECT id, external_id, customer, order_date, created_at FROM orders WHERE external_id = $1",
		externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// InsertConsumption records one immutable consumption fact.
func (s *queries) InsertConsumption(ctx context.Context, c *models.Consumption) error {
	err := s.q.GetContext(ctx, &c.ID, `
		INSERT INTO consumptions (order_id, product_id, batch_id, quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		c.OrderID, c.ProductID, c.BatchID, c.Quantity)
	if err != nil {
		return fmt.Errorf("failed to insert consumption: %w", err)
	}
	return nil
}

// OrderConsumptions returns an order's consumptions resolved to external
// identifiers, in insertion order.
func (s *queries) OrderConsumptions(ctx context.Context, orderID int64) ([]models.OrderConsumption, error) {
	consumptions := []models.OrderConsumption{}
	err := s.q.SelectContext(ctx, &consumptions, `
		SELECT p.external_id AS external_product_id, b.batch_number, c.quantity
		FROM consumptions c
		JOIN products p ON p.id = c.product_id
		JOIN batches b ON b.id = c.batch_id
		WHERE c.order_id = $1
		ORDER BY c.id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumptions for order %d: %w", orderID, err)
	}
	return consumptions, nil
}

// FindOrdersByBatchNumber answers the traceability question: every order that
// consumed units of the named batch, most recent order first. An unknown
// batch number and a batch nobody consumed from both come back empty; the
// boundary decides whether to distinguish them.
func (s *queries) FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error) {
	entries := []models.TraceEntry{}
	err := s.q.SelectContext(ctx, &entries, `
		SELECT o.id AS order_id, o.external_id AS external_order_id, o.customer,
		       o.order_date, p.name AS product_name, c.quantity
		FROM consumptions c
		JOIN batches b ON b.id = c.batch_id
		JOIN orders o ON o.id = c.order_id
		JOIN products p ON p.id = c.product_id
		WHERE b.batch_number = $1
		ORDER BY o.order_date DESC, o.id DESC`,
		batchNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to trace batch %s: %w", batchNumber, err)
	}
	return entries, nil
}
