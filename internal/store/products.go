package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"batch-service/internal/models"
)

// EnsureProduct resolves an external product identifier to the internal
// product row, creating one on first reference. Concurrent creators racing on
// the same external identifier converge to a single row: the insert is
// unique-constraint protected and the loser re-reads.
func (s *queries) EnsureProduct(ctx context.Context, externalID, name, sku string) (*models.Product, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: empty external product id", models.ErrInvalidInput)
	}

	var product models.Product
	err := s.q.GetContext(ctx, &product, `
		INSERT INTO products (external_id, name, sku)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING id, external_id, name, sku, created_at`,
		externalID, name, sku)
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}

	// Lost the race or the product already existed.
	err = s.q.GetContext(ctx, &product,
		"SELECT id, external_id, name, sku, created_at FROM products WHERE external_id = $1",
		externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", externalID, err)
	}
	return &product, nil
}
