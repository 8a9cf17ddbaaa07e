package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"batch-service/internal/models"
)

// ListFulfillableBatches returns the allocation candidates for a product:
// remaining stock > 0, earliest expiry first, undated batches last, ties
// broken by creation time. Inside a transaction the rows come back locked so
// a competing allocation blocks rather than double-spending the same units.
func (s *queries) ListFulfillableBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	batches := []models.Batch{}
	err := s.q.SelectContext(ctx, &batches, `
		SELECT id, product_id, batch_number, expiry_date, initial_quantity, remaining, created_at
		FROM batches
		WHERE product_id = $1 AND remaining > 0
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC
		FOR UPDATE`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fulfillable batches: %w", err)
	}
	return batches, nil
}

// CreateBatch inserts a new batch with remaining equal to its initial
// quantity.
func (s *queries) CreateBatch(ctx context.Context, batch *models.Batch) error {
	err := s.q.GetContext(ctx, batch, `
		INSERT INTO batches (product_id, batch_number, expiry_date, initial_quantity, remaining)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, product_id, batch_number, expiry_date, initial_quantity, remaining, created_at`,
		batch.ProductID, batch.BatchNumber, batch.ExpiryDate, batch.InitialQuantity)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("batch number %s: %w", batch.BatchNumber, models.ErrDuplicateBatchNumber)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("product %d: %w", batch.ProductID, models.ErrUnknownProduct)
		}
		return fmt.Errorf("failed to create batch: %w", err)
	}
	return nil
}

// DecrementBatch applies a compare-and-decrement: the update only lands when
// the batch still holds at least amount units, so remaining can never go
// negative even under concurrent decrements.
func (s *queries) DecrementBatch(ctx context.Context, batchID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: non-positive decrement %d", models.ErrInvalidInput, amount)
	}

	result, err := s.q.ExecContext(ctx,
		"UPDATE batches SET remaining = remaining - $1 WHERE id = $2 AND remaining >= $1",
		amount, batchID)
	if err != nil {
		return fmt.Errorf("failed to decrement batch %d: %w", batchID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("batch %d, amount %d: %w", batchID, amount, models.ErrInsufficientStock)
	}
	return nil
}

// GetBatch retrieves a batch by ID
func (s *queries) GetBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	var batch models.Batch
	err := s.q.GetContext(ctx, &batch,
		"SELECT id, product_id, batch_number, expiry_date, initial_quantity, remaining, created_at FROM batches WHERE id = $1",
		batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListBatches retrieves all batches of a product, drained ones included.
func (s *queries) ListBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	batches := []models.Batch{}
	err := s.q.SelectContext(ctx, &batches, `
		SELECT id, product_id, batch_number, expiry_date, initial_quantity, remaining, created_at
		FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date ASC NULLS LAST, created_at ASC, id ASC`,
		productID)
	return batches, err
}

// UpdateBatch applies an administrative correction to expiry and/or quantity.
// A quantity correction rewrites both remaining and initial quantity. The
// update statement itself refuses batches with recorded consumptions, so a
// consumption committed by a concurrent allocation can never be overwritten
// by a correction racing it.
func (s *queries) UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) error {
	sets := []string{}
	args := []interface{}{}

	if expiry != nil {
		args = append(args, *expiry)
		sets = append(sets, "expiry_date = $"+strconv.Itoa(len(args)))
	}
	if quantity != nil {
		if *quantity < 0 {
			return fmt.Errorf("%w: negative quantity %d", models.ErrInvalidInput, *quantity)
		}
		args = append(args, *quantity)
		n := strconv.Itoa(len(args))
		sets = append(sets, "remaining = $"+n, "initial_quantity = $"+n)
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: nothing to update", models.ErrInvalidInput)
	}

	args = append(args, batchID)
	id := strconv.Itoa(len(args))
	query := "UPDATE batches SET " + strings.Join(sets, ", ") +
		" WHERE id = $" + id +
		" AND NOT EXISTS (SELECT 1 FROM consumptions WHERE batch_id = $" + id + ")"

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update batch %d: %w", batchID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Zero rows is either an unknown batch or one that has been consumed
		// from; tell them apart for the caller.
		var exists bool
		if err := s.q.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM batches WHERE id = $1)", batchID); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchConsumed)
		}
		return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	return nil
}

// DeleteBatch removes a batch that nothing has consumed from. The foreign key
// from consumptions doubles as the guard against a racing consumer.
func (s *queries) DeleteBatch(ctx context.Context, batchID int64) error {
	result, err := s.q.ExecContext(ctx, "DELETE FROM batches WHERE id = $1", batchID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchHasConsumptions)
		}
		return fmt.Errorf("failed to delete batch %d: %w", batchID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchNotFound)
	}
	return nil
}

// BatchHasConsumptions reports whether any order has drawn from the batch.
func (s *queries) BatchHasConsumptions(ctx context.Context, batchID int64) (bool, error) {
	var exists bool
	err := s.q.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM consumptions WHERE batch_id = $1)", batchID)
	return exists, err
}
