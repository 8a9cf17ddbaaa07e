package service

import (
	"context"
	"fmt"
	"time"

	"batch-service/internal/models"
	"batch-service/internal/store"
	"batch-service/internal/util"

	"go.uber.org/zap"
)

// BatchService carries the administrative batch operations: manual intake,
// corrections and removal. Allocation-time mutation belongs to the engine.
type BatchService struct {
	storage store.Storage
	logger  *zap.Logger
}

// NewBatchService creates a new batch service
func NewBatchService(storage store.Storage) *BatchService {
	return &BatchService{
		storage: storage,
		logger:  util.GetLogger(),
	}
}

// CreateBatch registers a new physical batch of a product.
func (s *BatchService) CreateBatch(ctx context.Context, productID int64, batchNumber string, expiry *time.Time, quantity int) (*models.Batch, error) {
	if batchNumber == "" {
		return nil, fmt.Errorf("%w: missing batch number", models.ErrInvalidInput)
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: negative quantity %d", models.ErrInvalidInput, quantity)
	}

	batch := &models.Batch{
		ProductID:       productID,
		BatchNumber:     batchNumber,
		ExpiryDate:      expiry,
		InitialQuantity: quantity,
	}
	if err := s.storage.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	s.logger.Info("Batch created",
		zap.String("batch_number", batchNumber),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return batch, nil
}

// UpdateBatch corrects a batch's expiry date and/or quantity. Corrections are
// forbidden once any order has consumed from the batch: rewriting a consumed
// lot would falsify the traceability record. The store enforces the guard in
// the update statement itself, so an allocation committing concurrently
// cannot slip in between a check here and the write.
func (s *BatchService) UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) (*models.Batch, error) {
	if err := s.storage.UpdateBatch(ctx, batchID, expiry, quantity); err != nil {
		return nil, err
	}
	return s.storage.GetBatch(ctx, batchID)
}

// DeleteBatch removes a batch no order has consumed from.
func (s *BatchService) DeleteBatch(ctx context.Context, batchID int64) error {
	consumed, err := s.storage.BatchHasConsumptions(ctx, batchID)
	if err != nil {
		return err
	}
	if consumed {
		return fmt.Errorf("batch %d: %w", batchID, models.ErrBatchHasConsumptions)
	}
	return s.storage.DeleteBatch(ctx, batchID)
}

// GetBatch retrieves one batch.
func (s *BatchService) GetBatch(ctx context.Context, batchID int64) (*models.Batch, error) {
	return s.storage.GetBatch(ctx, batchID)
}

// ListBatches lists a product's batches, drained ones included.
func (s *BatchService) ListBatches(ctx context.Context, productID int64) ([]models.Batch, error) {
	return s.storage.ListBatches(ctx, productID)
}
