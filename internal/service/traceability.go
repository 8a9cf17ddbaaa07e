package service

import (
	"context"

	"batch-service/internal/models"
	"batch-service/internal/store"
	"batch-service/internal/util"
)

// TraceabilityService answers "which orders consumed batch B". Read-only.
type TraceabilityService struct {
	storage store.Storage
}

// NewTraceabilityService creates a new traceability service
func NewTraceabilityService(storage store.Storage) *TraceabilityService {
	return &TraceabilityService{storage: storage}
}

// FindOrdersByBatchNumber lists every order that consumed units of the named
// batch, most recent order first. Empty when no consumption references the
// batch number.
func (s *TraceabilityService) FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error) {
	ctx, span := util.StartSpan(ctx, "TraceabilityService.FindOrdersByBatchNumber")
	defer span.End()

	return s.storage.FindOrdersByBatchNumber(ctx, batchNumber)
}
