package models

import "errors"

var (
	// ErrInvalidInput rejects a request before any transaction starts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateBatchNumber is returned when a batch number already exists.
	ErrDuplicateBatchNumber = errors.New("duplicate batch number")

	// ErrUnknownProduct is returned when a referenced product does not exist.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrBatchNotFound is returned when a referenced batch does not exist.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchHasConsumptions blocks deleting a batch that orders have drawn
	// from; the consumption rows are the traceability record.
	ErrBatchHasConsumptions = errors.New("batch has consumptions")

	// ErrBatchConsumed blocks administrative edits to a batch once any order
	// has consumed from it.
	ErrBatchConsumed = errors.New("batch already consumed from")

	// ErrInsufficientStock is an internal signal from the compare-and-decrement;
	// the allocation engine handles it by falling through to the next candidate
	// batch. It is never surfaced to external callers.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrResolverUnavailable marks a transport-level metadata resolver failure.
	// The engine degrades it to "no hints available".
	ErrResolverUnavailable = errors.New("metadata resolver unavailable")
)
