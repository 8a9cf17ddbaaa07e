package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"batch-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Tx is the set of operations available inside one allocation transaction.
// The allocation engine runs entirely against this interface so it can be
// exercised with an in-memory double.
type Tx interface {
	InsertOrder(ctx context.Context, order *models.Order) (bool, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	EnsureProduct(ctx context.Context, externalID, name, sku string) (*models.Product, error)
	ListFulfillableBatches(ctx context.Context, productID int64) ([]models.Batch, error)
	CreateBatch(ctx context.Context, batch *models.Batch) error
	DecrementBatch(ctx context.Context, batchID int64, amount int) error
	InsertConsumption(ctx context.Context, c *models.Consumption) error
	OrderConsumptions(ctx context.Context, orderID int64) ([]models.OrderConsumption, error)
}

// Storage is the full persistence surface. The same operations are available
// in autocommit mode plus the administrative and traceability queries.
type Storage interface {
	Tx
	WithinTx(ctx context.Context, fn func(Tx) error) error
	GetBatch(ctx context.Context, batchID int64) (*models.Batch, error)
	ListBatches(ctx context.Context, productID int64) ([]models.Batch, error)
	UpdateBatch(ctx context.Context, batchID int64, expiry *time.Time, quantity *int) error
	DeleteBatch(ctx context.Context, batchID int64) error
	BatchHasConsumptions(ctx context.Context, batchID int64) (bool, error)
	FindOrdersByBatchNumber(ctx context.Context, batchNumber string) ([]models.TraceEntry, error)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so every query below
// works in and out of a transaction.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type queries struct {
	q queryer
}

// Store is the Postgres-backed Storage implementation.
type Store struct {
	db *sqlx.DB
	queries
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, queries: queries{q: db}}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn inside a single database transaction. Any error from fn
// rolls the whole transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
