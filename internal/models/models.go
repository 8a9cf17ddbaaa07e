package models

import "time"

// Product is the internal identity for a catalog item. Products are created
// lazily the first time a batch or order line references an unseen external
// product identifier and are never deleted.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Name       string    `db:"name" json:"name"`
	SKU        string    `db:"sku" json:"sku,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Batch is a dated lot of a product. Remaining never goes negative; the
// storage layer enforces this with a compare-and-decrement.
type Batch struct {
	ID              int64      `db:"id" json:"id"`
	ProductID       int64      `db:"product_id" json:"product_id"`
	BatchNumber     string     `db:"batch_number" json:"batch_number"`
	ExpiryDate      *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	InitialQuantity int        `db:"initial_quantity" json:"initial_quantity"`
	Remaining       int        `db:"remaining" json:"remaining"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Order is one external sale. ExternalID is the idempotency key: the unique
// index on it guarantees exactly-once processing.
type Order struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Customer   string    `db:"customer" json:"customer,omitempty"`
	OrderDate  time.Time `db:"order_date" json:"order_date"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Consumption is an immutable fact: which order drew how many units from
// which batch. A single order line may produce several consumptions when it
// was split across batches. ProductID is denormalized from the batch for
// query convenience.
type Consumption struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	BatchID   int64 `db:"batch_id" json:"batch_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// OrderConsumption is the caller-facing view of a consumption, resolved to
// external identifiers.
type OrderConsumption struct {
	ExternalProductID string `db:"external_product_id" json:"external_product_id"`
	BatchNumber       string `db:"batch_number" json:"batch_number"`
	Quantity          int    `db:"quantity" json:"quantity"`
}

// TraceEntry answers "which orders consumed batch B".
type TraceEntry struct {
	OrderID         int64     `db:"order_id" json:"order_id"`
	ExternalOrderID string    `db:"external_order_id" json:"external_order_id"`
	Customer        string    `db:"customer" json:"customer,omitempty"`
	OrderDate       time.Time `db:"order_date" json:"order_date"`
	ProductName     string    `db:"product_name" json:"product_name"`
	Quantity        int       `db:"quantity" json:"quantity"`
}

// ProductHints are the optional values returned by the metadata resolver.
// Both fields are absent when the upstream catalog has no opinion; they are
// consulted only when stock must be synthesized.
type ProductHints struct {
	ShelfLifeDays        *int `json:"shelf_life_days,omitempty"`
	DefaultBatchQuantity *int `json:"default_batch_quantity,omitempty"`
}
