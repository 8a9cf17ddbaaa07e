package models

import "time"

// Event types
const (
	EventTypeOrderProcessed      = "ORDER_PROCESSED"
	EventTypeAllocationShortfall = "ALLOCATION_SHORTFALL"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderProcessedEvent is published after an order's allocation commits.
type OrderProcessedEvent struct {
	BaseEvent
	OrderID         int64              `json:"order_id"`
	ExternalOrderID string             `json:"external_order_id"`
	Tenant          string             `json:"tenant"`
	Consumptions    []OrderConsumption `json:"consumptions"`
}

// AllocationShortfallEvent is published when an order committed with an
// uncovered remainder. Operators act on these; they must never be dropped
// silently.
type AllocationShortfallEvent struct {
	BaseEvent
	Tenant            string `json:"tenant"`
	ExternalOrderID   string `json:"external_order_id"`
	ExternalProductID string `json:"external_product_id"`
	Missing           int    `json:"missing"`
}
