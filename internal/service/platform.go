package service

import (
	"fmt"
	"time"

	"batch-service/internal/models"
)

// PlatformOrder is the loosely-typed order representation the sales platform
// delivers over webhook and topic. It is mapped into the canonical
// OrderRequest before the core ever sees it; authenticity verification
// happens upstream.
type PlatformOrder struct {
	ID        string             `json:"id"`
	Customer  PlatformCustomer   `json:"customer"`
	CreatedAt *time.Time         `json:"created_at"`
	LineItems []PlatformLineItem `json:"line_items"`
}

// PlatformCustomer carries the optional customer label.
type PlatformCustomer struct {
	Name string `json:"name"`
}

// PlatformLineItem is one platform order line. Quantity may legitimately be
// zero (cancelled or informational lines); those are dropped during mapping.
type PlatformLineItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
}

// MapPlatformOrder converts a platform payload into the canonical order
// shape, filtering lines without a product id or a positive quantity.
func MapPlatformOrder(p *PlatformOrder) (*OrderRequest, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: platform order without id", models.ErrInvalidInput)
	}

	orderDate := time.Now().UTC()
	if p.CreatedAt != nil {
		orderDate = *p.CreatedAt
	}

	items := make([]LineItem, 0, len(p.LineItems))
	for _, line := range p.LineItems {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		items = append(items, LineItem{
			ExternalProductID: line.ProductID,
			Name:              line.Title,
			SKU:               line.SKU,
			Quantity:          line.Quantity,
		})
	}

	return &OrderRequest{
		ExternalOrderID: p.ID,
		Customer:        p.Customer.Name,
		OrderDate:       orderDate,
		Items:           items,
	}, nil
}
