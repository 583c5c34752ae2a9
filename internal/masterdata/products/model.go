package products

import (
	"time"
)

// Kind distinguishes stockable goods from pure services. Services bypass
// quantity-based inventory math during classification.
type Kind string

const (
	// KindStockable marks goods tracked in stock.
	KindStockable Kind = "STOCKABLE"
	// KindConsumable marks goods consumed without strict tracking, still classified.
	KindConsumable Kind = "CONSUMABLE"
	// KindService marks non-stockable offerings.
	KindService Kind = "SERVICE"
)

// Stockable reports whether inventory classification applies.
func (k Kind) Stockable() bool {
	return k == KindStockable || k == KindConsumable
}

// Product represents a product entity.
type Product struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Kind         Kind      `json:"kind"`
	CategoryID   int64     `json:"category_id"`
	UnitID       int64     `json:"unit_id"`
	StandardCost float64   `json:"standard_cost"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
