package policy

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Rule is a stock policy keyed by product or category (mutually exclusive),
// optionally scoped to one warehouse. A rule with neither product nor
// category is the global default.
type Rule struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	WarehouseID  int64     `json:"warehouse_id,omitempty"`
	ProductID    int64     `json:"product_id,omitempty"`
	CategoryID   int64     `json:"category_id,omitempty"`
	SafetyStock  float64   `json:"safety_stock"`
	MinQty       float64   `json:"min_qty"`
	ReorderPoint float64   `json:"reorder_point"`
	MaxQty       float64   `json:"max_qty"`
	LeadTimeDays int       `json:"lead_time_days"`
	Priority     int       `json:"priority"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsDefault reports whether the rule is a global fallback.
func (r Rule) IsDefault() bool {
	return r.ProductID == 0 && r.CategoryID == 0
}

// Validate enforces rule invariants.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name required", shared.ErrValidation)
	}
	if r.ProductID != 0 && r.CategoryID != 0 {
		return ErrAmbiguousScope
	}
	if r.SafetyStock < 0 || r.MinQty < 0 || r.ReorderPoint < 0 || r.MaxQty < 0 {
		return fmt.Errorf("%w: quantities must be >= 0", shared.ErrValidation)
	}
	if r.MinQty > r.ReorderPoint || r.ReorderPoint > r.MaxQty {
		return ErrThresholdOrder
	}
	if r.SafetyStock > r.MinQty {
		return ErrSafetyAboveMin
	}
	if r.LeadTimeDays < 0 {
		return fmt.Errorf("%w: lead time must be >= 0", shared.ErrValidation)
	}
	return nil
}

var (
	// ErrAmbiguousScope indicates both product and category were set.
	ErrAmbiguousScope = fmt.Errorf("%w: rule scope is product or category, not both", shared.ErrValidation)
	// ErrThresholdOrder indicates min/reorder/max are out of order.
	ErrThresholdOrder = fmt.Errorf("%w: min <= reorder point <= max required", shared.ErrValidation)
	// ErrSafetyAboveMin indicates safety stock exceeds the minimum quantity.
	ErrSafetyAboveMin = fmt.Errorf("%w: safety stock must not exceed min qty", shared.ErrValidation)
	// ErrRuleNotFound indicates a missing rule row.
	ErrRuleNotFound = fmt.Errorf("%w: stock policy rule", shared.ErrNotFound)
)

// SuggestedSafetyStock derives a safety stock level from demand and lead time.
func SuggestedSafetyStock(avgDailyUsage float64, leadTimeDays int) float64 {
	return avgDailyUsage * float64(leadTimeDays) * 1.5
}

// SuggestedReorderPoint derives a reorder point: lead-time demand plus the
// safety buffer.
func SuggestedReorderPoint(avgDailyUsage float64, leadTimeDays int, safetyStock float64) float64 {
	return avgDailyUsage*float64(leadTimeDays) + safetyStock
}
