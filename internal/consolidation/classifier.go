package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/policy"
)

// StockPort is the snapshot provider surface the classifier reads. Values
// are point-in-time reads, never reservations; the classifier tolerates
// staleness.
type StockPort interface {
	GetSnapshot(ctx context.Context, productID, locationID int64) (inventory.Snapshot, error)
	NextExpectedReceipt(ctx context.Context, productID, locationID int64) (inventory.ScheduledQty, bool, error)
	Usage(ctx context.Context, productID, warehouseID int64) (inventory.UsageHistory, error)
	OnHandAtWarehouse(ctx context.Context, productID, warehouseID int64) (float64, error)
}

// PolicyPort resolves the applicable stock policy rule.
type PolicyPort interface {
	Resolve(ctx context.Context, productID, categoryID, warehouseID int64) (policy.Rule, bool, error)
}

// ProductPort reads product master data.
type ProductPort interface {
	Get(ctx context.Context, id int64) (products.Product, error)
}

// WarehousePort reads warehouse and location master data.
type WarehousePort interface {
	PrimaryLocation(ctx context.Context, warehouseID int64) (warehouses.Location, error)
	OtherWarehouses(ctx context.Context, companyID, excludeID int64) ([]warehouses.Warehouse, error)
}

// VendorSource proposes a vendor and price for a product.
type VendorSource interface {
	SuggestVendor(ctx context.Context, productID int64) (VendorSuggestion, bool, error)
}

// waitReceiptDays is the receipt proximity within which a shortage waits
// instead of purchasing.
const waitReceiptDays = 3

// LineWarning records a per-line classification problem that did not abort
// the batch.
type LineWarning struct {
	LineID    int64  `json:"line_id"`
	ProductID int64  `json:"product_id"`
	Message   string `json:"message"`
}

// Summary is the outcome of one classifier run across a session.
type Summary struct {
	SessionID           int64         `json:"session_id"`
	TotalLines          int           `json:"total_lines"`
	StockoutCount       int           `json:"stockout_count"`
	BelowSafetyCount    int           `json:"below_safety_count"`
	BelowReorderCount   int           `json:"below_reorder_count"`
	CriticalCount       int           `json:"critical_count"`
	WithExpectedReceipt int           `json:"with_expected_receipt"`
	Warnings            []LineWarning `json:"warnings,omitempty"`
}

// Classifier computes inventory status and a procurement recommendation for
// consolidated lines.
type Classifier struct {
	stock    StockPort
	policies PolicyPort
	products ProductPort
	houses   WarehousePort
	vendors  VendorSource
}

// NewClassifier builds a Classifier. vendors may be nil; lines then price
// from the product's standard cost.
func NewClassifier(stock StockPort, policies PolicyPort, products ProductPort, houses WarehousePort, vendors VendorSource) *Classifier {
	return &Classifier{stock: stock, policies: policies, products: products, houses: houses, vendors: vendors}
}

// SetVendorSource attaches the vendor source after construction. The
// procurement service that backs it is itself built on top of this module,
// so wiring happens in two steps.
func (c *Classifier) SetVendorSource(vendors VendorSource) {
	c.vendors = vendors
}

// ClassifyLine fills the line's availability, status, recommendation, policy
// snapshot, and pricing in place. now anchors receipt-proximity math. The
// returned flag reports whether a policy rule was resolved; without one the
// line classifies against zero thresholds and callers surface a warning.
func (c *Classifier) ClassifyLine(ctx context.Context, session Session, line *ConsolidatedLine, now time.Time) (bool, error) {
	product, err := c.products.Get(ctx, line.ProductID)
	if err != nil {
		return false, fmt.Errorf("product %d: %w", line.ProductID, err)
	}

	if !product.Kind.Stockable() {
		line.Status = StatusNormal
		line.Recommendation = RecommendNone
		line.AvailableQty = 0
		line.Policy = nil
		line.RecomputeDerived()
		return true, c.price(ctx, line, product)
	}

	location, err := c.houses.PrimaryLocation(ctx, session.WarehouseID)
	if err != nil {
		return false, fmt.Errorf("warehouse %d primary location: %w", session.WarehouseID, err)
	}
	snap, err := c.stock.GetSnapshot(ctx, line.ProductID, location.ID)
	if err != nil {
		return false, fmt.Errorf("snapshot product %d: %w", line.ProductID, err)
	}

	rule, ruleFound, err := c.policies.Resolve(ctx, line.ProductID, product.CategoryID, session.WarehouseID)
	if err != nil {
		return false, fmt.Errorf("resolve policy product %d: %w", line.ProductID, err)
	}

	usage, err := c.stock.Usage(ctx, line.ProductID, session.WarehouseID)
	if err != nil {
		return false, fmt.Errorf("usage product %d: %w", line.ProductID, err)
	}

	receipt, hasReceipt, err := c.stock.NextExpectedReceipt(ctx, line.ProductID, location.ID)
	if err != nil {
		return false, fmt.Errorf("expected receipt product %d: %w", line.ProductID, err)
	}

	snapshot := PolicySnapshot{
		RuleID:          rule.ID,
		SafetyStock:     rule.SafetyStock,
		ReorderPoint:    rule.ReorderPoint,
		LeadTimeDays:    rule.LeadTimeDays,
		AvgDailyUsage:   usage.AvgDaily,
		AvgMonthlyUsage: usage.AvgMonthly,
		ForecastQty:     snap.Forecast,
	}
	if usage.AvgDaily > 0 {
		snapshot.DaysOfStock = snap.OnHand / usage.AvgDaily
	}
	if snap.OnHand > 0 {
		// Annualize the window's outbound quantity against current stock.
		snapshot.TurnoverRate = usage.TotalQty * (365.0 / float64(usage.WindowDays)) / snap.OnHand
	}
	if hasReceipt {
		snapshot.ExpectedReceipt = receipt.Date
	}

	line.AvailableQty = snap.OnHand
	line.Policy = &snapshot
	line.Status = classifyStatus(snap.OnHand, rule.SafetyStock, rule.ReorderPoint, line.TotalQty)
	line.Recommendation, err = c.recommend(ctx, session, line.ProductID, line.Status, hasReceipt, receipt.Date, now)
	if err != nil {
		return false, err
	}
	line.RecomputeDerived()
	if err := c.price(ctx, line, product); err != nil {
		return false, err
	}
	return ruleFound, nil
}

// classifyStatus evaluates the precedence ladder; first match wins.
func classifyStatus(onHand, safetyStock, reorderPoint, requested float64) InventoryStatus {
	switch {
	case onHand <= 0:
		return StatusStockout
	case onHand < safetyStock:
		return StatusBelowSafety
	case onHand < reorderPoint:
		return StatusBelowReorder
	case onHand > 2*reorderPoint && reorderPoint > 0:
		return StatusExcess
	case onHand >= requested:
		return StatusSufficient
	case onHand > 0 && onHand < requested:
		return StatusPartial
	}
	return StatusInsufficient
}

func (c *Classifier) recommend(ctx context.Context, session Session, productID int64, status InventoryStatus, hasReceipt bool, receiptDate time.Time, now time.Time) (Recommendation, error) {
	switch status {
	case StatusStockout, StatusBelowSafety:
		if hasReceipt && !receiptDate.After(now.AddDate(0, 0, waitReceiptDays)) {
			return RecommendWait, nil
		}
		found, err := c.findTransferCandidate(ctx, session, productID)
		if err != nil {
			return "", err
		}
		if found {
			return RecommendTransfer, nil
		}
		return RecommendPurchase, nil
	case StatusBelowReorder:
		if hasReceipt {
			return RecommendWait, nil
		}
		return RecommendPurchase, nil
	}
	return RecommendNone, nil
}

// findTransferCandidate looks for another warehouse holding the product
// above that warehouse's own safety level.
func (c *Classifier) findTransferCandidate(ctx context.Context, session Session, productID int64) (bool, error) {
	others, err := c.houses.OtherWarehouses(ctx, session.CompanyID, session.WarehouseID)
	if err != nil {
		return false, err
	}
	for _, w := range others {
		onHand, err := c.stock.OnHandAtWarehouse(ctx, productID, w.ID)
		if err != nil {
			return false, err
		}
		if onHand <= 0 {
			continue
		}
		rule, _, err := c.policies.Resolve(ctx, productID, 0, w.ID)
		if err != nil {
			return false, err
		}
		if onHand > rule.SafetyStock {
			return true, nil
		}
	}
	return false, nil
}

// price sets the estimated unit price: an active agreement line first, then
// the cheapest vendor quote, then the product's standard cost.
func (c *Classifier) price(ctx context.Context, line *ConsolidatedLine, product products.Product) error {
	line.SuggestedVendorID = 0
	line.AgreementLineID = 0
	line.EstimatedPrice = product.StandardCost
	if c.vendors != nil {
		suggestion, ok, err := c.vendors.SuggestVendor(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("suggest vendor product %d: %w", line.ProductID, err)
		}
		if ok {
			line.SuggestedVendorID = suggestion.VendorID
			line.AgreementLineID = suggestion.AgreementLineID
			if suggestion.UnitPrice > 0 {
				line.EstimatedPrice = suggestion.UnitPrice
			}
		}
	}
	line.Subtotal = line.QtyToPurchase * line.EstimatedPrice
	return nil
}
