package procurement

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/shared"
)

// RequestState is the purchase request lifecycle.
type RequestState string

const (
	RequestDraft     RequestState = "draft"
	RequestSubmitted RequestState = "submitted"
	RequestClosed    RequestState = "closed"
	RequestCancelled RequestState = "cancelled"
)

// Priority mirrors the request urgency scale used downstream.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PurchaseRequest is a user-submitted need for goods.
type PurchaseRequest struct {
	ID          int64        `json:"id"`
	Number      string       `json:"number"`
	RequesterID int64        `json:"requester_id"`
	CompanyID   int64        `json:"company_id"`
	WarehouseID int64        `json:"warehouse_id,omitempty"`
	State       RequestState `json:"state"`
	RequestDate time.Time    `json:"request_date"`
	Notes       string       `json:"notes,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RequestLine is one requested product. Only submitted requests' lines are
// eligible for consolidation.
type RequestLine struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	ProductID    int64     `json:"product_id"`
	CategoryID   int64     `json:"category_id,omitempty"`
	UoM          string    `json:"uom"`
	Qty          float64   `json:"qty"`
	RequiredDate time.Time `json:"required_date,omitempty"`
	Priority     Priority  `json:"priority"`
	Notes        string    `json:"notes,omitempty"`
	// RequestDate mirrors the owning request's date so consumers can fall
	// back to it when the line has no required date.
	RequestDate time.Time `json:"request_date"`
}

// RequestLineFilter narrows eligible request lines.
type RequestLineFilter struct {
	States     []RequestState
	DateFrom   time.Time
	DateTo     time.Time
	CategoryID int64
	CompanyID  int64
	Limit      int
}

// OrderState is the purchase order lifecycle.
type OrderState string

const (
	OrderDraft     OrderState = "draft"
	OrderApproval  OrderState = "approval"
	OrderApproved  OrderState = "approved"
	OrderClosed    OrderState = "closed"
	OrderCancelled OrderState = "cancelled"
)

// PurchaseOrder is one vendor's order, typically born from an approved
// consolidation session.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	VendorID     int64      `json:"vendor_id"`
	SessionID    int64      `json:"session_id,omitempty"`
	CompanyID    int64      `json:"company_id"`
	WarehouseID  int64      `json:"warehouse_id"`
	State        OrderState `json:"state"`
	Currency     string     `json:"currency"`
	ExpectedDate time.Time  `json:"expected_date,omitempty"`
	TotalAmount  float64    `json:"total_amount"`
	ApprovedBy   int64      `json:"approved_by,omitempty"`
	ApprovedAt   time.Time  `json:"approved_at,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// OrderLine carries the quantity to purchase and its origin links back to
// the consolidated line and contributing request lines.
type OrderLine struct {
	ID                 int64   `json:"id"`
	OrderID            int64   `json:"order_id"`
	ProductID          int64   `json:"product_id"`
	Qty                float64 `json:"qty"`
	ReceivedQty        float64 `json:"received_qty"`
	Price              float64 `json:"price"`
	AgreementLineID    int64   `json:"agreement_line_id,omitempty"`
	ConsolidatedLineID int64   `json:"consolidated_line_id,omitempty"`
	RequestLineIDs     []int64 `json:"request_line_ids,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// VendorQuote is a supplier's standing price for a product.
type VendorQuote struct {
	ID           int64     `json:"id"`
	VendorID     int64     `json:"vendor_id"`
	ProductID    int64     `json:"product_id"`
	Price        float64   `json:"price"`
	Currency     string    `json:"currency"`
	LeadTimeDays int       `json:"lead_time_days"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
	CreatedAt    time.Time `json:"created_at"`
}

// AgreementState is the vendor agreement lifecycle.
type AgreementState string

const (
	AgreementDraft     AgreementState = "draft"
	AgreementActive    AgreementState = "active"
	AgreementExpired   AgreementState = "expired"
	AgreementCancelled AgreementState = "cancelled"
)

// Agreement is a negotiated vendor contract over a validity window. Active
// agreement lines take pricing precedence over quotes.
type Agreement struct {
	ID        int64          `json:"id"`
	Number    string         `json:"number"`
	VendorID  int64          `json:"vendor_id"`
	State     AgreementState `json:"state"`
	ValidFrom time.Time      `json:"valid_from"`
	ValidTo   time.Time      `json:"valid_to"`
	Notes     string         `json:"notes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AgreementLine fixes a product's unit price with optional quantity bounds.
type AgreementLine struct {
	ID          int64   `json:"id"`
	AgreementID int64   `json:"agreement_id"`
	ProductID   int64   `json:"product_id"`
	UnitPrice   float64 `json:"unit_price"`
	MinQty      float64 `json:"min_qty,omitempty"`
	MaxQty      float64 `json:"max_qty,omitempty"`
}

// VendorSuggestion is the best available sourcing for a product: an active
// agreement line first, then the cheapest valid quote.
type VendorSuggestion struct {
	VendorID        int64   `json:"vendor_id"`
	UnitPrice       float64 `json:"unit_price"`
	AgreementLineID int64   `json:"agreement_line_id,omitempty"`
	LeadTimeDays    int     `json:"lead_time_days,omitempty"`
}

var (
	// ErrRequestNotFound indicates a missing purchase request.
	ErrRequestNotFound = fmt.Errorf("%w: purchase request", shared.ErrNotFound)
	// ErrOrderNotFound indicates a missing purchase order.
	ErrOrderNotFound = fmt.Errorf("%w: purchase order", shared.ErrNotFound)
	// ErrOrderLineNotFound indicates a missing purchase order line.
	ErrOrderLineNotFound = fmt.Errorf("%w: purchase order line", shared.ErrNotFound)
	// ErrAgreementNotFound indicates a missing vendor agreement.
	ErrAgreementNotFound = fmt.Errorf("%w: vendor agreement", shared.ErrNotFound)
	// ErrInvalidState indicates an action against the wrong lifecycle state.
	ErrInvalidState = fmt.Errorf("%w: invalid state for operation", shared.ErrPrecondition)
	// ErrNoLines indicates a document that requires at least one line.
	ErrNoLines = fmt.Errorf("%w: at least one line is required", shared.ErrValidation)
	// ErrInvalidWindow indicates valid_from after valid_to.
	ErrInvalidWindow = fmt.Errorf("%w: valid_from must be <= valid_to", shared.ErrValidation)
	// ErrNoPurchasableLines indicates a session with nothing to order.
	ErrNoPurchasableLines = fmt.Errorf("%w: session has no purchase lines", shared.ErrPrecondition)
	// ErrOverReceipt indicates receiving more than the ordered quantity.
	ErrOverReceipt = fmt.Errorf("%w: received quantity exceeds ordered quantity", shared.ErrPrecondition)
)
