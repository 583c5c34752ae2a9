package consolidation

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/shared"
)

// SessionState enumerates the consolidation workflow. Transitions are
// monotonic except the cancel branch and the cancelled-to-draft reset.
type SessionState string

const (
	StateDraft               SessionState = "draft"
	StateSelectingLines      SessionState = "selecting_lines"
	StateInProgress          SessionState = "in_progress"
	StateValidated           SessionState = "validated"
	StateInventoryValidation SessionState = "inventory_validation"
	StateApproved            SessionState = "approved"
	StatePOCreation          SessionState = "po_creation"
	StatePOCreated           SessionState = "po_created"
	StateDone                SessionState = "done"
	StateCancelled           SessionState = "cancelled"
)

// Terminal reports whether the state accepts no further transitions except,
// for cancelled, the explicit reset to draft.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateCancelled
}

var transitions = map[SessionState]SessionState{
	StateDraft:               StateSelectingLines,
	StateSelectingLines:      StateInProgress,
	StateInProgress:          StateValidated,
	StateValidated:           StateInventoryValidation,
	StateInventoryValidation: StateApproved,
	StateApproved:            StatePOCreation,
	StatePOCreation:          StatePOCreated,
	StatePOCreated:           StateDone,
}

// CanTransition reports whether from may move to to. Cancellation is allowed
// from any non-terminal state; reset to draft only from cancelled.
func CanTransition(from, to SessionState) bool {
	if to == StateCancelled {
		return !from.Terminal()
	}
	if from == StateCancelled {
		return to == StateDraft
	}
	return transitions[from] == to
}

// Priority orders request urgency. Aggregation takes the max across
// contributors.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return 1
}

// Normalize maps unknown or empty priorities to normal.
func (p Priority) Normalize() Priority {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return p
	}
	return PriorityNormal
}

// MaxPriority returns the more urgent of two priorities.
func MaxPriority(a, b Priority) Priority {
	if a.Normalize().rank() >= b.Normalize().rank() {
		return a.Normalize()
	}
	return b.Normalize()
}

// InventoryStatus classifies a line's stock health.
type InventoryStatus string

const (
	StatusStockout     InventoryStatus = "stockout"
	StatusBelowSafety  InventoryStatus = "below_safety"
	StatusBelowReorder InventoryStatus = "below_reorder"
	StatusExcess       InventoryStatus = "excess"
	StatusSufficient   InventoryStatus = "sufficient"
	StatusPartial      InventoryStatus = "partial"
	StatusInsufficient InventoryStatus = "insufficient"
	// StatusNormal is the fixed classification for non-stockable products.
	StatusNormal InventoryStatus = "normal"
)

// Critical reports whether the status counts as a critical shortage for the
// approval guard.
func (s InventoryStatus) Critical() bool {
	return s == StatusStockout || s == StatusBelowSafety
}

// Recommendation is the engine's suggested action for a line.
type Recommendation string

const (
	RecommendPurchase Recommendation = "purchase"
	RecommendTransfer Recommendation = "transfer"
	RecommendWait     Recommendation = "wait"
	RecommendNone     Recommendation = "none"
)

// LineState tracks a consolidated line's own progression. It generally
// follows the session but is not strictly locked to it.
type LineState string

const (
	LineDraft       LineState = "draft"
	LineValidated   LineState = "validated"
	LinePOSuggested LineState = "po_suggested"
	LinePOCreated   LineState = "po_created"
	LineFulfilled   LineState = "fulfilled"
)

// Session groups purchase requests over a date window into per-product
// purchasing decisions.
type Session struct {
	ID            int64        `json:"id"`
	Reference     string       `json:"reference"`
	DateFrom      time.Time    `json:"date_from"`
	DateTo        time.Time    `json:"date_to"`
	State         SessionState `json:"state"`
	ResponsibleID int64        `json:"responsible_id"`
	CompanyID     int64        `json:"company_id"`
	WarehouseID   int64        `json:"warehouse_id"`
	CategoryID    int64        `json:"category_id,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	TotalAmount   float64      `json:"total_amount"`
	RequestIDs    []int64      `json:"request_ids"`

	ValidatedAt time.Time `json:"validated_at,omitempty"`

	InventoryValidated   bool      `json:"inventory_validated"`
	ValidatorID          int64     `json:"validator_id,omitempty"`
	InventoryValidatedAt time.Time `json:"inventory_validated_at,omitempty"`
	ValidationNotes      string    `json:"validation_notes,omitempty"`

	StockoutCount     int  `json:"stockout_count"`
	BelowSafetyCount  int  `json:"below_safety_count"`
	BelowReorderCount int  `json:"below_reorder_count"`
	PendingApproval   bool `json:"pending_approval"`

	POCreatedAt time.Time `json:"po_created_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PolicySnapshot freezes the classification inputs on a line at the time of
// the last classifier run.
type PolicySnapshot struct {
	RuleID          int64     `json:"rule_id,omitempty"`
	SafetyStock     float64   `json:"safety_stock"`
	ReorderPoint    float64   `json:"reorder_point"`
	LeadTimeDays    int       `json:"lead_time_days"`
	AvgDailyUsage   float64   `json:"avg_daily_usage"`
	AvgMonthlyUsage float64   `json:"avg_monthly_usage"`
	DaysOfStock     float64   `json:"days_of_stock"`
	TurnoverRate    float64   `json:"turnover_rate"`
	ForecastQty     float64   `json:"forecast_qty"`
	ExpectedReceipt time.Time `json:"expected_receipt,omitempty"`
}

// ConsolidatedLine is the unique per-(session, product) aggregation target.
type ConsolidatedLine struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"session_id"`
	ProductID     int64     `json:"product_id"`
	UoM           string    `json:"uom"`
	TotalQty      float64   `json:"total_qty"`
	AvailableQty  float64   `json:"available_qty"`
	QtyToPurchase float64   `json:"qty_to_purchase"`
	EarliestDate  time.Time `json:"earliest_date"`
	Priority      Priority  `json:"priority"`

	State          LineState       `json:"state"`
	Status         InventoryStatus `json:"inventory_status,omitempty"`
	Recommendation Recommendation  `json:"recommendation,omitempty"`

	SuggestedVendorID int64   `json:"suggested_vendor_id,omitempty"`
	AgreementLineID   int64   `json:"agreement_line_id,omitempty"`
	EstimatedPrice    float64 `json:"estimated_price"`
	Subtotal          float64 `json:"subtotal"`

	ContributorIDs []int64         `json:"contributor_line_ids"`
	Policy         *PolicySnapshot `json:"policy,omitempty"`

	ExceptionApproved   bool      `json:"exception_approved"`
	ExceptionApproverID int64     `json:"exception_approver_id,omitempty"`
	ExceptionAt         time.Time `json:"exception_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeDerived refreshes the derived quantity fields. Quantity to
// purchase never goes negative.
func (l *ConsolidatedLine) RecomputeDerived() {
	l.QtyToPurchase = l.TotalQty - l.AvailableQty
	if l.QtyToPurchase < 0 {
		l.QtyToPurchase = 0
	}
	l.Subtotal = l.QtyToPurchase * l.EstimatedPrice
}

// Actor identifies who invokes an operation and whether they may override
// the critical-shortage approval guard.
type Actor struct {
	ID                  int64
	CanOverrideShortage bool
}

// RequestLine is the aggregator's view of one purchase-request line.
type RequestLine struct {
	ID           int64
	RequestID    int64
	ProductID    int64
	UoM          string
	Qty          float64
	RequiredDate time.Time
	RequestDate  time.Time
	Priority     Priority
}

// EffectiveDate is the line's required date, falling back to the owning
// request's start date when absent.
func (r RequestLine) EffectiveDate() time.Time {
	if !r.RequiredDate.IsZero() {
		return r.RequiredDate
	}
	return r.RequestDate
}

// RequestLineFilter narrows eligible request lines for collection.
type RequestLineFilter struct {
	DateFrom   time.Time
	DateTo     time.Time
	CategoryID int64
	CompanyID  int64
}

// VendorSuggestion is a sourcing proposal for one product.
type VendorSuggestion struct {
	VendorID        int64
	UnitPrice       float64
	AgreementLineID int64
}

var (
	// ErrSessionNotFound indicates a missing session.
	ErrSessionNotFound = fmt.Errorf("%w: consolidation session", shared.ErrNotFound)
	// ErrLineNotFound indicates a missing consolidated line.
	ErrLineNotFound = fmt.Errorf("%w: consolidated line", shared.ErrNotFound)
	// ErrInvalidWindow indicates date_from after date_to.
	ErrInvalidWindow = fmt.Errorf("%w: date_from must be <= date_to", shared.ErrValidation)
	// ErrNoWarehouse indicates session creation without a warehouse. There is
	// no implicit default warehouse anywhere.
	ErrNoWarehouse = fmt.Errorf("%w: warehouse is required", shared.ErrValidation)
	// ErrNoEligibleRequests indicates the session's filters matched nothing.
	ErrNoEligibleRequests = fmt.Errorf("%w: no eligible requests in window", shared.ErrPrecondition)
	// ErrEmptyConsolidation indicates validation of a session with no lines.
	ErrEmptyConsolidation = fmt.Errorf("%w: session has no consolidated lines", shared.ErrPrecondition)
	// ErrApprovalRequired indicates critical shortages need an approver with
	// override authority.
	ErrApprovalRequired = fmt.Errorf("%w: critical shortages require elevated approval", shared.ErrPrecondition)
	// ErrInvalidTransition indicates a transition the workflow does not allow.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", shared.ErrPrecondition)
	// ErrSessionTerminal indicates line mutation on a done or cancelled session.
	ErrSessionTerminal = fmt.Errorf("%w: session is terminal", shared.ErrPrecondition)
	// ErrPOsRequired indicates closing po_creation without orders or an
	// explicit no-purchase acknowledgment.
	ErrPOsRequired = fmt.Errorf("%w: purchase orders or a no-purchase acknowledgment required", shared.ErrPrecondition)
)
