package fulfillment

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/shared"
)

// SourceType says how a plan's requirement is sourced.
type SourceType string

const (
	// SourceStock covers the requirement from the destination warehouse's
	// own stock; no movement is needed.
	SourceStock SourceType = "stock"
	// SourceTransfer moves stock in from another internal location.
	SourceTransfer SourceType = "transfer"
	// SourcePurchase buys the requirement from a vendor.
	SourcePurchase SourceType = "purchase"
)

// PlanStatus tracks a plan's progress.
type PlanStatus string

const (
	StatusPending    PlanStatus = "pending"
	StatusInProgress PlanStatus = "in_progress"
	StatusFulfilled  PlanStatus = "fulfilled"
	StatusException  PlanStatus = "exception"
)

// Plan records how one request line's requirement is sourced and how much of
// it has actually arrived. Plans are never deleted, only superseded by
// status updates.
type Plan struct {
	ID            int64      `json:"id"`
	RequestLineID int64      `json:"request_line_id"`
	SessionID     int64      `json:"session_id"`
	SourceType    SourceType `json:"source_type"`
	SourceLocID   int64      `json:"source_location_id,omitempty"`
	DestLocID     int64      `json:"dest_location_id"`
	PlannedQty    float64    `json:"planned_qty"`
	FulfilledQty  float64    `json:"fulfilled_qty"`
	RemainingQty  float64    `json:"remaining_qty"`
	Status        PlanStatus `json:"status"`

	// Links are one-to-many so split sourcing stays representable, though
	// the engine itself never splits a plan.
	MovementIDs []int64 `json:"movement_ids,omitempty"`
	POLineIDs   []int64 `json:"po_line_ids,omitempty"`

	PlannedStart time.Time `json:"planned_start,omitempty"`
	PlannedEnd   time.Time `json:"planned_end,omitempty"`
	ActualStart  time.Time `json:"actual_start,omitempty"`
	ActualEnd    time.Time `json:"actual_end,omitempty"`
	Notes        string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeDerived refreshes the remaining quantity. It never goes negative.
func (p *Plan) RecomputeDerived() {
	p.RemainingQty = p.PlannedQty - p.FulfilledQty
	if p.RemainingQty < 0 {
		p.RemainingQty = 0
	}
}

// ApplyQty folds a completed receipt quantity into the plan and advances its
// status: fulfilled once fulfilled >= planned, in_progress before that.
func (p *Plan) ApplyQty(qty float64, at time.Time) {
	p.FulfilledQty += qty
	p.RecomputeDerived()
	if p.ActualStart.IsZero() {
		p.ActualStart = at
	}
	if p.FulfilledQty >= p.PlannedQty {
		p.Status = StatusFulfilled
		p.ActualEnd = at
	} else {
		p.Status = StatusInProgress
	}
}

// LineStatus is the request-line rollup derived from its plans.
type LineStatus string

const (
	LineNotIncluded        LineStatus = "not_included"
	LinePending            LineStatus = "pending"
	LineInProgress         LineStatus = "in_progress"
	LinePartiallyFulfilled LineStatus = "partially_fulfilled"
	LineFulfilled          LineStatus = "fulfilled"
)

// RollupLineStatus derives a request line's status from its plans.
func RollupLineStatus(plans []Plan) LineStatus {
	if len(plans) == 0 {
		return LineNotIncluded
	}
	var planned, fulfilled float64
	started := false
	for _, p := range plans {
		planned += p.PlannedQty
		fulfilled += p.FulfilledQty
		if p.Status != StatusPending {
			started = true
		}
	}
	switch {
	case fulfilled >= planned && planned > 0:
		return LineFulfilled
	case fulfilled > 0:
		return LinePartiallyFulfilled
	case started:
		return LineInProgress
	}
	return LinePending
}

// Suggestion is the outcome of the sourcing decision for a request line.
type Suggestion struct {
	SourceType  SourceType `json:"source_type"`
	SourceLocID int64      `json:"source_location_id,omitempty"`
	DestLocID   int64      `json:"dest_location_id"`
}

var (
	// ErrPlanNotFound indicates a missing fulfillment plan.
	ErrPlanNotFound = fmt.Errorf("%w: fulfillment plan", shared.ErrNotFound)
	// ErrInvalidPlan indicates a malformed plan input.
	ErrInvalidPlan = fmt.Errorf("%w: invalid fulfillment plan", shared.ErrValidation)
	// ErrInsufficientStockElsewhere indicates no internal location holds
	// enough stock to cover a transfer sourcing.
	ErrInsufficientStockElsewhere = fmt.Errorf("%w: no location holds enough stock", shared.ErrResourceUnavailable)
	// ErrNoWarehouseConfigured indicates no destination warehouse could be
	// resolved for the owning company.
	ErrNoWarehouseConfigured = fmt.Errorf("%w: no warehouse configured", shared.ErrResourceUnavailable)
)
