package inventory

import (
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Direction of a stock movement relative to a location.
type Direction string

const (
	// DirectionIn selects movements arriving at a location.
	DirectionIn Direction = "IN"
	// DirectionOut selects movements leaving a location.
	DirectionOut Direction = "OUT"
)

// MovementState enumerates the lifecycle of a stock movement.
type MovementState string

const (
	// StateDraft is a planned movement not yet confirmed.
	StateDraft MovementState = "DRAFT"
	// StateWaiting awaits availability.
	StateWaiting MovementState = "WAITING"
	// StateAssigned is reserved and ready to execute.
	StateAssigned MovementState = "ASSIGNED"
	// StateDone is completed; quantities have physically moved.
	StateDone MovementState = "DONE"
	// StateCancelled is aborted.
	StateCancelled MovementState = "CANCELLED"
)

// OpenStates are the states counted as scheduled (not yet executed).
var OpenStates = []MovementState{StateDraft, StateWaiting, StateAssigned}

// Movement models a stock movement between two locations.
type Movement struct {
	ID             int64
	Code           string
	ProductID      int64
	Qty            float64
	SourceLocation int64
	DestLocation   int64
	State          MovementState
	ScheduledAt    time.Time
	CompletedAt    time.Time
	// POLineID links receipts back to the purchase order line that caused
	// them; completion reconciliation resolves fulfillment plans through it.
	POLineID  int64
	RefModule string
	RefID     string
	Note      string
	CreatedBy int64
	CreatedAt time.Time
}

// Balance summarises on-hand stock per location and product.
type Balance struct {
	LocationID int64
	ProductID  int64
	Qty        float64
	UpdatedAt  time.Time
}

// ScheduledQty is one scheduled movement quantity with its expected date.
type ScheduledQty struct {
	Qty  float64
	Date time.Time
}

// Snapshot is the point-in-time stock picture for a product at a location.
// Quantities are reads, not reservations; callers must tolerate staleness.
type Snapshot struct {
	ProductID    int64
	LocationID   int64
	OnHand       float64
	ScheduledIn  float64
	ScheduledOut float64
	Forecast     float64
	TakenAt      time.Time
}

// UsageHistory aggregates completed outbound movements over a trailing window.
type UsageHistory struct {
	ProductID   int64
	WarehouseID int64
	WindowDays  int
	TotalQty    float64
	AvgDaily    float64
	AvgMonthly  float64
}

// MovementInput describes a movement to schedule.
type MovementInput struct {
	Code           string
	ProductID      int64
	Qty            float64
	SourceLocation int64
	DestLocation   int64
	ScheduledAt    time.Time
	POLineID       int64
	RefModule      string
	RefID          string
	Note           string
	ActorID        int64
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrNegativeStock is returned when completing a movement would drive a
	// source location negative.
	ErrNegativeStock = fmt.Errorf("%w: negative stock not allowed", shared.ErrPrecondition)
	// ErrMovementNotOpen indicates completion of a movement not in an open state.
	ErrMovementNotOpen = fmt.Errorf("%w: movement is not open", shared.ErrPrecondition)
	// ErrBalanceNotFound indicates a missing balance row.
	ErrBalanceNotFound = fmt.Errorf("%w: stock balance", shared.ErrNotFound)
	// ErrNoSourceLocation indicates no internal location holds enough stock.
	ErrNoSourceLocation = fmt.Errorf("%w: no location with sufficient stock", shared.ErrResourceUnavailable)
)
