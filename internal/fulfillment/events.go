package fulfillment

import "context"

// PlanStatusChangedEvent fires after a plan's status moves, post commit.
type PlanStatusChangedEvent struct {
	PlanID        int64
	RequestLineID int64
	SessionID     int64
	From          PlanStatus
	To            PlanStatus
	FulfilledQty  float64
	RemainingQty  float64
}

// IntegrationHandler receives fulfillment events.
type IntegrationHandler interface {
	OnPlanStatusChanged(ctx context.Context, ev PlanStatusChangedEvent)
}
