package inventory

import "context"

// MovementCompletedEvent is published after a movement commits to DONE.
// Handlers run outside the movement transaction and must be idempotent.
type MovementCompletedEvent struct {
	MovementID   int64
	ProductID    int64
	Qty          float64
	DestLocation int64
	POLineID     int64
	RefModule    string
	RefID        string
}

// IntegrationHandler receives movement completion events. Implementations
// live outside this package so downstream modules can react without a
// direct import back into inventory.
type IntegrationHandler interface {
	OnMovementCompleted(ctx context.Context, ev MovementCompletedEvent)
}
