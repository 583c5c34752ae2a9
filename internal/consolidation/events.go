package consolidation

import "context"

// SessionStateChangedEvent is published after a transition commits.
type SessionStateChangedEvent struct {
	SessionID int64
	Reference string
	From      SessionState
	To        SessionState
	ActorID   int64
}

// LineUpsertedEvent is published when the aggregator creates or updates a
// consolidated line.
type LineUpsertedEvent struct {
	SessionID int64
	LineID    int64
	ProductID int64
	TotalQty  float64
}

// IntegrationHandler receives consolidation events. Handlers run after the
// owning transaction commits and must tolerate redelivery on retries.
type IntegrationHandler interface {
	OnSessionStateChanged(ctx context.Context, ev SessionStateChangedEvent)
	OnLineUpserted(ctx context.Context, ev LineUpsertedEvent)
}
