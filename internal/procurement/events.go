package procurement

import "context"

// OrderCreatedEvent fires after a purchase order is committed.
type OrderCreatedEvent struct {
	OrderID     int64
	Number      string
	VendorID    int64
	SessionID   int64
	LineCount   int
	TotalAmount float64
}

// AgreementExpiredEvent fires when the expiry sweep closes an agreement.
type AgreementExpiredEvent struct {
	AgreementID int64
	Number      string
	VendorID    int64
}

// IntegrationHandler receives procurement events.
type IntegrationHandler interface {
	OnOrderCreated(ctx context.Context, ev OrderCreatedEvent)
	OnAgreementExpired(ctx context.Context, ev AgreementExpiredEvent)
}
