package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/shared"
)

// StockPort reads on-hand quantities. Values are point-in-time reads.
type StockPort interface {
	OnHand(ctx context.Context, productID, locationID int64) (float64, error)
}

// WarehousePort reads warehouse and location master data.
type WarehousePort interface {
	PrimaryLocation(ctx context.Context, warehouseID int64) (warehouses.Location, error)
	ListInternalLocations(ctx context.Context, companyID int64) ([]warehouses.Location, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service tracks fulfillment plans from sourcing decision to completion.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	houses   WarehousePort
	audit    AuditPort
	logger   *slog.Logger
	handlers []IntegrationHandler
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, houses WarehousePort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, stock: stock, houses: houses, audit: audit, logger: logger}
}

// AddIntegrationHandler registers an event handler. Call during wiring.
func (s *Service) AddIntegrationHandler(h IntegrationHandler) {
	s.handlers = append(s.handlers, h)
}

// CreatePlanInput describes a new plan.
type CreatePlanInput struct {
	RequestLineID int64
	SessionID     int64
	ProductID     int64
	PlannedQty    float64
	CompanyID     int64
	WarehouseID   int64
	SourceType    SourceType
	SourceLocID   int64
	POLineIDs     []int64
	PlannedStart  time.Time
	PlannedEnd    time.Time
	Notes         string
	ActorID       int64
}

// CreatePlan records a sourcing decision for one request line. When no
// source type is given the first-fit suggestion decides it.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (Plan, error) {
	if input.RequestLineID == 0 || input.PlannedQty <= 0 {
		return Plan{}, fmt.Errorf("%w: request line and a positive quantity are required", ErrInvalidPlan)
	}
	if input.WarehouseID == 0 {
		return Plan{}, ErrNoWarehouseConfigured
	}

	plan := Plan{
		RequestLineID: input.RequestLineID,
		SessionID:     input.SessionID,
		SourceType:    input.SourceType,
		SourceLocID:   input.SourceLocID,
		PlannedQty:    input.PlannedQty,
		Status:        StatusPending,
		POLineIDs:     input.POLineIDs,
		PlannedStart:  input.PlannedStart,
		PlannedEnd:    input.PlannedEnd,
		Notes:         input.Notes,
	}
	if plan.SourceType == "" {
		suggestion, err := s.SuggestSource(ctx, input.ProductID, input.PlannedQty, input.CompanyID, input.WarehouseID)
		if err != nil {
			return Plan{}, err
		}
		plan.SourceType = suggestion.SourceType
		plan.SourceLocID = suggestion.SourceLocID
		plan.DestLocID = suggestion.DestLocID
	}
	if plan.DestLocID == 0 {
		primary, err := s.houses.PrimaryLocation(ctx, input.WarehouseID)
		if err != nil {
			return Plan{}, err
		}
		plan.DestLocID = primary.ID
	}
	plan.RecomputeDerived()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPlan(ctx, plan)
		if err != nil {
			return err
		}
		plan.ID = id
		return nil
	})
	if err != nil {
		return Plan{}, err
	}
	s.recordAudit(ctx, input.ActorID, "fulfillment:create_plan", plan.ID, map[string]any{
		"request_line_id": plan.RequestLineID, "source_type": string(plan.SourceType),
	})
	return plan, nil
}

// SuggestSource applies the first-fit sourcing rule: the destination
// warehouse's own stock, then a single other internal location holding the
// full quantity, then purchase. It never splits across locations.
func (s *Service) SuggestSource(ctx context.Context, productID int64, qty float64, companyID, warehouseID int64) (Suggestion, error) {
	if warehouseID == 0 {
		return Suggestion{}, ErrNoWarehouseConfigured
	}
	primary, err := s.houses.PrimaryLocation(ctx, warehouseID)
	if err != nil {
		return Suggestion{}, err
	}
	onHand, err := s.stock.OnHand(ctx, productID, primary.ID)
	if err != nil {
		return Suggestion{}, err
	}
	if onHand >= qty {
		return Suggestion{SourceType: SourceStock, DestLocID: primary.ID}, nil
	}

	sourceID, err := s.transferSource(ctx, productID, qty, companyID, primary.ID)
	if err == nil {
		return Suggestion{SourceType: SourceTransfer, SourceLocID: sourceID, DestLocID: primary.ID}, nil
	}
	if !isInsufficient(err) {
		return Suggestion{}, err
	}
	return Suggestion{SourceType: SourcePurchase, DestLocID: primary.ID}, nil
}

// TransferSource finds a single internal location, other than the
// destination, holding at least qty. Callers forcing a transfer sourcing get
// ErrInsufficientStockElsewhere when none exists.
func (s *Service) TransferSource(ctx context.Context, productID int64, qty float64, companyID, warehouseID int64) (int64, error) {
	if warehouseID == 0 {
		return 0, ErrNoWarehouseConfigured
	}
	primary, err := s.houses.PrimaryLocation(ctx, warehouseID)
	if err != nil {
		return 0, err
	}
	return s.transferSource(ctx, productID, qty, companyID, primary.ID)
}

func (s *Service) transferSource(ctx context.Context, productID int64, qty float64, companyID, excludeLocID int64) (int64, error) {
	locations, err := s.houses.ListInternalLocations(ctx, companyID)
	if err != nil {
		return 0, err
	}
	for _, loc := range locations {
		if loc.ID == excludeLocID {
			continue
		}
		onHand, err := s.stock.OnHand(ctx, productID, loc.ID)
		if err != nil {
			return 0, err
		}
		if onHand >= qty {
			return loc.ID, nil
		}
	}
	return 0, ErrInsufficientStockElsewhere
}

func isInsufficient(err error) bool {
	return errors.Is(err, ErrInsufficientStockElsewhere)
}

// ApplyReceipt folds a completed inbound movement into every plan linked to
// the purchase-order line. Plans are locked so racing partial receipts
// serialize; a receipt with no linked plans is a no-op.
func (s *Service) ApplyReceipt(ctx context.Context, poLineID int64, qty float64, movementID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: receipt quantity must be positive", shared.ErrValidation)
	}
	var events []PlanStatusChangedEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		events = events[:0]
		plans, err := tx.PlansByPOLineForUpdate(ctx, poLineID)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			s.logger.Debug("receipt without linked plans", "po_line_id", poLineID, "movement_id", movementID)
			return nil
		}
		now := time.Now().UTC()
		for _, plan := range plans {
			from := plan.Status
			plan.ApplyQty(qty, now)
			plan.MovementIDs = appendID(plan.MovementIDs, movementID)
			if err := tx.UpdatePlan(ctx, plan); err != nil {
				return err
			}
			if from != plan.Status {
				events = append(events, PlanStatusChangedEvent{
					PlanID:        plan.ID,
					RequestLineID: plan.RequestLineID,
					SessionID:     plan.SessionID,
					From:          from,
					To:            plan.Status,
					FulfilledQty:  plan.FulfilledQty,
					RemainingQty:  plan.RemainingQty,
				})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		for _, h := range s.handlers {
			h.OnPlanStatusChanged(ctx, ev)
		}
	}
	return nil
}

// MarkException flags a plan whose sourcing has failed for manual handling.
func (s *Service) MarkException(ctx context.Context, planID int64, note string, actorID int64) (Plan, error) {
	var plan Plan
	var from PlanStatus
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetPlanForUpdate(ctx, planID)
		if err != nil {
			return err
		}
		if locked.Status == StatusFulfilled {
			return fmt.Errorf("%w: plan already fulfilled", shared.ErrPrecondition)
		}
		from = locked.Status
		locked.Status = StatusException
		if note != "" {
			locked.Notes = note
		}
		if err := tx.UpdatePlan(ctx, locked); err != nil {
			return err
		}
		plan = locked
		return nil
	})
	if err != nil {
		return Plan{}, err
	}
	for _, h := range s.handlers {
		h.OnPlanStatusChanged(ctx, PlanStatusChangedEvent{
			PlanID: plan.ID, RequestLineID: plan.RequestLineID, SessionID: plan.SessionID,
			From: from, To: plan.Status, FulfilledQty: plan.FulfilledQty, RemainingQty: plan.RemainingQty,
		})
	}
	s.recordAudit(ctx, actorID, "fulfillment:exception", plan.ID, map[string]any{"note": note})
	return plan, nil
}

// GetPlan returns one plan.
func (s *Service) GetPlan(ctx context.Context, id int64) (Plan, error) {
	return s.repo.GetPlan(ctx, id)
}

// ListPlans lists plans matching the filter.
func (s *Service) ListPlans(ctx context.Context, filter PlanFilter) ([]Plan, error) {
	return s.repo.ListPlans(ctx, filter)
}

// RequestLineStatus derives the rollup status for one request line.
func (s *Service) RequestLineStatus(ctx context.Context, requestLineID int64) (LineStatus, error) {
	plans, err := s.repo.ListPlans(ctx, PlanFilter{RequestLineID: requestLineID})
	if err != nil {
		return "", err
	}
	return RollupLineStatus(plans), nil
}

func appendID(ids []int64, id int64) []int64 {
	if id == 0 {
		return ids
	}
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, planID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "fulfillment_plan",
		EntityID: fmt.Sprintf("%d", planID),
		Meta:     meta,
	})
}
