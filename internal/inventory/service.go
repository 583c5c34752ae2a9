package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/shared"
)

const (
	// forecastHorizonDays bounds the scheduled quantities folded into a snapshot.
	forecastHorizonDays = 30
	// usageWindowDays is the trailing window for consumption statistics.
	usageWindowDays = 90
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements and serves stock snapshots.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cache       *SnapshotCache
	allowNeg    bool
	handlers    []IntegrationHandler
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cache *SnapshotCache, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, cache: cache, allowNeg: cfg.AllowNegativeStock}
}

// AddIntegrationHandler registers a completion handler. Call during wiring,
// before the service starts receiving traffic.
func (s *Service) AddIntegrationHandler(h IntegrationHandler) {
	s.handlers = append(s.handlers, h)
}

// ScheduleMovement records a planned movement in ASSIGNED state. The code is
// the idempotency boundary: re-submitting the same code is rejected.
func (s *Service) ScheduleMovement(ctx context.Context, input MovementInput) (Movement, error) {
	if input.ProductID == 0 || input.SourceLocation == 0 || input.DestLocation == 0 {
		return Movement{}, fmt.Errorf("%w: product and locations required", shared.ErrValidation)
	}
	if input.SourceLocation == input.DestLocation {
		return Movement{}, fmt.Errorf("%w: source and destination must differ", shared.ErrValidation)
	}
	if input.Qty <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	code := input.Code
	if code == "" {
		code = fmt.Sprintf("MV-%d", now.UnixNano())
	}
	scheduledAt := input.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}

	key := fmt.Sprintf("movement:%s", code)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	movement := Movement{
		Code:           code,
		ProductID:      input.ProductID,
		Qty:            input.Qty,
		SourceLocation: input.SourceLocation,
		DestLocation:   input.DestLocation,
		State:          StateAssigned,
		ScheduledAt:    scheduledAt,
		POLineID:       input.POLineID,
		RefModule:      input.RefModule,
		RefID:          input.RefID,
		Note:           input.Note,
		CreatedBy:      input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory:schedule", movement)
	return movement, nil
}

// CompleteMovement executes an open movement: balances shift and the movement
// goes to DONE. Balances only exist for internal locations; the supplier and
// customer sides of a movement carry no balance row.
func (s *Service) CompleteMovement(ctx context.Context, movementID, actorID int64) (Movement, error) {
	var movement Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if !isOpen(m.State) {
			return fmt.Errorf("%w: movement %s is %s", ErrMovementNotOpen, m.Code, m.State)
		}
		if err := s.adjustBalance(ctx, tx, m.SourceLocation, m.ProductID, -m.Qty); err != nil {
			return err
		}
		if err := s.adjustBalance(ctx, tx, m.DestLocation, m.ProductID, m.Qty); err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.SetMovementState(ctx, m.ID, StateDone, now); err != nil {
			return err
		}
		m.State = StateDone
		m.CompletedAt = now
		movement = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	s.cache.Invalidate(ctx, movement.ProductID, movement.SourceLocation, movement.DestLocation)
	s.recordAudit(ctx, actorID, "inventory:complete", movement)

	ev := MovementCompletedEvent{
		MovementID:   movement.ID,
		ProductID:    movement.ProductID,
		Qty:          movement.Qty,
		DestLocation: movement.DestLocation,
		POLineID:     movement.POLineID,
		RefModule:    movement.RefModule,
		RefID:        movement.RefID,
	}
	for _, h := range s.handlers {
		h.OnMovementCompleted(ctx, ev)
	}
	return movement, nil
}

// CancelMovement aborts an open movement.
func (s *Service) CancelMovement(ctx context.Context, movementID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if !isOpen(m.State) {
			return fmt.Errorf("%w: movement %s is %s", ErrMovementNotOpen, m.Code, m.State)
		}
		return tx.SetMovementState(ctx, m.ID, StateCancelled, time.Time{})
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "inventory:cancel", Movement{ID: movementID})
	return nil
}

func (s *Service) adjustBalance(ctx context.Context, tx TxRepository, locationID, productID int64, delta float64) error {
	usage, err := tx.LocationUsage(ctx, locationID)
	if err != nil {
		return err
	}
	if usage != string(warehouses.UsageInternal) {
		return nil
	}
	balance, err := tx.GetBalanceForUpdate(ctx, locationID, productID)
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{LocationID: locationID, ProductID: productID}
	} else if err != nil {
		return err
	}
	balance.Qty += delta
	if !s.allowNeg && balance.Qty < -0.0001 {
		return fmt.Errorf("%w: location %d product %d", ErrNegativeStock, locationID, productID)
	}
	return tx.UpsertBalance(ctx, balance)
}

// GetMovement returns one movement.
func (s *Service) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

// ListMovements lists movements matching the filter.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// OnHand returns the current balance at one location. Missing balance rows
// read as zero.
func (s *Service) OnHand(ctx context.Context, productID, locationID int64) (float64, error) {
	b, err := s.repo.GetBalance(ctx, locationID, productID)
	if errors.Is(err, ErrBalanceNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return b.Qty, nil
}

// OnHandAtWarehouse totals on-hand across a warehouse's internal locations.
func (s *Service) OnHandAtWarehouse(ctx context.Context, productID, warehouseID int64) (float64, error) {
	return s.repo.SumBalanceAtWarehouse(ctx, warehouseID, productID)
}

// GetSnapshot returns the cached stock picture for one product and location.
// Quantities are advisory; nothing is reserved by reading them.
func (s *Service) GetSnapshot(ctx context.Context, productID, locationID int64) (Snapshot, error) {
	return s.cache.GetOrLoad(ctx, productID, locationID, func(ctx context.Context) (Snapshot, error) {
		return s.loadSnapshot(ctx, productID, locationID)
	})
}

func (s *Service) loadSnapshot(ctx context.Context, productID, locationID int64) (Snapshot, error) {
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, forecastHorizonDays)

	onHand, err := s.OnHand(ctx, productID, locationID)
	if err != nil {
		return Snapshot{}, err
	}
	in, err := s.repo.SumScheduled(ctx, locationID, productID, DirectionIn, horizon)
	if err != nil {
		return Snapshot{}, err
	}
	out, err := s.repo.SumScheduled(ctx, locationID, productID, DirectionOut, horizon)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ProductID:    productID,
		LocationID:   locationID,
		OnHand:       onHand,
		ScheduledIn:  in,
		ScheduledOut: out,
		Forecast:     onHand + in - out,
		TakenAt:      now,
	}, nil
}

// NextExpectedReceipt returns the earliest open inbound movement for one
// product and location. ok is false when nothing is scheduled.
func (s *Service) NextExpectedReceipt(ctx context.Context, productID, locationID int64) (ScheduledQty, bool, error) {
	return s.repo.NextOpenInbound(ctx, locationID, productID)
}

// Usage summarises completed consumption for one product at one warehouse
// over the trailing window.
func (s *Service) Usage(ctx context.Context, productID, warehouseID int64) (UsageHistory, error) {
	since := time.Now().UTC().AddDate(0, 0, -usageWindowDays)
	total, err := s.repo.SumCompletedOutboundSince(ctx, warehouseID, productID, since)
	if err != nil {
		return UsageHistory{}, err
	}
	return UsageHistory{
		ProductID:   productID,
		WarehouseID: warehouseID,
		WindowDays:  usageWindowDays,
		TotalQty:    total,
		AvgDaily:    total / usageWindowDays,
		AvgMonthly:  total / (usageWindowDays / 30),
	}, nil
}

func isOpen(state MovementState) bool {
	for _, s := range OpenStates {
		if s == state {
			return true
		}
	}
	return false
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"code":       m.Code,
			"product_id": m.ProductID,
			"qty":        m.Qty,
			"state":      string(m.State),
		},
	})
}
