package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryRepo struct {
	balances  map[string]Balance
	movements map[int64]Movement
	usages    map[int64]string
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		balances:  make(map[string]Balance),
		movements: make(map[int64]Movement),
		usages:    make(map[int64]string),
	}
}

func balanceKey(locationID, productID int64) string {
	return fmt.Sprintf("%d:%d", locationID, productID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if filter.State != "" && m.State != filter.State {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *memoryRepo) GetBalance(ctx context.Context, locationID, productID int64) (Balance, error) {
	if b, ok := r.balances[balanceKey(locationID, productID)]; ok {
		return b, nil
	}
	return Balance{}, ErrBalanceNotFound
}

func (r *memoryRepo) SumBalanceAtWarehouse(ctx context.Context, warehouseID, productID int64) (float64, error) {
	var total float64
	for _, b := range r.balances {
		if b.ProductID == productID {
			total += b.Qty
		}
	}
	return total, nil
}

func (r *memoryRepo) SumScheduled(ctx context.Context, locationID, productID int64, dir Direction, until time.Time) (float64, error) {
	var total float64
	for _, m := range r.movements {
		if m.ProductID != productID || !isOpen(m.State) || m.ScheduledAt.After(until) {
			continue
		}
		if dir == DirectionIn && m.DestLocation == locationID {
			total += m.Qty
		}
		if dir == DirectionOut && m.SourceLocation == locationID {
			total += m.Qty
		}
	}
	return total, nil
}

func (r *memoryRepo) NextOpenInbound(ctx context.Context, locationID, productID int64) (ScheduledQty, bool, error) {
	var best ScheduledQty
	found := false
	for _, m := range r.movements {
		if m.ProductID != productID || m.DestLocation != locationID {
			continue
		}
		if m.State != StateWaiting && m.State != StateAssigned {
			continue
		}
		if !found || m.ScheduledAt.Before(best.Date) {
			best = ScheduledQty{Qty: m.Qty, Date: m.ScheduledAt}
			found = true
		}
	}
	return best, found, nil
}

func (r *memoryRepo) SumCompletedOutboundSince(ctx context.Context, warehouseID, productID int64, since time.Time) (float64, error) {
	var total float64
	for _, m := range r.movements {
		if m.ProductID != productID || m.State != StateDone || m.CompletedAt.Before(since) {
			continue
		}
		if r.usages[m.SourceLocation] == string(warehouses.UsageInternal) {
			total += m.Qty
		}
	}
	return total, nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tx.repo.movements[m.ID] = m
	return m.ID, nil
}

func (tx *memoryTx) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	return tx.repo.GetMovement(ctx, id)
}

func (tx *memoryTx) SetMovementState(ctx context.Context, id int64, state MovementState, completedAt time.Time) error {
	m, ok := tx.repo.movements[id]
	if !ok {
		return ErrMovementNotFound
	}
	m.State = state
	m.CompletedAt = completedAt
	tx.repo.movements[id] = m
	return nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, locationID, productID int64) (Balance, error) {
	return tx.repo.GetBalance(ctx, locationID, productID)
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, b Balance) error {
	tx.repo.balances[balanceKey(b.LocationID, b.ProductID)] = b
	return nil
}

func (tx *memoryTx) LocationUsage(ctx context.Context, locationID int64) (string, error) {
	usage, ok := tx.repo.usages[locationID]
	if !ok {
		return "", ErrLocationNotFound
	}
	return usage, nil
}

type capturedEvents struct {
	events []MovementCompletedEvent
}

func (c *capturedEvents) OnMovementCompleted(ctx context.Context, ev MovementCompletedEvent) {
	c.events = append(c.events, ev)
}

const (
	locSupplier = int64(10)
	locStockA   = int64(20)
	locStockB   = int64(21)
	locCustomer = int64(30)
)

func newTestService(repo *memoryRepo) *Service {
	repo.usages[locSupplier] = string(warehouses.UsageSupplier)
	repo.usages[locStockA] = string(warehouses.UsageInternal)
	repo.usages[locStockB] = string(warehouses.UsageInternal)
	repo.usages[locCustomer] = string(warehouses.UsageCustomer)
	return NewService(repo, nil, nil, nil, ServiceConfig{})
}

func TestReceiptIncreasesBalanceAndFiresEvent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	sink := &capturedEvents{}
	svc.AddIntegrationHandler(sink)
	ctx := context.Background()

	m, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID:      1,
		Qty:            25,
		SourceLocation: locSupplier,
		DestLocation:   locStockA,
		POLineID:       77,
		RefModule:      "procurement",
	})
	require.NoError(t, err)
	require.Equal(t, StateAssigned, m.State)

	done, err := svc.CompleteMovement(ctx, m.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StateDone, done.State)
	require.False(t, done.CompletedAt.IsZero())

	onHand, err := svc.OnHand(ctx, 1, locStockA)
	require.NoError(t, err)
	require.InDelta(t, 25, onHand, 0.0001)

	// Supplier side carries no balance row.
	_, err = repo.GetBalance(ctx, locSupplier, 1)
	require.ErrorIs(t, err, ErrBalanceNotFound)

	require.Len(t, sink.events, 1)
	require.Equal(t, int64(77), sink.events[0].POLineID)
	require.Equal(t, locStockA, sink.events[0].DestLocation)
}

func TestCompleteRejectsClosedMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 5, SourceLocation: locSupplier, DestLocation: locStockA,
	})
	require.NoError(t, err)

	_, err = svc.CompleteMovement(ctx, m.ID, 1)
	require.NoError(t, err)

	_, err = svc.CompleteMovement(ctx, m.ID, 1)
	require.ErrorIs(t, err, ErrMovementNotOpen)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 3, SourceLocation: locStockA, DestLocation: locCustomer,
	})
	require.NoError(t, err)

	_, err = svc.CompleteMovement(ctx, m.ID, 1)
	require.ErrorIs(t, err, ErrNegativeStock)
}

func TestCancelThenCompleteFails(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	m, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 5, SourceLocation: locSupplier, DestLocation: locStockA,
	})
	require.NoError(t, err)
	require.NoError(t, svc.CancelMovement(ctx, m.ID, 1))

	_, err = svc.CompleteMovement(ctx, m.ID, 1)
	require.ErrorIs(t, err, ErrMovementNotOpen)
}

func TestSnapshotForecastFoldsScheduledQuantities(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 40, SourceLocation: locSupplier, DestLocation: locStockA,
	})
	require.NoError(t, err)
	_, err = svc.CompleteMovement(ctx, receipt.ID, 1)
	require.NoError(t, err)

	// Inbound 10 and outbound 15 inside the horizon.
	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 10, SourceLocation: locSupplier, DestLocation: locStockA,
		ScheduledAt: time.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 15, SourceLocation: locStockA, DestLocation: locCustomer,
		ScheduledAt: time.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	// Beyond the horizon: ignored.
	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 100, SourceLocation: locSupplier, DestLocation: locStockA,
		ScheduledAt: time.Now().AddDate(0, 0, forecastHorizonDays+10),
	})
	require.NoError(t, err)

	snap, err := svc.GetSnapshot(ctx, 1, locStockA)
	require.NoError(t, err)
	require.InDelta(t, 40, snap.OnHand, 0.0001)
	require.InDelta(t, 10, snap.ScheduledIn, 0.0001)
	require.InDelta(t, 15, snap.ScheduledOut, 0.0001)
	require.InDelta(t, 35, snap.Forecast, 0.0001)
}

func TestNextExpectedReceiptPicksEarliest(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, ok, err := svc.NextExpectedReceipt(ctx, 1, locStockA)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 30, SourceLocation: locSupplier, DestLocation: locStockA,
		ScheduledAt: time.Now().AddDate(0, 0, 9),
	})
	require.NoError(t, err)
	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 12, SourceLocation: locSupplier, DestLocation: locStockA,
		ScheduledAt: time.Now().AddDate(0, 0, 2),
	})
	require.NoError(t, err)

	next, ok, err := svc.NextExpectedReceipt(ctx, 1, locStockA)
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 12, next.Qty, 0.0001)
}

func TestUsageAverages(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 180, SourceLocation: locSupplier, DestLocation: locStockA,
	})
	require.NoError(t, err)
	_, err = svc.CompleteMovement(ctx, receipt.ID, 1)
	require.NoError(t, err)

	issue, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 90, SourceLocation: locStockA, DestLocation: locCustomer,
	})
	require.NoError(t, err)
	_, err = svc.CompleteMovement(ctx, issue.ID, 1)
	require.NoError(t, err)

	usage, err := svc.Usage(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 90, usage.TotalQty, 0.0001)
	require.InDelta(t, 1, usage.AvgDaily, 0.0001)
	require.InDelta(t, 30, usage.AvgMonthly, 0.0001)
}

func TestScheduleValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 0, SourceLocation: locSupplier, DestLocation: locStockA,
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.ScheduleMovement(ctx, MovementInput{
		ProductID: 1, Qty: 5, SourceLocation: locStockA, DestLocation: locStockA,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
