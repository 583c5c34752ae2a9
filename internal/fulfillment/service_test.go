package fulfillment

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryPlanRepo struct {
	plans  map[int64]Plan
	nextID int64
}

func newMemoryPlanRepo() *memoryPlanRepo {
	return &memoryPlanRepo{plans: make(map[int64]Plan)}
}

func (r *memoryPlanRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryPlanRepo) GetPlan(_ context.Context, id int64) (Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

func (r *memoryPlanRepo) ListPlans(_ context.Context, filter PlanFilter) ([]Plan, error) {
	var out []Plan
	for _, p := range r.plans {
		if filter.SessionID != 0 && p.SessionID != filter.SessionID {
			continue
		}
		if filter.RequestLineID != 0 && p.RequestLineID != filter.RequestLineID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryPlanRepo) InsertPlan(_ context.Context, p Plan) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	r.plans[p.ID] = p
	return p.ID, nil
}

func (r *memoryPlanRepo) GetPlanForUpdate(ctx context.Context, id int64) (Plan, error) {
	return r.GetPlan(ctx, id)
}

func (r *memoryPlanRepo) UpdatePlan(_ context.Context, p Plan) error {
	if _, ok := r.plans[p.ID]; !ok {
		return ErrPlanNotFound
	}
	r.plans[p.ID] = p
	return nil
}

func (r *memoryPlanRepo) PlansByPOLineForUpdate(_ context.Context, poLineID int64) ([]Plan, error) {
	var out []Plan
	for _, p := range r.plans {
		for _, id := range p.POLineIDs {
			if id == poLineID {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeOnHand struct {
	byLocation map[int64]float64
}

func (f *fakeOnHand) OnHand(_ context.Context, _, locationID int64) (float64, error) {
	return f.byLocation[locationID], nil
}

type fakeLocations struct {
	primary  map[int64]warehouses.Location
	internal []warehouses.Location
}

func (f *fakeLocations) PrimaryLocation(_ context.Context, warehouseID int64) (warehouses.Location, error) {
	return f.primary[warehouseID], nil
}

func (f *fakeLocations) ListInternalLocations(_ context.Context, _ int64) ([]warehouses.Location, error) {
	return f.internal, nil
}

type capturedPlanEvents struct {
	events []PlanStatusChangedEvent
}

func (c *capturedPlanEvents) OnPlanStatusChanged(_ context.Context, ev PlanStatusChangedEvent) {
	c.events = append(c.events, ev)
}

const (
	destHouse   = int64(1)
	destLoc     = int64(11)
	sisterLocA  = int64(12)
	sisterLocB  = int64(13)
	testProduct = int64(5)
)

type planFixture struct {
	repo   *memoryPlanRepo
	stock  *fakeOnHand
	events *capturedPlanEvents
	svc    *Service
}

func newPlanFixture() *planFixture {
	f := &planFixture{
		repo:   newMemoryPlanRepo(),
		stock:  &fakeOnHand{byLocation: make(map[int64]float64)},
		events: &capturedPlanEvents{},
	}
	houses := &fakeLocations{
		primary: map[int64]warehouses.Location{
			destHouse: {ID: destLoc, WarehouseID: destHouse, Usage: warehouses.UsageInternal},
		},
		internal: []warehouses.Location{
			{ID: destLoc, WarehouseID: destHouse, Usage: warehouses.UsageInternal},
			{ID: sisterLocA, WarehouseID: 2, Usage: warehouses.UsageInternal},
			{ID: sisterLocB, WarehouseID: 3, Usage: warehouses.UsageInternal},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.repo, f.stock, houses, nil, logger)
	f.svc.AddIntegrationHandler(f.events)
	return f
}

func TestSuggestSourcePrefersOwnStock(t *testing.T) {
	f := newPlanFixture()
	f.stock.byLocation[destLoc] = 20

	s, err := f.svc.SuggestSource(context.Background(), testProduct, 10, 1, destHouse)
	require.NoError(t, err)
	require.Equal(t, SourceStock, s.SourceType)
	require.Equal(t, destLoc, s.DestLocID)
}

func TestSuggestSourceFirstFitTransfer(t *testing.T) {
	f := newPlanFixture()
	f.stock.byLocation[destLoc] = 2
	f.stock.byLocation[sisterLocA] = 4
	f.stock.byLocation[sisterLocB] = 50

	s, err := f.svc.SuggestSource(context.Background(), testProduct, 10, 1, destHouse)
	require.NoError(t, err)
	require.Equal(t, SourceTransfer, s.SourceType)
	// First location holding the full quantity wins; no splitting across A+B.
	require.Equal(t, sisterLocB, s.SourceLocID)
}

func TestSuggestSourceFallsBackToPurchase(t *testing.T) {
	f := newPlanFixture()
	f.stock.byLocation[sisterLocA] = 4
	f.stock.byLocation[sisterLocB] = 5

	s, err := f.svc.SuggestSource(context.Background(), testProduct, 10, 1, destHouse)
	require.NoError(t, err)
	require.Equal(t, SourcePurchase, s.SourceType)
	require.Zero(t, s.SourceLocID)
}

func TestSuggestSourceRequiresWarehouse(t *testing.T) {
	f := newPlanFixture()
	_, err := f.svc.SuggestSource(context.Background(), testProduct, 10, 1, 0)
	require.ErrorIs(t, err, ErrNoWarehouseConfigured)
	require.ErrorIs(t, err, shared.ErrResourceUnavailable)
}

func TestTransferSourceSignalsInsufficiency(t *testing.T) {
	f := newPlanFixture()
	f.stock.byLocation[sisterLocA] = 3

	_, err := f.svc.TransferSource(context.Background(), testProduct, 10, 1, destHouse)
	require.ErrorIs(t, err, ErrInsufficientStockElsewhere)
	require.ErrorIs(t, err, shared.ErrResourceUnavailable)
}

func TestCreatePlanAutoSuggests(t *testing.T) {
	f := newPlanFixture()
	f.stock.byLocation[sisterLocA] = 40
	ctx := context.Background()

	plan, err := f.svc.CreatePlan(ctx, CreatePlanInput{
		RequestLineID: 3, SessionID: 9, ProductID: testProduct, PlannedQty: 10,
		CompanyID: 1, WarehouseID: destHouse,
	})
	require.NoError(t, err)
	require.Equal(t, SourceTransfer, plan.SourceType)
	require.Equal(t, sisterLocA, plan.SourceLocID)
	require.Equal(t, destLoc, plan.DestLocID)
	require.Equal(t, StatusPending, plan.Status)
	require.InDelta(t, 10, plan.RemainingQty, 0.0001)
}

func TestCreatePlanValidation(t *testing.T) {
	f := newPlanFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePlan(ctx, CreatePlanInput{SessionID: 9, PlannedQty: 10, WarehouseID: destHouse})
	require.ErrorIs(t, err, ErrInvalidPlan)

	_, err = f.svc.CreatePlan(ctx, CreatePlanInput{RequestLineID: 3, PlannedQty: 10})
	require.ErrorIs(t, err, ErrNoWarehouseConfigured)
}

func (f *planFixture) purchasePlan(t *testing.T, requestLineID int64, qty float64, poLineID int64) Plan {
	t.Helper()
	plan, err := f.svc.CreatePlan(context.Background(), CreatePlanInput{
		RequestLineID: requestLineID, SessionID: 9, ProductID: testProduct, PlannedQty: qty,
		CompanyID: 1, WarehouseID: destHouse, SourceType: SourcePurchase, POLineIDs: []int64{poLineID},
	})
	require.NoError(t, err)
	return plan
}

func TestApplyReceiptPartialThenFulfilled(t *testing.T) {
	f := newPlanFixture()
	ctx := context.Background()
	plan := f.purchasePlan(t, 3, 10, 77)

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 4, 501))
	got, err := f.svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
	require.InDelta(t, 4, got.FulfilledQty, 0.0001)
	require.InDelta(t, 6, got.RemainingQty, 0.0001)
	require.Equal(t, []int64{501}, got.MovementIDs)
	require.False(t, got.ActualStart.IsZero())
	require.True(t, got.ActualEnd.IsZero())

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 6, 502))
	got, err = f.svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, got.Status)
	require.Zero(t, got.RemainingQty)
	require.Equal(t, []int64{501, 502}, got.MovementIDs)
	require.False(t, got.ActualEnd.IsZero())

	require.Len(t, f.events.events, 2)
	require.Equal(t, StatusPending, f.events.events[0].From)
	require.Equal(t, StatusInProgress, f.events.events[0].To)
	require.Equal(t, StatusFulfilled, f.events.events[1].To)
}

func TestApplyReceiptOverDeliveryClampsRemaining(t *testing.T) {
	f := newPlanFixture()
	ctx := context.Background()
	plan := f.purchasePlan(t, 3, 10, 77)

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 15, 501))
	got, err := f.svc.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, got.Status)
	require.InDelta(t, 15, got.FulfilledQty, 0.0001)
	require.Zero(t, got.RemainingQty)
}

func TestApplyReceiptWithoutLinkedPlansIsNoOp(t *testing.T) {
	f := newPlanFixture()
	require.NoError(t, f.svc.ApplyReceipt(context.Background(), 999, 5, 501))
	require.Empty(t, f.events.events)
}

func TestApplyReceiptRejectsNonPositiveQty(t *testing.T) {
	f := newPlanFixture()
	err := f.svc.ApplyReceipt(context.Background(), 77, 0, 501)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRequestLineRollup(t *testing.T) {
	f := newPlanFixture()
	ctx := context.Background()

	status, err := f.svc.RequestLineStatus(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, LineNotIncluded, status)

	f.purchasePlan(t, 3, 10, 77)
	status, err = f.svc.RequestLineStatus(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, LinePending, status)

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 4, 501))
	status, err = f.svc.RequestLineStatus(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, LinePartiallyFulfilled, status)

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 6, 502))
	status, err = f.svc.RequestLineStatus(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, LineFulfilled, status)
}

func TestMarkExceptionGuardsFulfilled(t *testing.T) {
	f := newPlanFixture()
	ctx := context.Background()
	plan := f.purchasePlan(t, 3, 10, 77)

	updated, err := f.svc.MarkException(ctx, plan.ID, "vendor discontinued", 8)
	require.NoError(t, err)
	require.Equal(t, StatusException, updated.Status)
	require.Equal(t, "vendor discontinued", updated.Notes)

	require.NoError(t, f.svc.ApplyReceipt(ctx, 77, 10, 501))
	_, err = f.svc.MarkException(ctx, plan.ID, "too late", 8)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestPlanInvariantRemainingNeverNegative(t *testing.T) {
	p := Plan{PlannedQty: 4, FulfilledQty: 9}
	p.RecomputeDerived()
	require.Zero(t, p.RemainingQty)

	p = Plan{PlannedQty: 9, FulfilledQty: 4}
	p.RecomputeDerived()
	require.InDelta(t, 5, p.RemainingQty, 0.0001)
}
