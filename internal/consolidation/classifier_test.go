package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/policy"
	"github.com/meridian-erp/meridian/internal/shared"
)

type stockKey struct {
	productID  int64
	locationID int64
}

type fakeStock struct {
	snapshots map[stockKey]inventory.Snapshot
	receipts  map[stockKey]inventory.ScheduledQty
	usage     map[int64]inventory.UsageHistory
	atHouse   map[stockKey]float64
}

func newFakeStock() *fakeStock {
	return &fakeStock{
		snapshots: make(map[stockKey]inventory.Snapshot),
		receipts:  make(map[stockKey]inventory.ScheduledQty),
		usage:     make(map[int64]inventory.UsageHistory),
		atHouse:   make(map[stockKey]float64),
	}
}

func (f *fakeStock) GetSnapshot(_ context.Context, productID, locationID int64) (inventory.Snapshot, error) {
	return f.snapshots[stockKey{productID, locationID}], nil
}

func (f *fakeStock) NextExpectedReceipt(_ context.Context, productID, locationID int64) (inventory.ScheduledQty, bool, error) {
	r, ok := f.receipts[stockKey{productID, locationID}]
	return r, ok, nil
}

func (f *fakeStock) Usage(_ context.Context, productID, _ int64) (inventory.UsageHistory, error) {
	return f.usage[productID], nil
}

func (f *fakeStock) OnHandAtWarehouse(_ context.Context, productID, warehouseID int64) (float64, error) {
	return f.atHouse[stockKey{productID, warehouseID}], nil
}

type fakePolicies struct {
	rules map[int64]policy.Rule // keyed by warehouse id
}

func (f *fakePolicies) Resolve(_ context.Context, _, _, warehouseID int64) (policy.Rule, bool, error) {
	r, ok := f.rules[warehouseID]
	return r, ok, nil
}

type fakeProducts struct {
	items map[int64]products.Product
}

func (f *fakeProducts) Get(_ context.Context, id int64) (products.Product, error) {
	p, ok := f.items[id]
	if !ok {
		return products.Product{}, shared.ErrNotFound
	}
	return p, nil
}

type fakeHouses struct {
	primary map[int64]warehouses.Location
	others  []warehouses.Warehouse
}

func (f *fakeHouses) PrimaryLocation(_ context.Context, warehouseID int64) (warehouses.Location, error) {
	return f.primary[warehouseID], nil
}

func (f *fakeHouses) OtherWarehouses(_ context.Context, _, excludeID int64) ([]warehouses.Warehouse, error) {
	var out []warehouses.Warehouse
	for _, w := range f.others {
		if w.ID != excludeID {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeVendors struct {
	suggestion VendorSuggestion
	ok         bool
}

func (f *fakeVendors) SuggestVendor(_ context.Context, _ int64) (VendorSuggestion, bool, error) {
	return f.suggestion, f.ok, nil
}

const (
	houseMain  = int64(1)
	houseOther = int64(2)
	locMain    = int64(11)
)

type classifierFixture struct {
	stock    *fakeStock
	policies *fakePolicies
	products *fakeProducts
	houses   *fakeHouses
	vendors  *fakeVendors
}

func newClassifierFixture() *classifierFixture {
	f := &classifierFixture{
		stock: newFakeStock(),
		policies: &fakePolicies{rules: map[int64]policy.Rule{
			houseMain: {ID: 1, SafetyStock: 10, ReorderPoint: 20, LeadTimeDays: 5, Active: true},
		}},
		products: &fakeProducts{items: map[int64]products.Product{
			1: {ID: 1, Kind: products.KindStockable, CategoryID: 3, StandardCost: 4},
		}},
		houses: &fakeHouses{primary: map[int64]warehouses.Location{
			houseMain: {ID: locMain, WarehouseID: houseMain},
		}},
		vendors: &fakeVendors{},
	}
	return f
}

func (f *classifierFixture) classifier() *Classifier {
	return NewClassifier(f.stock, f.policies, f.products, f.houses, f.vendors)
}

func (f *classifierFixture) classify(t *testing.T, line *ConsolidatedLine) bool {
	t.Helper()
	session := Session{ID: 5, CompanyID: 1, WarehouseID: houseMain}
	ruleFound, err := f.classifier().ClassifyLine(context.Background(), session, line, time.Now().UTC())
	require.NoError(t, err)
	return ruleFound
}

func TestClassifyStockoutTakesPrecedence(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 0}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	found := f.classify(t, &line)

	require.True(t, found)
	require.Equal(t, StatusStockout, line.Status)
	require.Equal(t, RecommendPurchase, line.Recommendation)
	require.InDelta(t, 8, line.QtyToPurchase, 0.0001)
	require.InDelta(t, 32, line.Subtotal, 0.0001)
}

func TestClassifyBelowSafety(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 6}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusBelowSafety, line.Status)
	require.InDelta(t, 2, line.QtyToPurchase, 0.0001)
}

func TestClassifyWaitsForImminentReceipt(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 0}
	f.stock.receipts[stockKey{1, locMain}] = inventory.ScheduledQty{
		Qty: 50, Date: time.Now().UTC().AddDate(0, 0, 2),
	}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusStockout, line.Status)
	require.Equal(t, RecommendWait, line.Recommendation)
	require.False(t, line.Policy.ExpectedReceipt.IsZero())
}

func TestClassifyDistantReceiptDoesNotWait(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 0}
	f.stock.receipts[stockKey{1, locMain}] = inventory.ScheduledQty{
		Qty: 50, Date: time.Now().UTC().AddDate(0, 0, 10),
	}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, RecommendPurchase, line.Recommendation)
}

func TestClassifySuggestsTransferFromSisterWarehouse(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 4}
	f.houses.others = []warehouses.Warehouse{{ID: houseOther, CompanyID: 1}}
	f.stock.atHouse[stockKey{1, houseOther}] = 60
	f.policies.rules[houseOther] = policy.Rule{ID: 2, SafetyStock: 15, Active: true}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusBelowSafety, line.Status)
	require.Equal(t, RecommendTransfer, line.Recommendation)
}

func TestClassifyNoTransferWhenSisterBelowItsOwnSafety(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 4}
	f.houses.others = []warehouses.Warehouse{{ID: houseOther, CompanyID: 1}}
	f.stock.atHouse[stockKey{1, houseOther}] = 10
	f.policies.rules[houseOther] = policy.Rule{ID: 2, SafetyStock: 15, Active: true}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, RecommendPurchase, line.Recommendation)
}

func TestClassifyBelowReorderWaitsOnAnyReceipt(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 15}
	f.stock.receipts[stockKey{1, locMain}] = inventory.ScheduledQty{
		Qty: 30, Date: time.Now().UTC().AddDate(0, 0, 14),
	}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusBelowReorder, line.Status)
	require.Equal(t, RecommendWait, line.Recommendation)
}

func TestClassifyExcess(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 50}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusExcess, line.Status)
	require.Equal(t, RecommendNone, line.Recommendation)
	require.Zero(t, line.QtyToPurchase)
}

func TestClassifyWithoutRuleNeverExcess(t *testing.T) {
	f := newClassifierFixture()
	delete(f.policies.rules, houseMain)
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 30}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	found := f.classify(t, &line)

	require.False(t, found)
	require.Equal(t, StatusSufficient, line.Status)
}

func TestClassifyPartialCoverage(t *testing.T) {
	f := newClassifierFixture()
	f.policies.rules[houseMain] = policy.Rule{ID: 1, SafetyStock: 2, ReorderPoint: 3, Active: true}
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 5}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, StatusPartial, line.Status)
	require.InDelta(t, 3, line.QtyToPurchase, 0.0001)
}

func TestClassifyNonStockableIsNormal(t *testing.T) {
	f := newClassifierFixture()
	f.products.items[2] = products.Product{ID: 2, Kind: products.KindService, StandardCost: 99}

	line := ConsolidatedLine{ProductID: 2, TotalQty: 3}
	f.classify(t, &line)

	require.Equal(t, StatusNormal, line.Status)
	require.Equal(t, RecommendNone, line.Recommendation)
	require.Nil(t, line.Policy)
	require.InDelta(t, 99, line.EstimatedPrice, 0.0001)
	require.InDelta(t, 297, line.Subtotal, 0.0001)
}

func TestClassifyPrefersVendorSuggestionPrice(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 0}
	f.vendors.ok = true
	f.vendors.suggestion = VendorSuggestion{VendorID: 42, UnitPrice: 2.5, AgreementLineID: 7}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.Equal(t, int64(42), line.SuggestedVendorID)
	require.Equal(t, int64(7), line.AgreementLineID)
	require.InDelta(t, 2.5, line.EstimatedPrice, 0.0001)
	require.InDelta(t, 20, line.Subtotal, 0.0001)
}

func TestClassifySnapshotDerivedFigures(t *testing.T) {
	f := newClassifierFixture()
	f.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 30, Forecast: 45}
	f.stock.usage[1] = inventory.UsageHistory{WindowDays: 90, TotalQty: 90, AvgDaily: 1, AvgMonthly: 30}

	line := ConsolidatedLine{ProductID: 1, TotalQty: 8}
	f.classify(t, &line)

	require.NotNil(t, line.Policy)
	require.InDelta(t, 30, line.Policy.DaysOfStock, 0.0001)
	// 90 units over 90 days annualized against 30 on hand.
	require.InDelta(t, 90*(365.0/90.0)/30, line.Policy.TurnoverRate, 0.0001)
	require.InDelta(t, 45, line.Policy.ForecastQty, 0.0001)
	require.Equal(t, 5, line.Policy.LeadTimeDays)
}
