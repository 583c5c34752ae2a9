package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryRuleRepo struct {
	rules  map[int64]Rule
	nextID int64
}

func newMemoryRuleRepo() *memoryRuleRepo {
	return &memoryRuleRepo{rules: make(map[int64]Rule)}
}

func (r *memoryRuleRepo) Create(ctx context.Context, rule Rule) (int64, error) {
	r.nextID++
	rule.ID = r.nextID
	r.rules[rule.ID] = rule
	return rule.ID, nil
}

func (r *memoryRuleRepo) Update(ctx context.Context, rule Rule) error {
	if _, ok := r.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *memoryRuleRepo) Get(ctx context.Context, id int64) (Rule, error) {
	rule, ok := r.rules[id]
	if !ok {
		return Rule{}, ErrRuleNotFound
	}
	return rule, nil
}

func (r *memoryRuleRepo) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	var out []Rule
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	return out, nil
}

// find returns the best match among rules passing the predicate, preferring
// warehouse-scoped over global, then higher priority.
func (r *memoryRuleRepo) find(warehouseID int64, match func(Rule) bool) (Rule, bool) {
	var best Rule
	found := false
	better := func(a, b Rule) bool {
		if (a.WarehouseID != 0) != (b.WarehouseID != 0) {
			return a.WarehouseID != 0
		}
		return a.Priority > b.Priority
	}
	for _, rule := range r.rules {
		if !rule.Active || !match(rule) {
			continue
		}
		if rule.WarehouseID != 0 && rule.WarehouseID != warehouseID {
			continue
		}
		if !found || better(rule, best) {
			best = rule
			found = true
		}
	}
	return best, found
}

func (r *memoryRuleRepo) FindForProduct(ctx context.Context, productID, warehouseID int64) (Rule, bool, error) {
	rule, ok := r.find(warehouseID, func(rl Rule) bool { return rl.ProductID == productID && rl.ProductID != 0 })
	return rule, ok, nil
}

func (r *memoryRuleRepo) FindForCategory(ctx context.Context, categoryID, warehouseID int64) (Rule, bool, error) {
	rule, ok := r.find(warehouseID, func(rl Rule) bool { return rl.CategoryID == categoryID && rl.CategoryID != 0 })
	return rule, ok, nil
}

func (r *memoryRuleRepo) FindDefault(ctx context.Context, warehouseID int64) (Rule, bool, error) {
	rule, ok := r.find(warehouseID, func(rl Rule) bool { return rl.IsDefault() })
	return rule, ok, nil
}

type staticAncestry map[int64][]int64

func (a staticAncestry) Ancestry(ctx context.Context, id int64) ([]int64, error) {
	if chain, ok := a[id]; ok {
		return chain, nil
	}
	return []int64{id}, nil
}

func validRule(name string) Rule {
	return Rule{
		Name:         name,
		SafetyStock:  10,
		MinQty:       20,
		ReorderPoint: 50,
		MaxQty:       200,
		LeadTimeDays: 7,
		Active:       true,
	}
}

func TestRuleValidation(t *testing.T) {
	svc := NewService(newMemoryRuleRepo(), nil)
	ctx := context.Background()

	rule := validRule("both scopes")
	rule.ProductID = 1
	rule.CategoryID = 2
	_, err := svc.Create(ctx, rule)
	require.ErrorIs(t, err, ErrAmbiguousScope)

	rule = validRule("bad order")
	rule.ReorderPoint = 500
	_, err = svc.Create(ctx, rule)
	require.ErrorIs(t, err, ErrThresholdOrder)

	rule = validRule("safety too high")
	rule.SafetyStock = 30
	_, err = svc.Create(ctx, rule)
	require.ErrorIs(t, err, ErrSafetyAboveMin)
	require.ErrorIs(t, err, shared.ErrValidation)

	created, err := svc.Create(ctx, validRule("ok"))
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestResolvePrecedence(t *testing.T) {
	repo := newMemoryRuleRepo()
	// Category 30 sits under 20 under 10.
	svc := NewService(repo, staticAncestry{30: {30, 20, 10}})
	ctx := context.Background()

	def := validRule("global default")
	_, err := svc.Create(ctx, def)
	require.NoError(t, err)

	grandparent := validRule("grandparent category")
	grandparent.CategoryID = 10
	_, err = svc.Create(ctx, grandparent)
	require.NoError(t, err)

	// No product or category rule: walks ancestors, hits category 10.
	rule, ok, err := svc.Resolve(ctx, 1, 30, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(10), rule.CategoryID)

	category := validRule("direct category")
	category.CategoryID = 30
	_, err = svc.Create(ctx, category)
	require.NoError(t, err)

	rule, ok, err = svc.Resolve(ctx, 1, 30, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(30), rule.CategoryID)

	product := validRule("product rule")
	product.ProductID = 1
	_, err = svc.Create(ctx, product)
	require.NoError(t, err)

	rule, ok, err = svc.Resolve(ctx, 1, 30, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), rule.ProductID)

	// Unknown product and category fall back to the global default.
	rule, ok, err = svc.Resolve(ctx, 99, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rule.IsDefault())
}

func TestResolvePrefersWarehouseScopedRule(t *testing.T) {
	repo := newMemoryRuleRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	global := validRule("product global")
	global.ProductID = 1
	_, err := svc.Create(ctx, global)
	require.NoError(t, err)

	scoped := validRule("product at warehouse 5")
	scoped.ProductID = 1
	scoped.WarehouseID = 5
	_, err = svc.Create(ctx, scoped)
	require.NoError(t, err)

	rule, ok, err := svc.Resolve(ctx, 1, 0, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5), rule.WarehouseID)

	// Other warehouses only see the global product rule.
	rule, ok, err = svc.Resolve(ctx, 1, 0, 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, rule.WarehouseID)
}

func TestResolveNoRule(t *testing.T) {
	svc := NewService(newMemoryRuleRepo(), nil)

	_, ok, err := svc.Resolve(context.Background(), 1, 2, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSuggestCalculators(t *testing.T) {
	svc := NewService(newMemoryRuleRepo(), nil)

	s, err := svc.Suggest(4, 10)
	require.NoError(t, err)
	require.InDelta(t, 60, s.SafetyStock, 0.0001)  // 4 * 10 * 1.5
	require.InDelta(t, 100, s.ReorderPoint, 0.0001) // 4*10 + 60

	_, err = svc.Suggest(-1, 10)
	require.ErrorIs(t, err, shared.ErrValidation)
}
