package policy

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian/internal/shared"
)

// CategoryPort resolves category ancestry for rule precedence.
type CategoryPort interface {
	// Ancestry returns the category chain starting at id, nearest first.
	Ancestry(ctx context.Context, id int64) ([]int64, error)
}

// Service manages stock policy rules and resolves the applicable rule for a
// product during classification.
type Service struct {
	repo       RepositoryPort
	categories CategoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, categories CategoryPort) *Service {
	return &Service{repo: repo, categories: categories}
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	id, err := s.repo.Create(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	rule.ID = id
	return rule, nil
}

// Update validates and stores changes to an existing rule.
func (s *Service) Update(ctx context.Context, rule Rule) error {
	if rule.ID == 0 {
		return fmt.Errorf("%w: rule id required", shared.ErrValidation)
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, rule)
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, id int64) (Rule, error) {
	return s.repo.Get(ctx, id)
}

// List returns rules matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Rule, error) {
	return s.repo.List(ctx, filter)
}

// Resolve returns the most specific active rule for a product: a
// product-scoped rule, then the product's category, then each ancestor
// category walking up, then the global default. ok is false when no rule
// applies at all.
func (s *Service) Resolve(ctx context.Context, productID, categoryID, warehouseID int64) (Rule, bool, error) {
	if productID != 0 {
		rule, ok, err := s.repo.FindForProduct(ctx, productID, warehouseID)
		if err != nil || ok {
			return rule, ok, err
		}
	}
	if categoryID != 0 {
		chain := []int64{categoryID}
		if s.categories != nil {
			ancestry, err := s.categories.Ancestry(ctx, categoryID)
			if err != nil {
				return Rule{}, false, err
			}
			if len(ancestry) > 0 {
				chain = ancestry
			}
		}
		for _, catID := range chain {
			rule, ok, err := s.repo.FindForCategory(ctx, catID, warehouseID)
			if err != nil || ok {
				return rule, ok, err
			}
		}
	}
	return s.repo.FindDefault(ctx, warehouseID)
}

// Suggestion bundles derived threshold proposals for administrators.
type Suggestion struct {
	AvgDailyUsage float64 `json:"avg_daily_usage"`
	LeadTimeDays  int     `json:"lead_time_days"`
	SafetyStock   float64 `json:"safety_stock"`
	ReorderPoint  float64 `json:"reorder_point"`
}

// Suggest derives safety-stock and reorder-point proposals from observed
// demand and a lead time.
func (s *Service) Suggest(avgDailyUsage float64, leadTimeDays int) (Suggestion, error) {
	if avgDailyUsage < 0 {
		return Suggestion{}, fmt.Errorf("%w: average daily usage must be >= 0", shared.ErrValidation)
	}
	if leadTimeDays < 0 {
		return Suggestion{}, fmt.Errorf("%w: lead time must be >= 0", shared.ErrValidation)
	}
	safety := SuggestedSafetyStock(avgDailyUsage, leadTimeDays)
	return Suggestion{
		AvgDailyUsage: avgDailyUsage,
		LeadTimeDays:  leadTimeDays,
		SafetyStock:   safety,
		ReorderPoint:  SuggestedReorderPoint(avgDailyUsage, leadTimeDays, safety),
	}, nil
}
