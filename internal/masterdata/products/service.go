package products

import (
	"context"
	"fmt"

	mdshared "github.com/meridian-erp/meridian/internal/masterdata/shared"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Service exposes product master data operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

func (s *Service) validate(product Product) error {
	if product.Code == "" || product.Name == "" {
		return fmt.Errorf("%w: product code and name required", shared.ErrValidation)
	}
	switch product.Kind {
	case KindStockable, KindConsumable, KindService:
	default:
		return fmt.Errorf("%w: unknown product kind %q", shared.ErrValidation, product.Kind)
	}
	if product.StandardCost < 0 {
		return fmt.Errorf("%w: standard cost must be >= 0", shared.ErrValidation)
	}
	return nil
}
