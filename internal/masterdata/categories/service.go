package categories

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Service exposes category master data operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, fmt.Errorf("%w: invalid category id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Ancestry returns the category and its ancestors, nearest first.
func (s *Service) Ancestry(ctx context.Context, id int64) ([]int64, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid category id", shared.ErrValidation)
	}
	return s.repo.Ancestry(ctx, id)
}

func (s *Service) Create(ctx context.Context, category Category) (Category, error) {
	if category.Code == "" || category.Name == "" {
		return Category{}, fmt.Errorf("%w: category code and name required", shared.ErrValidation)
	}
	return s.repo.Create(ctx, category)
}
