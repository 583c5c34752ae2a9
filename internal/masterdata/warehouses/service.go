package warehouses

import (
	"context"
	"fmt"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Service exposes warehouse master data operations.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, companyID int64) ([]Warehouse, error) {
	return s.repo.List(ctx, companyID)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, fmt.Errorf("%w: invalid warehouse id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if warehouse.Code == "" || warehouse.Name == "" {
		return Warehouse{}, fmt.Errorf("%w: warehouse code and name required", shared.ErrValidation)
	}
	if warehouse.CompanyID <= 0 {
		return Warehouse{}, fmt.Errorf("%w: warehouse company required", shared.ErrValidation)
	}
	return s.repo.Create(ctx, warehouse)
}

// PrimaryLocation resolves the warehouse's primary stock location.
func (s *Service) PrimaryLocation(ctx context.Context, warehouseID int64) (Location, error) {
	w, err := s.Get(ctx, warehouseID)
	if err != nil {
		return Location{}, err
	}
	return s.repo.GetLocation(ctx, w.PrimaryLocationID)
}

// OtherWarehouses lists a company's warehouses excluding one, for transfer
// source searches.
func (s *Service) OtherWarehouses(ctx context.Context, companyID, excludeID int64) ([]Warehouse, error) {
	return s.repo.OtherWarehouses(ctx, companyID, excludeID)
}

// ListInternalLocations lists a company's internal stock locations.
func (s *Service) ListInternalLocations(ctx context.Context, companyID int64) ([]Location, error) {
	return s.repo.ListInternalLocations(ctx, companyID)
}
