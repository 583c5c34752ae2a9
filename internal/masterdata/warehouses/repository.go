package warehouses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sharederr "github.com/meridian-erp/meridian/internal/shared"
)

// Repository provides warehouse and location persistence.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]Warehouse, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	ListInternalLocations(ctx context.Context, companyID int64) ([]Location, error)
	OtherWarehouses(ctx context.Context, companyID, excludeID int64) ([]Warehouse, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const warehouseColumns = `id, company_id, code, name, primary_location_id, created_at, updated_at`

func (r *repository) List(ctx context.Context, companyID int64) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE id=$1`, id).
		Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.PrimaryLocationID, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, sharederr.ErrNotFound
	}
	return w, err
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (company_id, code, name, primary_location_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
		warehouse.CompanyID, warehouse.Code, warehouse.Name, warehouse.PrimaryLocationID, now).Scan(&warehouse.ID)
	if err != nil {
		return Warehouse{}, err
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func (r *repository) GetLocation(ctx context.Context, id int64) (Location, error) {
	var loc Location
	var usage string
	err := r.db.QueryRow(ctx, `SELECT id, warehouse_id, code, name, usage FROM stock_locations WHERE id=$1`, id).
		Scan(&loc.ID, &loc.WarehouseID, &loc.Code, &loc.Name, &usage)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, sharederr.ErrNotFound
	}
	loc.Usage = LocationUsage(usage)
	return loc, err
}

func (r *repository) ListInternalLocations(ctx context.Context, companyID int64) ([]Location, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, l.warehouse_id, l.code, l.name, l.usage
FROM stock_locations l
JOIN warehouses w ON w.id = l.warehouse_id
WHERE w.company_id = $1 AND l.usage = 'INTERNAL'
ORDER BY l.code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Location
	for rows.Next() {
		var loc Location
		var usage string
		if err := rows.Scan(&loc.ID, &loc.WarehouseID, &loc.Code, &loc.Name, &usage); err != nil {
			return nil, err
		}
		loc.Usage = LocationUsage(usage)
		items = append(items, loc)
	}
	return items, rows.Err()
}

func (r *repository) OtherWarehouses(ctx context.Context, companyID, excludeID int64) ([]Warehouse, error) {
	rows, err := r.db.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 AND id != $2 ORDER BY code`, companyID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Warehouse, error) {
	var items []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.Code, &w.Name, &w.PrimaryLocationID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}
