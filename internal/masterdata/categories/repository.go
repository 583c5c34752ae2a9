package categories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sharederr "github.com/meridian-erp/meridian/internal/shared"
)

// Repository provides category persistence.
type Repository interface {
	List(ctx context.Context) ([]Category, error)
	Get(ctx context.Context, id int64) (Category, error)
	Ancestry(ctx context.Context, id int64) ([]int64, error)
	Create(ctx context.Context, category Category) (Category, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, code, name, COALESCE(parent_id, 0) FROM categories ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.ParentID); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.db.QueryRow(ctx, `SELECT id, code, name, COALESCE(parent_id, 0) FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.ParentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, sharederr.ErrNotFound
	}
	return c, err
}

// Ancestry returns the category id followed by its ancestors, nearest first.
// Used by the stock policy resolver's category fallback chain.
func (r *repository) Ancestry(ctx context.Context, id int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `WITH RECURSIVE chain AS (
  SELECT id, parent_id, 0 AS depth FROM categories WHERE id = $1
  UNION ALL
  SELECT c.id, c.parent_id, chain.depth + 1 FROM categories c
  JOIN chain ON c.id = chain.parent_id
)
SELECT id FROM chain ORDER BY depth`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var cid int64
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

func (r *repository) Create(ctx context.Context, category Category) (Category, error) {
	var parent any
	if category.ParentID > 0 {
		parent = category.ParentID
	}
	err := r.db.QueryRow(ctx, `INSERT INTO categories (code, name, parent_id) VALUES ($1, $2, $3) RETURNING id`,
		category.Code, category.Name, parent).Scan(&category.ID)
	if err != nil {
		return Category{}, err
	}
	return category, nil
}
