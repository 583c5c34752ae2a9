package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian/internal/shared"
)

const movementColumns = `id, code, product_id, qty, source_location_id, dest_location_id, state,
	scheduled_at, COALESCE(completed_at, 'epoch'::timestamptz), COALESCE(po_line_id,0),
	ref_module, COALESCE(ref_id,''), note, created_by, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	err := row.Scan(&m.ID, &m.Code, &m.ProductID, &m.Qty, &m.SourceLocation, &m.DestLocation,
		&m.State, &m.ScheduledAt, &m.CompletedAt, &m.POLineID, &m.RefModule, &m.RefID,
		&m.Note, &m.CreatedBy, &m.CreatedAt)
	return m, err
}

// GetMovement returns a movement by id.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.pool.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

// ErrMovementNotFound indicates a missing movement row.
var ErrMovementNotFound = fmt.Errorf("%w: stock movement", shared.ErrNotFound)

// ListMovements returns movements matching the filter, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM stock_movements WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		args = append(args, v)
		query += clause
	}
	if filter.ProductID != 0 {
		add(` AND product_id=$`+strconv.Itoa(idx), filter.ProductID)
		idx++
	}
	if filter.LocationID != 0 {
		add(` AND (source_location_id=$`+strconv.Itoa(idx)+` OR dest_location_id=$`+strconv.Itoa(idx)+`)`, filter.LocationID)
		idx++
	}
	if filter.State != "" {
		add(` AND state=$`+strconv.Itoa(idx), string(filter.State))
		idx++
	}
	if filter.RefModule != "" {
		add(` AND ref_module=$`+strconv.Itoa(idx), filter.RefModule)
		idx++
	}
	if filter.RefID != "" {
		add(` AND ref_id=$`+strconv.Itoa(idx), filter.RefID)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	add(` ORDER BY scheduled_at DESC, id DESC LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetBalance returns the on-hand balance for one location and product.
func (r *Repository) GetBalance(ctx context.Context, locationID, productID int64) (Balance, error) {
	var b Balance
	err := r.pool.QueryRow(ctx,
		`SELECT location_id, product_id, qty, updated_at FROM stock_balances WHERE location_id=$1 AND product_id=$2`,
		locationID, productID).Scan(&b.LocationID, &b.ProductID, &b.Qty, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

// SumBalanceAtWarehouse totals on-hand across a warehouse's internal locations.
func (r *Repository) SumBalanceAtWarehouse(ctx context.Context, warehouseID, productID int64) (float64, error) {
	var qty float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(b.qty),0)
		FROM stock_balances b
		JOIN locations l ON l.id = b.location_id
		WHERE l.warehouse_id=$1 AND l.usage='INTERNAL' AND b.product_id=$2`,
		warehouseID, productID).Scan(&qty)
	return qty, err
}

// SumScheduled totals open movement quantities touching a location in one
// direction, up to the given horizon.
func (r *Repository) SumScheduled(ctx context.Context, locationID, productID int64, dir Direction, until time.Time) (float64, error) {
	column := "dest_location_id"
	if dir == DirectionOut {
		column = "source_location_id"
	}
	var qty float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(qty),0) FROM stock_movements
		WHERE `+column+`=$1 AND product_id=$2
		  AND state IN ('DRAFT','WAITING','ASSIGNED')
		  AND scheduled_at <= $3`,
		locationID, productID, until).Scan(&qty)
	return qty, err
}

// NextOpenInbound returns the earliest open inbound movement for a location,
// or ok=false when none is scheduled.
func (r *Repository) NextOpenInbound(ctx context.Context, locationID, productID int64) (ScheduledQty, bool, error) {
	var s ScheduledQty
	err := r.pool.QueryRow(ctx, `
		SELECT qty, scheduled_at FROM stock_movements
		WHERE dest_location_id=$1 AND product_id=$2
		  AND state IN ('WAITING','ASSIGNED')
		ORDER BY scheduled_at ASC, id ASC LIMIT 1`,
		locationID, productID).Scan(&s.Qty, &s.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScheduledQty{}, false, nil
	}
	if err != nil {
		return ScheduledQty{}, false, err
	}
	return s, true, nil
}

// SumCompletedOutboundSince totals completed consumption leaving a warehouse's
// internal locations since the given instant. Internal transfers within the
// same warehouse cancel out and are excluded.
func (r *Repository) SumCompletedOutboundSince(ctx context.Context, warehouseID, productID int64, since time.Time) (float64, error) {
	var qty float64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(m.qty),0)
		FROM stock_movements m
		JOIN locations src ON src.id = m.source_location_id
		LEFT JOIN locations dst ON dst.id = m.dest_location_id
		WHERE src.warehouse_id=$1 AND src.usage='INTERNAL'
		  AND (dst.id IS NULL OR dst.warehouse_id <> $1 OR dst.usage <> 'INTERNAL')
		  AND m.product_id=$2 AND m.state='DONE' AND m.completed_at >= $3`,
		warehouseID, productID, since).Scan(&qty)
	return qty, err
}

// Transactional operations.

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stock_movements
			(code, product_id, qty, source_location_id, dest_location_id, state,
			 scheduled_at, po_line_id, ref_module, ref_id, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0),$9,NULLIF($10,''),$11,$12,NOW())
		RETURNING id`,
		m.Code, m.ProductID, m.Qty, m.SourceLocation, m.DestLocation, string(m.State),
		m.ScheduledAt, m.POLineID, m.RefModule, m.RefID, m.Note, m.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepo) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	return m, err
}

func (r *txRepo) SetMovementState(ctx context.Context, id int64, state MovementState, completedAt time.Time) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE stock_movements SET state=$2, completed_at=NULLIF($3,'epoch'::timestamptz) WHERE id=$1`,
		id, string(state), completedAt)
	return err
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, locationID, productID int64) (Balance, error) {
	var b Balance
	err := r.tx.QueryRow(ctx,
		`SELECT location_id, product_id, qty, updated_at FROM stock_balances
		 WHERE location_id=$1 AND product_id=$2 FOR UPDATE`,
		locationID, productID).Scan(&b.LocationID, &b.ProductID, &b.Qty, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO stock_balances (location_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT (location_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`,
		b.LocationID, b.ProductID, b.Qty)
	return err
}

func (r *txRepo) LocationUsage(ctx context.Context, locationID int64) (string, error) {
	var usage string
	err := r.tx.QueryRow(ctx, `SELECT usage FROM locations WHERE id=$1`, locationID).Scan(&usage)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrLocationNotFound
	}
	return usage, err
}

// ErrLocationNotFound indicates a missing location row.
var ErrLocationNotFound = fmt.Errorf("%w: location", shared.ErrNotFound)
