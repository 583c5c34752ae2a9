package fulfillment

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
)

const planColumns = `id, request_line_id, session_id, source_type, COALESCE(source_location_id,0),
	dest_location_id, planned_qty, fulfilled_qty, remaining_qty, status,
	COALESCE(movement_ids,'{}'), COALESCE(po_line_ids,'{}'),
	COALESCE(planned_start,'epoch'::timestamptz), COALESCE(planned_end,'epoch'::timestamptz),
	COALESCE(actual_start,'epoch'::timestamptz), COALESCE(actual_end,'epoch'::timestamptz),
	notes, created_at, updated_at`

func scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.RequestLineID, &p.SessionID, &p.SourceType, &p.SourceLocID,
		&p.DestLocID, &p.PlannedQty, &p.FulfilledQty, &p.RemainingQty, &p.Status,
		&p.MovementIDs, &p.POLineIDs, &p.PlannedStart, &p.PlannedEnd,
		&p.ActualStart, &p.ActualEnd, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) GetPlan(ctx context.Context, id int64) (Plan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM fulfillment_plans WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	return p, err
}

func (r *Repository) ListPlans(ctx context.Context, filter PlanFilter) ([]Plan, error) {
	query := `SELECT ` + planColumns + ` FROM fulfillment_plans WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		args = append(args, v)
		query += clause
	}
	if filter.SessionID != 0 {
		add(` AND session_id=$`+strconv.Itoa(idx), filter.SessionID)
		idx++
	}
	if filter.RequestLineID != 0 {
		add(` AND request_line_id=$`+strconv.Itoa(idx), filter.RequestLineID)
		idx++
	}
	if filter.Status != "" {
		add(` AND status=$`+strconv.Itoa(idx), string(filter.Status))
		idx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	add(` ORDER BY id LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertPlan(ctx context.Context, p Plan) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO fulfillment_plans (
			request_line_id, session_id, source_type, source_location_id, dest_location_id,
			planned_qty, fulfilled_qty, remaining_qty, status, movement_ids, po_line_ids,
			planned_start, planned_end, notes, created_at, updated_at
		) VALUES ($1,$2,$3,NULLIF($4,0),$5,$6,$7,$8,$9,$10,$11,
			NULLIF($12,'epoch'::timestamptz),NULLIF($13,'epoch'::timestamptz),$14,now(),now())
		RETURNING id`,
		p.RequestLineID, p.SessionID, string(p.SourceType), p.SourceLocID, p.DestLocID,
		p.PlannedQty, p.FulfilledQty, p.RemainingQty, string(p.Status), p.MovementIDs, p.POLineIDs,
		p.PlannedStart, p.PlannedEnd, p.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetPlanForUpdate(ctx context.Context, id int64) (Plan, error) {
	p, err := scanPlan(t.tx.QueryRow(ctx,
		`SELECT `+planColumns+` FROM fulfillment_plans WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	return p, err
}

func (t *txRepo) UpdatePlan(ctx context.Context, p Plan) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fulfillment_plans SET
			source_type=$2, source_location_id=NULLIF($3,0), dest_location_id=$4,
			planned_qty=$5, fulfilled_qty=$6, remaining_qty=$7, status=$8,
			movement_ids=$9, po_line_ids=$10,
			actual_start=NULLIF($11,'epoch'::timestamptz), actual_end=NULLIF($12,'epoch'::timestamptz),
			notes=$13, updated_at=now()
		WHERE id=$1`,
		p.ID, string(p.SourceType), p.SourceLocID, p.DestLocID,
		p.PlannedQty, p.FulfilledQty, p.RemainingQty, string(p.Status),
		p.MovementIDs, p.POLineIDs, p.ActualStart, p.ActualEnd, p.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (t *txRepo) PlansByPOLineForUpdate(ctx context.Context, poLineID int64) ([]Plan, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+planColumns+` FROM fulfillment_plans
		 WHERE po_line_ids @> $1 ORDER BY id FOR UPDATE`, []int64{poLineID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
