package consolidation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, reference, date_from, date_to, state, responsible_id, company_id,
	warehouse_id, COALESCE(category_id,0), notes, total_amount, COALESCE(request_ids,'{}'),
	COALESCE(validated_at,'epoch'::timestamptz), inventory_validated, COALESCE(validator_id,0),
	COALESCE(inventory_validated_at,'epoch'::timestamptz), validation_notes, stockout_count, below_safety_count, below_reorder_count, pending_approval,
	COALESCE(po_created_at,'epoch'::timestamptz), created_at, updated_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Reference, &s.DateFrom, &s.DateTo, &s.State, &s.ResponsibleID,
		&s.CompanyID, &s.WarehouseID, &s.CategoryID, &s.Notes, &s.TotalAmount, &s.RequestIDs,
		&s.ValidatedAt, &s.InventoryValidated, &s.ValidatorID, &s.InventoryValidatedAt, &s.ValidationNotes,
		&s.StockoutCount, &s.BelowSafetyCount, &s.BelowReorderCount, &s.PendingApproval,
		&s.POCreatedAt, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const lineColumns = `id, session_id, product_id, uom, total_qty, available_qty, qty_to_purchase,
	earliest_date, priority, state, COALESCE(inventory_status,''), COALESCE(recommendation,''),
	COALESCE(suggested_vendor_id,0), COALESCE(agreement_line_id,0), estimated_price, subtotal,
	COALESCE(contributor_line_ids,'{}'), policy, exception_approved,
	COALESCE(exception_approver_id,0), COALESCE(exception_at,'epoch'::timestamptz),
	created_at, updated_at`

func scanLine(row pgx.Row) (ConsolidatedLine, error) {
	var l ConsolidatedLine
	var policyRaw []byte
	err := row.Scan(&l.ID, &l.SessionID, &l.ProductID, &l.UoM, &l.TotalQty, &l.AvailableQty,
		&l.QtyToPurchase, &l.EarliestDate, &l.Priority, &l.State, &l.Status, &l.Recommendation,
		&l.SuggestedVendorID, &l.AgreementLineID, &l.EstimatedPrice, &l.Subtotal,
		&l.ContributorIDs, &policyRaw, &l.ExceptionApproved, &l.ExceptionApproverID,
		&l.ExceptionAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return ConsolidatedLine{}, err
	}
	if len(policyRaw) > 0 {
		var snapshot PolicySnapshot
		if json.Unmarshal(policyRaw, &snapshot) == nil {
			l.Policy = &snapshot
		}
	}
	return l, nil
}

func marshalPolicy(p *PolicySnapshot) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (r *Repository) GetSession(ctx context.Context, id int64) (Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM consolidation_sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *Repository) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM consolidation_sessions WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		args = append(args, v)
		query += clause
	}
	if filter.State != "" {
		add(` AND state=$`+strconv.Itoa(idx), string(filter.State))
		idx++
	}
	if filter.WarehouseID != 0 {
		add(` AND warehouse_id=$`+strconv.Itoa(idx), filter.WarehouseID)
		idx++
	}
	if filter.CompanyID != 0 {
		add(` AND company_id=$`+strconv.Itoa(idx), filter.CompanyID)
		idx++
	}
	if filter.ResponsibleID != 0 {
		add(` AND responsible_id=$`+strconv.Itoa(idx), filter.ResponsibleID)
		idx++
	}
	if !filter.From.IsZero() {
		add(` AND date_from >= $`+strconv.Itoa(idx), filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		add(` AND date_to <= $`+strconv.Itoa(idx), filter.To)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	add(` ORDER BY created_at DESC, id DESC LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetLine(ctx context.Context, id int64) (ConsolidatedLine, error) {
	l, err := scanLine(r.pool.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM consolidated_lines WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsolidatedLine{}, ErrLineNotFound
	}
	return l, err
}

func (r *Repository) ListLines(ctx context.Context, sessionID int64) ([]ConsolidatedLine, error) {
	return listLines(ctx, r.pool, sessionID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listLines(ctx context.Context, q querier, sessionID int64) ([]ConsolidatedLine, error) {
	rows, err := q.Query(ctx,
		`SELECT `+lineColumns+` FROM consolidated_lines WHERE session_id=$1 ORDER BY product_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConsolidatedLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Transactional operations.

func (r *txRepo) InsertSession(ctx context.Context, s Session) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO consolidation_sessions
			(reference, date_from, date_to, state, responsible_id, company_id, warehouse_id,
			 category_id, notes, request_ids, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,0),$9,$10,NOW(),NOW())
		RETURNING id`,
		s.Reference, s.DateFrom, s.DateTo, string(s.State), s.ResponsibleID, s.CompanyID,
		s.WarehouseID, s.CategoryID, s.Notes, s.RequestIDs).Scan(&id)
	return id, err
}

func (r *txRepo) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	s, err := scanSession(r.tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM consolidation_sessions WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

func (r *txRepo) UpdateSession(ctx context.Context, s Session) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE consolidation_sessions SET
			state=$2, notes=$3, total_amount=$4, request_ids=$5,
			validated_at=NULLIF($6,'epoch'::timestamptz), inventory_validated=$7,
			validator_id=NULLIF($8,0), inventory_validated_at=NULLIF($9,'epoch'::timestamptz),
			validation_notes=$10, stockout_count=$11, below_safety_count=$12,
			below_reorder_count=$13, pending_approval=$14,
			po_created_at=NULLIF($15,'epoch'::timestamptz), updated_at=NOW()
		WHERE id=$1`,
		s.ID, string(s.State), s.Notes, s.TotalAmount, s.RequestIDs,
		s.ValidatedAt, s.InventoryValidated, s.ValidatorID, s.InventoryValidatedAt,
		s.ValidationNotes, s.StockoutCount, s.BelowSafetyCount, s.BelowReorderCount,
		s.PendingApproval, s.POCreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *txRepo) ListLines(ctx context.Context, sessionID int64) ([]ConsolidatedLine, error) {
	return listLines(ctx, r.tx, sessionID)
}

func (r *txRepo) GetLineForProduct(ctx context.Context, sessionID, productID int64) (ConsolidatedLine, bool, error) {
	l, err := scanLine(r.tx.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM consolidated_lines WHERE session_id=$1 AND product_id=$2`,
		sessionID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsolidatedLine{}, false, nil
	}
	if err != nil {
		return ConsolidatedLine{}, false, err
	}
	return l, true, nil
}

func (r *txRepo) InsertLine(ctx context.Context, line ConsolidatedLine) (int64, error) {
	policyRaw, err := marshalPolicy(line.Policy)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `
		INSERT INTO consolidated_lines
			(session_id, product_id, uom, total_qty, available_qty, qty_to_purchase,
			 earliest_date, priority, state, inventory_status, recommendation,
			 suggested_vendor_id, agreement_line_id, estimated_price, subtotal,
			 contributor_line_ids, policy, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),
			NULLIF($12,0),NULLIF($13,0),$14,$15,$16,$17,NOW(),NOW())
		RETURNING id`,
		line.SessionID, line.ProductID, line.UoM, line.TotalQty, line.AvailableQty,
		line.QtyToPurchase, line.EarliestDate, string(line.Priority), string(line.State),
		string(line.Status), string(line.Recommendation), line.SuggestedVendorID,
		line.AgreementLineID, line.EstimatedPrice, line.Subtotal, line.ContributorIDs,
		policyRaw).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateLine(ctx context.Context, line ConsolidatedLine) error {
	policyRaw, err := marshalPolicy(line.Policy)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `
		UPDATE consolidated_lines SET
			uom=$2, total_qty=$3, available_qty=$4, qty_to_purchase=$5, earliest_date=$6,
			priority=$7, state=$8, inventory_status=NULLIF($9,''), recommendation=NULLIF($10,''),
			suggested_vendor_id=NULLIF($11,0), agreement_line_id=NULLIF($12,0),
			estimated_price=$13, subtotal=$14, contributor_line_ids=$15, policy=$16,
			exception_approved=$17, exception_approver_id=NULLIF($18,0),
			exception_at=NULLIF($19,'epoch'::timestamptz), updated_at=NOW()
		WHERE id=$1`,
		line.ID, line.UoM, line.TotalQty, line.AvailableQty, line.QtyToPurchase,
		line.EarliestDate, string(line.Priority), string(line.State), string(line.Status),
		string(line.Recommendation), line.SuggestedVendorID, line.AgreementLineID,
		line.EstimatedPrice, line.Subtotal, line.ContributorIDs, policyRaw,
		line.ExceptionApproved, line.ExceptionApproverID, line.ExceptionAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepo) DeleteLine(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM consolidated_lines WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}
