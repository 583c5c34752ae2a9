package procurement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

const requestColumns = `id, number, requester_id, company_id, COALESCE(warehouse_id,0), state,
	request_date, notes, created_at, updated_at`

func scanRequest(row pgx.Row) (PurchaseRequest, error) {
	var r PurchaseRequest
	err := row.Scan(&r.ID, &r.Number, &r.RequesterID, &r.CompanyID, &r.WarehouseID, &r.State,
		&r.RequestDate, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const requestLineColumns = `l.id, l.request_id, l.product_id, COALESCE(l.category_id,0), l.uom,
	l.qty, COALESCE(l.required_date,'epoch'::timestamptz), l.priority, l.notes, r.request_date`

func scanRequestLine(row pgx.Row) (RequestLine, error) {
	var l RequestLine
	err := row.Scan(&l.ID, &l.RequestID, &l.ProductID, &l.CategoryID, &l.UoM,
		&l.Qty, &l.RequiredDate, &l.Priority, &l.Notes, &l.RequestDate)
	return l, err
}

func (r *Repository) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, error) {
	request, err := scanRequest(r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM purchase_requests WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseRequest{}, nil, ErrRequestNotFound
	}
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestLineColumns+`
		FROM purchase_request_lines l
		JOIN purchase_requests r ON r.id = l.request_id
		WHERE l.request_id=$1 ORDER BY l.id`, id)
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	defer rows.Close()
	var lines []RequestLine
	for rows.Next() {
		line, err := scanRequestLine(rows)
		if err != nil {
			return PurchaseRequest{}, nil, err
		}
		lines = append(lines, line)
	}
	return request, lines, rows.Err()
}

func (r *Repository) ListRequestLines(ctx context.Context, filter RequestLineFilter) ([]RequestLine, error) {
	query := `SELECT ` + requestLineColumns + `
		FROM purchase_request_lines l
		JOIN purchase_requests r ON r.id = l.request_id
		WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, v any) {
		args = append(args, v)
		query += clause
	}
	states := filter.States
	if len(states) == 0 {
		states = []RequestState{RequestSubmitted}
	}
	stateValues := make([]string, len(states))
	for i, s := range states {
		stateValues[i] = string(s)
	}
	add(` AND r.state = ANY($`+strconv.Itoa(idx)+`)`, stateValues)
	idx++
	if filter.CompanyID != 0 {
		add(` AND r.company_id=$`+strconv.Itoa(idx), filter.CompanyID)
		idx++
	}
	if filter.CategoryID != 0 {
		add(` AND l.category_id=$`+strconv.Itoa(idx), filter.CategoryID)
		idx++
	}
	// The window applies to the line's effective date: required date with a
	// fallback to the owning request's date.
	if !filter.DateFrom.IsZero() {
		add(` AND COALESCE(l.required_date, r.request_date) >= $`+strconv.Itoa(idx), filter.DateFrom)
		idx++
	}
	if !filter.DateTo.IsZero() {
		add(` AND COALESCE(l.required_date, r.request_date) <= $`+strconv.Itoa(idx), filter.DateTo)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	add(` ORDER BY l.id LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RequestLine
	for rows.Next() {
		line, err := scanRequestLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *Repository) GetRequestLines(ctx context.Context, ids []int64) ([]RequestLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestLineColumns+`
		FROM purchase_request_lines l
		JOIN purchase_requests r ON r.id = l.request_id
		WHERE l.id = ANY($1) ORDER BY l.id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RequestLine
	for rows.Next() {
		line, err := scanRequestLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

const orderColumns = `id, number, vendor_id, COALESCE(session_id,0), company_id, warehouse_id,
	state, currency, COALESCE(expected_date,'epoch'::timestamptz), total_amount,
	COALESCE(approved_by,0), COALESCE(approved_at,'epoch'::timestamptz), notes, created_at, updated_at`

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var o PurchaseOrder
	err := row.Scan(&o.ID, &o.Number, &o.VendorID, &o.SessionID, &o.CompanyID, &o.WarehouseID,
		&o.State, &o.Currency, &o.ExpectedDate, &o.TotalAmount,
		&o.ApprovedBy, &o.ApprovedAt, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const orderLineColumns = `id, order_id, product_id, qty, received_qty, price,
	COALESCE(agreement_line_id,0), COALESCE(consolidated_line_id,0),
	COALESCE(request_line_ids,'{}'), notes`

func scanOrderLine(row pgx.Row) (OrderLine, error) {
	var l OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Qty, &l.ReceivedQty, &l.Price,
		&l.AgreementLineID, &l.ConsolidatedLineID, &l.RequestLineIDs, &l.Notes)
	return l, err
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, nil, ErrOrderNotFound
	}
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderLineColumns+` FROM purchase_order_lines WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		line, err := scanOrderLine(rows)
		if err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return order, lines, rows.Err()
}

func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM purchase_orders WHERE 1=1`
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
	if filter.VendorID != 0 {
		add(` AND vendor_id=$`+strconv.Itoa(idx), filter.VendorID)
		idx++
	}
	if filter.SessionID != 0 {
		add(` AND session_id=$`+strconv.Itoa(idx), filter.SessionID)
		idx++
	}
	if filter.CompanyID != 0 {
		add(` AND company_id=$`+strconv.Itoa(idx), filter.CompanyID)
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
	var out []PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const agreementColumns = `id, number, vendor_id, state, valid_from, valid_to, notes, created_at, updated_at`

func scanAgreement(row pgx.Row) (Agreement, error) {
	var a Agreement
	err := row.Scan(&a.ID, &a.Number, &a.VendorID, &a.State, &a.ValidFrom, &a.ValidTo,
		&a.Notes, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) GetAgreement(ctx context.Context, id int64) (Agreement, []AgreementLine, error) {
	agreement, err := scanAgreement(r.pool.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM vendor_agreements WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, nil, ErrAgreementNotFound
	}
	if err != nil {
		return Agreement{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, agreement_id, product_id, unit_price, COALESCE(min_qty,0), COALESCE(max_qty,0)
		FROM vendor_agreement_lines WHERE agreement_id=$1 ORDER BY id`, id)
	if err != nil {
		return Agreement{}, nil, err
	}
	defer rows.Close()
	var lines []AgreementLine
	for rows.Next() {
		var line AgreementLine
		if err := rows.Scan(&line.ID, &line.AgreementID, &line.ProductID,
			&line.UnitPrice, &line.MinQty, &line.MaxQty); err != nil {
			return Agreement{}, nil, err
		}
		lines = append(lines, line)
	}
	return agreement, lines, rows.Err()
}

func (r *Repository) ListAgreements(ctx context.Context, filter AgreementFilter) ([]Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM vendor_agreements WHERE 1=1`
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
	if filter.VendorID != 0 {
		add(` AND vendor_id=$`+strconv.Itoa(idx), filter.VendorID)
		idx++
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	add(` ORDER BY valid_to DESC, id DESC LIMIT $`+strconv.Itoa(idx), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActiveAgreementLine finds the cheapest line covering the product on an
// active agreement whose window includes at.
func (r *Repository) ActiveAgreementLine(ctx context.Context, productID int64, at time.Time) (AgreementLine, int64, bool, error) {
	var line AgreementLine
	var vendorID int64
	err := r.pool.QueryRow(ctx, `
		SELECT l.id, l.agreement_id, l.product_id, l.unit_price, COALESCE(l.min_qty,0), COALESCE(l.max_qty,0), a.vendor_id
		FROM vendor_agreement_lines l
		JOIN vendor_agreements a ON a.id = l.agreement_id
		WHERE l.product_id=$1 AND a.state='active' AND a.valid_from <= $2 AND a.valid_to >= $2
		ORDER BY l.unit_price, l.id LIMIT 1`, productID, at,
	).Scan(&line.ID, &line.AgreementID, &line.ProductID, &line.UnitPrice, &line.MinQty, &line.MaxQty, &vendorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgreementLine{}, 0, false, nil
	}
	if err != nil {
		return AgreementLine{}, 0, false, err
	}
	return line, vendorID, true, nil
}

// CheapestQuote finds the lowest-priced quote valid at the given time.
func (r *Repository) CheapestQuote(ctx context.Context, productID int64, at time.Time) (VendorQuote, bool, error) {
	var q VendorQuote
	err := r.pool.QueryRow(ctx, `
		SELECT id, vendor_id, product_id, price, currency, COALESCE(lead_time_days,0),
			valid_from, valid_to, created_at
		FROM vendor_quotes
		WHERE product_id=$1 AND valid_from <= $2 AND valid_to >= $2
		ORDER BY price, id LIMIT 1`, productID, at,
	).Scan(&q.ID, &q.VendorID, &q.ProductID, &q.Price, &q.Currency, &q.LeadTimeDays,
		&q.ValidFrom, &q.ValidTo, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorQuote{}, false, nil
	}
	if err != nil {
		return VendorQuote{}, false, err
	}
	return q, true, nil
}

func (t *txRepo) InsertRequest(ctx context.Context, r PurchaseRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_requests (number, requester_id, company_id, warehouse_id, state, request_date, notes, created_at, updated_at)
		VALUES ($1,$2,$3,NULLIF($4,0),$5,$6,$7,now(),now()) RETURNING id`,
		r.Number, r.RequesterID, r.CompanyID, r.WarehouseID, string(r.State), r.RequestDate, r.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertRequestLine(ctx context.Context, line RequestLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_request_lines (request_id, product_id, category_id, uom, qty, required_date, priority, notes)
		VALUES ($1,$2,NULLIF($3,0),$4,$5,NULLIF($6,'epoch'::timestamptz),$7,$8) RETURNING id`,
		line.RequestID, line.ProductID, line.CategoryID, line.UoM, line.Qty,
		line.RequiredDate, string(line.Priority), line.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) SetRequestState(ctx context.Context, id int64, state RequestState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchase_requests SET state=$2, updated_at=now() WHERE id=$1`, id, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (number, vendor_id, session_id, company_id, warehouse_id, state,
			currency, expected_date, total_amount, notes, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,0),$4,$5,$6,$7,NULLIF($8,'epoch'::timestamptz),$9,$10,now(),now())
		RETURNING id`,
		o.Number, o.VendorID, o.SessionID, o.CompanyID, o.WarehouseID, string(o.State),
		o.Currency, o.ExpectedDate, o.TotalAmount, o.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertOrderLine(ctx context.Context, line OrderLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_order_lines (order_id, product_id, qty, received_qty, price,
			agreement_line_id, consolidated_line_id, request_line_ids, notes)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),NULLIF($7,0),$8,$9) RETURNING id`,
		line.OrderID, line.ProductID, line.Qty, line.ReceivedQty, line.Price,
		line.AgreementLineID, line.ConsolidatedLineID, line.RequestLineIDs, line.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	return o, err
}

func (t *txRepo) SetOrderState(ctx context.Context, id int64, state OrderState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchase_orders SET state=$2, updated_at=now() WHERE id=$1`, id, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *txRepo) SetOrderApproval(ctx context.Context, id int64, approvedBy int64, approvedAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE purchase_orders SET approved_by=$2, approved_at=$3, updated_at=now() WHERE id=$1`,
		id, approvedBy, approvedAt)
	return err
}

func (t *txRepo) GetOrderLineForUpdate(ctx context.Context, id int64) (OrderLine, error) {
	l, err := scanOrderLine(t.tx.QueryRow(ctx,
		`SELECT `+orderLineColumns+` FROM purchase_order_lines WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderLine{}, ErrOrderLineNotFound
	}
	return l, err
}

func (t *txRepo) SetOrderLineReceived(ctx context.Context, id int64, receivedQty float64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchase_order_lines SET received_qty=$2 WHERE id=$1`, id, receivedQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderLineNotFound
	}
	return nil
}

func (t *txRepo) InsertQuote(ctx context.Context, q VendorQuote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO vendor_quotes (vendor_id, product_id, price, currency, lead_time_days, valid_from, valid_to, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,0),$6,$7,now()) RETURNING id`,
		q.VendorID, q.ProductID, q.Price, q.Currency, q.LeadTimeDays, q.ValidFrom, q.ValidTo,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertAgreement(ctx context.Context, a Agreement) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO vendor_agreements (number, vendor_id, state, valid_from, valid_to, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now()) RETURNING id`,
		a.Number, a.VendorID, string(a.State), a.ValidFrom, a.ValidTo, a.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertAgreementLine(ctx context.Context, line AgreementLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO vendor_agreement_lines (agreement_id, product_id, unit_price, min_qty, max_qty)
		VALUES ($1,$2,$3,NULLIF($4,0),NULLIF($5,0)) RETURNING id`,
		line.AgreementID, line.ProductID, line.UnitPrice, line.MinQty, line.MaxQty,
	).Scan(&id)
	return id, err
}

func (t *txRepo) GetAgreementForUpdate(ctx context.Context, id int64) (Agreement, error) {
	a, err := scanAgreement(t.tx.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM vendor_agreements WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Agreement{}, ErrAgreementNotFound
	}
	return a, err
}

func (t *txRepo) SetAgreementState(ctx context.Context, id int64, state AgreementState) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE vendor_agreements SET state=$2, updated_at=now() WHERE id=$1`, id, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAgreementNotFound
	}
	return nil
}

// ExpireAgreements closes every active agreement whose window ended before
// asOf and returns the affected rows.
func (t *txRepo) ExpireAgreements(ctx context.Context, asOf time.Time) ([]Agreement, error) {
	rows, err := t.tx.Query(ctx, `
		UPDATE vendor_agreements SET state='expired', updated_at=now()
		WHERE state='active' AND valid_to < $1
		RETURNING `+agreementColumns, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
