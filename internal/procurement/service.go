package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/consolidation"
	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/masterdata/warehouses"
	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit recording.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort abstracts approval history recording.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// SessionPort exposes the consolidation session a batch of orders is
// generated from.
type SessionPort interface {
	GetSession(ctx context.Context, id int64) (consolidation.Session, []consolidation.ConsolidatedLine, error)
}

// InventoryPort schedules and books the receipt movements behind an order
// line receipt.
type InventoryPort interface {
	ScheduleMovement(ctx context.Context, input inventory.MovementInput) (inventory.Movement, error)
	CompleteMovement(ctx context.Context, movementID, actorID int64) (inventory.Movement, error)
}

// WarehousePort resolves the receiving location of an order's warehouse.
type WarehousePort interface {
	PrimaryLocation(ctx context.Context, warehouseID int64) (warehouses.Location, error)
}

// PlanRequest describes one fulfillment plan to open for a contributor
// request line when its purchase order is created.
type PlanRequest struct {
	RequestLineID int64
	SessionID     int64
	ProductID     int64
	PlannedQty    float64
	CompanyID     int64
	WarehouseID   int64
	POLineID      int64
}

// PlanPort opens purchase-sourced fulfillment plans.
type PlanPort interface {
	CreatePurchasePlan(ctx context.Context, req PlanRequest) error
}

// ServiceConfig carries the fixed locations and defaults of the module.
type ServiceConfig struct {
	// SupplierLocationID is the virtual location receipts move stock from.
	SupplierLocationID int64
	// Currency is the default order currency when no quote supplies one.
	Currency string
}

// Service implements purchase requests, vendor pricing and purchase orders.
type Service struct {
	repo        RepositoryPort
	sessions    SessionPort
	inventory   InventoryPort
	houses      WarehousePort
	plans       PlanPort
	approvals   ApprovalPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cfg         ServiceConfig
	logger      *slog.Logger
	handlers    []IntegrationHandler
}

// NewService builds Service.
func NewService(
	repo RepositoryPort,
	sessions SessionPort,
	inv InventoryPort,
	houses WarehousePort,
	plans PlanPort,
	approvals ApprovalPort,
	audit AuditPort,
	idempotency *shared.IdempotencyStore,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Service{
		repo:        repo,
		sessions:    sessions,
		inventory:   inv,
		houses:      houses,
		plans:       plans,
		approvals:   approvals,
		audit:       audit,
		idempotency: idempotency,
		cfg:         cfg,
		logger:      logger,
	}
}

// AddIntegrationHandler registers an event handler. Call during wiring.
func (s *Service) AddIntegrationHandler(h IntegrationHandler) {
	s.handlers = append(s.handlers, h)
}

// CreateRequestInput carries a new purchase request with its lines.
type CreateRequestInput struct {
	RequesterID int64
	CompanyID   int64
	WarehouseID int64
	RequestDate time.Time
	Notes       string
	Lines       []RequestLineInput
}

// RequestLineInput is one requested product.
type RequestLineInput struct {
	ProductID    int64
	CategoryID   int64
	UoM          string
	Qty          float64
	RequiredDate time.Time
	Priority     Priority
	Notes        string
}

// CreateRequest records a draft purchase request.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (PurchaseRequest, []RequestLine, error) {
	if input.RequesterID == 0 || input.CompanyID == 0 {
		return PurchaseRequest{}, nil, fmt.Errorf("%w: requester and company are required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseRequest{}, nil, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty <= 0 {
			return PurchaseRequest{}, nil, fmt.Errorf("%w: every line needs a product and a positive quantity", shared.ErrValidation)
		}
	}
	requestDate := input.RequestDate
	if requestDate.IsZero() {
		requestDate = time.Now().UTC()
	}
	request := PurchaseRequest{
		Number:      generateNumber("PR"),
		RequesterID: input.RequesterID,
		CompanyID:   input.CompanyID,
		WarehouseID: input.WarehouseID,
		State:       RequestDraft,
		RequestDate: requestDate,
		Notes:       input.Notes,
	}
	var lines []RequestLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRequest(ctx, request)
		if err != nil {
			return err
		}
		request.ID = id
		for _, in := range input.Lines {
			line := RequestLine{
				RequestID:    id,
				ProductID:    in.ProductID,
				CategoryID:   in.CategoryID,
				UoM:          in.UoM,
				Qty:          in.Qty,
				RequiredDate: in.RequiredDate,
				Priority:     normalizePriority(in.Priority),
				Notes:        in.Notes,
			}
			lineID, err := tx.InsertRequestLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, nil, err
	}
	s.recordAudit(ctx, input.RequesterID, "procurement:request_create", request.ID, map[string]any{"number": request.Number, "lines": len(lines)})
	return request, lines, nil
}

// SubmitRequest moves a draft request into the consolidation pool.
func (s *Service) SubmitRequest(ctx context.Context, id, actorID int64) (PurchaseRequest, error) {
	return s.setRequestState(ctx, id, actorID, RequestSubmitted, []RequestState{RequestDraft}, shared.ApprovalSubmit)
}

// CloseRequest closes a submitted request once its demand is covered.
func (s *Service) CloseRequest(ctx context.Context, id, actorID int64) (PurchaseRequest, error) {
	return s.setRequestState(ctx, id, actorID, RequestClosed, []RequestState{RequestSubmitted}, "")
}

// CancelRequest withdraws a request that has not been closed.
func (s *Service) CancelRequest(ctx context.Context, id, actorID int64) (PurchaseRequest, error) {
	return s.setRequestState(ctx, id, actorID, RequestCancelled, []RequestState{RequestDraft, RequestSubmitted}, "")
}

func (s *Service) setRequestState(ctx context.Context, id, actorID int64, to RequestState, from []RequestState, approval shared.ApprovalAction) (PurchaseRequest, error) {
	request, _, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	allowed := false
	for _, f := range from {
		if request.State == f {
			allowed = true
		}
	}
	if !allowed {
		return PurchaseRequest{}, fmt.Errorf("%w: request %s is %s", ErrInvalidState, request.Number, request.State)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetRequestState(ctx, id, to)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}
	request.State = to
	if approval != "" && s.approvals != nil {
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PR:%d", id)))
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "PROCUREMENT",
			RefID:   refID,
			ActorID: actorID,
			Action:  approval,
			Note:    fmt.Sprintf("request %s", request.Number),
		})
	}
	s.recordAudit(ctx, actorID, "procurement:request_"+string(to), id, nil)
	return request, nil
}

// GetRequest returns one request with its lines.
func (s *Service) GetRequest(ctx context.Context, id int64) (PurchaseRequest, []RequestLine, error) {
	return s.repo.GetRequest(ctx, id)
}

// ListRequestLines returns lines matching the filter. Without explicit
// states only submitted requests are searched.
func (s *Service) ListRequestLines(ctx context.Context, filter RequestLineFilter) ([]RequestLine, error) {
	return s.repo.ListRequestLines(ctx, filter)
}

// GetRequestLines returns the identified lines.
func (s *Service) GetRequestLines(ctx context.Context, ids []int64) ([]RequestLine, error) {
	return s.repo.GetRequestLines(ctx, ids)
}

// AddQuote records a vendor quote for a product.
func (s *Service) AddQuote(ctx context.Context, quote VendorQuote) (VendorQuote, error) {
	if quote.VendorID == 0 || quote.ProductID == 0 || quote.Price <= 0 {
		return VendorQuote{}, fmt.Errorf("%w: vendor, product and a positive price are required", shared.ErrValidation)
	}
	if quote.ValidFrom.IsZero() || quote.ValidTo.IsZero() || !quote.ValidFrom.Before(quote.ValidTo) {
		return VendorQuote{}, ErrInvalidWindow
	}
	if quote.Currency == "" {
		quote.Currency = s.cfg.Currency
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertQuote(ctx, quote)
		if err != nil {
			return err
		}
		quote.ID = id
		return nil
	})
	if err != nil {
		return VendorQuote{}, err
	}
	return quote, nil
}

// SuggestVendor resolves the preferred vendor and price for a product at a
// point in time. Active agreements win over quotes; among quotes the
// cheapest valid one is taken.
func (s *Service) SuggestVendor(ctx context.Context, productID int64, at time.Time) (VendorSuggestion, bool, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	line, vendorID, found, err := s.repo.ActiveAgreementLine(ctx, productID, at)
	if err != nil {
		return VendorSuggestion{}, false, err
	}
	if found {
		return VendorSuggestion{
			VendorID:        vendorID,
			UnitPrice:       line.UnitPrice,
			AgreementLineID: line.ID,
		}, true, nil
	}
	quote, found, err := s.repo.CheapestQuote(ctx, productID, at)
	if err != nil {
		return VendorSuggestion{}, false, err
	}
	if !found {
		return VendorSuggestion{}, false, nil
	}
	return VendorSuggestion{
		VendorID:     quote.VendorID,
		UnitPrice:    quote.Price,
		LeadTimeDays: quote.LeadTimeDays,
	}, true, nil
}

// CreateAgreementInput carries a new vendor agreement.
type CreateAgreementInput struct {
	VendorID  int64
	ValidFrom time.Time
	ValidTo   time.Time
	Notes     string
}

// CreateAgreement records a draft agreement.
func (s *Service) CreateAgreement(ctx context.Context, input CreateAgreementInput) (Agreement, error) {
	if input.VendorID == 0 {
		return Agreement{}, fmt.Errorf("%w: vendor is required", shared.ErrValidation)
	}
	if input.ValidFrom.IsZero() || input.ValidTo.IsZero() || !input.ValidFrom.Before(input.ValidTo) {
		return Agreement{}, ErrInvalidWindow
	}
	agreement := Agreement{
		Number:    generateNumber("VA"),
		VendorID:  input.VendorID,
		State:     AgreementDraft,
		ValidFrom: input.ValidFrom,
		ValidTo:   input.ValidTo,
		Notes:     input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertAgreement(ctx, agreement)
		if err != nil {
			return err
		}
		agreement.ID = id
		return nil
	})
	if err != nil {
		return Agreement{}, err
	}
	return agreement, nil
}

// AddAgreementLine attaches a priced product to a draft agreement.
func (s *Service) AddAgreementLine(ctx context.Context, agreementID int64, line AgreementLine) (AgreementLine, error) {
	if line.ProductID == 0 || line.UnitPrice <= 0 {
		return AgreementLine{}, fmt.Errorf("%w: product and a positive unit price are required", shared.ErrValidation)
	}
	line.AgreementID = agreementID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		agreement, err := tx.GetAgreementForUpdate(ctx, agreementID)
		if err != nil {
			return err
		}
		if agreement.State != AgreementDraft {
			return fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, agreement.Number, agreement.State)
		}
		id, err := tx.InsertAgreementLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return nil
	})
	if err != nil {
		return AgreementLine{}, err
	}
	return line, nil
}

// ActivateAgreement puts a draft agreement with at least one line into
// effect.
func (s *Service) ActivateAgreement(ctx context.Context, id, actorID int64) (Agreement, error) {
	agreement, lines, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return Agreement{}, err
	}
	if agreement.State != AgreementDraft {
		return Agreement{}, fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, agreement.Number, agreement.State)
	}
	if len(lines) == 0 {
		return Agreement{}, fmt.Errorf("%w: agreement has no lines", ErrNoLines)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAgreementState(ctx, id, AgreementActive)
	})
	if err != nil {
		return Agreement{}, err
	}
	agreement.State = AgreementActive
	s.recordAudit(ctx, actorID, "procurement:agreement_activate", id, map[string]any{"number": agreement.Number})
	return agreement, nil
}

// CancelAgreement withdraws a draft or active agreement.
func (s *Service) CancelAgreement(ctx context.Context, id, actorID int64) (Agreement, error) {
	agreement, _, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return Agreement{}, err
	}
	if agreement.State != AgreementDraft && agreement.State != AgreementActive {
		return Agreement{}, fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, agreement.Number, agreement.State)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetAgreementState(ctx, id, AgreementCancelled)
	})
	if err != nil {
		return Agreement{}, err
	}
	agreement.State = AgreementCancelled
	s.recordAudit(ctx, actorID, "procurement:agreement_cancel", id, nil)
	return agreement, nil
}

// ExpireAgreements closes active agreements whose validity ended before
// asOf. Expired agreements are announced to subscribers.
func (s *Service) ExpireAgreements(ctx context.Context, asOf time.Time) ([]Agreement, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	var expired []Agreement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		expired, err = tx.ExpireAgreements(ctx, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, agreement := range expired {
		event := AgreementExpiredEvent{
			AgreementID: agreement.ID,
			Number:      agreement.Number,
			VendorID:    agreement.VendorID,
		}
		for _, h := range s.handlers {
			h.OnAgreementExpired(ctx, event)
		}
	}
	if len(expired) > 0 {
		s.logger.Info("vendor agreements expired", "count", len(expired), "as_of", asOf)
	}
	return expired, nil
}

// GetAgreement returns one agreement with its lines.
func (s *Service) GetAgreement(ctx context.Context, id int64) (Agreement, []AgreementLine, error) {
	return s.repo.GetAgreement(ctx, id)
}

// ListAgreements returns agreements matching the filter.
func (s *Service) ListAgreements(ctx context.Context, filter AgreementFilter) ([]Agreement, error) {
	return s.repo.ListAgreements(ctx, filter)
}

// CreateOrdersResult reports the orders generated from a session and the
// products that could not be assigned a vendor.
type CreateOrdersResult struct {
	Orders            []PurchaseOrder       `json:"orders"`
	Lines             map[int64][]OrderLine `json:"lines"`
	SkippedProductIDs []int64               `json:"skipped_product_ids,omitempty"`
}

// CreateOrdersForSession turns a consolidation session's purchase-suggested
// lines into draft purchase orders, one per vendor. Lines without a
// resolvable vendor are skipped and reported. Fulfillment plans are opened
// for every contributor request line of each ordered product.
func (s *Service) CreateOrdersForSession(ctx context.Context, sessionID, actorID int64) (CreateOrdersResult, error) {
	key := fmt.Sprintf("po-session:%d", sessionID)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "PROCUREMENT"); err != nil {
			return CreateOrdersResult{}, err
		}
	}
	result, err := s.createOrdersForSession(ctx, sessionID, actorID)
	if err != nil && s.idempotency != nil {
		// The key stays only on success so a retry after a failure is not
		// blocked.
		_ = s.idempotency.Delete(context.WithoutCancel(ctx), key)
	}
	return result, err
}

func (s *Service) createOrdersForSession(ctx context.Context, sessionID, actorID int64) (CreateOrdersResult, error) {
	session, lines, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return CreateOrdersResult{}, err
	}
	if session.State != consolidation.StatePOCreation {
		return CreateOrdersResult{}, fmt.Errorf("%w: session %s is %s", ErrInvalidState, session.Reference, session.State)
	}

	now := time.Now().UTC()
	byVendor := map[int64][]orderCandidate{}
	var skipped []int64
	for _, line := range lines {
		if line.State != consolidation.LinePOSuggested || line.QtyToPurchase <= 0 {
			continue
		}
		candidate := orderCandidate{line: line, vendorID: line.SuggestedVendorID, price: line.EstimatedPrice}
		if candidate.vendorID == 0 {
			suggestion, found, err := s.SuggestVendor(ctx, line.ProductID, now)
			if err != nil {
				return CreateOrdersResult{}, err
			}
			if !found {
				skipped = append(skipped, line.ProductID)
				continue
			}
			candidate.vendorID = suggestion.VendorID
			candidate.price = suggestion.UnitPrice
			candidate.agreementLineID = suggestion.AgreementLineID
		} else {
			candidate.agreementLineID = line.AgreementLineID
		}
		byVendor[candidate.vendorID] = append(byVendor[candidate.vendorID], candidate)
	}
	if len(byVendor) == 0 {
		return CreateOrdersResult{SkippedProductIDs: skipped}, ErrNoPurchasableLines
	}

	vendorIDs := make([]int64, 0, len(byVendor))
	for vendorID := range byVendor {
		vendorIDs = append(vendorIDs, vendorID)
	}
	sort.Slice(vendorIDs, func(i, j int) bool { return vendorIDs[i] < vendorIDs[j] })

	result := CreateOrdersResult{Lines: map[int64][]OrderLine{}, SkippedProductIDs: skipped}
	var events []OrderCreatedEvent
	var planRequests []PlanRequest

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, vendorID := range vendorIDs {
			candidates := byVendor[vendorID]
			order := PurchaseOrder{
				Number:      generateNumber("PO"),
				VendorID:    vendorID,
				SessionID:   session.ID,
				CompanyID:   session.CompanyID,
				WarehouseID: session.WarehouseID,
				State:       OrderDraft,
				Currency:    s.cfg.Currency,
			}
			for _, c := range candidates {
				order.TotalAmount += c.line.QtyToPurchase * c.price
			}
			orderID, err := tx.InsertOrder(ctx, order)
			if err != nil {
				return err
			}
			order.ID = orderID
			for _, c := range candidates {
				line := OrderLine{
					OrderID:            orderID,
					ProductID:          c.line.ProductID,
					Qty:                c.line.QtyToPurchase,
					Price:              c.price,
					AgreementLineID:    c.agreementLineID,
					ConsolidatedLineID: c.line.ID,
					RequestLineIDs:     c.line.ContributorIDs,
				}
				lineID, err := tx.InsertOrderLine(ctx, line)
				if err != nil {
					return err
				}
				line.ID = lineID
				result.Lines[orderID] = append(result.Lines[orderID], line)
				for _, requestLineID := range c.line.ContributorIDs {
					planRequests = append(planRequests, PlanRequest{
						RequestLineID: requestLineID,
						SessionID:     session.ID,
						ProductID:     c.line.ProductID,
						CompanyID:     session.CompanyID,
						WarehouseID:   session.WarehouseID,
						POLineID:      lineID,
					})
				}
			}
			result.Orders = append(result.Orders, order)
			events = append(events, OrderCreatedEvent{
				OrderID:     orderID,
				Number:      order.Number,
				VendorID:    vendorID,
				SessionID:   session.ID,
				LineCount:   len(candidates),
				TotalAmount: order.TotalAmount,
			})
		}
		return nil
	})
	if err != nil {
		return CreateOrdersResult{}, err
	}

	s.openPlans(ctx, planRequests)

	for _, event := range events {
		for _, h := range s.handlers {
			h.OnOrderCreated(ctx, event)
		}
	}
	s.recordAudit(ctx, actorID, "procurement:orders_create", sessionID, map[string]any{
		"orders":  len(result.Orders),
		"skipped": len(skipped),
	})
	return result, nil
}

type orderCandidate struct {
	line            consolidation.ConsolidatedLine
	vendorID        int64
	price           float64
	agreementLineID int64
}

// openPlans opens one fulfillment plan per contributor request line,
// planned at that line's full requested quantity.
func (s *Service) openPlans(ctx context.Context, requests []PlanRequest) {
	if s.plans == nil || len(requests) == 0 {
		return
	}
	ids := make([]int64, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.RequestLineID)
	}
	lines, err := s.repo.GetRequestLines(ctx, ids)
	if err != nil {
		s.logger.Error("request lines for fulfillment plans unavailable", "error", err)
		return
	}
	qtyByLine := make(map[int64]float64, len(lines))
	for _, line := range lines {
		qtyByLine[line.ID] = line.Qty
	}
	for _, req := range requests {
		req.PlannedQty = qtyByLine[req.RequestLineID]
		if req.PlannedQty <= 0 {
			continue
		}
		if err := s.plans.CreatePurchasePlan(ctx, req); err != nil {
			s.logger.Error("fulfillment plan creation failed",
				"request_line_id", req.RequestLineID, "po_line_id", req.POLineID, "error", err)
		}
	}
}

// SubmitOrder sends a draft order for approval.
func (s *Service) SubmitOrder(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.State != OrderDraft {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.State)
		}
		return tx.SetOrderState(ctx, id, OrderApproval)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.State = OrderApproval
	s.recordOrderApproval(ctx, id, actorID, shared.ApprovalSubmit, order.Number)
	return order, nil
}

// ApproveOrder confirms an order awaiting approval.
func (s *Service) ApproveOrder(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	now := time.Now().UTC()
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.State != OrderApproval {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.State)
		}
		if err := tx.SetOrderState(ctx, id, OrderApproved); err != nil {
			return err
		}
		return tx.SetOrderApproval(ctx, id, actorID, now)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.State = OrderApproved
	order.ApprovedBy = actorID
	order.ApprovedAt = now
	s.recordOrderApproval(ctx, id, actorID, shared.ApprovalApprove, order.Number)
	return order, nil
}

// CancelOrder withdraws an order that has not been approved.
func (s *Service) CancelOrder(ctx context.Context, id, actorID int64) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.State != OrderDraft && order.State != OrderApproval {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.State)
		}
		return tx.SetOrderState(ctx, id, OrderCancelled)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	order.State = OrderCancelled
	s.recordAudit(ctx, actorID, "procurement:order_cancel", id, nil)
	return order, nil
}

// GetOrder returns one order with its lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	return s.repo.ListOrders(ctx, filter)
}

// ReceiveOrderLine books a receipt against an approved order line. The
// received stock enters the order's warehouse through a completed inventory
// movement linked to the line; receiving the last open quantity closes the
// order.
func (s *Service) ReceiveOrderLine(ctx context.Context, orderID, lineID int64, qty float64, actorID int64) (OrderLine, error) {
	if qty <= 0 {
		return OrderLine{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	var order PurchaseOrder
	var line OrderLine
	allReceived := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		order, err = tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.State != OrderApproved {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidState, order.Number, order.State)
		}
		line, err = tx.GetOrderLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.OrderID != orderID {
			return ErrOrderLineNotFound
		}
		if line.ReceivedQty+qty > line.Qty {
			return fmt.Errorf("%w: %.2f of %.2f already received", ErrOverReceipt, line.ReceivedQty, line.Qty)
		}
		line.ReceivedQty += qty
		if err := tx.SetOrderLineReceived(ctx, lineID, line.ReceivedQty); err != nil {
			return err
		}
		allReceived, err = s.orderFullyReceived(ctx, orderID, lineID, line.ReceivedQty)
		if err != nil {
			return err
		}
		if allReceived {
			if err := tx.SetOrderState(ctx, orderID, OrderClosed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OrderLine{}, err
	}

	if err := s.bookReceiptMovement(ctx, order, line, qty, actorID); err != nil {
		return OrderLine{}, err
	}

	s.recordAudit(ctx, actorID, "procurement:order_receive", orderID, map[string]any{
		"line_id": lineID, "qty": qty, "closed": allReceived,
	})
	return line, nil
}

// orderFullyReceived reports whether every line of the order is received,
// taking the in-flight quantity of the line being updated into account.
func (s *Service) orderFullyReceived(ctx context.Context, orderID, updatedLineID int64, updatedQty float64) (bool, error) {
	_, lines, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		received := l.ReceivedQty
		if l.ID == updatedLineID {
			received = updatedQty
		}
		if received < l.Qty {
			return false, nil
		}
	}
	return true, nil
}

// bookReceiptMovement moves the received quantity from the supplier
// location into the order warehouse's primary location. Completing the
// movement drives stock and downstream fulfillment plans.
func (s *Service) bookReceiptMovement(ctx context.Context, order PurchaseOrder, line OrderLine, qty float64, actorID int64) error {
	dest, err := s.houses.PrimaryLocation(ctx, order.WarehouseID)
	if err != nil {
		return fmt.Errorf("receiving location for warehouse %d: %w", order.WarehouseID, err)
	}
	movement, err := s.inventory.ScheduleMovement(ctx, inventory.MovementInput{
		ProductID:      line.ProductID,
		Qty:            qty,
		SourceLocation: s.cfg.SupplierLocationID,
		DestLocation:   dest.ID,
		POLineID:       line.ID,
		RefModule:      "PROCUREMENT",
		RefID:          order.Number,
		Note:           fmt.Sprintf("receipt for %s", order.Number),
		ActorID:        actorID,
	})
	if err != nil {
		return fmt.Errorf("schedule receipt movement: %w", err)
	}
	if _, err := s.inventory.CompleteMovement(ctx, movement.ID, actorID); err != nil {
		return fmt.Errorf("complete receipt movement: %w", err)
	}
	return nil
}

func (s *Service) recordOrderApproval(ctx context.Context, orderID, actorID int64, action shared.ApprovalAction, number string) {
	if s.approvals == nil {
		return
	}
	refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("PO:%d", orderID)))
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "PROCUREMENT",
		RefID:   refID,
		ActorID: actorID,
		Action:  action,
		Note:    fmt.Sprintf("order %s", number),
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "procurement",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "error", err)
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, time.Now().UTC().Format("20060102"), time.Now().UnixNano()%1000000)
}

func normalizePriority(p Priority) Priority {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return p
	default:
		return PriorityNormal
	}
}
