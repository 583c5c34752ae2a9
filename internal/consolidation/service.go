package consolidation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort abstracts approval history recording.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// RequestSource supplies purchase-request lines for collection and
// aggregation.
type RequestSource interface {
	ListRequestLines(ctx context.Context, filter RequestLineFilter) ([]RequestLine, error)
	GetRequestLines(ctx context.Context, ids []int64) ([]RequestLine, error)
}

// Service drives consolidation sessions through their workflow.
type Service struct {
	repo       RepositoryPort
	requests   RequestSource
	classifier *Classifier
	audit      AuditPort
	approvals  ApprovalPort
	logger     *slog.Logger
	handlers   []IntegrationHandler
}

// NewService builds Service.
func NewService(repo RepositoryPort, requests RequestSource, classifier *Classifier, audit AuditPort, approvals ApprovalPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, requests: requests, classifier: classifier, audit: audit, approvals: approvals, logger: logger}
}

// AddIntegrationHandler registers an event handler. Call during wiring.
func (s *Service) AddIntegrationHandler(h IntegrationHandler) {
	s.handlers = append(s.handlers, h)
}

// SetRequestSource attaches the request source after construction. The
// procurement service that backs it depends on this service, so wiring
// happens in two steps.
func (s *Service) SetRequestSource(requests RequestSource) {
	s.requests = requests
}

// CreateSessionInput describes a new session.
type CreateSessionInput struct {
	Reference     string
	DateFrom      time.Time
	DateTo        time.Time
	ResponsibleID int64
	CompanyID     int64
	WarehouseID   int64
	CategoryID    int64
	Notes         string
}

// CreateSession opens a session in draft. The warehouse is required; there
// is no implicit default.
func (s *Service) CreateSession(ctx context.Context, input CreateSessionInput) (Session, error) {
	if input.DateFrom.IsZero() || input.DateTo.IsZero() || input.DateFrom.After(input.DateTo) {
		return Session{}, ErrInvalidWindow
	}
	if input.WarehouseID == 0 {
		return Session{}, ErrNoWarehouse
	}
	if input.CompanyID == 0 {
		return Session{}, fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	reference := input.Reference
	if reference == "" {
		reference = fmt.Sprintf("CS-%s-%d", time.Now().UTC().Format("20060102"), time.Now().UnixNano()%1000000)
	}
	session := Session{
		Reference:     reference,
		DateFrom:      input.DateFrom,
		DateTo:        input.DateTo,
		State:         StateDraft,
		ResponsibleID: input.ResponsibleID,
		CompanyID:     input.CompanyID,
		WarehouseID:   input.WarehouseID,
		CategoryID:    input.CategoryID,
		Notes:         input.Notes,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSession(ctx, session)
		if err != nil {
			return err
		}
		session.ID = id
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, input.ResponsibleID, "consolidation:create", session.ID, map[string]any{"reference": session.Reference})
	return session, nil
}

// GetSession returns a session with its lines.
func (s *Service) GetSession(ctx context.Context, id int64) (Session, []ConsolidatedLine, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, nil, err
	}
	lines, err := s.repo.ListLines(ctx, id)
	if err != nil {
		return Session{}, nil, err
	}
	return session, lines, nil
}

// ListSessions lists sessions matching the filter.
func (s *Service) ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	return s.repo.ListSessions(ctx, filter)
}

// ListLines lists a session's consolidated lines.
func (s *Service) ListLines(ctx context.Context, sessionID int64) ([]ConsolidatedLine, error) {
	return s.repo.ListLines(ctx, sessionID)
}

// transition runs a guarded state change inside one transaction. mutate may
// adjust the locked session and touch lines; a failure leaves the session
// exactly where it was.
func (s *Service) transition(ctx context.Context, sessionID int64, to SessionState, actor Actor, mutate func(ctx context.Context, tx TxRepository, session *Session) error) (Session, error) {
	var session Session
	var from SessionState
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		from = locked.State
		if !CanTransition(locked.State, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, locked.State, to)
		}
		locked.State = to
		if mutate != nil {
			if err := mutate(ctx, tx, &locked); err != nil {
				return err
			}
		}
		if err := tx.UpdateSession(ctx, locked); err != nil {
			return err
		}
		session = locked
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.emitStateChange(ctx, session, from, to, actor.ID)
	return session, nil
}

// CollectRequests binds the requests matching the session's filters and
// moves draft to selecting_lines.
func (s *Service) CollectRequests(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StateSelectingLines, actor, func(ctx context.Context, tx TxRepository, session *Session) error {
		lines, err := s.requests.ListRequestLines(ctx, RequestLineFilter{
			DateFrom:   session.DateFrom,
			DateTo:     session.DateTo,
			CategoryID: session.CategoryID,
			CompanyID:  session.CompanyID,
		})
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrNoEligibleRequests
		}
		var requestIDs []int64
		for _, line := range lines {
			requestIDs = appendUnique(requestIDs, line.RequestID)
		}
		session.RequestIDs = requestIDs
		return nil
	})
}

// ConsolidateLines aggregates the given request lines into per-product
// consolidated lines. Re-running updates existing lines rather than
// duplicating them; an empty input is a no-op that leaves state untouched.
func (s *Service) ConsolidateLines(ctx context.Context, sessionID int64, requestLineIDs []int64, actor Actor) (Session, error) {
	if len(requestLineIDs) == 0 {
		return s.repo.GetSession(ctx, sessionID)
	}
	requestLines, err := s.requests.GetRequestLines(ctx, requestLineIDs)
	if err != nil {
		return Session{}, err
	}
	groups := aggregate(requestLines)
	// All lines dissolved or product-less: nothing to aggregate.
	if len(groups) == 0 {
		return s.repo.GetSession(ctx, sessionID)
	}

	var session Session
	var from SessionState
	var upserted []LineUpsertedEvent
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		upserted = upserted[:0]
		locked, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		from = locked.State
		if locked.State != StateSelectingLines && locked.State != StateInProgress {
			return fmt.Errorf("%w: aggregation from %s", ErrInvalidTransition, locked.State)
		}

		for _, g := range groups {
			existing, found, err := tx.GetLineForProduct(ctx, locked.ID, g.ProductID)
			if err != nil {
				return err
			}
			line := existing
			if !found {
				line = ConsolidatedLine{SessionID: locked.ID, ProductID: g.ProductID, State: LineDraft}
			}
			line.UoM = g.UoM
			line.TotalQty = g.TotalQty
			line.EarliestDate = g.EarliestDate
			line.Priority = g.Priority
			// Contributor sets are replaced, not merged: the total must equal
			// the sum over the currently assigned lines.
			line.ContributorIDs = g.ContributorIDs
			line.RecomputeDerived()
			if found {
				if err := tx.UpdateLine(ctx, line); err != nil {
					return err
				}
			} else {
				id, err := tx.InsertLine(ctx, line)
				if err != nil {
					return err
				}
				line.ID = id
			}
			upserted = append(upserted, LineUpsertedEvent{
				SessionID: locked.ID, LineID: line.ID, ProductID: line.ProductID, TotalQty: line.TotalQty,
			})
		}

		// The bound-request set spans every line of the session, not just the
		// lines touched by this call.
		allLines, err := tx.ListLines(ctx, locked.ID)
		if err != nil {
			return err
		}
		locked.RequestIDs, err = s.requestIDsOf(ctx, allLines)
		if err != nil {
			return err
		}
		if locked.State == StateSelectingLines {
			locked.State = StateInProgress
		}
		if err := tx.UpdateSession(ctx, locked); err != nil {
			return err
		}
		session = locked
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	for _, ev := range upserted {
		for _, h := range s.handlers {
			h.OnLineUpserted(ctx, ev)
		}
	}
	if from != session.State {
		s.emitStateChange(ctx, session, from, session.State, actor.ID)
	} else {
		s.recordAudit(ctx, actor.ID, "consolidation:aggregate", session.ID, map[string]any{"lines": len(upserted)})
	}
	return session, nil
}

// Validate moves in_progress to validated. At least one consolidated line
// must exist.
func (s *Service) Validate(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StateValidated, actor, func(ctx context.Context, tx TxRepository, session *Session) error {
		lines, err := tx.ListLines(ctx, session.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyConsolidation
		}
		session.ValidatedAt = time.Now().UTC()
		for i := range lines {
			if lines[i].State == LineDraft {
				lines[i].State = LineValidated
				if err := tx.UpdateLine(ctx, lines[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// StartInventoryValidation moves validated to inventory_validation and runs
// the classifier across all lines, returning the outcome summary.
func (s *Service) StartInventoryValidation(ctx context.Context, sessionID int64, actor Actor) (Session, Summary, error) {
	var summary Summary
	session, err := s.transition(ctx, sessionID, StateInventoryValidation, actor, func(ctx context.Context, tx TxRepository, session *Session) error {
		var err error
		summary, err = s.classifySession(ctx, tx, session)
		return err
	})
	if err != nil {
		return Session{}, Summary{}, err
	}
	return session, summary, nil
}

// Reclassify re-runs classification on a session that has not yet created
// purchase orders. It is idempotent and mitigates snapshot staleness before
// PO creation.
func (s *Service) Reclassify(ctx context.Context, sessionID int64, actor Actor) (Summary, error) {
	var summary Summary
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		switch session.State {
		case StateInventoryValidation, StateApproved, StatePOCreation:
		default:
			return fmt.Errorf("%w: reclassify from %s", ErrInvalidTransition, session.State)
		}
		summary, err = s.classifySession(ctx, tx, &session)
		if err != nil {
			return err
		}
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return Summary{}, err
	}
	s.recordAudit(ctx, actor.ID, "consolidation:reclassify", sessionID, map[string]any{"critical": summary.CriticalCount})
	return summary, nil
}

// classifySession classifies every line best-effort: a line whose inputs
// cannot be resolved keeps its previous values and contributes a warning
// instead of aborting the batch.
func (s *Service) classifySession(ctx context.Context, tx TxRepository, session *Session) (Summary, error) {
	lines, err := tx.ListLines(ctx, session.ID)
	if err != nil {
		return Summary{}, err
	}
	now := time.Now().UTC()
	summary := Summary{SessionID: session.ID, TotalLines: len(lines)}
	var totalAmount float64

	for i := range lines {
		line := lines[i]
		ruleFound, err := s.classifier.ClassifyLine(ctx, *session, &line, now)
		if err != nil {
			s.logger.Warn("line classification failed",
				"session_id", session.ID, "line_id", line.ID, "product_id", line.ProductID, "error", err)
			summary.Warnings = append(summary.Warnings, LineWarning{
				LineID: line.ID, ProductID: line.ProductID, Message: err.Error(),
			})
			totalAmount += lines[i].Subtotal
			continue
		}
		if !ruleFound {
			summary.Warnings = append(summary.Warnings, LineWarning{
				LineID: line.ID, ProductID: line.ProductID,
				Message: "no stock policy rule resolved; classified against zero thresholds",
			})
		}
		if line.Recommendation == RecommendPurchase {
			line.State = LinePOSuggested
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return Summary{}, err
		}

		switch line.Status {
		case StatusStockout:
			summary.StockoutCount++
		case StatusBelowSafety:
			summary.BelowSafetyCount++
		case StatusBelowReorder:
			summary.BelowReorderCount++
		}
		if line.Status.Critical() && !line.ExceptionApproved {
			summary.CriticalCount++
		}
		if line.Policy != nil && !line.Policy.ExpectedReceipt.IsZero() {
			summary.WithExpectedReceipt++
		}
		totalAmount += line.Subtotal
	}

	session.StockoutCount = summary.StockoutCount
	session.BelowSafetyCount = summary.BelowSafetyCount
	session.BelowReorderCount = summary.BelowReorderCount
	session.PendingApproval = summary.CriticalCount > 0
	session.TotalAmount = totalAmount
	return summary, nil
}

// ApproveInventory moves inventory_validation to approved. Critical
// shortages that have not been individually excepted require an actor with
// override authority.
func (s *Service) ApproveInventory(ctx context.Context, sessionID int64, actor Actor, notes string) (Session, error) {
	session, err := s.transition(ctx, sessionID, StateApproved, actor, func(ctx context.Context, tx TxRepository, session *Session) error {
		lines, err := tx.ListLines(ctx, session.ID)
		if err != nil {
			return err
		}
		critical := 0
		for _, line := range lines {
			if line.Status.Critical() && !line.ExceptionApproved {
				critical++
			}
		}
		if critical > 0 && !actor.CanOverrideShortage {
			return fmt.Errorf("%w: %d critical line(s)", ErrApprovalRequired, critical)
		}
		session.InventoryValidated = true
		session.ValidatorID = actor.ID
		session.InventoryValidatedAt = time.Now().UTC()
		session.ValidationNotes = notes
		session.PendingApproval = false
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.recordApproval(ctx, sessionID, actor.ID, shared.ApprovalApprove, fmt.Sprintf("session %s inventory approved", session.Reference))
	return session, nil
}

// RejectInventory records a rejection; the session stays in
// inventory_validation for correction and resubmission.
func (s *Service) RejectInventory(ctx context.Context, sessionID int64, actor Actor, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	var reference string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State != StateInventoryValidation {
			return fmt.Errorf("%w: reject from %s", ErrInvalidTransition, session.State)
		}
		session.InventoryValidated = false
		session.ValidationNotes = reason
		reference = session.Reference
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, sessionID, actor.ID, shared.ApprovalReject, fmt.Sprintf("session %s inventory rejected: %s", reference, reason))
	return nil
}

// ApproveLineException excepts one shortage line from the critical count.
func (s *Service) ApproveLineException(ctx context.Context, sessionID, lineID int64, actor Actor) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.State != StateInventoryValidation {
			return fmt.Errorf("%w: exception from %s", ErrInvalidTransition, session.State)
		}
		lines, err := tx.ListLines(ctx, session.ID)
		if err != nil {
			return err
		}
		var target *ConsolidatedLine
		critical := 0
		for i := range lines {
			if lines[i].ID == lineID {
				target = &lines[i]
			}
		}
		if target == nil {
			return ErrLineNotFound
		}
		if !target.Status.Critical() {
			return fmt.Errorf("%w: line %d is not a critical shortage", shared.ErrPrecondition, lineID)
		}
		target.ExceptionApproved = true
		target.ExceptionApproverID = actor.ID
		target.ExceptionAt = time.Now().UTC()
		if err := tx.UpdateLine(ctx, *target); err != nil {
			return err
		}
		for _, line := range lines {
			if line.Status.Critical() && !line.ExceptionApproved {
				critical++
			}
		}
		session.PendingApproval = critical > 0
		return tx.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}
	s.recordApproval(ctx, sessionID, actor.ID, shared.ApprovalException, fmt.Sprintf("line %d shortage excepted", lineID))
	return nil
}

// BeginPOCreation moves approved to po_creation.
func (s *Service) BeginPOCreation(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StatePOCreation, actor, nil)
}

// MarkPOsCreated closes po_creation. Requires at least one recorded purchase
// order, or an explicit no-purchase acknowledgment.
func (s *Service) MarkPOsCreated(ctx context.Context, sessionID int64, poCount int, noPurchaseAck bool, actor Actor) (Session, error) {
	if poCount <= 0 && !noPurchaseAck {
		return Session{}, ErrPOsRequired
	}
	return s.transition(ctx, sessionID, StatePOCreated, actor, func(ctx context.Context, tx TxRepository, session *Session) error {
		session.POCreatedAt = time.Now().UTC()
		lines, err := tx.ListLines(ctx, session.ID)
		if err != nil {
			return err
		}
		for i := range lines {
			if lines[i].State == LinePOSuggested && poCount > 0 {
				lines[i].State = LinePOCreated
				if err := tx.UpdateLine(ctx, lines[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MarkDone moves po_created to done.
func (s *Service) MarkDone(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StateDone, actor, nil)
}

// Cancel aborts any non-terminal session. No side effects beyond the state
// change.
func (s *Service) Cancel(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StateCancelled, actor, nil)
}

// ResetToDraft reopens a cancelled session. Lines and bindings persist for
// inspection.
func (s *Service) ResetToDraft(ctx context.Context, sessionID int64, actor Actor) (Session, error) {
	return s.transition(ctx, sessionID, StateDraft, actor, nil)
}

// RemoveLine deletes one consolidated line and recomputes the session's
// bound-request set from the remaining contributors. Removing the last line
// resets the session to draft.
func (s *Service) RemoveLine(ctx context.Context, sessionID, lineID int64, actor Actor) (Session, error) {
	var session Session
	var from SessionState
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		from = locked.State
		if locked.State.Terminal() {
			return ErrSessionTerminal
		}
		lines, err := tx.ListLines(ctx, locked.ID)
		if err != nil {
			return err
		}
		found := false
		remaining := lines[:0]
		var removed ConsolidatedLine
		for _, line := range lines {
			if line.ID == lineID {
				found = true
				removed = line
				continue
			}
			remaining = append(remaining, line)
		}
		if !found {
			return ErrLineNotFound
		}
		if err := tx.DeleteLine(ctx, lineID); err != nil {
			return err
		}

		locked.RequestIDs, err = s.requestIDsOf(ctx, remaining)
		if err != nil {
			return err
		}
		locked.TotalAmount -= removed.Subtotal
		if locked.TotalAmount < 0 {
			locked.TotalAmount = 0
		}
		if len(remaining) == 0 {
			locked.State = StateDraft
		}
		if err := tx.UpdateSession(ctx, locked); err != nil {
			return err
		}
		session = locked
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if from != session.State {
		s.emitStateChange(ctx, session, from, session.State, actor.ID)
	}
	s.recordAudit(ctx, actor.ID, "consolidation:remove_line", sessionID, map[string]any{"line_id": lineID})
	return session, nil
}

// requestIDsOf resolves the union of request ids referenced by the lines'
// contributors.
func (s *Service) requestIDsOf(ctx context.Context, lines []ConsolidatedLine) ([]int64, error) {
	var contributorIDs []int64
	for _, line := range lines {
		contributorIDs = append(contributorIDs, line.ContributorIDs...)
	}
	if len(contributorIDs) == 0 {
		return nil, nil
	}
	requestLines, err := s.requests.GetRequestLines(ctx, contributorIDs)
	if err != nil {
		return nil, err
	}
	byLine := make(map[int64]int64, len(requestLines))
	for _, rl := range requestLines {
		byLine[rl.ID] = rl.RequestID
	}
	return unionRequestIDs(lines, func(lineID int64) (int64, bool) {
		requestID, ok := byLine[lineID]
		return requestID, ok
	}), nil
}

// Destroyable reports whether a session may be deleted: only sessions that
// never advanced past draft qualify.
func Destroyable(session Session) bool {
	return session.State == StateDraft && len(session.RequestIDs) == 0
}

func (s *Service) emitStateChange(ctx context.Context, session Session, from, to SessionState, actorID int64) {
	if from == to {
		return
	}
	ev := SessionStateChangedEvent{
		SessionID: session.ID,
		Reference: session.Reference,
		From:      from,
		To:        to,
		ActorID:   actorID,
	}
	for _, h := range s.handlers {
		h.OnSessionStateChanged(ctx, ev)
	}
	s.recordAudit(ctx, actorID, "consolidation:transition", session.ID, map[string]any{
		"from": string(from), "to": string(to),
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, sessionID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "consolidation_session",
		EntityID: fmt.Sprintf("%d", sessionID),
		Meta:     meta,
	})
}

func (s *Service) recordApproval(ctx context.Context, sessionID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("CS:%d", sessionID)))
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "CONSOLIDATION",
		RefID:   refID,
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}
