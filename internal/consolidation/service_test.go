package consolidation

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/inventory"
	"github.com/meridian-erp/meridian/internal/masterdata/products"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memorySessionRepo struct {
	sessions      map[int64]Session
	lines         map[int64]ConsolidatedLine
	nextSessionID int64
	nextLineID    int64
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{
		sessions: make(map[int64]Session),
		lines:    make(map[int64]ConsolidatedLine),
	}
}

func (r *memorySessionRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memorySessionRepo) GetSession(_ context.Context, id int64) (Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

func (r *memorySessionRepo) ListSessions(_ context.Context, filter SessionFilter) ([]Session, error) {
	var out []Session
	for _, s := range r.sessions {
		if filter.State != "" && s.State != filter.State {
			continue
		}
		if filter.ResponsibleID != 0 && s.ResponsibleID != filter.ResponsibleID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *memorySessionRepo) GetLine(_ context.Context, id int64) (ConsolidatedLine, error) {
	l, ok := r.lines[id]
	if !ok {
		return ConsolidatedLine{}, ErrLineNotFound
	}
	return l, nil
}

func (r *memorySessionRepo) ListLines(_ context.Context, sessionID int64) ([]ConsolidatedLine, error) {
	var out []ConsolidatedLine
	for _, l := range r.lines {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memorySessionRepo) InsertSession(_ context.Context, s Session) (int64, error) {
	r.nextSessionID++
	s.ID = r.nextSessionID
	r.sessions[s.ID] = s
	return s.ID, nil
}

func (r *memorySessionRepo) GetSessionForUpdate(ctx context.Context, id int64) (Session, error) {
	return r.GetSession(ctx, id)
}

func (r *memorySessionRepo) UpdateSession(_ context.Context, s Session) error {
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memorySessionRepo) GetLineForProduct(_ context.Context, sessionID, productID int64) (ConsolidatedLine, bool, error) {
	for _, l := range r.lines {
		if l.SessionID == sessionID && l.ProductID == productID {
			return l, true, nil
		}
	}
	return ConsolidatedLine{}, false, nil
}

func (r *memorySessionRepo) InsertLine(_ context.Context, line ConsolidatedLine) (int64, error) {
	r.nextLineID++
	line.ID = r.nextLineID
	r.lines[line.ID] = line
	return line.ID, nil
}

func (r *memorySessionRepo) UpdateLine(_ context.Context, line ConsolidatedLine) error {
	if _, ok := r.lines[line.ID]; !ok {
		return ErrLineNotFound
	}
	r.lines[line.ID] = line
	return nil
}

func (r *memorySessionRepo) DeleteLine(_ context.Context, id int64) error {
	delete(r.lines, id)
	return nil
}

type fakeRequests struct {
	lines []RequestLine
}

func (f *fakeRequests) ListRequestLines(_ context.Context, _ RequestLineFilter) ([]RequestLine, error) {
	return f.lines, nil
}

func (f *fakeRequests) GetRequestLines(_ context.Context, ids []int64) ([]RequestLine, error) {
	var out []RequestLine
	for _, id := range ids {
		for _, l := range f.lines {
			if l.ID == id {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

type capturedApprovals struct {
	logs []shared.ApprovalLog
}

func (c *capturedApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	c.logs = append(c.logs, log)
	return nil
}

type capturedSessionEvents struct {
	transitions []SessionStateChangedEvent
	upserts     []LineUpsertedEvent
}

func (c *capturedSessionEvents) OnSessionStateChanged(_ context.Context, ev SessionStateChangedEvent) {
	c.transitions = append(c.transitions, ev)
}

func (c *capturedSessionEvents) OnLineUpserted(_ context.Context, ev LineUpsertedEvent) {
	c.upserts = append(c.upserts, ev)
}

type sessionFixture struct {
	repo      *memorySessionRepo
	requests  *fakeRequests
	cls       *classifierFixture
	approvals *capturedApprovals
	events    *capturedSessionEvents
	svc       *Service
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		repo:      newMemorySessionRepo(),
		requests:  &fakeRequests{},
		cls:       newClassifierFixture(),
		approvals: &capturedApprovals{},
		events:    &capturedSessionEvents{},
	}
	f.requests.lines = []RequestLine{
		{ID: 1, RequestID: 100, ProductID: 1, UoM: "pcs", Qty: 5, RequiredDate: day("2024-03-01"), Priority: PriorityNormal},
		{ID: 2, RequestID: 101, ProductID: 1, UoM: "pcs", Qty: 3, RequiredDate: day("2024-02-15"), Priority: PriorityHigh},
		{ID: 3, RequestID: 101, ProductID: 2, UoM: "kg", Qty: 4, RequiredDate: day("2024-03-10"), Priority: PriorityLow},
	}
	f.cls.products.items[2] = products.Product{ID: 2, Kind: products.KindStockable, CategoryID: 3, StandardCost: 10}
	// Product 1 sits below safety stock, product 2 holds excess.
	f.cls.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 6}
	f.cls.stock.snapshots[stockKey{2, locMain}] = inventory.Snapshot{OnHand: 100}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(f.repo, f.requests, f.cls.classifier(), nil, f.approvals, logger)
	f.svc.AddIntegrationHandler(f.events)
	return f
}

func (f *sessionFixture) createSession(t *testing.T) Session {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{
		DateFrom:      day("2024-01-01"),
		DateTo:        day("2024-12-31"),
		ResponsibleID: 7,
		CompanyID:     1,
		WarehouseID:   houseMain,
	})
	require.NoError(t, err)
	require.Equal(t, StateDraft, session.State)
	return session
}

func lineForProduct(t *testing.T, lines []ConsolidatedLine, productID int64) ConsolidatedLine {
	t.Helper()
	for _, l := range lines {
		if l.ProductID == productID {
			return l
		}
	}
	t.Fatalf("no line for product %d", productID)
	return ConsolidatedLine{}
}

func TestWorkflowHappyPath(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)

	session, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateSelectingLines, session.State)
	require.Equal(t, []int64{100, 101}, session.RequestIDs)

	session, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2, 3}, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateInProgress, session.State)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	p1 := lineForProduct(t, lines, 1)
	require.InDelta(t, 8, p1.TotalQty, 0.0001)
	require.Equal(t, day("2024-02-15"), p1.EarliestDate)
	require.Equal(t, PriorityHigh, p1.Priority)
	require.Equal(t, []int64{1, 2}, p1.ContributorIDs)
	require.Len(t, f.events.upserts, 2)

	session, err = f.svc.Validate(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateValidated, session.State)
	require.False(t, session.ValidatedAt.IsZero())

	session, summary, err := f.svc.StartInventoryValidation(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateInventoryValidation, session.State)
	require.Equal(t, 2, summary.TotalLines)
	require.Equal(t, 1, summary.BelowSafetyCount)
	require.Equal(t, 1, summary.CriticalCount)
	require.True(t, session.PendingApproval)
	// Below safety with 6 on hand against 8 requested: buy 2 at standard cost 4.
	require.InDelta(t, 8, session.TotalAmount, 0.0001)

	lines, err = f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	p1 = lineForProduct(t, lines, 1)
	require.Equal(t, StatusBelowSafety, p1.Status)
	require.Equal(t, LinePOSuggested, p1.State)
	p2 := lineForProduct(t, lines, 2)
	require.Equal(t, StatusExcess, p2.Status)
	require.Equal(t, LineValidated, p2.State)

	session, err = f.svc.ApproveInventory(ctx, session.ID, Actor{ID: 9, CanOverrideShortage: true}, "checked")
	require.NoError(t, err)
	require.Equal(t, StateApproved, session.State)
	require.True(t, session.InventoryValidated)
	require.Equal(t, int64(9), session.ValidatorID)
	require.False(t, session.PendingApproval)

	session, err = f.svc.BeginPOCreation(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StatePOCreation, session.State)

	session, err = f.svc.MarkPOsCreated(ctx, session.ID, 1, false, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StatePOCreated, session.State)
	require.False(t, session.POCreatedAt.IsZero())

	lines, err = f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, LinePOCreated, lineForProduct(t, lines, 1).State)

	session, err = f.svc.MarkDone(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateDone, session.State)

	require.Len(t, f.approvals.logs, 1)
	require.Equal(t, shared.ApprovalApprove, f.approvals.logs[0].Action)
	require.Len(t, f.events.transitions, 8)
	require.Equal(t, StateDraft, f.events.transitions[0].From)
	require.Equal(t, StateDone, f.events.transitions[7].To)
}

func TestWorkflowRejectsSkippedStates(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)

	_, err := f.svc.MarkDone(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, shared.ErrPrecondition)

	_, err = f.svc.Validate(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.ListSessions(ctx, SessionFilter{State: StateDraft})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestCollectRequiresEligibleRequests(t *testing.T) {
	f := newSessionFixture()
	f.requests.lines = nil
	ctx := context.Background()
	session := f.createSession(t)

	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrNoEligibleRequests)

	// The failed transition leaves the session in draft.
	current, err := f.svc.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Equal(t, StateDraft, current[0].State)
}

func TestConsolidateEmptyInputIsNoOp(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	session, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	session, err = f.svc.ConsolidateLines(ctx, session.ID, nil, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateSelectingLines, session.State)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestConsolidateReplacesContributors(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2}, Actor{ID: 7})
	require.NoError(t, err)

	// Re-running with a narrower set replaces the line, not merges into it.
	session, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1}, Actor{ID: 7})
	require.NoError(t, err)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	p1 := lineForProduct(t, lines, 1)
	require.InDelta(t, 5, p1.TotalQty, 0.0001)
	require.Equal(t, []int64{1}, p1.ContributorIDs)
	require.Equal(t, []int64{100}, session.RequestIDs)
}

func TestConsolidateUnresolvableInputIsNoOp(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	// Ids that resolve to no request lines must not advance the session.
	session, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{99}, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateSelectingLines, session.State)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestConsolidateSubsetKeepsBoundRequests(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2}, Actor{ID: 7})
	require.NoError(t, err)

	// Aggregating a disjoint subset must not drop requests still referenced
	// by the untouched line.
	session, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{3}, Actor{ID: 7})
	require.NoError(t, err)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.ElementsMatch(t, []int64{100, 101}, session.RequestIDs)
}

func TestListSessionsFiltersByResponsible(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	f.createSession(t)
	_, err := f.svc.CreateSession(ctx, CreateSessionInput{
		DateFrom:      day("2024-01-01"),
		DateTo:        day("2024-12-31"),
		ResponsibleID: 8,
		CompanyID:     1,
		WarehouseID:   houseMain,
	})
	require.NoError(t, err)

	got, err := f.svc.ListSessions(ctx, SessionFilter{ResponsibleID: 8})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(8), got[0].ResponsibleID)
}

func TestConsolidateTwiceKeepsOneLinePerProduct(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2, 3}, Actor{ID: 7})
	require.NoError(t, err)
	first, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)

	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2, 3}, Actor{ID: 7})
	require.NoError(t, err)
	second, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	require.Equal(t, first[0].ID, second[0].ID)
	require.InDelta(t, first[0].TotalQty, second[0].TotalQty, 0.0001)
}

func TestValidateRequiresLines(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1}, Actor{ID: 7})
	require.NoError(t, err)

	removed, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	_, err = f.svc.RemoveLine(ctx, session.ID, removed[0].ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.Validate(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func (f *sessionFixture) toInventoryValidation(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()
	session := f.createSession(t)
	var err error
	_, err = f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2, 3}, Actor{ID: 7})
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	session, _, err = f.svc.StartInventoryValidation(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	return session
}

func TestApproveBlocksOnCriticalShortage(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.toInventoryValidation(t)

	_, err := f.svc.ApproveInventory(ctx, session.ID, Actor{ID: 8}, "")
	require.ErrorIs(t, err, ErrApprovalRequired)

	// An exception on the shortage line clears the guard for a plain approver.
	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	critical := lineForProduct(t, lines, 1)
	require.NoError(t, f.svc.ApproveLineException(ctx, session.ID, critical.ID, Actor{ID: 9}))

	session, err = f.svc.ApproveInventory(ctx, session.ID, Actor{ID: 8}, "")
	require.NoError(t, err)
	require.Equal(t, StateApproved, session.State)

	require.Len(t, f.approvals.logs, 2)
	require.Equal(t, shared.ApprovalException, f.approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalApprove, f.approvals.logs[1].Action)
}

func TestExceptionRequiresCriticalLine(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.toInventoryValidation(t)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)
	excess := lineForProduct(t, lines, 2)
	err = f.svc.ApproveLineException(ctx, session.ID, excess.ID, Actor{ID: 9})
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestRejectKeepsSessionInInventoryValidation(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.toInventoryValidation(t)

	err := f.svc.RejectInventory(ctx, session.ID, Actor{ID: 8}, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, f.svc.RejectInventory(ctx, session.ID, Actor{ID: 8}, "stock counts stale"))

	current, _, err := f.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, StateInventoryValidation, current.State)
	require.Equal(t, "stock counts stale", current.ValidationNotes)
	require.Equal(t, shared.ApprovalReject, f.approvals.logs[0].Action)
}

func TestMarkPOsCreatedRequiresOrdersOrAck(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.toInventoryValidation(t)
	var err error
	_, err = f.svc.ApproveInventory(ctx, session.ID, Actor{ID: 9, CanOverrideShortage: true}, "")
	require.NoError(t, err)
	_, err = f.svc.BeginPOCreation(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.MarkPOsCreated(ctx, session.ID, 0, false, Actor{ID: 7})
	require.ErrorIs(t, err, ErrPOsRequired)

	session, err = f.svc.MarkPOsCreated(ctx, session.ID, 0, true, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StatePOCreated, session.State)
}

func TestCancelAndResetToDraft(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	session, err = f.svc.Cancel(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateCancelled, session.State)

	_, err = f.svc.Cancel(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrInvalidTransition)

	session, err = f.svc.ResetToDraft(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateDraft, session.State)
}

func TestRemoveLastLineResetsToDraft(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.CollectRequests(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	_, err = f.svc.ConsolidateLines(ctx, session.ID, []int64{1, 2, 3}, Actor{ID: 7})
	require.NoError(t, err)

	lines, err := f.svc.ListLines(ctx, session.ID)
	require.NoError(t, err)

	// Request 101 contributed to both products, so dropping product 2 keeps it bound.
	session, err = f.svc.RemoveLine(ctx, session.ID, lineForProduct(t, lines, 2).ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateInProgress, session.State)
	require.Equal(t, []int64{100, 101}, session.RequestIDs)
	require.False(t, Destroyable(session))

	session, err = f.svc.RemoveLine(ctx, session.ID, lineForProduct(t, lines, 1).ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, StateDraft, session.State)
	require.Empty(t, session.RequestIDs)
	require.True(t, Destroyable(session))
}

func TestRemoveLineRejectsTerminalSession(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.createSession(t)
	_, err := f.svc.Cancel(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.RemoveLine(ctx, session.ID, 1, Actor{ID: 7})
	require.ErrorIs(t, err, ErrSessionTerminal)
}

func TestCreateSessionValidation(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()

	_, err := f.svc.CreateSession(ctx, CreateSessionInput{
		DateFrom: day("2024-02-01"), DateTo: day("2024-01-01"), CompanyID: 1, WarehouseID: houseMain,
	})
	require.ErrorIs(t, err, ErrInvalidWindow)

	_, err = f.svc.CreateSession(ctx, CreateSessionInput{
		DateFrom: day("2024-01-01"), DateTo: day("2024-02-01"), CompanyID: 1,
	})
	require.ErrorIs(t, err, ErrNoWarehouse)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReclassifyOnlyBeforePOCreated(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	session := f.toInventoryValidation(t)

	// Stock moved since the first run; reclassification picks it up.
	f.cls.stock.snapshots[stockKey{1, locMain}] = inventory.Snapshot{OnHand: 0}
	summary, err := f.svc.Reclassify(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	require.Equal(t, 1, summary.StockoutCount)
	require.Equal(t, 0, summary.BelowSafetyCount)

	_, err = f.svc.ApproveInventory(ctx, session.ID, Actor{ID: 9, CanOverrideShortage: true}, "")
	require.NoError(t, err)
	_, err = f.svc.BeginPOCreation(ctx, session.ID, Actor{ID: 7})
	require.NoError(t, err)
	_, err = f.svc.MarkPOsCreated(ctx, session.ID, 1, false, Actor{ID: 7})
	require.NoError(t, err)

	_, err = f.svc.Reclassify(ctx, session.ID, Actor{ID: 7})
	require.ErrorIs(t, err, ErrInvalidTransition)
}
