package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/consolidation"
	"github.com/meridian-erp/meridian/internal/shared"
)

type fakeConsolidation struct {
	sessions     map[consolidation.SessionState][]consolidation.Session
	reclassified []int64
	failOn       int64
}

func (f *fakeConsolidation) ListSessions(_ context.Context, filter consolidation.SessionFilter) ([]consolidation.Session, error) {
	return f.sessions[filter.State], nil
}

func (f *fakeConsolidation) Reclassify(_ context.Context, sessionID int64, _ consolidation.Actor) (consolidation.Summary, error) {
	if sessionID == f.failOn {
		return consolidation.Summary{}, errors.New("boom")
	}
	f.reclassified = append(f.reclassified, sessionID)
	return consolidation.Summary{StockoutCount: 1}, nil
}

func newReclassifyFixture(t *testing.T) (*SessionReclassifyJob, *fakeConsolidation, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	svc := &fakeConsolidation{sessions: map[consolidation.SessionState][]consolidation.Session{}}
	job := NewSessionReclassifyJob(svc, rdb, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	job.WithClock(func() time.Time { return time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC) })
	return job, svc, mr
}

func TestReclassifyExplicitSession(t *testing.T) {
	job, svc, _ := newReclassifyFixture(t)

	task, err := NewSessionReclassifyTask(42)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{42}, svc.reclassified)
}

func TestReclassifyResolvesOpenSessions(t *testing.T) {
	job, svc, _ := newReclassifyFixture(t)
	svc.sessions[consolidation.StateInventoryValidation] = []consolidation.Session{{ID: 1}, {ID: 2}}
	svc.sessions[consolidation.StateApproved] = []consolidation.Session{{ID: 3}}

	task, err := NewSessionReclassifyTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{1, 2, 3}, svc.reclassified)
}

func TestReclassifySkipsLockedSession(t *testing.T) {
	job, svc, mr := newReclassifyFixture(t)
	svc.sessions[consolidation.StateInventoryValidation] = []consolidation.Session{{ID: 1}, {ID: 2}}
	require.NoError(t, mr.Set(shared.SessionLockKey(1), "1"))

	task, err := NewSessionReclassifyTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{2}, svc.reclassified)
	// The skipped session's lock belongs to the other holder and stays.
	require.True(t, mr.Exists(shared.SessionLockKey(1)))
	require.False(t, mr.Exists(shared.SessionLockKey(2)))
}

func TestReclassifyContinuesPastFailure(t *testing.T) {
	job, svc, _ := newReclassifyFixture(t)
	svc.sessions[consolidation.StateApproved] = []consolidation.Session{{ID: 1}, {ID: 2}}
	svc.failOn = 1

	task, err := NewSessionReclassifyTask(0)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Equal(t, []int64{2}, svc.reclassified)
}

func TestReclassifyRejectsMalformedPayload(t *testing.T) {
	job, _, _ := newReclassifyFixture(t)

	task := asynq.NewTask(TaskSessionReclassify, []byte("{"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
