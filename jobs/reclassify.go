package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian/internal/consolidation"
	jobmetrics "github.com/meridian-erp/meridian/internal/jobs"
	"github.com/meridian-erp/meridian/internal/shared"
)

// sessionLockTTL bounds how long a reclassification run may hold a session.
const sessionLockTTL = 2 * time.Minute

// ConsolidationService describes the behaviour the reclassify job needs.
type ConsolidationService interface {
	ListSessions(ctx context.Context, filter consolidation.SessionFilter) ([]consolidation.Session, error)
	Reclassify(ctx context.Context, sessionID int64, actor consolidation.Actor) (consolidation.Summary, error)
}

// SessionReclassifyJob re-runs the classifier over sessions whose stock
// picture may have changed since validation.
type SessionReclassifyJob struct {
	Service ConsolidationService
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSessionReclassifyJob constructs the job handler.
func NewSessionReclassifyJob(service ConsolidationService, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionReclassifyJob {
	return &SessionReclassifyJob{
		Service: service,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the reclassification run.
func (j *SessionReclassifyJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("session reclassify: dependencies not configured")
	}
	var payload SessionReclassifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskSessionReclassify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	sessionIDs, err := j.resolveSessions(ctx, payload.SessionID)
	if err != nil {
		resultErr = err
		return resultErr
	}
	if len(sessionIDs) == 0 {
		j.log().Info("no sessions open for reclassification")
		return resultErr
	}

	start := j.now()
	refreshed := 0
	for _, id := range sessionIDs {
		if !j.acquire(ctx, id) {
			j.log().Info("session locked, skipping", slog.Int64("session_id", id))
			continue
		}
		summary, err := j.Service.Reclassify(ctx, id, consolidation.Actor{})
		j.release(ctx, id)
		if err != nil {
			// One stuck session must not starve the rest of the batch.
			j.log().Error("reclassify session", slog.Int64("session_id", id), slog.Any("error", err))
			resultErr = err
			continue
		}
		refreshed++
		j.log().Info("session reclassified",
			slog.Int64("session_id", id),
			slog.Int("stockout", summary.StockoutCount),
			slog.Int("below_safety", summary.BelowSafetyCount))
	}
	j.log().Info("reclassification run finished",
		slog.Int("sessions", refreshed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *SessionReclassifyJob) resolveSessions(ctx context.Context, sessionID int64) ([]int64, error) {
	if sessionID > 0 {
		return []int64{sessionID}, nil
	}
	var ids []int64
	for _, state := range []consolidation.SessionState{
		consolidation.StateInventoryValidation,
		consolidation.StateApproved,
	} {
		sessions, err := j.Service.ListSessions(ctx, consolidation.SessionFilter{State: state})
		if err != nil {
			return nil, err
		}
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
	}
	return ids, nil
}

func (j *SessionReclassifyJob) acquire(ctx context.Context, sessionID int64) bool {
	if j.Redis == nil {
		return true
	}
	ok, err := j.Redis.SetNX(ctx, shared.SessionLockKey(sessionID), "1", sessionLockTTL).Result()
	if err != nil {
		// Treat a broken lock service as unlocked; reclassification is
		// idempotent.
		j.log().Warn("session lock unavailable", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return true
	}
	return ok
}

func (j *SessionReclassifyJob) release(ctx context.Context, sessionID int64) {
	if j.Redis == nil {
		return
	}
	_ = j.Redis.Del(ctx, shared.SessionLockKey(sessionID)).Err()
}

func (j *SessionReclassifyJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *SessionReclassifyJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionReclassify))
	}
	return slog.Default().With(slog.String("job", TaskSessionReclassify))
}

func (j *SessionReclassifyJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SessionReclassifyJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
