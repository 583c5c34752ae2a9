package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-erp/meridian/internal/fulfillment"
	jobmetrics "github.com/meridian-erp/meridian/internal/jobs"
	"github.com/meridian-erp/meridian/internal/shared"
)

// planLockTTL bounds how long a sweep may hold a plan.
const planLockTTL = time.Minute

// FulfillmentService describes the behaviour the plan sweep needs.
type FulfillmentService interface {
	ListPlans(ctx context.Context, filter fulfillment.PlanFilter) ([]fulfillment.Plan, error)
	MarkException(ctx context.Context, planID int64, note string, actorID int64) (fulfillment.Plan, error)
}

// PlanSweepJob flags open fulfillment plans whose planned window elapsed
// without full delivery, so planners see them instead of chasing them.
type PlanSweepJob struct {
	Service FulfillmentService
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPlanSweepJob constructs the job handler.
func NewPlanSweepJob(service FulfillmentService, rdb *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *PlanSweepJob {
	return &PlanSweepJob{
		Service: service,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue-plan sweep.
func (j *PlanSweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("plan sweep: dependencies not configured")
	}
	var payload PlanSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.GraceDays < 0 {
		payload.GraceDays = 0
	}
	cutoff := j.now().AddDate(0, 0, -payload.GraceDays)

	tracker := j.metrics().Track(TaskPlanSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	flagged := 0
	for _, status := range []fulfillment.PlanStatus{fulfillment.StatusPending, fulfillment.StatusInProgress} {
		plans, err := j.Service.ListPlans(ctx, fulfillment.PlanFilter{Status: status})
		if err != nil {
			resultErr = err
			j.log().Error("list plans", slog.String("status", string(status)), slog.Any("error", err))
			return resultErr
		}
		for _, plan := range plans {
			if plan.PlannedEnd.IsZero() || !plan.PlannedEnd.Before(cutoff) {
				continue
			}
			if !j.acquire(ctx, plan.ID) {
				continue
			}
			_, err := j.Service.MarkException(ctx, plan.ID, "planned window elapsed", 0)
			j.release(ctx, plan.ID)
			if err != nil {
				// Receipts can land mid-sweep and legitimately win the race.
				j.log().Warn("mark plan exception", slog.Int64("plan_id", plan.ID), slog.Any("error", err))
				continue
			}
			flagged++
		}
	}
	j.log().Info("plan sweep finished", slog.Time("cutoff", cutoff), slog.Int("flagged", flagged))
	return resultErr
}

func (j *PlanSweepJob) acquire(ctx context.Context, planID int64) bool {
	if j.Redis == nil {
		return true
	}
	ok, err := j.Redis.SetNX(ctx, shared.PlanLockKey(planID), "1", planLockTTL).Result()
	if err != nil {
		return true
	}
	return ok
}

func (j *PlanSweepJob) release(ctx context.Context, planID int64) {
	if j.Redis == nil {
		return
	}
	_ = j.Redis.Del(ctx, shared.PlanLockKey(planID)).Err()
}

func (j *PlanSweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *PlanSweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPlanSweep))
	}
	return slog.Default().With(slog.String("job", TaskPlanSweep))
}

func (j *PlanSweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PlanSweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
