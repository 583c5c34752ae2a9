package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian/internal/jobs"
	"github.com/meridian-erp/meridian/internal/procurement"
)

// ProcurementService describes the behaviour the expiry sweep needs.
type ProcurementService interface {
	ExpireAgreements(ctx context.Context, asOf time.Time) ([]procurement.Agreement, error)
}

// AgreementExpiryJob closes vendor agreements whose validity window ended.
type AgreementExpiryJob struct {
	Service ProcurementService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAgreementExpiryJob constructs the job handler.
func NewAgreementExpiryJob(service ProcurementService, logger *slog.Logger, metrics *jobmetrics.Metrics) *AgreementExpiryJob {
	return &AgreementExpiryJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry sweep.
func (j *AgreementExpiryJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("agreement expiry: dependencies not configured")
	}
	var payload AgreementExpiryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskAgreementExpiry)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	expired, err := j.Service.ExpireAgreements(ctx, asOf)
	if err != nil {
		resultErr = err
		j.log().Error("expire agreements", slog.Any("error", err))
		return resultErr
	}
	j.log().Info("agreement expiry sweep finished",
		slog.Time("as_of", asOf), slog.Int("expired", len(expired)))
	return resultErr
}

func (j *AgreementExpiryJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *AgreementExpiryJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAgreementExpiry))
	}
	return slog.Default().With(slog.String("job", TaskAgreementExpiry))
}

func (j *AgreementExpiryJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *AgreementExpiryJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
