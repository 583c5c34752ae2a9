package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionReclassify re-runs classification for consolidation
	// sessions whose stock picture may have drifted.
	TaskSessionReclassify = "consolidation:reclassify"
	// TaskAgreementExpiry closes vendor agreements past their validity.
	TaskAgreementExpiry = "procurement:expire_agreements"
	// TaskPlanSweep flags fulfillment plans stuck past their planned window.
	TaskPlanSweep = "fulfillment:plan_sweep"
)

// SessionReclassifyPayload scopes the reclassification run. A zero SessionID
// reclassifies every session still open for classification.
type SessionReclassifyPayload struct {
	SessionID int64 `json:"session_id"`
}

// NewSessionReclassifyTask constructs an Asynq task.
func NewSessionReclassifyTask(sessionID int64) (*asynq.Task, error) {
	body, err := json.Marshal(SessionReclassifyPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionReclassify, body, asynq.Queue(QueueDefault)), nil
}

// AgreementExpiryPayload carries the cutoff for the expiry sweep.
type AgreementExpiryPayload struct {
	AsOf time.Time `json:"as_of"`
}

// NewAgreementExpiryTask constructs an Asynq task.
func NewAgreementExpiryTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AgreementExpiryPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgreementExpiry, body, asynq.Queue(QueueDefault)), nil
}

// PlanSweepPayload configures the overdue-plan sweep.
type PlanSweepPayload struct {
	GraceDays int `json:"grace_days"`
}

// NewPlanSweepTask constructs an Asynq task.
func NewPlanSweepTask(graceDays int) (*asynq.Task, error) {
	body, err := json.Marshal(PlanSweepPayload{GraceDays: graceDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanSweep, body, asynq.Queue(QueueDefault)), nil
}
