package worker

import (
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

// EventType labels entries on the job event stream.
type EventType string

const (
	EventJobQueued      EventType = "job_queued"
	EventJobStarted     EventType = "job_started"
	EventBatchCompleted EventType = "batch_completed"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventJobCancelled   EventType = "job_cancelled"
)

// JobEvent is one typed entry on the worker's event stream. Events for a
// single job are emitted in order; the Progress field is a snapshot taken at
// emission time.
type JobEvent struct {
	Type       EventType          `json:"type"`
	JobID      string             `json:"job_id"`
	CampaignID string             `json:"campaign_id"`
	TenantID   string             `json:"tenant_id"`
	Progress   domain.JobProgress `json:"progress"`
	At         time.Time          `json:"at"`
}
