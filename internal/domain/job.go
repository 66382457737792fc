package domain

import "time"

// JobPriority orders jobs in the delivery queue. High beats normal beats low;
// ties break on CreatedAt (FIFO within a tier).
type JobPriority string

const (
	PriorityLow    JobPriority = "low"
	PriorityNormal JobPriority = "normal"
	PriorityHigh   JobPriority = "high"
)

// Rank returns a sortable weight for the priority. Unknown values rank as
// normal so a bad caller never starves its own job.
func (p JobPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Recipient is one destination address within a send job.
type Recipient struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// SendJob is one queued unit of work: "send this message to these
// recipients". Immutable once created; the worker evicts it from memory after
// a retention window once terminal.
type SendJob struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	CampaignID   string      `json:"campaign_id"`
	GroupUUID    string      `json:"group_uuid"`
	Subject      string      `json:"subject"`
	Content      string      `json:"content"`
	Recipients   []Recipient `json:"recipients"`
	BatchSize    int         `json:"batch_size"`
	Priority     JobPriority `json:"priority"`
	CreatedAt    time.Time   `json:"created_at"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
}

// JobStatus enumerates the lifecycle of a send job. Status only moves
// forward: pending → processing → completed|failed|cancelled.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true once a job can make no further progress.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// SendError records one per-recipient delivery failure.
type SendError struct {
	Email     string    `json:"email"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// JobProgress is the observable state of one send job. It is owned by the
// worker processing the job; callers only ever see snapshots.
// Invariant: Sent + Failed <= Total at every observable point.
type JobProgress struct {
	JobID                   string      `json:"job_id"`
	Total                   int         `json:"total"`
	Sent                    int         `json:"sent"`
	Failed                  int         `json:"failed"`
	Progress                int         `json:"progress"`
	Status                  JobStatus   `json:"status"`
	CurrentBatch            int         `json:"current_batch"`
	TotalBatches            int         `json:"total_batches"`
	Errors                  []SendError `json:"errors,omitempty"`
	SystemError             string      `json:"system_error,omitempty"`
	StartedAt               *time.Time  `json:"started_at,omitempty"`
	CompletedAt             *time.Time  `json:"completed_at,omitempty"`
	EstimatedCompletionTime *time.Time  `json:"estimated_completion_time,omitempty"`
}
