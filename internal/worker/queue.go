package worker

import (
	"sort"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

// jobState is the worker-owned record for one job. The progress struct is
// mutated only by the goroutine processing the job (plus the advisory ETA
// field written by the scheduler); every access goes through the mutex so
// readers always see a consistent snapshot.
type jobState struct {
	job domain.SendJob

	mu       sync.Mutex
	progress domain.JobProgress

	cancelFn  func()
	cancelled bool

	// latency tracking for the ETA estimator
	firstDispatch time.Time
	dispatched    int
}

func newJobState(job domain.SendJob) *jobState {
	return &jobState{
		job: job,
		progress: domain.JobProgress{
			JobID:  job.ID,
			Total:  len(job.Recipients),
			Status: domain.JobPending,
		},
	}
}

// snapshot returns a defensive copy of the progress, including the error list.
func (js *jobState) snapshot() domain.JobProgress {
	js.mu.Lock()
	defer js.mu.Unlock()
	p := js.progress
	if len(js.progress.Errors) > 0 {
		p.Errors = make([]domain.SendError, len(js.progress.Errors))
		copy(p.Errors, js.progress.Errors)
	}
	return p
}

// markCancelled flips the cooperative cancellation flag and fires the job's
// context cancel if processing already started.
func (js *jobState) markCancelled() {
	js.mu.Lock()
	js.cancelled = true
	fn := js.cancelFn
	js.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (js *jobState) isCancelled() bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.cancelled
}

// jobQueue orders pending jobs by priority (high first) with FIFO tie-break
// on CreatedAt, so urgent campaigns jump ahead without starving older ones.
// Not safe for concurrent use; the worker serializes access under its own
// mutex.
type jobQueue struct {
	items []*jobState
}

func (q *jobQueue) push(js *jobState) {
	q.items = append(q.items, js)
	sort.SliceStable(q.items, func(i, j int) bool {
		pi, pj := q.items[i].job.Priority.Rank(), q.items[j].job.Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return q.items[i].job.CreatedAt.Before(q.items[j].job.CreatedAt)
	})
}

// popEligible removes and returns the best job whose scheduled start has
// passed. Returns nil when nothing is eligible.
func (q *jobQueue) popEligible(now time.Time) *jobState {
	for i, js := range q.items {
		if js.job.ScheduledFor != nil && js.job.ScheduledFor.After(now) {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return js
	}
	return nil
}

// remove deletes a job from the queue by ID. Returns false if absent.
func (q *jobQueue) remove(jobID string) bool {
	for i, js := range q.items {
		if js.job.ID == jobID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *jobQueue) len() int { return len(q.items) }
