// Package worker contains the in-process bulk delivery worker: a priority
// job queue that turns "send this campaign to N recipients" into individual
// dispatches under bounded concurrency, with suppression enforcement at send
// time, progress tracking, cooperative cancellation, and completion
// signalling back to the campaign layer.
//
// Three concurrency tiers keep total throughput high without overwhelming
// any one provider: jobs run concurrently up to MaxConcurrentJobs, batches
// within a job run sequentially with an inter-batch delay, and recipients
// within a batch fan out up to SubBatchSize simultaneous sends.
package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/provider"
	"github.com/ignite/mailflow/internal/suppression"
)

// Dispatcher sends one message through the provider chain. It never panics;
// total failure is an unsuccessful result.
type Dispatcher interface {
	Send(ctx context.Context, msg *provider.Message) *provider.SendResult
}

// SuppressionFilter partitions candidate recipients into allowed and blocked
// sets. Runs immediately before dispatch, never only at enqueue time.
type SuppressionFilter interface {
	Filter(ctx context.Context, tenantID string, recipients []domain.Recipient) (*suppression.FilterResult, error)
}

// Finalizer is notified exactly once per job, when it reaches a terminal
// state. The campaign state machine implements this to move sending
// campaigns to sent (or back to draft on failure).
type Finalizer interface {
	JobFinished(ctx context.Context, job domain.SendJob, final domain.JobProgress)
}

// Config tunes the worker. Zero values fall back to the defaults below.
type Config struct {
	MaxConcurrentJobs   int
	SubBatchSize        int
	DefaultBatchSize    int
	DelayBetweenBatches time.Duration
	PollInterval        time.Duration
	RetentionWindow     time.Duration
	MaxQueueDepth       int
	EventBuffer         int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 3
	}
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = 10
	}
	if c.DefaultBatchSize <= 0 {
		c.DefaultBatchSize = 100
	}
	if c.DelayBetweenBatches < 0 {
		c.DelayBetweenBatches = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = time.Hour
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = 1000
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// Worker is the in-process bulk delivery queue. All exported methods are
// safe for concurrent use.
type Worker struct {
	cfg        Config
	dispatcher Dispatcher
	filter     SuppressionFilter
	finalizer  Finalizer

	mu      sync.Mutex
	queue   jobQueue
	jobs    map[string]*jobState // every known job, terminal included
	active  int
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events        chan JobEvent
	droppedEvents int64

	totalSent    int64
	totalFailed  int64
	totalSkipped int64
}

// New creates a worker. The finalizer may be nil; set it later with
// SetFinalizer before jobs reach terminal states if completion callbacks
// matter.
func New(cfg Config, dispatcher Dispatcher, filter SuppressionFilter) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:        cfg,
		dispatcher: dispatcher,
		filter:     filter,
		jobs:       make(map[string]*jobState),
		events:     make(chan JobEvent, cfg.EventBuffer),
	}
}

// SetFinalizer wires the per-job terminal callback.
func (w *Worker) SetFinalizer(f Finalizer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalizer = f
}

// Events returns the stream of typed job events. A single consumer is
// expected; when nobody drains the buffer, the oldest events are dropped
// rather than stalling delivery.
func (w *Worker) Events() <-chan JobEvent {
	return w.events
}

// Start launches the scheduling loop.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("delivery worker starting",
		"max_concurrent_jobs", w.cfg.MaxConcurrentJobs,
		"sub_batch_size", w.cfg.SubBatchSize)

	w.wg.Add(1)
	go w.run()
}

// Stop cancels all in-flight jobs and waits for their goroutines to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("delivery worker stopped",
		"total_sent", atomic.LoadInt64(&w.totalSent),
		"total_failed", atomic.LoadInt64(&w.totalFailed),
		"total_skipped", atomic.LoadInt64(&w.totalSkipped))
}

// Stats returns process-lifetime delivery counters.
func (w *Worker) Stats() map[string]int64 {
	return map[string]int64{
		"total_sent":     atomic.LoadInt64(&w.totalSent),
		"total_failed":   atomic.LoadInt64(&w.totalFailed),
		"total_skipped":  atomic.LoadInt64(&w.totalSkipped),
		"dropped_events": atomic.LoadInt64(&w.droppedEvents),
	}
}

// AddJob validates and enqueues a job, returning its ID. Returns an error
// when the worker is stopped or the queue is at MaxQueueDepth (backpressure:
// the caller should retry later rather than pile work into memory).
func (w *Worker) AddJob(job domain.SendJob) (string, error) {
	if len(job.Recipients) == 0 {
		return "", fmt.Errorf("job has no recipients")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.GroupUUID == "" {
		job.GroupUUID = uuid.New().String()
	}
	if job.BatchSize <= 0 {
		job.BatchSize = w.cfg.DefaultBatchSize
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return "", fmt.Errorf("worker is not running")
	}
	if w.queue.len() >= w.cfg.MaxQueueDepth {
		w.mu.Unlock()
		return "", fmt.Errorf("queue depth %d exceeds limit, try again later", w.cfg.MaxQueueDepth)
	}
	if _, exists := w.jobs[job.ID]; exists {
		w.mu.Unlock()
		return "", fmt.Errorf("job %s already queued", job.ID)
	}
	js := newJobState(job)
	w.jobs[job.ID] = js
	w.queue.push(js)
	w.mu.Unlock()

	w.emit(EventJobQueued, js)
	return job.ID, nil
}

// JobStatus returns a snapshot of the job's progress.
func (w *Worker) JobStatus(jobID string) (domain.JobProgress, bool) {
	w.mu.Lock()
	js, ok := w.jobs[jobID]
	w.mu.Unlock()
	if !ok {
		return domain.JobProgress{}, false
	}
	return js.snapshot(), true
}

// CancelJob cancels a job. A queued job is removed with zero sends issued; a
// processing job stops issuing new sends at the next sub-batch boundary
// while in-flight sends complete. Returns false for unknown or already
// terminal jobs.
func (w *Worker) CancelJob(jobID string) bool {
	w.mu.Lock()
	js, ok := w.jobs[jobID]
	if !ok {
		w.mu.Unlock()
		return false
	}
	snap := js.snapshot()
	if snap.Status.IsTerminal() {
		w.mu.Unlock()
		return false
	}
	queued := w.queue.remove(jobID)
	w.mu.Unlock()

	if queued {
		js.mu.Lock()
		js.cancelled = true
		now := time.Now()
		js.progress.Status = domain.JobCancelled
		js.progress.CompletedAt = &now
		js.mu.Unlock()
		w.emit(EventJobCancelled, js)
		w.finalize(js)
		return true
	}

	js.markCancelled()
	return true
}

// run is the single scheduling loop: start eligible jobs while slots are
// free, refresh ETA estimates, and evict terminal jobs past retention.
func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	estimate := time.NewTicker(5 * time.Second)
	defer estimate.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-estimate.C:
			w.updateEstimates()
			w.evictExpired()
		case <-ticker.C:
			w.startEligible()
		}
	}
}

// startEligible fills free job slots from the queue.
func (w *Worker) startEligible() {
	now := time.Now()
	for {
		w.mu.Lock()
		if !w.running || w.active >= w.cfg.MaxConcurrentJobs {
			w.mu.Unlock()
			return
		}
		js := w.queue.popEligible(now)
		if js == nil {
			w.mu.Unlock()
			return
		}
		w.active++
		w.wg.Add(1)
		w.mu.Unlock()

		go w.process(js)
	}
}

// process drives one job to a terminal state. Runs on its own goroutine;
// suspension points (scheduled start, rate-limit waits, inter-batch delays)
// block only this job.
func (w *Worker) process(js *jobState) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		w.active--
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()
	js.mu.Lock()
	js.cancelFn = cancel
	alreadyCancelled := js.cancelled
	now := time.Now()
	js.progress.Status = domain.JobProcessing
	js.progress.StartedAt = &now
	js.mu.Unlock()

	if alreadyCancelled {
		w.finishCancelled(js)
		return
	}

	job := js.job
	w.emit(EventJobStarted, js)

	// A near-future scheduled start that was already eligible by poll
	// granularity still waits out the remainder here.
	if job.ScheduledFor != nil {
		if wait := time.Until(*job.ScheduledFor); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				w.finishCancelled(js)
				return
			}
		}
	}

	// Suppression runs at send time, not enqueue time: entries added since
	// the job was queued must still block.
	res, err := w.filter.Filter(ctx, job.TenantID, job.Recipients)
	if err != nil {
		w.finishFailed(js, fmt.Errorf("suppression filter: %w", err))
		return
	}
	atomic.AddInt64(&w.totalSkipped, int64(len(res.Blocked)))
	for _, b := range res.Blocked {
		logger.Debug("recipient suppressed",
			"job_id", job.ID,
			"email", b.Recipient.Email,
			"reason", string(b.Reason))
	}

	allowed := res.Allowed
	totalBatches := 0
	if len(allowed) > 0 {
		totalBatches = (len(allowed) + job.BatchSize - 1) / job.BatchSize
	}

	// Progress percentages are relative to the post-filter count so they
	// stay meaningful when many recipients were suppressed.
	js.mu.Lock()
	js.progress.Total = len(allowed)
	js.progress.TotalBatches = totalBatches
	js.mu.Unlock()

	for i := 0; i < totalBatches; i++ {
		if js.isCancelled() || ctx.Err() != nil {
			w.finishCancelled(js)
			return
		}

		start := i * job.BatchSize
		end := start + job.BatchSize
		if end > len(allowed) {
			end = len(allowed)
		}

		js.mu.Lock()
		js.progress.CurrentBatch = i + 1
		js.mu.Unlock()

		w.processBatch(ctx, js, allowed[start:end])
		w.emit(EventBatchCompleted, js)

		// Inter-batch delay smooths provider load; skipped after the last
		// batch.
		if i < totalBatches-1 {
			if err := sleepCtx(ctx, w.cfg.DelayBetweenBatches); err != nil {
				w.finishCancelled(js)
				return
			}
		}
	}

	if js.isCancelled() {
		w.finishCancelled(js)
		return
	}
	w.finishCompleted(js)
}

// processBatch fans the batch out in sub-batches of SubBatchSize concurrent
// sends. Cancellation is observed between sub-batches: no new sends are
// issued, in-flight ones finish.
func (w *Worker) processBatch(ctx context.Context, js *jobState, batch []domain.Recipient) {
	for start := 0; start < len(batch); start += w.cfg.SubBatchSize {
		if js.isCancelled() || ctx.Err() != nil {
			return
		}
		end := start + w.cfg.SubBatchSize
		if end > len(batch) {
			end = len(batch)
		}

		var wg sync.WaitGroup
		for _, r := range batch[start:end] {
			wg.Add(1)
			go func(r domain.Recipient) {
				defer wg.Done()
				w.sendOne(ctx, js, r)
			}(r)
		}
		wg.Wait()
	}
}

// sendOne dispatches a single recipient's message and folds the outcome
// into the job's progress.
func (w *Worker) sendOne(ctx context.Context, js *jobState, r domain.Recipient) {
	job := js.job
	msg := &provider.Message{
		To:      r.Email,
		Subject: job.Subject,
		HTML:    renderContent(job.Content, r),
		Headers: map[string]string{
			"X-Group-UUID": job.GroupUUID,
		},
		Metadata: map[string]string{
			"tenant_id":   job.TenantID,
			"campaign_id": job.CampaignID,
			"group_uuid":  job.GroupUUID,
		},
	}

	js.mu.Lock()
	if js.firstDispatch.IsZero() {
		js.firstDispatch = time.Now()
	}
	js.mu.Unlock()

	result := w.dispatcher.Send(ctx, msg)

	js.mu.Lock()
	js.dispatched++
	if result.Success {
		js.progress.Sent++
	} else {
		js.progress.Failed++
		errMsg := "send failed"
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		if len(errMsg) > 255 {
			errMsg = errMsg[:255]
		}
		js.progress.Errors = append(js.progress.Errors, domain.SendError{
			Email:     r.Email,
			Error:     errMsg,
			Timestamp: time.Now(),
		})
	}
	if js.progress.Total > 0 {
		done := js.progress.Sent + js.progress.Failed
		js.progress.Progress = int(math.Round(float64(done) / float64(js.progress.Total) * 100))
	}
	js.mu.Unlock()

	if result.Success {
		atomic.AddInt64(&w.totalSent, 1)
	} else {
		atomic.AddInt64(&w.totalFailed, 1)
	}
}

func (w *Worker) finishCompleted(js *jobState) {
	now := time.Now()
	js.mu.Lock()
	js.progress.Status = domain.JobCompleted
	js.progress.Progress = 100
	js.progress.CompletedAt = &now
	js.progress.EstimatedCompletionTime = nil
	js.mu.Unlock()

	w.emit(EventJobCompleted, js)
	w.finalize(js)
}

func (w *Worker) finishCancelled(js *jobState) {
	now := time.Now()
	js.mu.Lock()
	js.cancelled = true
	js.progress.Status = domain.JobCancelled
	js.progress.CompletedAt = &now
	js.progress.EstimatedCompletionTime = nil
	js.mu.Unlock()

	w.emit(EventJobCancelled, js)
	w.finalize(js)
}

// finishFailed handles systemic failures (not per-recipient ones): the whole
// job stops and the campaign layer gets a chance to revert to draft.
func (w *Worker) finishFailed(js *jobState, err error) {
	logger.Error("job failed", "job_id", js.job.ID, "error", err.Error())
	now := time.Now()
	js.mu.Lock()
	js.progress.Status = domain.JobFailed
	js.progress.SystemError = err.Error()
	js.progress.CompletedAt = &now
	js.progress.EstimatedCompletionTime = nil
	js.mu.Unlock()

	w.emit(EventJobFailed, js)
	w.finalize(js)
}

func (w *Worker) finalize(js *jobState) {
	w.mu.Lock()
	f := w.finalizer
	w.mu.Unlock()
	if f == nil {
		return
	}
	f.JobFinished(context.Background(), js.job, js.snapshot())
}

// emit publishes an event without ever blocking delivery. When the buffer is
// full the event is dropped and counted.
func (w *Worker) emit(t EventType, js *jobState) {
	ev := JobEvent{
		Type:       t,
		JobID:      js.job.ID,
		CampaignID: js.job.CampaignID,
		TenantID:   js.job.TenantID,
		Progress:   js.snapshot(),
		At:         time.Now(),
	}
	select {
	case w.events <- ev:
	default:
		atomic.AddInt64(&w.droppedEvents, 1)
	}
}

// updateEstimates recomputes advisory completion times from observed
// per-email latency. Never gates behavior.
func (w *Worker) updateEstimates() {
	w.mu.Lock()
	states := make([]*jobState, 0, len(w.jobs))
	for _, js := range w.jobs {
		states = append(states, js)
	}
	w.mu.Unlock()

	now := time.Now()
	for _, js := range states {
		js.mu.Lock()
		if js.progress.Status == domain.JobProcessing && js.dispatched > 0 && !js.firstDispatch.IsZero() {
			perEmail := now.Sub(js.firstDispatch) / time.Duration(js.dispatched)
			remaining := js.progress.Total - js.progress.Sent - js.progress.Failed
			if remaining > 0 {
				eta := now.Add(perEmail * time.Duration(remaining))
				js.progress.EstimatedCompletionTime = &eta
			}
		}
		js.mu.Unlock()
	}
}

// evictExpired drops terminal jobs whose retention window has passed.
func (w *Worker) evictExpired() {
	cutoff := time.Now().Add(-w.cfg.RetentionWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, js := range w.jobs {
		snap := js.snapshot()
		if snap.Status.IsTerminal() && snap.CompletedAt != nil && snap.CompletedAt.Before(cutoff) {
			delete(w.jobs, id)
		}
	}
}

// renderContent substitutes recipient merge tags into the message body.
func renderContent(content string, r domain.Recipient) string {
	content = strings.ReplaceAll(content, "{{first_name}}", r.FirstName)
	content = strings.ReplaceAll(content, "{{last_name}}", r.LastName)
	content = strings.ReplaceAll(content, "{{email}}", r.Email)
	return content
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
