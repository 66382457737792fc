package campaign

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// JobQueue is the slice of the delivery worker the state machine needs:
// enqueue one job, learn its ID.
type JobQueue interface {
	AddJob(job domain.SendJob) (string, error)
}

// Service implements the campaign send state machine. It coordinates the
// repository, the tenant review policy, and the delivery worker. Public
// methods are safe for concurrent use when the repository is.
type Service struct {
	repo  Repository
	queue JobQueue
}

// NewService creates a campaign service backed by the given repository and
// delivery queue.
func NewService(repo Repository, queue JobQueue) *Service {
	return &Service{repo: repo, queue: queue}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, tenantID, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, tenantID string, input CreateInput) (*domain.Campaign, error) {
	if input.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if input.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	now := time.Now()
	c := &domain.Campaign{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Subject:      input.Subject,
		Content:      input.Content,
		Status:       domain.CampaignDraft,
		ReviewStatus: domain.ReviewNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// Delete removes a campaign that is not mid-send.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignSending {
		return ErrInvalidTransition
	}
	return s.repo.Delete(ctx, tenantID, id)
}

// SubmitForReview moves a draft or ready campaign into pending_review and
// generates a single-use verification code bound to it. The code is returned
// so the caller can deliver it to the reviewer out of band; it is never
// exposed through campaign reads.
func (s *Service) SubmitForReview(ctx context.Context, tenantID, id string) (string, error) {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignReadyToSend {
		return "", ErrInvalidTransition
	}

	settings, err := s.repo.Settings(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load tenant settings: %w", err)
	}
	if settings.ReviewerID == "" {
		return "", ErrReviewNotConfigured
	}

	code, err := verificationCode()
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}

	c.Status = domain.CampaignPendingReview
	c.ReviewStatus = domain.ReviewPending
	c.ReviewerID = settings.ReviewerID
	c.ReviewCode = code
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		return "", err
	}

	logger.Info("campaign submitted for review",
		"campaign_id", c.ID,
		"tenant_id", tenantID,
		"reviewer_id", c.ReviewerID)
	return code, nil
}

// Approve moves a pending_review campaign to ready_to_send. Only the
// assigned reviewer with the correct verification code may approve; the
// code is cleared on success so it cannot be replayed.
func (s *Service) Approve(ctx context.Context, tenantID, id, reviewerID, code string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPendingReview {
		return ErrInvalidTransition
	}
	if reviewerID == "" || reviewerID != c.ReviewerID {
		return ErrNotReviewer
	}
	if code == "" || code != c.ReviewCode {
		return ErrInvalidReviewCode
	}

	c.Status = domain.CampaignReadyToSend
	c.ReviewStatus = domain.ReviewApproved
	c.ReviewCode = ""
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}

	logger.Info("campaign approved", "campaign_id", c.ID, "reviewer_id", reviewerID)
	return nil
}

// Reject returns a pending_review campaign to draft.
func (s *Service) Reject(ctx context.Context, tenantID, id, reviewerID string) error {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if c.Status != domain.CampaignPendingReview {
		return ErrInvalidTransition
	}
	if reviewerID == "" || reviewerID != c.ReviewerID {
		return ErrNotReviewer
	}

	c.Status = domain.CampaignDraft
	c.ReviewStatus = domain.ReviewRejected
	c.ReviewCode = ""
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		return err
	}

	logger.Info("campaign rejected", "campaign_id", c.ID, "reviewer_id", reviewerID)
	return nil
}

// SendInput carries everything needed to build the campaign's delivery job.
type SendInput struct {
	Recipients   []domain.Recipient
	BatchSize    int
	Priority     domain.JobPriority
	ScheduledFor *time.Time
}

// Send transitions a campaign to sending and enqueues exactly one delivery
// job, returning the job ID. The transition to sent happens later, when the
// worker reports the job finished.
func (s *Service) Send(ctx context.Context, tenantID, id string, input SendInput) (string, error) {
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}

	switch c.Status {
	case domain.CampaignSent:
		return "", ErrAlreadySent
	case domain.CampaignSending:
		return "", ErrAlreadySending
	case domain.CampaignPendingReview:
		return "", ErrReviewRequired
	}

	settings, err := s.repo.Settings(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("load tenant settings: %w", err)
	}
	if settings.ReviewRequired && c.ReviewStatus != domain.ReviewApproved {
		return "", ErrReviewRequired
	}

	if len(input.Recipients) == 0 {
		return "", ErrNoRecipients
	}

	job := domain.SendJob{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		CampaignID:   c.ID,
		GroupUUID:    uuid.New().String(),
		Subject:      c.Subject,
		Content:      c.Content,
		Recipients:   input.Recipients,
		BatchSize:    input.BatchSize,
		Priority:     input.Priority,
		CreatedAt:    time.Now(),
		ScheduledFor: input.ScheduledFor,
	}

	jobID, err := s.queue.AddJob(job)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery job: %w", err)
	}

	c.Status = domain.CampaignSending
	c.ActiveJobID = jobID
	c.RecipientCount = len(input.Recipients)
	c.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, c); err != nil {
		// The job is already queued; the finalizer will still move the
		// campaign forward when it lands.
		logger.Error("failed to persist sending status",
			"campaign_id", c.ID, "job_id", jobID, "error", err.Error())
		return jobID, err
	}

	logger.Info("campaign sending",
		"campaign_id", c.ID,
		"tenant_id", tenantID,
		"job_id", jobID,
		"recipients", len(input.Recipients))
	return jobID, nil
}

// JobFinished is the worker's terminal callback: a completed job marks the
// campaign sent; a failed or cancelled job reverts it to draft so the
// operator can retry. Called exactly once per job.
func (s *Service) JobFinished(ctx context.Context, job domain.SendJob, final domain.JobProgress) {
	c, err := s.repo.Get(ctx, job.TenantID, job.CampaignID)
	if err != nil {
		logger.Error("job finished for unknown campaign",
			"campaign_id", job.CampaignID, "job_id", job.ID, "error", err.Error())
		return
	}
	if c.ActiveJobID != job.ID {
		logger.Warn("job finished for stale campaign job",
			"campaign_id", c.ID, "job_id", job.ID, "active_job_id", c.ActiveJobID)
		return
	}

	now := time.Now()
	switch final.Status {
	case domain.JobCompleted:
		c.Status = domain.CampaignSent
		c.SentAt = &now
	default:
		// failed or cancelled: never leave the campaign stuck in sending
		c.Status = domain.CampaignDraft
	}
	c.ActiveJobID = ""
	c.UpdatedAt = now
	if err := s.repo.Update(ctx, c); err != nil {
		logger.Error("failed to finalize campaign",
			"campaign_id", c.ID, "job_id", job.ID, "error", err.Error())
		return
	}

	logger.Info("campaign finalized",
		"campaign_id", c.ID,
		"job_id", job.ID,
		"job_status", string(final.Status),
		"campaign_status", string(c.Status),
		"sent", final.Sent,
		"failed", final.Failed)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

// verificationCode returns a 5-digit code from crypto/rand.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%05d", n.Int64()+10000), nil
}
