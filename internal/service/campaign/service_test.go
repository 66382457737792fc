package campaign_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/campaign"
)

// memRepo is an in-memory campaign repository for unit testing.
type memRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign // keyed by id
	settings  map[string]domain.TenantSettings
}

func newMemRepo() *memRepo {
	return &memRepo{
		campaigns: make(map[string]*domain.Campaign),
		settings:  make(map[string]domain.TenantSettings),
	}
}

func (m *memRepo) Get(_ context.Context, tenantID, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.TenantID != tenantID {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *memRepo) Create(_ context.Context, c *domain.Campaign) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		return "", fmt.Errorf("id required")
	}
	cp := *c
	m.campaigns[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRepo) Update(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.campaigns[c.ID]
	if !ok || cur.TenantID != c.TenantID {
		return campaign.ErrNotFound
	}
	cp := *c
	m.campaigns[cp.ID] = &cp
	return nil
}

func (m *memRepo) Delete(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return campaign.ErrNotFound
	}
	delete(m.campaigns, id)
	return nil
}

func (m *memRepo) Settings(_ context.Context, tenantID string) (domain.TenantSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[tenantID], nil
}

// stubQueue records enqueued jobs and hands back sequential IDs.
type stubQueue struct {
	mu   sync.Mutex
	jobs []domain.SendJob
	err  error
}

func (q *stubQueue) AddJob(job domain.SendJob) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return fmt.Sprintf("job-%d", len(q.jobs)), nil
}

func (q *stubQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

const testTenant = "tenant-1"

func recipients(n int) []domain.Recipient {
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{Email: fmt.Sprintf("r%d@test.com", i)}
	}
	return out
}

func newTestService(repo *memRepo, queue *stubQueue) *campaign.Service {
	return campaign.NewService(repo, queue)
}

func mustCreate(t *testing.T, svc *campaign.Service) *domain.Campaign {
	t.Helper()
	c, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{
		Subject: "Hello", Content: "<p>Hi {{first_name}}</p>",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestCreateStartsInDraft(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubQueue{})
	c := mustCreate(t, svc)
	if c.Status != domain.CampaignDraft {
		t.Fatalf("expected draft, got %s", c.Status)
	}
	if c.ReviewStatus != domain.ReviewNone {
		t.Fatalf("expected review none, got %s", c.ReviewStatus)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubQueue{})
	if _, err := svc.Create(context.Background(), testTenant, campaign.CreateInput{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSendTransitionsToSending(t *testing.T) {
	repo := newMemRepo()
	queue := &stubQueue{}
	svc := newTestService(repo, queue)
	c := mustCreate(t, svc)

	jobID, err := svc.Send(context.Background(), testTenant, c.ID, campaign.SendInput{
		Recipients: recipients(3), BatchSize: 100, Priority: domain.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected job id")
	}
	if queue.count() != 1 {
		t.Fatalf("expected exactly one job, got %d", queue.count())
	}

	got, _ := svc.Get(context.Background(), testTenant, c.ID)
	if got.Status != domain.CampaignSending {
		t.Fatalf("expected sending, got %s", got.Status)
	}
	if got.ActiveJobID != jobID {
		t.Fatalf("expected active job %s, got %s", jobID, got.ActiveJobID)
	}
	if got.RecipientCount != 3 {
		t.Fatalf("expected recipient count 3, got %d", got.RecipientCount)
	}
}

func TestSendWhileSendingRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubQueue{})
	c := mustCreate(t, svc)

	if _, err := svc.Send(context.Background(), testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := svc.Send(context.Background(), testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)})
	if !errors.Is(err, campaign.ErrAlreadySending) {
		t.Fatalf("expected ErrAlreadySending, got %v", err)
	}
}

func TestSendBlockedByMandatoryReview(t *testing.T) {
	repo := newMemRepo()
	repo.settings[testTenant] = domain.TenantSettings{
		TenantID: testTenant, ReviewRequired: true, ReviewerID: "reviewer-1",
	}
	queue := &stubQueue{}
	svc := newTestService(repo, queue)
	c := mustCreate(t, svc)

	_, err := svc.Send(context.Background(), testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)})
	if !errors.Is(err, campaign.ErrReviewRequired) {
		t.Fatalf("expected ErrReviewRequired, got %v", err)
	}
	if queue.count() != 0 {
		t.Fatalf("no job should be created, got %d", queue.count())
	}
}

func TestReviewApprovalFlow(t *testing.T) {
	repo := newMemRepo()
	repo.settings[testTenant] = domain.TenantSettings{
		TenantID: testTenant, ReviewRequired: true, ReviewerID: "reviewer-1",
	}
	queue := &stubQueue{}
	svc := newTestService(repo, queue)
	c := mustCreate(t, svc)
	ctx := context.Background()

	code, err := svc.SubmitForReview(ctx, testTenant, c.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(code) != 5 {
		t.Fatalf("expected 5-digit code, got %q", code)
	}

	// sending while pending review is rejected
	if _, err := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)}); !errors.Is(err, campaign.ErrReviewRequired) {
		t.Fatalf("expected ErrReviewRequired while pending, got %v", err)
	}

	// wrong reviewer
	if err := svc.Approve(ctx, testTenant, c.ID, "intruder", code); !errors.Is(err, campaign.ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer, got %v", err)
	}

	// wrong code leaves the campaign pending
	if err := svc.Approve(ctx, testTenant, c.ID, "reviewer-1", "00000"); !errors.Is(err, campaign.ErrInvalidReviewCode) {
		t.Fatalf("expected ErrInvalidReviewCode, got %v", err)
	}
	got, _ := svc.Get(ctx, testTenant, c.ID)
	if got.Status != domain.CampaignPendingReview {
		t.Fatalf("expected pending_review after bad code, got %s", got.Status)
	}

	if err := svc.Approve(ctx, testTenant, c.ID, "reviewer-1", code); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ = svc.Get(ctx, testTenant, c.ID)
	if got.Status != domain.CampaignReadyToSend || got.ReviewStatus != domain.ReviewApproved {
		t.Fatalf("expected ready_to_send/approved, got %s/%s", got.Status, got.ReviewStatus)
	}

	// the code is single-use: a second approval attempt fails
	if err := svc.Approve(ctx, testTenant, c.ID, "reviewer-1", code); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on replay, got %v", err)
	}

	if _, err := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(2)}); err != nil {
		t.Fatalf("send after approval: %v", err)
	}
	if queue.count() != 1 {
		t.Fatalf("expected one job, got %d", queue.count())
	}
}

func TestRejectReturnsToDraft(t *testing.T) {
	repo := newMemRepo()
	repo.settings[testTenant] = domain.TenantSettings{
		TenantID: testTenant, ReviewRequired: true, ReviewerID: "reviewer-1",
	}
	svc := newTestService(repo, &stubQueue{})
	c := mustCreate(t, svc)
	ctx := context.Background()

	if _, err := svc.SubmitForReview(ctx, testTenant, c.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Reject(ctx, testTenant, c.ID, "reviewer-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := svc.Get(ctx, testTenant, c.ID)
	if got.Status != domain.CampaignDraft || got.ReviewStatus != domain.ReviewRejected {
		t.Fatalf("expected draft/rejected, got %s/%s", got.Status, got.ReviewStatus)
	}
}

func TestSubmitWithoutReviewerConfigured(t *testing.T) {
	svc := newTestService(newMemRepo(), &stubQueue{})
	c := mustCreate(t, svc)
	_, err := svc.SubmitForReview(context.Background(), testTenant, c.ID)
	if !errors.Is(err, campaign.ErrReviewNotConfigured) {
		t.Fatalf("expected ErrReviewNotConfigured, got %v", err)
	}
}

func TestJobFinishedCompletedMarksSent(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubQueue{})
	c := mustCreate(t, svc)
	ctx := context.Background()

	jobID, err := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(2)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	svc.JobFinished(ctx, domain.SendJob{ID: jobID, TenantID: testTenant, CampaignID: c.ID},
		domain.JobProgress{JobID: jobID, Status: domain.JobCompleted, Total: 2, Sent: 2})

	got, _ := svc.Get(ctx, testTenant, c.ID)
	if got.Status != domain.CampaignSent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if got.SentAt == nil {
		t.Fatal("expected sent_at to be set")
	}
	if got.ActiveJobID != "" {
		t.Fatalf("expected active job cleared, got %s", got.ActiveJobID)
	}
}

func TestJobFinishedFailureRevertsToDraft(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubQueue{})
	ctx := context.Background()

	for _, status := range []domain.JobStatus{domain.JobFailed, domain.JobCancelled} {
		c := mustCreate(t, svc)
		jobID, err := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)})
		if err != nil {
			t.Fatalf("send: %v", err)
		}

		svc.JobFinished(ctx, domain.SendJob{ID: jobID, TenantID: testTenant, CampaignID: c.ID},
			domain.JobProgress{JobID: jobID, Status: status})

		got, _ := svc.Get(ctx, testTenant, c.ID)
		if got.Status != domain.CampaignDraft {
			t.Fatalf("job %s: expected draft, got %s", status, got.Status)
		}
	}
}

func TestJobFinishedStaleJobIgnored(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubQueue{})
	c := mustCreate(t, svc)
	ctx := context.Background()

	jobID, _ := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)})

	svc.JobFinished(ctx, domain.SendJob{ID: "other-job", TenantID: testTenant, CampaignID: c.ID},
		domain.JobProgress{JobID: "other-job", Status: domain.JobCompleted})

	got, _ := svc.Get(ctx, testTenant, c.ID)
	if got.Status != domain.CampaignSending || got.ActiveJobID != jobID {
		t.Fatalf("stale job must not change state, got %s/%s", got.Status, got.ActiveJobID)
	}
}

func TestDeleteSendingCampaignRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &stubQueue{})
	c := mustCreate(t, svc)
	ctx := context.Background()

	if _, err := svc.Send(ctx, testTenant, c.ID, campaign.SendInput{Recipients: recipients(1)}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.Delete(ctx, testTenant, c.ID); !errors.Is(err, campaign.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}
