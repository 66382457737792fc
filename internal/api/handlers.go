package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/httputil"
	"github.com/ignite/mailflow/internal/provider"
	"github.com/ignite/mailflow/internal/service/campaign"
	"github.com/ignite/mailflow/internal/suppression"
)

// CampaignService is the slice of the campaign state machine the API uses.
type CampaignService interface {
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	List(ctx context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Create(ctx context.Context, tenantID string, input campaign.CreateInput) (*domain.Campaign, error)
	Delete(ctx context.Context, tenantID, id string) error
	SubmitForReview(ctx context.Context, tenantID, id string) (string, error)
	Approve(ctx context.Context, tenantID, id, reviewerID, code string) error
	Reject(ctx context.Context, tenantID, id, reviewerID string) error
	Send(ctx context.Context, tenantID, id string, input campaign.SendInput) (string, error)
}

// JobControl is the slice of the delivery worker the API uses.
type JobControl interface {
	JobStatus(jobID string) (domain.JobProgress, bool)
	CancelJob(jobID string) bool
	Stats() map[string]int64
}

// SuppressionService is the slice of the suppression layer the API uses.
type SuppressionService interface {
	Suppress(ctx context.Context, email string, bounceType domain.BounceType, sourceTenantID string) error
	Remove(ctx context.Context, email string) error
	List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	campaigns    CampaignService
	jobs         JobControl
	suppressions SuppressionService
	registry     *provider.Registry
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns CampaignService, jobs JobControl, suppressions SuppressionService, registry *provider.Registry) *Handlers {
	return &Handlers{
		campaigns:    campaigns,
		jobs:         jobs,
		suppressions: suppressions,
		registry:     registry,
	}
}

type tenantKey struct{}

// requireTenant resolves the tenant from the X-Tenant-ID header. Every /api
// route is tenant-scoped.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant-ID")
		if tenant == "" {
			httputil.BadRequest(w, "missing X-Tenant-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenant)))
	})
}

func tenantID(r *http.Request) string {
	t, _ := r.Context().Value(tenantKey{}).(string)
	return t
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Campaigns ---

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{Status: r.URL.Query().Get("status")}
	list, total, err := h.campaigns.List(r.Context(), tenantID(r), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": list, "total": total})
}

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), tenantID(r), input)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), tenantID(r), chi.URLParam(r, "id")); err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handlers) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	code, err := h.campaigns.SubmitForReview(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.campaignError(w, err)
		return
	}
	// The code goes to the reviewer out of band; returning it here lets the
	// caller deliver it.
	httputil.OK(w, map[string]string{"verification_code": code})
}

func (h *Handlers) ApproveCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReviewerID string `json:"reviewer_id"`
		Code       string `json:"code"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if err := h.campaigns.Approve(r.Context(), tenantID(r), chi.URLParam(r, "id"), body.ReviewerID, body.Code); err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "approved"})
}

func (h *Handlers) RejectCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReviewerID string `json:"reviewer_id"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if err := h.campaigns.Reject(r.Context(), tenantID(r), chi.URLParam(r, "id"), body.ReviewerID); err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "rejected"})
}

// SendCampaign submits the campaign's delivery job and returns its ID
// immediately; delivery happens asynchronously.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Recipients   []domain.Recipient `json:"recipients"`
		BatchSize    int                `json:"batch_size"`
		Priority     domain.JobPriority `json:"priority"`
		ScheduledFor *time.Time         `json:"scheduled_for,omitempty"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}

	jobID, err := h.campaigns.Send(r.Context(), tenantID(r), chi.URLParam(r, "id"), campaign.SendInput{
		Recipients:   body.Recipients,
		BatchSize:    body.BatchSize,
		Priority:     body.Priority,
		ScheduledFor: body.ScheduledFor,
	})
	if err != nil {
		h.campaignError(w, err)
		return
	}
	httputil.Accepted(w, map[string]string{"job_id": jobID})
}

func (h *Handlers) campaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrReviewRequired),
		errors.Is(err, campaign.ErrAlreadySending),
		errors.Is(err, campaign.ErrAlreadySent),
		errors.Is(err, campaign.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, campaign.ErrNotReviewer),
		errors.Is(err, campaign.ErrInvalidReviewCode):
		httputil.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, campaign.ErrReviewNotConfigured),
		errors.Is(err, campaign.ErrNoRecipients):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// --- Jobs ---

func (h *Handlers) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	progress, ok := h.jobs.JobStatus(chi.URLParam(r, "id"))
	if !ok {
		httputil.NotFound(w, "job not found")
		return
	}
	httputil.OK(w, progress)
}

func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	cancelled := h.jobs.CancelJob(chi.URLParam(r, "id"))
	httputil.OK(w, map[string]bool{"cancelled": cancelled})
}

func (h *Handlers) WorkerStats(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.jobs.Stats())
}

// --- Providers ---

func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"providers": h.registry.EnabledConfigs(),
		"rejected":  h.registry.Rejected(),
	})
}

func (h *Handlers) AddProvider(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ProviderConfig
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	if err := h.registry.AddConfig(cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, cfg)
}

func (h *Handlers) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ProviderConfig
	if !httputil.Decode(w, r, &cfg) {
		return
	}
	cfg.ID = chi.URLParam(r, "id")
	if err := h.registry.UpdateConfig(cfg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, cfg)
}

func (h *Handlers) RemoveProvider(w http.ResponseWriter, r *http.Request) {
	if !h.registry.RemoveConfig(chi.URLParam(r, "id")) {
		httputil.NotFound(w, "provider not found")
		return
	}
	httputil.NoContent(w)
}

// --- Suppressions ---

func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	f := suppression.ListFilter{
		TenantID:   tenantID(r),
		BounceType: domain.BounceType(r.URL.Query().Get("bounce_type")),
		ActiveOnly: r.URL.Query().Get("include_inactive") != "true",
	}
	entries, total, err := h.suppressions.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"suppressions": entries, "total": total})
}

func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email      string            `json:"email"`
		BounceType domain.BounceType `json:"bounce_type"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}

	// Complaints are scoped to the calling tenant; bounces are global.
	sourceTenant := ""
	if body.BounceType == domain.BounceComplaint {
		sourceTenant = tenantID(r)
	}
	if err := h.suppressions.Suppress(r.Context(), body.Email, body.BounceType, sourceTenant); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, map[string]string{"email": domain.NormalizeEmail(body.Email)})
}

func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if err := h.suppressions.Remove(r.Context(), chi.URLParam(r, "email")); err != nil {
		if errors.Is(err, suppression.ErrNotFound) {
			httputil.NotFound(w, "suppression not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
