package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft         CampaignStatus = "draft"
	CampaignPendingReview CampaignStatus = "pending_review"
	CampaignReadyToSend   CampaignStatus = "ready_to_send"
	CampaignSending       CampaignStatus = "sending"
	CampaignSent          CampaignStatus = "sent"
)

// ReviewStatus tracks the human-reviewer gate on a campaign.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = "none"
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Campaign represents an email campaign's send-relevant state. A campaign
// owns at most one in-flight SendJob at a time.
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	TenantID       string         `json:"tenant_id" db:"tenant_id"`
	Subject        string         `json:"subject" db:"subject"`
	Content        string         `json:"content" db:"content"`
	Status         CampaignStatus `json:"status" db:"status"`
	ReviewStatus   ReviewStatus   `json:"review_status" db:"review_status"`
	ReviewerID     string         `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ReviewCode     string         `json:"-" db:"review_code"`
	RecipientCount int            `json:"recipient_count" db:"recipient_count"`
	ActiveJobID    string         `json:"active_job_id,omitempty" db:"active_job_id"`
	SentAt         *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign has finished sending.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent
}

// TenantSettings holds the per-tenant delivery policy the send path consults.
type TenantSettings struct {
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	ReviewRequired bool   `json:"review_required" db:"review_required"`
	ReviewerID     string `json:"reviewer_id,omitempty" db:"reviewer_id"`
}
