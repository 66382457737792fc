package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, subject, content, status, review_status,
		       COALESCE(reviewer_id,''), COALESCE(review_code,''),
		       recipient_count, COALESCE(active_job_id,''),
		       sent_at, created_at, updated_at
		FROM campaigns
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Subject, &c.Content, &c.Status, &c.ReviewStatus,
		&c.ReviewerID, &c.ReviewCode,
		&c.RecipientCount, &c.ActiveJobID,
		&c.SentAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, tenantID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	where := "WHERE tenant_id = $1"
	args := []interface{}{tenantID}
	if f.Status != "" {
		where += " AND status = $2"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`
		SELECT id, tenant_id, subject, content, status, review_status,
		       COALESCE(reviewer_id,''), recipient_count, COALESCE(active_job_id,''),
		       sent_at, created_at, updated_at
		FROM campaigns %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.Subject, &c.Content, &c.Status, &c.ReviewStatus,
			&c.ReviewerID, &c.RecipientCount, &c.ActiveJobID,
			&c.SentAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, tenant_id, subject, content, status, review_status,
			 recipient_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, c.ID, c.TenantID, c.Subject, c.Content, c.Status, c.ReviewStatus, c.RecipientCount)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// Update persists the state machine fields. The full set is written each
// time; the service owns which fields changed.
func (r *CampaignRepo) Update(ctx context.Context, c *domain.Campaign) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			subject = $1, content = $2, status = $3, review_status = $4,
			reviewer_id = NULLIF($5,''), review_code = NULLIF($6,''),
			recipient_count = $7, active_job_id = NULLIF($8,''),
			sent_at = $9, updated_at = NOW()
		WHERE id = $10 AND tenant_id = $11
	`, c.Subject, c.Content, c.Status, c.ReviewStatus,
		c.ReviewerID, c.ReviewCode,
		c.RecipientCount, c.ActiveJobID,
		c.SentAt, c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND tenant_id = $2 AND status <> 'sending'
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// Settings returns the tenant's delivery policy; a missing row means review
// is not required, not an error.
func (r *CampaignRepo) Settings(ctx context.Context, tenantID string) (domain.TenantSettings, error) {
	s := domain.TenantSettings{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, `
		SELECT review_required, COALESCE(reviewer_id,'')
		FROM tenant_settings
		WHERE tenant_id = $1
	`, tenantID).Scan(&s.ReviewRequired, &s.ReviewerID)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("tenant settings: %w", err)
	}
	return s, nil
}
