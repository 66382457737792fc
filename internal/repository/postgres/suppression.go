package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

// ActiveForTenant returns every active entry that applies to the tenant's
// sends: global hard/soft bounces plus the tenant's own complaints.
func (r *SuppressionRepo) ActiveForTenant(ctx context.Context, tenantID string) ([]domain.SuppressionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, bounce_type, is_active, COALESCE(source_tenant_id,''), created_at
		FROM suppressions
		WHERE is_active = true
		  AND (bounce_type IN ('hard','soft') OR source_tenant_id = $1)
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("active suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.BounceType, &e.IsActive, &e.SourceTenantID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Upsert inserts or reactivates the entry for its normalized email and scope.
func (r *SuppressionRepo) Upsert(ctx context.Context, e *domain.SuppressionEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (id, email, bounce_type, is_active, source_tenant_id, created_at)
		VALUES ($1, $2, $3, true, NULLIF($4,''), NOW())
		ON CONFLICT (email, bounce_type, COALESCE(source_tenant_id,''))
		DO UPDATE SET is_active = true, updated_at = NOW()
	`, e.ID, e.Email, e.BounceType, e.SourceTenantID)
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

// Deactivate marks every active entry for the email inactive.
func (r *SuppressionRepo) Deactivate(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE suppressions SET is_active = false, updated_at = NOW()
		WHERE email = $1 AND is_active = true
	`, email)
	if err != nil {
		return fmt.Errorf("deactivate suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

// List returns entries matching the filter plus the unpaginated total.
func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(cond string, val interface{}) {
		where += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}

	if f.ActiveOnly {
		where += " AND is_active = true"
	}
	if f.BounceType != "" {
		add("bounce_type = $%d", string(f.BounceType))
	}
	if f.TenantID != "" {
		add("(bounce_type IN ('hard','soft') OR source_tenant_id = $%d)", f.TenantID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM suppressions "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`
		SELECT id, email, bounce_type, is_active, COALESCE(source_tenant_id,''), created_at
		FROM suppressions %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.BounceType, &e.IsActive, &e.SourceTenantID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
