package campaign

import (
	"context"

	"github.com/ignite/mailflow/internal/domain"
)

// Repository defines the persistence contract for campaigns and tenant
// delivery settings. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist
	// or belongs to another tenant.
	Get(ctx context.Context, tenantID, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC.
	List(ctx context.Context, tenantID string, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update persists the campaign's mutable state machine fields (status,
	// review fields, active job, sent_at).
	Update(ctx context.Context, c *domain.Campaign) error

	// Delete removes a campaign. Only non-sending campaigns may be deleted.
	Delete(ctx context.Context, tenantID, id string) error

	// Settings returns the tenant's delivery policy. A tenant with no row
	// gets zero-value settings (review not required), not an error.
	Settings(ctx context.Context, tenantID string) (domain.TenantSettings, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
