package suppression

import (
	"context"

	"github.com/ignite/mailflow/internal/domain"
)

// Repository defines read/write access to the suppression store.
// Implementations must be safe for concurrent use.
type Repository interface {
	// ActiveForTenant returns every active entry that applies to sends from
	// the given tenant: all global hard/soft bounce entries plus complaint
	// entries scoped to that tenant.
	ActiveForTenant(ctx context.Context, tenantID string) ([]domain.SuppressionEntry, error)

	// Upsert inserts an entry, or reactivates an existing one for the same
	// normalized email, bounce type, and tenant scope.
	Upsert(ctx context.Context, entry *domain.SuppressionEntry) error

	// Deactivate marks the entry for the normalized email inactive.
	// Returns ErrNotFound if no active entry exists.
	Deactivate(ctx context.Context, email string) error

	// List returns entries matching the filter plus the unpaginated total.
	List(ctx context.Context, f ListFilter) ([]domain.SuppressionEntry, int, error)
}

// ListFilter controls pagination and filtering for suppression listings.
type ListFilter struct {
	TenantID   string
	BounceType domain.BounceType
	ActiveOnly bool
	Limit      int
	Offset     int
}
