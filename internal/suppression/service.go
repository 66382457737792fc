package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// BlockedRecipient pairs a filtered-out recipient with the bounce type that
// blocked it, for the audit trail.
type BlockedRecipient struct {
	Recipient domain.Recipient  `json:"recipient"`
	Reason    domain.BounceType `json:"reason"`
}

// FilterResult partitions a candidate recipient list into deliverable and
// blocked sets.
type FilterResult struct {
	Allowed []domain.Recipient `json:"allowed"`
	Blocked []BlockedRecipient `json:"blocked"`
}

// Service implements suppression business logic. It is safe for concurrent
// use when the repository is.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Filter removes recipients the tenant must not mail. It is a pure function
// of the recipient list and the store contents: filtering the same list
// twice against unchanged data yields identical results. Order of the input
// is preserved in both output sets.
func (s *Service) Filter(ctx context.Context, tenantID string, recipients []domain.Recipient) (*FilterResult, error) {
	entries, err := s.repo.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load suppression entries: %w", err)
	}

	blocked := make(map[string]domain.BounceType, len(entries))
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		key := domain.NormalizeEmail(e.Email)
		// Hard beats soft beats complaint when the same address has
		// multiple entries; keep the stronger reason.
		if prev, ok := blocked[key]; ok && rank(prev) >= rank(e.BounceType) {
			continue
		}
		blocked[key] = e.BounceType
	}

	result := &FilterResult{
		Allowed: make([]domain.Recipient, 0, len(recipients)),
	}
	for _, r := range recipients {
		if reason, ok := blocked[domain.NormalizeEmail(r.Email)]; ok {
			result.Blocked = append(result.Blocked, BlockedRecipient{Recipient: r, Reason: reason})
			continue
		}
		result.Allowed = append(result.Allowed, r)
	}
	return result, nil
}

func rank(t domain.BounceType) int {
	switch t {
	case domain.BounceHard:
		return 2
	case domain.BounceSoft:
		return 1
	default:
		return 0
	}
}

// Suppress records a new suppression entry. Complaint entries require the
// tenant that received the complaint; bounce entries are global and ignore
// the tenant argument.
func (s *Service) Suppress(ctx context.Context, email string, bounceType domain.BounceType, sourceTenantID string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	if bounceType == domain.BounceComplaint && sourceTenantID == "" {
		return ErrTenantScope
	}
	entry := &domain.SuppressionEntry{
		ID:         uuid.New().String(),
		Email:      email,
		BounceType: bounceType,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
	if bounceType == domain.BounceComplaint {
		entry.SourceTenantID = sourceTenantID
	}
	return s.repo.Upsert(ctx, entry)
}

// Remove deactivates the suppression entry for an address.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidEmail
	}
	return s.repo.Deactivate(ctx, email)
}

// List returns suppression entries matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, f)
}

// Count returns the number of entries matching the filter without paging
// through them.
func (s *Service) Count(ctx context.Context, f ListFilter) (int, error) {
	f.Limit = 1
	f.Offset = 0
	_, total, err := s.repo.List(ctx, f)
	return total, err
}
