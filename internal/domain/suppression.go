package domain

import (
	"strings"
	"time"
)

// BounceType classifies why an address is suppressed.
type BounceType string

const (
	BounceHard      BounceType = "hard"
	BounceSoft      BounceType = "soft"
	BounceComplaint BounceType = "complaint"
)

// SuppressionEntry is one recorded reason why an address must not receive
// further mail. Hard and soft bounces suppress globally; complaints suppress
// only sends from the tenant that received the complaint (SourceTenantID).
type SuppressionEntry struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	BounceType     BounceType `json:"bounce_type" db:"bounce_type"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	SourceTenantID string     `json:"source_tenant_id,omitempty" db:"source_tenant_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Global reports whether this entry applies across all tenants.
func (e SuppressionEntry) Global() bool {
	return e.BounceType == BounceHard || e.BounceType == BounceSoft
}

// NormalizeEmail lowercases and trims an address so suppression lookups are
// case-insensitive. Every store write and every filter read goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
