package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound     = errors.New("suppression entry not found")
	ErrInvalidEmail = errors.New("email is required")
	ErrTenantScope  = errors.New("complaint suppression requires a source tenant")
)
