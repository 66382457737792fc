package campaign

import "errors"

// Sentinel errors for the campaign state machine.
var (
	ErrNotFound            = errors.New("campaign not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrReviewNotConfigured = errors.New("tenant has no reviewer configured")
	ErrReviewRequired      = errors.New("campaign requires reviewer approval before sending")
	ErrNotReviewer         = errors.New("only the assigned reviewer may act on this campaign")
	ErrInvalidReviewCode   = errors.New("verification code does not match")
	ErrAlreadySending      = errors.New("campaign already has a delivery job in flight")
	ErrAlreadySent         = errors.New("campaign has already been sent")
	ErrNoRecipients        = errors.New("campaign has no recipients")
)
