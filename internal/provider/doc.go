// Package provider holds the outbound email provider registry and the
// transport adapters that actually deliver mail.
//
// The registry owns provider configuration for the lifetime of the process:
// configs are computed once from environment-derived defaults, validated
// fail-open (a bad config is logged and excluded, never fatal), and can be
// added, updated, or removed at runtime.
//
// Transport adapters are split into individual files:
//   - ses.go:   AWS SES v2
//   - smtp.go:  generic SMTP relay
package provider
