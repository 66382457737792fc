package provider

import (
	"fmt"

	"github.com/ignite/mailflow/internal/domain"
)

// NewTransport builds the transport for a provider config based on its
// credentials "type" key ("ses" or "smtp").
func NewTransport(cfg domain.ProviderConfig) (Transport, error) {
	switch cfg.Credentials["type"] {
	case "ses":
		return NewSESTransport(cfg)
	case "smtp":
		return NewSMTPTransport(cfg)
	default:
		return nil, fmt.Errorf("provider %s: unknown transport type %q", cfg.ID, cfg.Credentials["type"])
	}
}
