package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Registry owns the set of provider configs for this process. All methods
// are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]domain.ProviderConfig
	rejected []RejectedConfig
	loaded   bool
	defaults []domain.ProviderConfig
}

// RejectedConfig pairs a config that failed validation with the reason it
// was excluded. Kept so the load decision is visible and testable instead of
// implicit.
type RejectedConfig struct {
	Config domain.ProviderConfig
	Reason string
}

// NewRegistry creates a registry seeded with the given default configs.
// Defaults are not validated until LoadConfigs runs.
func NewRegistry(defaults []domain.ProviderConfig) *Registry {
	return &Registry{
		configs:  make(map[string]domain.ProviderConfig),
		defaults: defaults,
	}
}

// LoadConfigs validates the seeded defaults and partitions them into
// accepted and rejected sets. It is idempotent: the partition is computed
// once and repeated calls return the same accepted slice. Validation is
// fail-open: one bad provider never prevents the others from loading.
func (r *Registry) LoadConfigs() []domain.ProviderConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		for _, cfg := range r.defaults {
			if err := cfg.Validate(); err != nil {
				logger.Warn("provider config rejected", "provider_id", cfg.ID, "reason", err.Error())
				r.rejected = append(r.rejected, RejectedConfig{Config: cfg, Reason: err.Error()})
				continue
			}
			r.configs[cfg.ID] = cfg
		}
		r.loaded = true
	}

	return r.sortedLocked(false)
}

// Rejected returns the configs excluded at load time and why.
func (r *Registry) Rejected() []RejectedConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RejectedConfig, len(r.rejected))
	copy(out, r.rejected)
	return out
}

// EnabledConfigs returns the enabled providers sorted ascending by priority.
func (r *Registry) EnabledConfigs() []domain.ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(true)
}

// Get returns the config for the given provider ID.
func (r *Registry) Get(id string) (domain.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	return cfg, ok
}

// AddConfig registers a new provider at runtime. Fails if the ID is taken or
// the config is invalid.
func (r *Registry) AddConfig(cfg domain.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.ID]; exists {
		return fmt.Errorf("provider %s already registered", cfg.ID)
	}
	r.configs[cfg.ID] = cfg
	return nil
}

// UpdateConfig replaces an existing provider's config.
func (r *Registry) UpdateConfig(cfg domain.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.ID]; !exists {
		return fmt.Errorf("provider %s not found", cfg.ID)
	}
	r.configs[cfg.ID] = cfg
	return nil
}

// RemoveConfig deletes a provider. Returns false if it was not registered.
func (r *Registry) RemoveConfig(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[id]; !exists {
		return false
	}
	delete(r.configs, id)
	return true
}

// sortedLocked snapshots configs sorted by (priority, id). Caller holds a lock.
func (r *Registry) sortedLocked(enabledOnly bool) []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		if enabledOnly && !cfg.Enabled {
			continue
		}
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}
