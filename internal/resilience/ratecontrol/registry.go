package ratecontrol

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry hands out one Controller per upstream, creating it on first use.
// Controllers live for the lifetime of the registry unless Reset is called.
type Registry struct {
	logger    *slog.Logger
	overrides map[string]Config

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry creates a registry. overrides take precedence over the built-in presets.
func NewRegistry(logger *slog.Logger, overrides map[string]Config) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:      logger,
		overrides:   overrides,
		controllers: make(map[string]*Controller),
	}
}

// Get returns the controller for upstream, creating it if needed.
func (r *Registry) Get(upstream string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.controllers[upstream]; ok {
		return c
	}
	c := NewController(upstream, r.configFor(upstream), r.logger)
	r.controllers[upstream] = c
	return c
}

// Reset replaces the controller for upstream with a fresh one at its initial rate.
func (r *Registry) Reset(upstream string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.controllers[upstream] = NewController(upstream, r.configFor(upstream), r.logger)
	r.logger.Info("upstream rate controller reset", slog.String("upstream", upstream))
}

// Snapshot returns the stats of every registered controller sorted by upstream.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Upstream < out[j].Upstream })
	return out
}

func (r *Registry) configFor(upstream string) Config {
	if cfg, ok := r.overrides[upstream]; ok {
		return cfg
	}
	return UpstreamConfig(upstream)
}
