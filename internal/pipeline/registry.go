package pipeline

import (
	"sort"

	ssrerrors "github.com/conneroisu/ssrkit/internal/errors"
)

// Registry maps virtual module ids to the plugin that owns them.
type Registry struct {
	owners map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]string)}
}

// Claim records every virtual id of p. A second claim on an id already owned
// by another plugin fails with a collision error and records nothing for p.
func (r *Registry) Claim(p *Plugin) error {
	for _, id := range p.VirtualModules {
		if owner, ok := r.owners[id]; ok {
			return ssrerrors.ErrCollision(id, owner, p.Name)
		}
	}
	for _, id := range p.VirtualModules {
		r.owners[id] = p.Name
	}
	return nil
}

// Owner returns the plugin owning id.
func (r *Registry) Owner(id string) (string, bool) {
	owner, ok := r.owners[id]
	return owner, ok
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.owners))
	for id := range r.owners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
