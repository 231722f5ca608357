// Package skill resolves external lookup tokens embedded in event parameter
// templates. Resolvers are registered explicitly and injected into the
// engine; there is no ambient global registry.
package skill

import (
	"sort"

	"github.com/stratamed/journeysim/internal/journey"
)

// ResolverFunc resolves one lookup key within a skill's namespace.
// The context carries the requesting entity's attributes.
type ResolverFunc func(key string, ctx map[string]any) (any, bool)

// Registry maps skill ids to their resolvers.
type Registry struct {
	resolvers map[string]ResolverFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]ResolverFunc)}
}

// Register installs a resolver for the given skill id, replacing any
// previous registration.
func (r *Registry) Register(skillID string, fn ResolverFunc) {
	r.resolvers[skillID] = fn
}

// RegisterTable installs a static lookup table as a resolver.
func (r *Registry) RegisterTable(skillID string, table map[string]any) {
	r.Register(skillID, func(key string, _ map[string]any) (any, bool) {
		v, ok := table[key]
		return v, ok
	})
}

// Resolve looks up a key through the named skill. A missing resolver or a
// lookup miss fails with UnresolvedReferenceError.
func (r *Registry) Resolve(skillID, key string, ctx map[string]any) (any, error) {
	fn, ok := r.resolvers[skillID]
	if !ok {
		return nil, &journey.UnresolvedReferenceError{Skill: skillID, Key: key}
	}
	v, ok := fn(key, ctx)
	if !ok {
		return nil, &journey.UnresolvedReferenceError{Skill: skillID, Key: key}
	}
	return v, nil
}

// Skills returns the registered skill ids, sorted.
func (r *Registry) Skills() []string {
	out := make([]string, 0, len(r.resolvers))
	for id := range r.resolvers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
