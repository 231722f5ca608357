package trigger

import (
	"fmt"
	"sync"

	"github.com/stratamed/journeysim/internal/entity"
)

// LinkedEntity correlates one logical person across verticals. It is
// append-only within a run: verticals may be added, never removed or
// reassigned.
type LinkedEntity struct {
	// CanonicalID is the cross-vertical identity (deterministic UUIDv5).
	CanonicalID string `json:"canonical_id"`

	// Locals maps each vertical to its local entity id.
	Locals map[entity.Vertical]string `json:"locals"`

	// SourceEntityID and SourceEventID reference the timeline event whose
	// firing created the link.
	SourceEntityID string `json:"source_entity_id"`
	SourceEventID  string `json:"source_event_id"`
}

// Arena indexes linked entities by canonical id with explicit append-only
// edges; generation runs hold ids into the arena, never live references to
// each other's entities.
type Arena struct {
	mu    sync.Mutex
	order []string
	links map[string]*LinkedEntity
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{links: make(map[string]*LinkedEntity)}
}

// Create records a new linked entity rooted at the causing source event.
// Creating the same canonical id twice is a programming error.
func (a *Arena) Create(canonicalID string, sourceVertical entity.Vertical, sourceEntityID, sourceEventID string) (*LinkedEntity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.links[canonicalID]; exists {
		return nil, fmt.Errorf("linked entity %s already exists", canonicalID)
	}
	le := &LinkedEntity{
		CanonicalID:    canonicalID,
		Locals:         map[entity.Vertical]string{sourceVertical: sourceEntityID},
		SourceEntityID: sourceEntityID,
		SourceEventID:  sourceEventID,
	}
	a.links[canonicalID] = le
	a.order = append(a.order, canonicalID)
	return le, nil
}

// AddVertical appends a vertical mapping to an existing linked entity.
// Re-adding a vertical with a different local id violates append-only
// semantics and fails.
func (a *Arena) AddVertical(canonicalID string, vertical entity.Vertical, localID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	le, ok := a.links[canonicalID]
	if !ok {
		return fmt.Errorf("linked entity %s not found", canonicalID)
	}
	if existing, ok := le.Locals[vertical]; ok && existing != localID {
		return fmt.Errorf("linked entity %s: vertical %s already mapped to %s", canonicalID, vertical, existing)
	}
	le.Locals[vertical] = localID
	return nil
}

// Get returns the linked entity for a canonical id.
func (a *Arena) Get(canonicalID string) (*LinkedEntity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	le, ok := a.links[canonicalID]
	return le, ok
}

// All returns the linked entities in creation order.
func (a *Arena) All() []*LinkedEntity {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*LinkedEntity, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.links[id])
	}
	return out
}
