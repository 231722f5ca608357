package cohort

import (
	"time"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/trigger"
)

// Failure records one entity-scoped generation error. The run continues
// past failures; every one is surfaced here.
type Failure struct {
	Index    int    `json:"index"`
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// Stats aggregates validation metrics for a run.
type Stats struct {
	EntitiesRequested int                       `json:"entities_requested"`
	EntitiesGenerated int                       `json:"entities_generated"`
	EntitiesFailed    int                       `json:"entities_failed"`
	LinkedEntities    int                       `json:"linked_entities"`
	EventsByStatus    map[journey.Status]int    `json:"events_by_status"`
	Elapsed           time.Duration             `json:"elapsed"`
}

// Result is the immutable, read-only output of a run, handed to downstream
// encoders and persistence. Entities lists root entities in cohort order,
// each followed by the linked entities its events spawned.
type Result struct {
	RunID string `json:"run_id"`

	Entities  []string                         `json:"entities"`
	States    map[string]*entity.State         `json:"-"`
	Timelines map[string]*journey.Timeline     `json:"timelines"`
	Links     map[string]*trigger.LinkedEntity `json:"links"`
	LinkOrder []string                         `json:"link_order"`

	Failures []Failure `json:"failures,omitempty"`
	Stats    Stats     `json:"stats"`
}

// Timeline returns the timeline for an entity id.
func (r *Result) Timeline(entityID string) (*journey.Timeline, bool) {
	tl, ok := r.Timelines[entityID]
	return tl, ok
}

// OrderedLinks returns the linked entities in creation order.
func (r *Result) OrderedLinks() []*trigger.LinkedEntity {
	out := make([]*trigger.LinkedEntity, 0, len(r.LinkOrder))
	for _, id := range r.LinkOrder {
		out = append(out, r.Links[id])
	}
	return out
}
