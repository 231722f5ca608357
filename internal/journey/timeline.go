package journey

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a timeline event. OCCURRED, SKIPPED and
// CANCELLED are terminal; a terminal event is immutable.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOccurred  Status = "OCCURRED"
	StatusSkipped   Status = "SKIPPED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusOccurred || s == StatusSkipped || s == StatusCancelled
}

// Event is one concrete, finalized instance of an event definition.
type Event struct {
	// InstanceID uniquely identifies this occurrence within the entity's
	// timeline ("<definition id>#<occurrence>").
	InstanceID string `json:"instance_id"`

	DefinitionID string    `json:"definition_id"`
	Type         string    `json:"type"`
	Time         time.Time `json:"time"`
	Status       Status    `json:"status"`
	Occurrence   int       `json:"occurrence"`

	// Params holds the resolved parameter template, external lookups
	// included.
	Params map[string]any `json:"params,omitempty"`

	// ParentInstanceID references the occurrence whose firing enqueued this
	// event; empty for events anchored at run start.
	ParentInstanceID string `json:"parent_instance_id,omitempty"`
}

// Timeline is the append-only, time-ordered event sequence owned by exactly
// one entity.
type Timeline struct {
	EntityID string    `json:"entity_id"`
	Anchor   time.Time `json:"anchor"`

	events []Event
}

// NewTimeline creates an empty timeline anchored at the given time.
func NewTimeline(entityID string, anchor time.Time) *Timeline {
	return &Timeline{EntityID: entityID, Anchor: anchor}
}

// Append adds a finalized event. Events must arrive with non-decreasing
// scheduled times and a terminal status; both are engine invariants, so a
// violation is a programming error surfaced loudly.
func (t *Timeline) Append(e Event) error {
	if !e.Status.Terminal() {
		return fmt.Errorf("timeline %s: cannot append non-terminal event %s", t.EntityID, e.InstanceID)
	}
	if n := len(t.events); n > 0 && e.Time.Before(t.events[n-1].Time) {
		return fmt.Errorf("timeline %s: event %s at %s precedes last event at %s",
			t.EntityID, e.InstanceID, e.Time.Format(time.RFC3339), t.events[n-1].Time.Format(time.RFC3339))
	}
	t.events = append(t.events, e)
	return nil
}

// Events returns the ordered event sequence. The returned slice is shared;
// callers must treat it as read-only.
func (t *Timeline) Events() []Event {
	return t.events
}

// Len returns the number of finalized events.
func (t *Timeline) Len() int {
	return len(t.events)
}

// Occurred returns only the events that actually fired.
func (t *Timeline) Occurred() []Event {
	out := make([]Event, 0, len(t.events))
	for _, e := range t.events {
		if e.Status == StatusOccurred {
			out = append(out, e)
		}
	}
	return out
}
