// Package trigger coordinates cross-vertical generation: it matches emitted
// events against registered triggers, spawns linked entities in other
// verticals, and records the cross-vertical identity map.
package trigger

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
)

// ErrCyclicTrigger indicates the trigger graph contains a cycle. Fatal at
// registry build; no generation work starts.
var ErrCyclicTrigger = errors.New("cyclic trigger graph")

// CyclicTriggerError reports the event-type cycle that was detected.
type CyclicTriggerError struct {
	Cycle []string
}

func (e *CyclicTriggerError) Error() string {
	return fmt.Sprintf("trigger cycle: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CyclicTriggerError) Unwrap() error { return ErrCyclicTrigger }

// Trigger registers a cross-vertical generation rule: when an event of the
// source type occurs in the source vertical, generation of the target
// journey is invoked for a linked entity in the target vertical.
type Trigger struct {
	SourceVertical  entity.Vertical `yaml:"source_vertical" mapstructure:"source_vertical"`
	SourceEventType string          `yaml:"source_event" mapstructure:"source_event"`
	TargetVertical  entity.Vertical `yaml:"target_vertical" mapstructure:"target_vertical"`
	TargetJourney   string          `yaml:"target_journey" mapstructure:"target_journey"`

	// Priority orders triggers matching the same source event; higher fires
	// first, registration order breaks ties.
	Priority int `yaml:"priority,omitempty" mapstructure:"priority"`

	// Delay optionally offsets the target journey's anchor from the source
	// event time.
	Delay *journey.DelaySpec `yaml:"delay,omitempty" mapstructure:"delay"`

	// Condition optionally gates the trigger on the source entity's state.
	Condition *journey.Condition `yaml:"condition,omitempty" mapstructure:"condition"`
}

type matchKey struct {
	vertical  entity.Vertical
	eventType string
}

// Registry holds the validated trigger set for a run.
type Registry struct {
	triggers []Trigger
	byKey    map[matchKey][]int
}

// NewRegistry validates the trigger set against the journey specs and
// builds the match index. A trigger whose target journey is unknown is a
// specification error; a cycle in the trigger graph is a
// CyclicTriggerError. Both are fatal before any generation begins.
func NewRegistry(triggers []Trigger, specs map[string]*journey.Spec) (*Registry, error) {
	r := &Registry{
		triggers: append([]Trigger(nil), triggers...),
		byKey:    make(map[matchKey][]int),
	}

	for i, t := range r.triggers {
		if t.SourceVertical == "" || t.SourceEventType == "" || t.TargetVertical == "" || t.TargetJourney == "" {
			return nil, &journey.SpecificationError{
				Spec:   "triggers",
				Detail: fmt.Sprintf("trigger %d: source_vertical, source_event, target_vertical and target_journey are required", i),
			}
		}
		spec, ok := specs[t.TargetJourney]
		if !ok {
			return nil, &journey.SpecificationError{
				Spec:   "triggers",
				Detail: fmt.Sprintf("trigger %d: unknown target journey %q", i, t.TargetJourney),
			}
		}
		if spec.Vertical != t.TargetVertical {
			return nil, &journey.SpecificationError{
				Spec:   "triggers",
				Detail: fmt.Sprintf("trigger %d: journey %q belongs to vertical %q, not %q", i, t.TargetJourney, spec.Vertical, t.TargetVertical),
			}
		}
		if t.Delay != nil {
			if err := t.Delay.Validate(); err != nil {
				return nil, &journey.SpecificationError{
					Spec:   "triggers",
					Detail: fmt.Sprintf("trigger %d: delay: %v", i, err),
				}
			}
		}
		if t.Condition != nil {
			if err := t.Condition.Validate(); err != nil {
				return nil, &journey.SpecificationError{
					Spec:   "triggers",
					Detail: fmt.Sprintf("trigger %d: condition: %v", i, err),
				}
			}
		}
		key := matchKey{t.SourceVertical, t.SourceEventType}
		r.byKey[key] = append(r.byKey[key], i)
	}

	// Priority-ordered match lists; registration order breaks ties.
	for key, idxs := range r.byKey {
		sort.SliceStable(idxs, func(a, b int) bool {
			return r.triggers[idxs[a]].Priority > r.triggers[idxs[b]].Priority
		})
		r.byKey[key] = idxs
	}

	if err := r.detectCycles(specs); err != nil {
		return nil, err
	}
	return r, nil
}

// Match returns the triggers registered for the given source event, in
// firing order.
func (r *Registry) Match(vertical entity.Vertical, eventType string) []Trigger {
	idxs := r.byKey[matchKey{vertical, eventType}]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Trigger, len(idxs))
	for i, idx := range idxs {
		out[i] = r.triggers[idx]
	}
	return out
}

// Len returns the number of registered triggers.
func (r *Registry) Len() int { return len(r.triggers) }

// detectCycles searches the (vertical, event type) graph for a transitive
// path by which an event type ultimately re-triggers itself. Nodes are the
// trigger sources; an edge runs from a source to every event type the
// target journey can emit.
func (r *Registry) detectCycles(specs map[string]*journey.Spec) error {
	edges := make(map[matchKey][]matchKey)
	for _, t := range r.triggers {
		src := matchKey{t.SourceVertical, t.SourceEventType}
		spec := specs[t.TargetJourney]
		for _, def := range spec.Events {
			edges[src] = append(edges[src], matchKey{t.TargetVertical, def.Type})
		}
	}

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[matchKey]int)

	// Deterministic traversal order keeps the reported cycle stable.
	roots := make([]matchKey, 0, len(edges))
	for k := range edges {
		roots = append(roots, k)
	}
	sort.Slice(roots, func(i, j int) bool {
		if roots[i].vertical != roots[j].vertical {
			return roots[i].vertical < roots[j].vertical
		}
		return roots[i].eventType < roots[j].eventType
	})

	var stack []matchKey
	var visit func(k matchKey) *CyclicTriggerError
	visit = func(k matchKey) *CyclicTriggerError {
		state[k] = inStack
		stack = append(stack, k)
		for _, next := range edges[k] {
			switch state[next] {
			case inStack:
				cycle := []string{fmtKey(next)}
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, fmtKey(stack[i]))
					if stack[i] == next {
						break
					}
				}
				// Reverse into firing order.
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return &CyclicTriggerError{Cycle: cycle}
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[k] = done
		return nil
	}

	for _, k := range roots {
		if state[k] == unvisited {
			if err := visit(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func fmtKey(k matchKey) string {
	return string(k.vertical) + "/" + k.eventType
}
