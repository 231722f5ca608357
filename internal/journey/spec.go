// Package journey implements the scenario simulation engine: it turns a
// declarative event specification into a time-ordered sequence of entity
// events with deterministic, seed-scoped randomness.
package journey

import (
	"fmt"
	"time"

	"github.com/stratamed/journeysim/internal/entity"
)

// AnchorStart is the trigger anchor naming the entity's run start.
const AnchorStart = "start"

// DelayKind enumerates the supported timing rules.
type DelayKind string

const (
	DelayFixed   DelayKind = "fixed"
	DelayUniform DelayKind = "uniform"
	DelayNormal  DelayKind = "normal"
	DelayTable   DelayKind = "table"
)

// DelaySpec declares how an event's offset from its anchor is resolved.
type DelaySpec struct {
	Kind DelayKind `yaml:"kind"`

	// Fixed delay.
	Value float64 `yaml:"value,omitempty"`

	// Uniform delay in [Min, Max].
	Min float64 `yaml:"min,omitempty"`
	Max float64 `yaml:"max,omitempty"`

	// Normal delay with the given mean and standard deviation.
	Mean   float64 `yaml:"mean,omitempty"`
	StdDev float64 `yaml:"stddev,omitempty"`

	// Conditional table: the first row whose condition holds supplies the
	// delay. A row with no condition is the default.
	Table []DelayTableRow `yaml:"table,omitempty"`

	// Unit is one of "minutes", "hours", "days" (default "days").
	Unit string `yaml:"unit,omitempty"`

	// AllowNegative permits a resolved offset before the anchor. Without
	// it, negative offsets are clamped to zero. The resolver must also be
	// configured to allow pre-anchor timing for this to take effect.
	AllowNegative bool `yaml:"allow_negative,omitempty"`
}

// DelayTableRow is one row of a conditional delay table.
type DelayTableRow struct {
	When  *Condition `yaml:"when,omitempty"`
	Delay DelaySpec  `yaml:"delay"`
}

// unitDuration converts one delay unit to a time.Duration.
func (d *DelaySpec) unitDuration() (time.Duration, error) {
	switch d.Unit {
	case "", "days":
		return 24 * time.Hour, nil
	case "hours":
		return time.Hour, nil
	case "minutes":
		return time.Minute, nil
	default:
		return 0, fmt.Errorf("unknown delay unit %q", d.Unit)
	}
}

// RepeatPolicy re-enqueues an event after each occurrence until a terminal
// condition holds or MaxCount occurrences were produced. At least one of
// MaxCount and Until must be set.
type RepeatPolicy struct {
	Every    DelaySpec  `yaml:"every"`
	MaxCount int        `yaml:"max_count,omitempty"`
	Until    *Condition `yaml:"until,omitempty"`
}

// LookupRef names an external skill lookup embedded in a parameter template.
type LookupRef struct {
	Skill string `yaml:"skill"`
	Key   string `yaml:"key"`
}

// ParamValue is either a literal value or an unresolved external lookup.
type ParamValue struct {
	Value  any        `yaml:"value,omitempty"`
	Lookup *LookupRef `yaml:"lookup,omitempty"`
}

// EventDefinition declares one event of a journey. Definitions are immutable
// configuration, loaded once per run.
type EventDefinition struct {
	ID        string                `yaml:"id"`
	Type      string                `yaml:"type"`
	Anchor    string                `yaml:"anchor"`
	Delay     DelaySpec             `yaml:"delay"`
	Condition *Condition            `yaml:"condition,omitempty"`
	Repeat    *RepeatPolicy         `yaml:"repeat,omitempty"`
	Params    map[string]ParamValue `yaml:"params,omitempty"`
}

// Spec is a declarative journey specification for one vertical.
type Spec struct {
	Name     string            `yaml:"name"`
	Vertical entity.Vertical   `yaml:"vertical"`
	Events   []EventDefinition `yaml:"events"`

	byAnchor map[string][]int
	byID     map[string]int
}

// Definition returns the event definition with the given id.
func (s *Spec) Definition(id string) (*EventDefinition, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.Events[i], true
}

// anchoredAt returns the declaration indices of definitions anchored at the
// given event id (or AnchorStart), in declaration order.
func (s *Spec) anchoredAt(anchor string) []int {
	return s.byAnchor[anchor]
}

// index builds the anchor and id lookups. Called by the loader after
// validation.
func (s *Spec) index() {
	s.byAnchor = make(map[string][]int)
	s.byID = make(map[string]int, len(s.Events))
	for i := range s.Events {
		def := &s.Events[i]
		s.byID[def.ID] = i
		s.byAnchor[def.Anchor] = append(s.byAnchor[def.Anchor], i)
	}
}
