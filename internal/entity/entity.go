// Package entity defines the simulated record roots that own timelines.
package entity

import "fmt"

// Vertical identifies one synthetic-data product line.
type Vertical string

const (
	VerticalMember   Vertical = "member"   // health-plan members
	VerticalPatient  Vertical = "patient"  // clinical patients
	VerticalPharmacy Vertical = "pharmacy" // pharmacy members
	VerticalTrial    Vertical = "trial"    // trial subjects
)

// KnownVerticals lists the verticals the platform ships with.
// Configuration may introduce additional verticals; the engine treats the
// value as opaque.
var KnownVerticals = []Vertical{VerticalMember, VerticalPatient, VerticalPharmacy, VerticalTrial}

// State holds one entity's identity and generated attributes.
// Attributes are opaque to the engine; conditions and parameter templates
// reference them by name.
type State struct {
	ID       string
	Vertical Vertical
	Attrs    map[string]any
}

// NewState creates an entity state with an empty attribute set.
func NewState(id string, vertical Vertical) *State {
	return &State{
		ID:       id,
		Vertical: vertical,
		Attrs:    make(map[string]any),
	}
}

// Attr returns the named attribute and whether it is present.
func (s *State) Attr(name string) (any, bool) {
	v, ok := s.Attrs[name]
	return v, ok
}

// Set assigns an attribute value.
func (s *State) Set(name string, value any) {
	if s.Attrs == nil {
		s.Attrs = make(map[string]any)
	}
	s.Attrs[name] = value
}

func (s *State) String() string {
	return fmt.Sprintf("%s/%s", s.Vertical, s.ID)
}
