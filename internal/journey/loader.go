package journey

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSpec reads and validates one journey specification document.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &SpecificationError{Spec: path, Detail: err.Error()}
	}
	return ParseSpec(data, path)
}

// ParseSpec parses and validates a YAML journey specification. The source
// argument names the document in error messages.
func ParseSpec(data []byte, source string) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &SpecificationError{Spec: source, Detail: fmt.Sprintf("parse: %v", err)}
	}
	if err := validateSpec(&spec); err != nil {
		return nil, err
	}
	spec.index()
	return &spec, nil
}

func validateSpec(spec *Spec) error {
	fail := func(format string, args ...any) error {
		return &SpecificationError{Spec: spec.Name, Detail: fmt.Sprintf(format, args...)}
	}

	if spec.Name == "" {
		return &SpecificationError{Spec: "(unnamed)", Detail: "name is required"}
	}
	if spec.Vertical == "" {
		return fail("vertical is required")
	}
	if len(spec.Events) == 0 {
		return fail("at least one event definition is required")
	}

	ids := make(map[string]bool, len(spec.Events))
	for i := range spec.Events {
		def := &spec.Events[i]
		if def.ID == "" {
			return fail("event %d: id is required", i)
		}
		if ids[def.ID] {
			return fail("event %q: duplicate id", def.ID)
		}
		ids[def.ID] = true
		if def.Type == "" {
			return fail("event %q: type is required", def.ID)
		}
		if def.Anchor == "" {
			return fail("event %q: anchor is required", def.ID)
		}
		if err := validateDelay(&def.Delay); err != nil {
			return fail("event %q: %v", def.ID, err)
		}
		if def.Condition != nil {
			if err := def.Condition.validate(); err != nil {
				return fail("event %q: %v", def.ID, err)
			}
		}
		if def.Repeat != nil {
			if def.Repeat.MaxCount <= 0 && def.Repeat.Until == nil {
				return fail("event %q: repeat policy needs max_count or until", def.ID)
			}
			if err := validateDelay(&def.Repeat.Every); err != nil {
				return fail("event %q: repeat every: %v", def.ID, err)
			}
			if def.Repeat.Until != nil {
				if err := def.Repeat.Until.validate(); err != nil {
					return fail("event %q: repeat until: %v", def.ID, err)
				}
			}
		}
		for name, pv := range def.Params {
			if pv.Lookup != nil && (pv.Lookup.Skill == "" || pv.Lookup.Key == "") {
				return fail("event %q: param %q: lookup needs skill and key", def.ID, name)
			}
		}
	}

	// Anchors must reference start or a defined event, and every event must
	// be reachable from start; an anchor cycle leaves its members
	// unreachable and is rejected here.
	for i := range spec.Events {
		def := &spec.Events[i]
		if def.Anchor != AnchorStart && !ids[def.Anchor] {
			return fail("event %q: anchor %q is not a defined event", def.ID, def.Anchor)
		}
		if def.Anchor == def.ID {
			return fail("event %q: anchored at itself", def.ID)
		}
	}
	if unreachable := findUnreachable(spec); len(unreachable) > 0 {
		return fail("events not reachable from start: %v", unreachable)
	}

	return nil
}

// Validate checks the delay declaration. Called for journey specs at load
// and for trigger overlays at registry build.
func (d *DelaySpec) Validate() error { return validateDelay(d) }

func validateDelay(ds *DelaySpec) error {
	if _, err := ds.unitDuration(); err != nil {
		return err
	}
	switch ds.Kind {
	case DelayFixed, DelayNormal:
		return nil
	case DelayUniform:
		if ds.Max < ds.Min {
			return fmt.Errorf("uniform delay: max %v is below min %v", ds.Max, ds.Min)
		}
		return nil
	case DelayTable:
		if len(ds.Table) == 0 {
			return fmt.Errorf("delay table must not be empty")
		}
		for i := range ds.Table {
			row := &ds.Table[i]
			if row.When != nil {
				if err := row.When.validate(); err != nil {
					return fmt.Errorf("table row %d: %w", i, err)
				}
			}
			if err := validateDelay(&row.Delay); err != nil {
				return fmt.Errorf("table row %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown delay kind %q", ds.Kind)
	}
}

// findUnreachable walks the anchor graph from start and returns the ids of
// definitions no chain of anchors can ever reach.
func findUnreachable(spec *Spec) []string {
	anchored := make(map[string][]string)
	for i := range spec.Events {
		def := &spec.Events[i]
		anchored[def.Anchor] = append(anchored[def.Anchor], def.ID)
	}

	seen := make(map[string]bool, len(spec.Events))
	queue := append([]string(nil), anchored[AnchorStart]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, anchored[id]...)
	}

	var unreachable []string
	for i := range spec.Events {
		if !seen[spec.Events[i].ID] {
			unreachable = append(unreachable, spec.Events[i].ID)
		}
	}
	return unreachable
}
