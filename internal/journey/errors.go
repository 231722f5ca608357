package journey

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine. Typed wrappers below carry detail;
// callers classify with errors.Is.
var (
	// ErrSpecification indicates a malformed or unloadable journey spec.
	// Fatal at load time; no generation work starts.
	ErrSpecification = errors.New("invalid journey specification")

	// ErrMissingAttribute indicates a condition referenced an attribute
	// that is absent and defines no default. Aborts the affected entity only.
	ErrMissingAttribute = errors.New("missing attribute")

	// ErrUnresolvedReference indicates an external skill lookup failed.
	// Aborts the affected entity only.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrUnboundedRecurrence indicates a repeat policy exceeded the safety
	// bound without reaching a terminal condition. Aborts the affected
	// entity only.
	ErrUnboundedRecurrence = errors.New("unbounded recurrence")
)

// SpecificationError reports where a spec failed validation.
type SpecificationError struct {
	Spec   string
	Detail string
}

func (e *SpecificationError) Error() string {
	return fmt.Sprintf("spec %q: %s", e.Spec, e.Detail)
}

func (e *SpecificationError) Unwrap() error { return ErrSpecification }

// MissingAttributeError identifies the attribute a condition could not read.
type MissingAttributeError struct {
	Attr string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("attribute %q is not set and the condition defines no default", e.Attr)
}

func (e *MissingAttributeError) Unwrap() error { return ErrMissingAttribute }

// UnresolvedReferenceError identifies a failed external lookup.
type UnresolvedReferenceError struct {
	Skill string
	Key   string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("lookup %q via skill %q could not be resolved", e.Key, e.Skill)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// UnboundedRecurrenceError identifies the runaway event definition.
type UnboundedRecurrenceError struct {
	DefinitionID string
	Limit        int
}

func (e *UnboundedRecurrenceError) Error() string {
	return fmt.Sprintf("event %q exceeded %d occurrences without reaching a terminal condition", e.DefinitionID, e.Limit)
}

func (e *UnboundedRecurrenceError) Unwrap() error { return ErrUnboundedRecurrence }
