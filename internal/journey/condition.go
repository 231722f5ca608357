package journey

import (
	"fmt"
	"strings"

	"github.com/stratamed/journeysim/internal/entity"
)

// Condition is a boolean expression tree over entity attributes and context
// variables. Exactly one of All, Any, Not, or the leaf fields (Attr/Op) may
// be set. Attribute names prefixed "ctx." read from the evaluation context
// instead of the entity.
type Condition struct {
	All []*Condition `yaml:"all,omitempty"`
	Any []*Condition `yaml:"any,omitempty"`
	Not *Condition   `yaml:"not,omitempty"`

	Attr    string `yaml:"attr,omitempty"`
	Op      string `yaml:"op,omitempty"`
	Value   any    `yaml:"value,omitempty"`
	Default any    `yaml:"default,omitempty"`
}

// Comparison operators accepted in leaf conditions.
const (
	OpEq     = "eq"
	OpNe     = "ne"
	OpGt     = "gt"
	OpGte    = "gte"
	OpLt     = "lt"
	OpLte    = "lte"
	OpIn     = "in"
	OpExists = "exists"
)

// Evaluate resolves the condition against the entity state and context
// variables. A referenced attribute that is absent and has no default fails
// with MissingAttributeError; absence never silently evaluates to false.
func (c *Condition) Evaluate(st *entity.State, ctx map[string]any) (bool, error) {
	switch {
	case len(c.All) > 0:
		for _, sub := range c.All {
			ok, err := sub.Evaluate(st, ctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case len(c.Any) > 0:
		for _, sub := range c.Any {
			ok, err := sub.Evaluate(st, ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case c.Not != nil:
		ok, err := c.Not.Evaluate(st, ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return c.evaluateLeaf(st, ctx)
	}
}

func (c *Condition) evaluateLeaf(st *entity.State, ctx map[string]any) (bool, error) {
	if c.Attr == "" {
		return false, fmt.Errorf("condition leaf has no attribute reference")
	}

	val, present := lookupAttr(c.Attr, st, ctx)

	if c.Op == OpExists {
		return present, nil
	}

	if !present {
		if c.Default == nil {
			return false, &MissingAttributeError{Attr: c.Attr}
		}
		val = c.Default
	}

	switch c.Op {
	case OpEq:
		return compareEq(val, c.Value), nil
	case OpNe:
		return !compareEq(val, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(val)
		b, bok := toFloat(c.Value)
		if !aok || !bok {
			return false, fmt.Errorf("condition on %q: operator %q needs numeric operands", c.Attr, c.Op)
		}
		switch c.Op {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("condition on %q: operator %q needs a list value", c.Attr, c.Op)
		}
		for _, candidate := range values {
			if compareEq(val, candidate) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("condition on %q: unknown operator %q", c.Attr, c.Op)
	}
}

// Validate checks the structural shape of the condition tree. Called for
// journey specs at load and for trigger overlays at registry build.
func (c *Condition) Validate() error { return c.validate() }

// validate checks the structural shape of the tree at load time.
func (c *Condition) validate() error {
	branches := 0
	if len(c.All) > 0 {
		branches++
	}
	if len(c.Any) > 0 {
		branches++
	}
	if c.Not != nil {
		branches++
	}
	if c.Attr != "" || c.Op != "" {
		branches++
	}
	if branches != 1 {
		return fmt.Errorf("condition must be exactly one of all/any/not/leaf")
	}

	for _, sub := range c.All {
		if err := sub.validate(); err != nil {
			return err
		}
	}
	for _, sub := range c.Any {
		if err := sub.validate(); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return c.Not.validate()
	}
	if c.Attr != "" {
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpExists:
		default:
			return fmt.Errorf("condition on %q: unknown operator %q", c.Attr, c.Op)
		}
	}
	return nil
}

func lookupAttr(name string, st *entity.State, ctx map[string]any) (any, bool) {
	if rest, ok := strings.CutPrefix(name, "ctx."); ok {
		v, present := ctx[rest]
		return v, present
	}
	return st.Attr(name)
}

// compareEq compares scalars, treating all numeric types as equivalent so
// YAML integers match Go float attributes.
func compareEq(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
