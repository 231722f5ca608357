package cli

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/config"
	"github.com/stratamed/journeysim/internal/distribution"
	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/logging"
	"github.com/stratamed/journeysim/internal/skill"
	"github.com/stratamed/journeysim/internal/trigger"
)

// pipeline is the fully assembled generation stack for one run.
type pipeline struct {
	specs    map[string]*journey.Spec
	registry *trigger.Registry
	executor *cohort.Executor
	anchor   time.Time
}

// buildPipeline loads journey specs, validates the trigger set, and wires
// the executor. All setup-scoped errors (malformed specs, cyclic triggers)
// surface here, before any generation work.
func buildPipeline(cfg *config.Config, log *logging.Logger) (*pipeline, error) {
	if len(cfg.Journeys) == 0 {
		return nil, fmt.Errorf("no journeys configured")
	}

	specs := make(map[string]*journey.Spec, len(cfg.Journeys))
	for name, ref := range cfg.Journeys {
		spec, err := journey.LoadSpec(ref.File)
		if err != nil {
			return nil, fmt.Errorf("journey %s: %w", name, err)
		}
		specs[name] = spec
	}

	triggers, err := convertTriggers(cfg.Triggers)
	if err != nil {
		return nil, err
	}
	registry, err := trigger.NewRegistry(triggers, specs)
	if err != nil {
		return nil, err
	}

	skills := skill.NewRegistry()
	for id, sc := range cfg.Skills {
		skills.RegisterTable(id, sc.Table)
	}

	anchor, err := cfg.AnchorTime()
	if err != nil {
		return nil, err
	}

	engine := journey.NewEngine(journey.EngineConfig{
		AllowPreAnchor: cfg.Defaults.AllowPreAnchor,
		MaxOccurrences: cfg.Defaults.MaxOccurrences,
		Lookups:        skills,
	})

	demographics := distribution.NewDemographics(anchor)
	attrs := make(map[entity.Vertical]distribution.Source, len(entity.KnownVerticals))
	for _, v := range entity.KnownVerticals {
		attrs[v] = demographics
	}

	executor := cohort.NewExecutor(cohort.Deps{
		Engine:   engine,
		Registry: registry,
		Specs:    specs,
		Attrs:    attrs,
		Logger:   log,
	})

	return &pipeline{
		specs:    specs,
		registry: registry,
		executor: executor,
		anchor:   anchor,
	}, nil
}

// convertTriggers maps the loosely typed config entries onto the typed
// trigger structs, round-tripping condition and delay overlays through
// YAML so they share the journey spec schema.
func convertTriggers(entries []config.TriggerConfig) ([]trigger.Trigger, error) {
	out := make([]trigger.Trigger, 0, len(entries))
	for i, tc := range entries {
		t := trigger.Trigger{
			SourceVertical:  entity.Vertical(tc.SourceVertical),
			SourceEventType: tc.SourceEventType,
			TargetVertical:  entity.Vertical(tc.TargetVertical),
			TargetJourney:   tc.TargetJourney,
			Priority:        tc.Priority,
		}
		if tc.Condition != nil {
			var cond journey.Condition
			if err := reencode(tc.Condition, &cond); err != nil {
				return nil, fmt.Errorf("trigger %d: condition: %w", i, err)
			}
			t.Condition = &cond
		}
		if tc.Delay != nil {
			var delay journey.DelaySpec
			if err := reencode(tc.Delay, &delay); err != nil {
				return nil, fmt.Errorf("trigger %d: delay: %w", i, err)
			}
			t.Delay = &delay
		}
		out = append(out, t)
	}
	return out, nil
}

// reencode decodes strictly: a key that matches no field of the target is
// an error, not a silent drop.
func reencode(from any, to any) error {
	data, err := yaml.Marshal(from)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(to)
}
