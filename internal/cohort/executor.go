// Package cohort orchestrates bulk generation: per-entity seeds, attribute
// distributions, timeline construction, and cross-vertical fan-out.
package cohort

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratamed/journeysim/internal/distribution"
	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/logging"
	"github.com/stratamed/journeysim/internal/metrics"
	"github.com/stratamed/journeysim/internal/seed"
	"github.com/stratamed/journeysim/internal/trigger"
)

// Config describes one cohort run.
type Config struct {
	// Count is the number of root entities to generate.
	Count int

	// RootSeed seeds the run's derivation tree. Fixed seed, fixed spec,
	// identical output.
	RootSeed int64

	// Anchor is the simulation start time shared by all root entities.
	Anchor time.Time

	// Journey names the root journey spec to execute.
	Journey string

	// Workers bounds concurrent entity builds. Zero means sequential.
	// Output is identical either way.
	Workers int
}

// Deps wires the executor's collaborators.
type Deps struct {
	Engine   *journey.Engine
	Registry *trigger.Registry
	Specs    map[string]*journey.Spec

	// Attrs supplies attribute distributions per vertical. Verticals
	// without a source get no sampled attributes.
	Attrs map[entity.Vertical]distribution.Source

	Logger *logging.Logger
}

// Executor runs cohorts. Safe for reuse across runs.
type Executor struct {
	engine   *journey.Engine
	registry *trigger.Registry
	specs    map[string]*journey.Spec
	attrs    map[entity.Vertical]distribution.Source
	logger   *logging.Logger
}

// NewExecutor creates an executor from its dependencies.
func NewExecutor(deps Deps) *Executor {
	l := deps.Logger
	if l == nil {
		l = logging.Default()
	}
	return &Executor{
		engine:   deps.Engine,
		registry: deps.Registry,
		specs:    deps.Specs,
		attrs:    deps.Attrs,
		logger:   l,
	}
}

// entityOutcome is the complete result subtree for one root entity: its own
// timeline plus everything its events spawned across verticals. nil when
// the build was discarded by cancellation.
type entityOutcome struct {
	entities  []string
	states    map[string]*entity.State
	timelines map[string]*journey.Timeline
	links     []*trigger.LinkedEntity
	failure   *Failure
}

// Run generates the configured cohort. Setup errors (unknown journey)
// abort before any entity is processed; entity-scoped errors are recorded
// in the result and generation continues. On context cancellation the
// in-flight, not-yet-finalized entities are discarded and ctx.Err() is
// returned alongside the partial result.
func (x *Executor) Run(ctx context.Context, cfg Config) (*Result, error) {
	rootSpec, ok := x.specs[cfg.Journey]
	if !ok {
		return nil, &journey.SpecificationError{Spec: cfg.Journey, Detail: "journey is not configured"}
	}
	if cfg.Count <= 0 {
		return nil, &journey.SpecificationError{Spec: cfg.Journey, Detail: fmt.Sprintf("cohort count %d must be positive", cfg.Count)}
	}

	runID := uuid.New().String()
	log := x.logger.WithRun(runID)
	log.Info("cohort run starting",
		"journey", cfg.Journey,
		"vertical", rootSpec.Vertical,
		"count", cfg.Count,
		"root_seed", cfg.RootSeed,
		"workers", cfg.Workers,
	)

	started := time.Now()
	root := seed.NewRoot(cfg.RootSeed)
	outcomes := make([]*entityOutcome, cfg.Count)

	workers := cfg.Workers
	if workers <= 1 {
		for i := 0; i < cfg.Count; i++ {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = x.buildEntity(ctx, rootSpec, root, cfg.Anchor, i)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					outcomes[i] = x.buildEntity(ctx, rootSpec, root, cfg.Anchor, i)
				}
			}()
		}
		for i := 0; i < cfg.Count; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		close(jobs)
		wg.Wait()
	}

	result := x.merge(runID, cfg, rootSpec, outcomes, time.Since(started))

	log.Info("cohort run finished",
		"generated", result.Stats.EntitiesGenerated,
		"failed", result.Stats.EntitiesFailed,
		"linked", result.Stats.LinkedEntities,
		"elapsed", result.Stats.Elapsed.String(),
	)
	for _, f := range result.Failures {
		log.Warn("entity generation failed", "index", f.Index, "entity_id", f.EntityID, "reason", f.Reason)
	}

	return result, ctx.Err()
}

// buildEntity generates one root entity and its cross-vertical subtree.
// Cross-vertical fan-out runs strictly after the causing timeline is
// finalized, so the dependency edge from source event to target generation
// is honored by construction.
func (x *Executor) buildEntity(ctx context.Context, rootSpec *journey.Spec, root seed.Context, anchor time.Time, index int) *entityOutcome {
	entCtx := root.Derive("entity").Derive(strconv.Itoa(index))

	st := entity.NewState(entCtx.UUID(), rootSpec.Vertical)
	out := &entityOutcome{
		states:    make(map[string]*entity.State),
		timelines: make(map[string]*journey.Timeline),
	}
	fail := func(err error) *entityOutcome {
		out.failure = &Failure{Index: index, EntityID: st.ID, Reason: err.Error()}
		metrics.EntitiesTotal.WithLabelValues(string(rootSpec.Vertical), "failed").Inc()
		return out
	}

	if src, ok := x.attrs[rootSpec.Vertical]; ok {
		if err := src.Populate(st, entCtx); err != nil {
			return fail(err)
		}
	}

	buildStart := time.Now()
	tl, err := x.engine.BuildTimeline(ctx, rootSpec, st, entCtx, anchor)
	metrics.TimelineBuildDuration.Observe(time.Since(buildStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil // discarded, not failed
		}
		return fail(err)
	}

	out.entities = append(out.entities, st.ID)
	out.states[st.ID] = st
	out.timelines[st.ID] = tl

	// Fresh arena per root entity: links are merged in cohort order later,
	// so parallel execution cannot reorder them.
	coord := trigger.NewCoordinator(x.registry, trigger.NewArena(), x.engine.Resolver())
	if err := coord.Dispatch(ctx, st, tl, entCtx, x.spawnFunc(coord, out)); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fail(err)
	}
	out.links = coord.Arena().All()

	metrics.EntitiesTotal.WithLabelValues(string(rootSpec.Vertical), "ok").Inc()
	return out
}

// spawnFunc returns the coordinator callback that generates the target side
// of a link and recursively dispatches the spawned timeline. Registry cycle
// detection at setup bounds the recursion.
func (x *Executor) spawnFunc(coord *trigger.Coordinator, out *entityOutcome) trigger.SpawnFunc {
	var spawn trigger.SpawnFunc
	spawn = func(ctx context.Context, req trigger.SpawnRequest) error {
		spec, ok := x.specs[req.Trigger.TargetJourney]
		if !ok {
			// Unreachable after registry validation.
			return &journey.SpecificationError{Spec: req.Trigger.TargetJourney, Detail: "journey is not configured"}
		}

		tgtCtx := req.Seed.Derive("target")
		st := entity.NewState(tgtCtx.UUID(), req.Trigger.TargetVertical)

		// A linked entity is the same person seen from another vertical:
		// inherit the source attributes, then let the target vertical's
		// distribution fill in what it adds.
		for k, v := range req.SourceEntity.Attrs {
			st.Set(k, v)
		}
		if src, ok := x.attrs[req.Trigger.TargetVertical]; ok {
			if err := src.Populate(st, tgtCtx); err != nil {
				return err
			}
		}

		tl, err := x.engine.BuildTimeline(ctx, spec, st, tgtCtx, req.AnchorTime)
		if err != nil {
			return err
		}
		if err := coord.Arena().AddVertical(req.CanonicalID, req.Trigger.TargetVertical, st.ID); err != nil {
			return err
		}

		out.entities = append(out.entities, st.ID)
		out.states[st.ID] = st
		out.timelines[st.ID] = tl

		return coord.Dispatch(ctx, st, tl, tgtCtx, spawn)
	}
	return spawn
}

// merge assembles per-entity outcomes into the run result in cohort order.
func (x *Executor) merge(runID string, cfg Config, rootSpec *journey.Spec, outcomes []*entityOutcome, elapsed time.Duration) *Result {
	result := &Result{
		RunID:     runID,
		States:    make(map[string]*entity.State),
		Timelines: make(map[string]*journey.Timeline),
		Links:     make(map[string]*trigger.LinkedEntity),
		Stats: Stats{
			EntitiesRequested: cfg.Count,
			EventsByStatus:    make(map[journey.Status]int),
			Elapsed:           elapsed,
		},
	}

	for _, out := range outcomes {
		if out == nil {
			continue // discarded by cancellation
		}
		if out.failure != nil {
			result.Failures = append(result.Failures, *out.failure)
			result.Stats.EntitiesFailed++
			continue
		}
		result.Stats.EntitiesGenerated++
		result.Entities = append(result.Entities, out.entities...)
		for id, st := range out.states {
			result.States[id] = st
		}
		for id, tl := range out.timelines {
			result.Timelines[id] = tl
			for _, ev := range tl.Events() {
				result.Stats.EventsByStatus[ev.Status]++
				metrics.EventsTotal.WithLabelValues(string(rootSpec.Vertical), string(ev.Status)).Inc()
			}
		}
		for _, le := range out.links {
			result.Links[le.CanonicalID] = le
			result.LinkOrder = append(result.LinkOrder, le.CanonicalID)
			result.Stats.LinkedEntities++
			metrics.LinkedEntitiesTotal.Inc()
		}
	}

	return result
}
