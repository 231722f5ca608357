package trigger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/seed"
)

// SpawnRequest asks the owning executor to generate the target journey for
// a newly linked entity. The causing source event is already finalized when
// a spawn is requested; triggering is always forward.
type SpawnRequest struct {
	Trigger     Trigger
	CanonicalID string

	SourceEntity *entity.State
	SourceEvent  journey.Event

	// AnchorTime is the target journey's anchor: the source event time plus
	// the trigger's delay overlay.
	AnchorTime time.Time

	// Seed is the derived context for everything downstream of this link.
	Seed seed.Context
}

// SpawnFunc generates the target side of a link. Implemented by the cohort
// executor so the coordinator stays free of generation concerns.
type SpawnFunc func(ctx context.Context, req SpawnRequest) error

// Coordinator watches finalized timelines and fans matching events out to
// cross-vertical generation.
type Coordinator struct {
	registry *Registry
	arena    *Arena
	resolver journey.DelayResolver
}

// NewCoordinator creates a coordinator over the given registry and arena.
// The resolver carries the run's pre-anchor policy so trigger delay
// overlays behave like journey delays.
func NewCoordinator(registry *Registry, arena *Arena, resolver journey.DelayResolver) *Coordinator {
	return &Coordinator{registry: registry, arena: arena, resolver: resolver}
}

// Arena exposes the link arena for result aggregation.
func (c *Coordinator) Arena() *Arena { return c.arena }

// Dispatch matches every OCCURRED event of a finalized timeline against the
// registry and spawns target generation for each firing trigger, in
// priority then registration order. SKIPPED and CANCELLED events never
// trigger. Dispatch is deterministic for a fixed timeline and seed context.
func (c *Coordinator) Dispatch(ctx context.Context, st *entity.State, tl *journey.Timeline, sctx seed.Context, spawn SpawnFunc) error {
	for _, ev := range tl.Events() {
		if ev.Status != journey.StatusOccurred {
			continue
		}
		matches := c.registry.Match(st.Vertical, ev.Type)
		for ti, trg := range matches {
			if err := ctx.Err(); err != nil {
				return err
			}
			fired, err := c.evaluate(trg, st)
			if err != nil {
				return fmt.Errorf("trigger %s/%s: %w", trg.SourceVertical, trg.SourceEventType, err)
			}
			if !fired {
				continue
			}

			linkSeed := sctx.Derive("trigger").Derive(ev.InstanceID).Derive(strconv.Itoa(ti))

			anchor := ev.Time
			if trg.Delay != nil {
				offset, err := c.resolver.Resolve(trg.Delay, st, linkSeed.Derive("delay"))
				if err != nil {
					return fmt.Errorf("trigger %s/%s: resolve delay: %w", trg.SourceVertical, trg.SourceEventType, err)
				}
				anchor = anchor.Add(offset)
			}

			// The canonical id is a UUIDv5 over the link's seed context, so
			// repeated and parallel runs mint identical identities.
			canonicalID := linkSeed.UUID()

			if _, err := c.arena.Create(canonicalID, st.Vertical, st.ID, ev.InstanceID); err != nil {
				return err
			}

			err = spawn(ctx, SpawnRequest{
				Trigger:      trg,
				CanonicalID:  canonicalID,
				SourceEntity: st,
				SourceEvent:  ev,
				AnchorTime:   anchor,
				Seed:         linkSeed,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) evaluate(trg Trigger, st *entity.State) (bool, error) {
	if trg.Condition == nil {
		return true, nil
	}
	return trg.Condition.Evaluate(st, nil)
}
