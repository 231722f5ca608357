package journey

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/seed"
)

// LookupResolver resolves external skill lookups embedded in parameter
// templates. Implemented by skill.Registry.
type LookupResolver interface {
	Resolve(skillID, key string, ctx map[string]any) (any, error)
}

// EngineConfig configures timeline construction.
type EngineConfig struct {
	// AllowPreAnchor enables pre-anchor scheduling for delay specs that set
	// allow_negative. Off by default: negative offsets clamp to zero.
	AllowPreAnchor bool

	// MaxOccurrences is the safety bound on repeated events per definition.
	// Exceeding it fails the entity with UnboundedRecurrenceError.
	MaxOccurrences int

	// Lookups resolves external parameter references. May be nil, in which
	// case any lookup fails with UnresolvedReferenceError.
	Lookups LookupResolver
}

// DefaultMaxOccurrences bounds recurrence when the config leaves it unset.
const DefaultMaxOccurrences = 1000

// Engine builds one entity's event timeline by walking its specification.
// An Engine is stateless across calls and safe for concurrent use: all
// per-entity state lives in the call frame and all randomness flows through
// the caller's seed context.
type Engine struct {
	resolver       DelayResolver
	lookups        LookupResolver
	maxOccurrences int
}

// NewEngine creates an engine from the given config.
func NewEngine(cfg EngineConfig) *Engine {
	maxOcc := cfg.MaxOccurrences
	if maxOcc <= 0 {
		maxOcc = DefaultMaxOccurrences
	}
	return &Engine{
		resolver:       DelayResolver{AllowPreAnchor: cfg.AllowPreAnchor},
		lookups:        cfg.Lookups,
		maxOccurrences: maxOcc,
	}
}

// Resolver returns the engine's delay resolver configuration, shared with
// collaborators that resolve delays outside timeline construction.
func (e *Engine) Resolver() DelayResolver { return e.resolver }

// pendingEvent is one frontier entry awaiting finalization.
type pendingEvent struct {
	at         time.Time
	defIndex   int
	typeName   string
	occurrence int
	def        *EventDefinition
	parentID   string
}

// less is the deterministic total order used both for the frontier and for
// the final timeline: scheduled time, then definition declaration order,
// then event-type name, then occurrence. No insertion-order side effects.
func (p pendingEvent) less(q pendingEvent) bool {
	if !p.at.Equal(q.at) {
		return p.at.Before(q.at)
	}
	if p.defIndex != q.defIndex {
		return p.defIndex < q.defIndex
	}
	if p.typeName != q.typeName {
		return p.typeName < q.typeName
	}
	return p.occurrence < q.occurrence
}

// frontier is a min-heap over pending events.
type frontier []pendingEvent

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return f[i].less(f[j]) }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)        { *f = append(*f, x.(pendingEvent)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// finalized pairs an emitted event with its ordering key.
type finalized struct {
	key pendingEvent
	ev  Event
}

// BuildTimeline walks the specification and emits the entity's finalized
// timeline. It is deterministic for a fixed (spec, state, seed context,
// anchor) tuple. Events are finalized in causal frontier order and then
// appended to the timeline in scheduled-time order; the two differ only
// when pre-anchor delays are in play. On context cancellation the remaining
// frontier is drained as CANCELLED and ctx.Err() is returned; callers
// discard the partial timeline.
func (e *Engine) BuildTimeline(ctx context.Context, spec *Spec, st *entity.State, sctx seed.Context, anchor time.Time) (*Timeline, error) {
	var pending frontier
	heap.Init(&pending)

	var emitted []finalized

	for _, i := range spec.anchoredAt(AnchorStart) {
		if err := e.enqueue(&pending, st, sctx, &spec.Events[i], i, 0, anchor, anchor, ""); err != nil {
			return nil, err
		}
	}

	for pending.Len() > 0 {
		if err := ctx.Err(); err != nil {
			e.drainCancelled(&pending, &emitted)
			return e.assemble(st, anchor, emitted), err
		}

		next := heap.Pop(&pending).(pendingEvent)
		instanceID := next.def.ID + "#" + strconv.Itoa(next.occurrence)

		evalCtx := e.evalContext(st, anchor, next)
		fired := true
		if next.def.Condition != nil {
			ok, err := next.def.Condition.Evaluate(st, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("event %s: %w", next.def.ID, err)
			}
			fired = ok
		}

		ev := Event{
			InstanceID:       instanceID,
			DefinitionID:     next.def.ID,
			Type:             next.typeName,
			Time:             next.at,
			Occurrence:       next.occurrence,
			ParentInstanceID: next.parentID,
		}

		if !fired {
			ev.Status = StatusSkipped
			emitted = append(emitted, finalized{key: next, ev: ev})
			continue
		}

		params, err := e.resolveParams(next.def, st)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", next.def.ID, err)
		}
		ev.Status = StatusOccurred
		ev.Params = params
		emitted = append(emitted, finalized{key: next, ev: ev})

		// Dependents are enqueued only for OCCURRED events, anchored at
		// this occurrence's actual scheduled time.
		for _, i := range spec.anchoredAt(next.def.ID) {
			if err := e.enqueue(&pending, st, sctx, &spec.Events[i], i, 0, next.at, anchor, instanceID); err != nil {
				return nil, err
			}
		}

		if next.def.Repeat != nil {
			if err := e.scheduleRepeat(&pending, st, sctx, next, evalCtx, anchor, instanceID); err != nil {
				return nil, err
			}
		}
	}

	return e.assemble(st, anchor, emitted), nil
}

// assemble orders the emitted events by the deterministic timeline order
// and appends them to a fresh timeline.
func (e *Engine) assemble(st *entity.State, anchor time.Time, emitted []finalized) *Timeline {
	sort.SliceStable(emitted, func(i, j int) bool {
		return emitted[i].key.less(emitted[j].key)
	})
	tl := NewTimeline(st.ID, anchor)
	for _, f := range emitted {
		// Cannot fail: the sort above guarantees non-decreasing times and
		// every buffered event carries a terminal status.
		_ = tl.Append(f.ev)
	}
	return tl
}

// enqueue resolves the delay for one occurrence and pushes it on the
// frontier. The delay draw is scoped to (entity seed, definition id,
// occurrence) so resolution order never shifts downstream draws.
func (e *Engine) enqueue(pending *frontier, st *entity.State, sctx seed.Context, def *EventDefinition, defIndex, occurrence int, anchorAt, runAnchor time.Time, parentID string) error {
	delayCtx := sctx.Derive("delay").Derive(def.ID).Derive(strconv.Itoa(occurrence))

	ds := def.Delay
	if occurrence > 0 && def.Repeat != nil {
		ds = def.Repeat.Every
	}

	offset, err := e.resolver.Resolve(&ds, st, delayCtx)
	if err != nil {
		return fmt.Errorf("event %s: resolve delay: %w", def.ID, err)
	}

	at := anchorAt.Add(offset)
	// Pre-anchor offsets may not reach back past the run anchor; the
	// timeline is ordered from that single anchor.
	if at.Before(runAnchor) {
		at = runAnchor
	}

	heap.Push(pending, pendingEvent{
		at:         at,
		defIndex:   defIndex,
		typeName:   def.Type,
		occurrence: occurrence,
		def:        def,
		parentID:   parentID,
	})
	return nil
}

// scheduleRepeat re-enqueues a recurring definition until its terminal
// condition, max count, or the engine safety bound.
func (e *Engine) scheduleRepeat(pending *frontier, st *entity.State, sctx seed.Context, cur pendingEvent, evalCtx map[string]any, runAnchor time.Time, instanceID string) error {
	rp := cur.def.Repeat
	next := cur.occurrence + 1

	if rp.MaxCount > 0 && next >= rp.MaxCount {
		return nil
	}
	if rp.Until != nil {
		done, err := rp.Until.Evaluate(st, evalCtx)
		if err != nil {
			return fmt.Errorf("event %s: repeat until: %w", cur.def.ID, err)
		}
		if done {
			return nil
		}
	}
	if next >= e.maxOccurrences {
		return &UnboundedRecurrenceError{DefinitionID: cur.def.ID, Limit: e.maxOccurrences}
	}

	return e.enqueue(pending, st, sctx, cur.def, cur.defIndex, next, cur.at, runAnchor, instanceID)
}

// resolveParams materializes the parameter template, resolving external
// lookups through the injected resolver.
func (e *Engine) resolveParams(def *EventDefinition, st *entity.State) (map[string]any, error) {
	if len(def.Params) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(def.Params))
	for name, pv := range def.Params {
		if pv.Lookup == nil {
			out[name] = pv.Value
			continue
		}
		if e.lookups == nil {
			return nil, &UnresolvedReferenceError{Skill: pv.Lookup.Skill, Key: pv.Lookup.Key}
		}
		v, err := e.lookups.Resolve(pv.Lookup.Skill, pv.Lookup.Key, st.Attrs)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// evalContext builds the context variables visible to conditions via the
// "ctx." prefix.
func (e *Engine) evalContext(st *entity.State, anchor time.Time, p pendingEvent) map[string]any {
	return map[string]any{
		"entity_id":    st.ID,
		"vertical":     string(st.Vertical),
		"occurrence":   p.occurrence,
		"elapsed_days": p.at.Sub(anchor).Hours() / 24,
	}
}

// drainCancelled finalizes the remaining frontier as CANCELLED.
func (e *Engine) drainCancelled(pending *frontier, emitted *[]finalized) {
	for pending.Len() > 0 {
		p := heap.Pop(pending).(pendingEvent)
		*emitted = append(*emitted, finalized{
			key: p,
			ev: Event{
				InstanceID:       p.def.ID + "#" + strconv.Itoa(p.occurrence),
				DefinitionID:     p.def.ID,
				Type:             p.typeName,
				Time:             p.at,
				Occurrence:       p.occurrence,
				Status:           StatusCancelled,
				ParentInstanceID: p.parentID,
			},
		})
	}
}
