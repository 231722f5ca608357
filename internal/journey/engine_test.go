package journey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratamed/journeysim/internal/seed"
)

var testAnchor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type stubLookups struct {
	values map[string]any
}

func (s *stubLookups) Resolve(skillID, key string, ctx map[string]any) (any, error) {
	if v, ok := s.values[skillID+"/"+key]; ok {
		return v, nil
	}
	return nil, &UnresolvedReferenceError{Skill: skillID, Key: key}
}

func mustParse(t *testing.T, doc string) *Spec {
	t.Helper()
	spec, err := ParseSpec([]byte(doc), "test")
	require.NoError(t, err)
	return spec
}

func TestBuildTimelineOrdering(t *testing.T) {
	spec := mustParse(t, `
name: ordering
vertical: patient
events:
  - id: intake
    type: visit.intake
    anchor: start
    delay: {kind: fixed, value: 0}
  - id: late
    type: visit.late
    anchor: intake
    delay: {kind: fixed, value: 20}
  - id: early
    type: visit.early
    anchor: intake
    delay: {kind: fixed, value: 5}
`)

	e := NewEngine(EngineConfig{})
	st := testState(nil)
	tl, err := e.BuildTimeline(context.Background(), spec, st, seed.NewRoot(42), testAnchor)
	require.NoError(t, err)

	events := tl.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "visit.intake", events[0].Type)
	assert.Equal(t, "visit.early", events[1].Type)
	assert.Equal(t, "visit.late", events[2].Type)

	assert.Equal(t, testAnchor, events[0].Time)
	assert.Equal(t, testAnchor.Add(5*24*time.Hour), events[1].Time)
	assert.Equal(t, testAnchor.Add(20*24*time.Hour), events[2].Time)

	assert.Equal(t, "", events[0].ParentInstanceID)
	assert.Equal(t, "intake#0", events[1].ParentInstanceID)
}

func TestBuildTimelineTieBreakDeclarationOrder(t *testing.T) {
	spec := mustParse(t, `
name: ties
vertical: patient
events:
  - id: a
    type: z.event
    anchor: start
    delay: {kind: fixed, value: 0}
  - id: b
    type: a.event
    anchor: start
    delay: {kind: fixed, value: 0}
`)

	e := NewEngine(EngineConfig{})
	tl, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(42), testAnchor)
	require.NoError(t, err)

	events := tl.Events()
	require.Len(t, events, 2)
	// Same timestamp: declaration order wins over type name.
	assert.Equal(t, "a#0", events[0].InstanceID)
	assert.Equal(t, "b#0", events[1].InstanceID)
}

func TestBuildTimelineDeterministic(t *testing.T) {
	spec := mustParse(t, `
name: deterministic
vertical: patient
events:
  - id: e1
    type: t1
    anchor: start
    delay: {kind: uniform, min: 0, max: 10}
  - id: e2
    type: t2
    anchor: e1
    delay: {kind: normal, mean: 30, stddev: 5}
  - id: e3
    type: t3
    anchor: e1
    delay: {kind: uniform, min: 1, max: 3}
    repeat:
      every: {kind: uniform, min: 5, max: 9}
      max_count: 4
`)

	e := NewEngine(EngineConfig{})
	build := func() []Event {
		st := testState(map[string]any{"age": 70})
		tl, err := e.BuildTimeline(context.Background(), spec, st, seed.NewRoot(42).Derive("entity").Derive("0"), testAnchor)
		require.NoError(t, err)
		return tl.Events()
	}

	assert.Equal(t, build(), build())
}

func TestBuildTimelineConditionSkip(t *testing.T) {
	spec := mustParse(t, `
name: gated
vertical: patient
events:
  - id: intake
    type: visit.intake
    anchor: start
    delay: {kind: fixed, value: 0}
  - id: senior-review
    type: review.senior
    anchor: intake
    delay: {kind: fixed, value: 10}
    condition: {attr: age, op: gte, value: 65}
  - id: downstream
    type: review.followup
    anchor: senior-review
    delay: {kind: fixed, value: 5}
`)

	e := NewEngine(EngineConfig{})

	senior := testState(map[string]any{"age": 70})
	tl, err := e.BuildTimeline(context.Background(), spec, senior, seed.NewRoot(1), testAnchor)
	require.NoError(t, err)
	require.Len(t, tl.Events(), 3)
	assert.Equal(t, StatusOccurred, tl.Events()[1].Status)

	junior := testState(map[string]any{"age": 40})
	tl, err = e.BuildTimeline(context.Background(), spec, junior, seed.NewRoot(1), testAnchor)
	require.NoError(t, err)

	// The gated event is present as SKIPPED; its dependent never scheduled.
	events := tl.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "senior-review#0", events[1].InstanceID)
	assert.Equal(t, StatusSkipped, events[1].Status)
	assert.Empty(t, tl.Occurred()[1:])
}

func TestBuildTimelineMissingAttributeAborts(t *testing.T) {
	spec := mustParse(t, `
name: gated
vertical: patient
events:
  - id: intake
    type: visit.intake
    anchor: start
    delay: {kind: fixed, value: 0}
    condition: {attr: age, op: gte, value: 65}
`)

	e := NewEngine(EngineConfig{})
	_, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	assert.ErrorIs(t, err, ErrMissingAttribute)
}

func TestBuildTimelineRepeatMaxCount(t *testing.T) {
	spec := mustParse(t, `
name: repeating
vertical: member
events:
  - id: premium
    type: billing.premium
    anchor: start
    delay: {kind: fixed, value: 30}
    repeat:
      every: {kind: fixed, value: 30}
      max_count: 3
`)

	e := NewEngine(EngineConfig{})
	tl, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.NoError(t, err)

	events := tl.Events()
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i, ev.Occurrence)
		assert.Equal(t, testAnchor.Add(time.Duration(30*(i+1))*24*time.Hour), ev.Time)
	}
	// Later occurrences chain off the previous one.
	assert.Equal(t, "premium#0", events[1].ParentInstanceID)
	assert.Equal(t, "premium#1", events[2].ParentInstanceID)
}

func TestBuildTimelineRepeatUntil(t *testing.T) {
	spec := mustParse(t, `
name: repeating
vertical: member
events:
  - id: checkin
    type: visit.checkin
    anchor: start
    delay: {kind: fixed, value: 0}
    repeat:
      every: {kind: fixed, value: 100}
      until:
        attr: ctx.elapsed_days
        op: gte
        value: 250
`)

	e := NewEngine(EngineConfig{})
	tl, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.NoError(t, err)

	// Occurrences at day 0, 100, 200; the until check passes at 300.
	require.Len(t, tl.Events(), 4)
	last := tl.Events()[3]
	assert.Equal(t, testAnchor.Add(300*24*time.Hour), last.Time)
}

func TestBuildTimelineUnboundedRecurrence(t *testing.T) {
	spec := mustParse(t, `
name: runaway
vertical: member
events:
  - id: tick
    type: tick
    anchor: start
    delay: {kind: fixed, value: 1}
    repeat:
      every: {kind: fixed, value: 1}
      until:
        attr: ctx.elapsed_days
        op: lt
        value: 0
`)

	e := NewEngine(EngineConfig{MaxOccurrences: 50})
	_, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.ErrorIs(t, err, ErrUnboundedRecurrence)
}

func TestBuildTimelineParams(t *testing.T) {
	spec := mustParse(t, `
name: params
vertical: patient
events:
  - id: rx
    type: prescription.written
    anchor: start
    delay: {kind: fixed, value: 0}
    params:
      drug:
        value: metformin
      tier:
        lookup: {skill: formulary, key: metformin}
`)

	e := NewEngine(EngineConfig{Lookups: &stubLookups{values: map[string]any{"formulary/metformin": "tier-1"}}})
	tl, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.NoError(t, err)

	require.Len(t, tl.Events(), 1)
	params := tl.Events()[0].Params
	assert.Equal(t, "metformin", params["drug"])
	assert.Equal(t, "tier-1", params["tier"])
}

func TestBuildTimelineUnresolvedLookup(t *testing.T) {
	spec := mustParse(t, `
name: params
vertical: patient
events:
  - id: rx
    type: prescription.written
    anchor: start
    delay: {kind: fixed, value: 0}
    params:
      tier:
        lookup: {skill: formulary, key: unknown}
`)

	e := NewEngine(EngineConfig{Lookups: &stubLookups{}})
	_, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	assert.ErrorIs(t, err, ErrUnresolvedReference)

	// No resolver configured at all behaves the same.
	e = NewEngine(EngineConfig{})
	_, err = e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	assert.ErrorIs(t, err, ErrUnresolvedReference)
}

func TestBuildTimelineCancellation(t *testing.T) {
	spec := mustParse(t, `
name: cancel
vertical: patient
events:
  - id: e1
    type: t1
    anchor: start
    delay: {kind: fixed, value: 0}
  - id: e2
    type: t2
    anchor: start
    delay: {kind: fixed, value: 10}
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(EngineConfig{})
	tl, err := e.BuildTimeline(ctx, spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, tl)

	for _, ev := range tl.Events() {
		assert.Equal(t, StatusCancelled, ev.Status)
	}
}

func TestBuildTimelinePreAnchorFloor(t *testing.T) {
	spec := mustParse(t, `
name: preanchor
vertical: patient
events:
  - id: surgery
    type: surgery.performed
    anchor: start
    delay: {kind: fixed, value: 10}
  - id: pre-op
    type: surgery.pre_op
    anchor: surgery
    delay: {kind: fixed, value: -7, allow_negative: true}
  - id: deep-history
    type: surgery.history_review
    anchor: surgery
    delay: {kind: fixed, value: -30, allow_negative: true}
`)

	e := NewEngine(EngineConfig{AllowPreAnchor: true})
	tl, err := e.BuildTimeline(context.Background(), spec, testState(nil), seed.NewRoot(1), testAnchor)
	require.NoError(t, err)

	events := tl.Events()
	require.Len(t, events, 3)

	// Emitted in scheduled-time order even though the anchor fired first
	// causally, and never before the run anchor.
	assert.Equal(t, "surgery.history_review", events[0].Type)
	assert.Equal(t, testAnchor, events[0].Time)
	assert.Equal(t, "surgery.pre_op", events[1].Type)
	assert.Equal(t, testAnchor.Add(3*24*time.Hour), events[1].Time)
	assert.Equal(t, "surgery.performed", events[2].Type)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Time.Before(events[i-1].Time))
	}
}
