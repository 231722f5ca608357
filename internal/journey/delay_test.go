package journey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratamed/journeysim/internal/seed"
)

func TestDelayFixed(t *testing.T) {
	r := &DelayResolver{}
	st := testState(nil)
	sctx := seed.NewRoot(42).Derive("delay")

	tests := []struct {
		name string
		ds   DelaySpec
		want time.Duration
	}{
		{"days default", DelaySpec{Kind: DelayFixed, Value: 30}, 30 * 24 * time.Hour},
		{"hours", DelaySpec{Kind: DelayFixed, Value: 6, Unit: "hours"}, 6 * time.Hour},
		{"minutes", DelaySpec{Kind: DelayFixed, Value: 90, Unit: "minutes"}, 90 * time.Minute},
		{"zero", DelaySpec{Kind: DelayFixed, Value: 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(&tt.ds, st, sctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDelayUniformDeterministic(t *testing.T) {
	r := &DelayResolver{}
	st := testState(nil)
	sctx := seed.NewRoot(42).Derive("delay").Derive("e1").Derive("0")
	ds := DelaySpec{Kind: DelayUniform, Min: 5, Max: 10}

	first, err := r.Resolve(&ds, st, sctx)
	require.NoError(t, err)
	second, err := r.Resolve(&ds, st, sctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 5*24*time.Hour)
	assert.LessOrEqual(t, first, 10*24*time.Hour)
}

func TestDelayUniformInvalidRange(t *testing.T) {
	r := &DelayResolver{}
	ds := DelaySpec{Kind: DelayUniform, Min: 10, Max: 5}

	_, err := r.Resolve(&ds, testState(nil), seed.NewRoot(1))
	assert.Error(t, err)
}

func TestDelayNormalDeterministic(t *testing.T) {
	r := &DelayResolver{}
	st := testState(nil)
	sctx := seed.NewRoot(42).Derive("delay").Derive("e2").Derive("0")
	ds := DelaySpec{Kind: DelayNormal, Mean: 30, StdDev: 5}

	first, err := r.Resolve(&ds, st, sctx)
	require.NoError(t, err)
	second, err := r.Resolve(&ds, st, sctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDelayNegativeClamped(t *testing.T) {
	r := &DelayResolver{}
	ds := DelaySpec{Kind: DelayFixed, Value: -5}

	got, err := r.Resolve(&ds, testState(nil), seed.NewRoot(1))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)
}

func TestDelayNegativeRequiresBothOptIns(t *testing.T) {
	ds := DelaySpec{Kind: DelayFixed, Value: -5, AllowNegative: true}
	st := testState(nil)
	sctx := seed.NewRoot(1)

	// Spec opts in but the resolver does not: still clamped.
	got, err := (&DelayResolver{}).Resolve(&ds, st, sctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)

	// Resolver opts in but the spec does not: still clamped.
	plain := DelaySpec{Kind: DelayFixed, Value: -5}
	got, err = (&DelayResolver{AllowPreAnchor: true}).Resolve(&plain, st, sctx)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)

	// Both opt in: the negative offset survives.
	got, err = (&DelayResolver{AllowPreAnchor: true}).Resolve(&ds, st, sctx)
	require.NoError(t, err)
	assert.Equal(t, -5*24*time.Hour, got)
}

func TestDelayTable(t *testing.T) {
	r := &DelayResolver{}
	sctx := seed.NewRoot(42).Derive("delay")
	ds := DelaySpec{
		Kind: DelayTable,
		Table: []DelayTableRow{
			{
				When:  &Condition{Attr: "age", Op: OpGte, Value: 65},
				Delay: DelaySpec{Kind: DelayFixed, Value: 10},
			},
			{
				Delay: DelaySpec{Kind: DelayFixed, Value: 30},
			},
		},
	}

	senior, err := r.Resolve(&ds, testState(map[string]any{"age": 70}), sctx)
	require.NoError(t, err)
	assert.Equal(t, 10*24*time.Hour, senior)

	junior, err := r.Resolve(&ds, testState(map[string]any{"age": 40}), sctx)
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, junior)
}

func TestDelayTableNoMatch(t *testing.T) {
	r := &DelayResolver{}
	ds := DelaySpec{
		Kind: DelayTable,
		Table: []DelayTableRow{
			{
				When:  &Condition{Attr: "age", Op: OpGte, Value: 65},
				Delay: DelaySpec{Kind: DelayFixed, Value: 10},
			},
		},
	}

	_, err := r.Resolve(&ds, testState(map[string]any{"age": 40}), seed.NewRoot(1))
	assert.Error(t, err)
}

func TestDelayUnknownKindAndUnit(t *testing.T) {
	r := &DelayResolver{}
	st := testState(nil)

	_, err := r.Resolve(&DelaySpec{Kind: "exponential"}, st, seed.NewRoot(1))
	assert.Error(t, err)

	_, err = r.Resolve(&DelaySpec{Kind: DelayFixed, Value: 1, Unit: "weeks"}, st, seed.NewRoot(1))
	assert.Error(t, err)
}
