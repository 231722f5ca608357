package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveIdempotent(t *testing.T) {
	root := NewRoot(42)

	a := root.Derive("entity").Derive("3")
	b := root.Derive("entity").Derive("3")

	assert.Equal(t, a.Seed(), b.Seed())
	assert.Equal(t, a.Path(), b.Path())
	assert.Equal(t, a.UUID(), b.UUID())
}

func TestDeriveSiblingsIndependent(t *testing.T) {
	root := NewRoot(42)

	a := root.Derive("entity").Derive("0")
	b := root.Derive("entity").Derive("1")

	assert.NotEqual(t, a.Seed(), b.Seed())
	assert.NotEqual(t, a.UUID(), b.UUID())
}

func TestDeriveOrderIndependent(t *testing.T) {
	root := NewRoot(7)

	// Deriving a sibling first must not shift another sibling's seed.
	before := root.Derive("delay").Seed()
	_ = root.Derive("attrs")
	_ = root.Derive("trigger").Derive("e1#0")
	after := root.Derive("delay").Seed()

	assert.Equal(t, before, after)
}

func TestDeriveDistinguishesPathShape(t *testing.T) {
	root := NewRoot(1)

	// "a" then "b" is not the same node as "ab".
	assert.NotEqual(t, root.Derive("a").Derive("b").Seed(), root.Derive("ab").Seed())
}

func TestRootSeedChangesEverything(t *testing.T) {
	a := NewRoot(1).Derive("entity").Derive("0")
	b := NewRoot(2).Derive("entity").Derive("0")

	assert.NotEqual(t, a.Seed(), b.Seed())
	assert.NotEqual(t, a.UUID(), b.UUID())
	// Paths are identical; only the seed differs.
	assert.Equal(t, a.Path(), b.Path())
}

func TestDeriveN(t *testing.T) {
	root := NewRoot(42)

	assert.Equal(t, root.Derive("entity").Derive("5").Seed(), root.DeriveN("entity", 5).Seed())
}

func TestRandFreshStream(t *testing.T) {
	c := NewRoot(42).Derive("delay")

	first := c.Rand().Float64()
	// A new stream from the same context starts over.
	second := c.Rand().Float64()
	assert.Equal(t, first, second)

	// Draining one stream does not advance another.
	r1 := c.Rand()
	for i := 0; i < 100; i++ {
		r1.Float64()
	}
	assert.Equal(t, first, c.Rand().Float64())
}

func TestPath(t *testing.T) {
	root := NewRoot(42)
	require.Equal(t, "", root.Path())
	assert.Equal(t, "entity/3/delay", root.Derive("entity").Derive("3").Derive("delay").Path())
}
