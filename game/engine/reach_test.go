package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zyedidia/generic/mapset"
)

func TestReachableFromOpenRoom(t *testing.T) {
	b := mustParse(t, openRoom...)
	reach, err := ReachableFrom(b, Position{X: 1, Y: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, reach.Size())
}

func TestReachableFromExcludesDiagonals(t *testing.T) {
	b := mustParse(t,
		"#####",
		"#@# #",
		"## ##",
		"#####",
	)
	reach, err := ReachableFrom(b, Position{X: 1, Y: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, reach.Size())
	assert.False(t, reach.Has(Position{X: 2, Y: 2}))
}

func TestReachableFromRespectsBlockers(t *testing.T) {
	b := mustParse(t, twoCorridors...)
	blocked := mapset.New[Position]()
	blocked.Put(Position{X: 1, Y: 2})

	reach, err := ReachableFrom(b, Position{X: 1, Y: 1}, blocked)
	require.NoError(t, err)
	assert.False(t, reach.Has(Position{X: 1, Y: 3}))
	assert.True(t, reach.Has(Position{X: 4, Y: 1}))
}

func TestReachableFromInvalidStart(t *testing.T) {
	b := mustParse(t, openRoom...)

	_, err := ReachableFrom(b, Position{X: 0, Y: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidStart)

	_, err = ReachableFrom(b, Position{X: 7, Y: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidStart)

	blocked := mapset.New[Position]()
	blocked.Put(Position{X: 1, Y: 1})
	_, err = ReachableFrom(b, Position{X: 1, Y: 1}, blocked)
	assert.ErrorIs(t, err, ErrInvalidStart)
}
