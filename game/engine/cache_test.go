package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCacheMemoizes(t *testing.T) {
	var cache StateCache
	b := mustParse(t, twoCorridors...)
	calls := 0
	compute := func(b Board) ([]Board, error) {
		calls++
		return ReachableStates(b, Forward)
	}

	first, err := cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, second, len(first))

	idx, ok := cache.Lookup(first[2])
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = cache.Lookup(b)
	assert.False(t, ok)
}

func TestStateCacheInvalidate(t *testing.T) {
	var cache StateCache
	b := mustParse(t, twoCorridors...)
	calls := 0
	compute := func(b Board) ([]Board, error) {
		calls++
		return ReachableStates(b, Forward)
	}

	states, err := cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	v := cache.Version()

	cache.Invalidate()
	assert.Greater(t, cache.Version(), v)
	_, ok := cache.Lookup(states[0])
	assert.False(t, ok, "lookup after invalidate must miss")

	_, err = cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestStateCacheErrorIsNotMemoized(t *testing.T) {
	var cache StateCache
	boom := errors.New("boom")
	_, err := cache.GetOrCompute(Board{}, func(Board) ([]Board, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	states, err := cache.GetOrCompute(Board{}, func(Board) ([]Board, error) { return []Board{}, nil })
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestStateCacheReturnsCopy(t *testing.T) {
	var cache StateCache
	b := mustParse(t, twoCorridors...)
	compute := func(b Board) ([]Board, error) { return ReachableStates(b, Forward) }

	states, err := cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	states[0] = Board{}

	again, err := cache.GetOrCompute(b, compute)
	require.NoError(t, err)
	assert.False(t, again[0].IsZero())
}
