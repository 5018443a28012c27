package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvironmentValidation(t *testing.T) {
	src := NewStaticSource(mustParse(t, openRoom...))

	_, err := NewEnvironment(Options{MaxSteps: 0}, src)
	assert.Error(t, err)
	_, err = NewEnvironment(Options{MaxSteps: MaxStepsLimit + 1}, src)
	assert.Error(t, err)
	_, err = NewEnvironment(Options{MaxSteps: 10}, nil)
	assert.Error(t, err)
	_, err = NewEnvironment(Options{MaxSteps: 10, Mode: Mode(7)}, src)
	assert.Error(t, err)
}

func TestStepBeforeReset(t *testing.T) {
	env, err := NewEnvironment(Options{MaxSteps: 10}, NewStaticSource(mustParse(t, openRoom...)))
	require.NoError(t, err)

	_, err = env.Step(mustParse(t, openRoom...))
	assert.ErrorIs(t, err, ErrNoBoard)
	_, err = env.ReachableStates()
	assert.ErrorIs(t, err, ErrNoBoard)
}

func TestResetForward(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)
	assert.Equal(t, twoCorridors, env.Board().Rows())
	assert.Equal(t, StatusReady, env.Status())
	assert.Equal(t, 0, env.StepsTaken())
	assert.Equal(t, 0, env.BoxesOnTarget())
	assert.False(t, env.Done())

	states, err := env.ReachableStates()
	require.NoError(t, err)
	assert.Len(t, states, 4)
}

func TestResetBackwardFillsTargets(t *testing.T) {
	env := newTestEnv(t, Backward, 10, twoCorridors)
	assert.Equal(t, []string{
		"######",
		"#@  *#",
		"# ####",
		"#   *#",
		"######",
		"######",
	}, env.Board().Rows())
	assert.Equal(t, 2, env.BoxesOnTarget())
	assert.False(t, env.Won())

	states, err := env.ReachableStates()
	require.NoError(t, err)
	assert.Len(t, states, 4)
}

func TestResetBackwardPlayerOnTarget(t *testing.T) {
	b := mustParse(t,
		"#######",
		"#+$ $.#",
		"#######",
	)
	env, err := NewEnvironment(Options{Mode: Backward, MaxSteps: 10}, NewStaticSource(b))
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.True(t, env.Board().IsZero())
}

func TestResetRejectsMismatchedBoard(t *testing.T) {
	env, err := NewEnvironment(Options{Mode: Forward, MaxSteps: 10, Width: 7, Height: 7, NumBoxes: 1},
		NewStaticSource(mustParse(t, openRoom...)))
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	assert.ErrorIs(t, err, ErrInvariantViolation)

	env, err = NewEnvironment(Options{Mode: Forward, MaxSteps: 10},
		NewStaticSource(mustParse(t, "#####", "#@$$#", "#..##", "#####")))
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	assert.NoError(t, err)

	env, err = NewEnvironment(Options{Mode: Forward, MaxSteps: 10},
		NewStaticSource(mustParse(t, "#####", "#@$$#", "#. ##", "#####")))
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

type failingSource struct{ err error }

func (s failingSource) Board(ctx context.Context) (Board, error) { return Board{}, s.err }

// sequenceSource hands out its boards in order, repeating the last one
type sequenceSource struct {
	boards []Board
	next   int
}

func (s *sequenceSource) Board(ctx context.Context) (Board, error) {
	b := s.boards[s.next]
	if s.next < len(s.boards)-1 {
		s.next++
	}
	return b, nil
}

func TestResetAdoptsFirstBoardSize(t *testing.T) {
	small := mustParse(t, "#####", "#@$.#", "#####")
	large := mustParse(t,
		"#######",
		"#@$ $ #",
		"#  . .#",
		"#######",
	)
	env, err := NewEnvironment(Options{Mode: Forward, MaxSteps: 5}, &sequenceSource{boards: []Board{small, large}})
	require.NoError(t, err)

	_, err = env.Reset(t.Context())
	require.NoError(t, err)
	state := env.State()
	assert.Equal(t, 5, state.Width)
	assert.Equal(t, 3, state.Height)
	assert.Equal(t, 1, state.NumBoxes)

	_, err = env.Reset(t.Context())
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.True(t, env.Board().Equal(small), "a rejected board leaves the current one in place")

	assert.ErrorIs(t, env.Load(large), ErrInvariantViolation)
	require.NoError(t, env.Load(small))
}

func TestResetSourceError(t *testing.T) {
	boom := errors.New("generator exhausted")
	env, err := NewEnvironment(Options{MaxSteps: 10}, failingSource{err: boom})
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	assert.ErrorIs(t, err, boom)
}

func TestForwardWinPath(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)

	states, err := env.ReachableStates()
	require.NoError(t, err)
	result, err := env.Step(findState(t, states, Position{X: 4, Y: 1}, Position{X: 3, Y: 1}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reward)
	assert.False(t, result.Done)
	assert.Nil(t, result.Info)
	assert.Equal(t, StatusPlaying, env.Status())
	assert.Equal(t, 1, env.BoxesOnTarget())

	states, err = env.ReachableStates()
	require.NoError(t, err)
	result, err = env.Step(findState(t, states, Position{X: 4, Y: 3}, Position{X: 3, Y: 3}))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reward)
	assert.True(t, result.Done)
	require.NotNil(t, result.Info)
	assert.True(t, result.Info.AllBoxesOnTarget)
	assert.False(t, result.Info.AllBoxesNotOnTarget)
	assert.False(t, result.Info.MaxStepsUsed)
	assert.True(t, env.Won())
	assert.Equal(t, StatusDone, env.Status())

	_, err = env.Step(result.Observation)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestBackwardWinPath(t *testing.T) {
	env := newTestEnv(t, Backward, 10, twoCorridors)

	states, err := env.ReachableStates()
	require.NoError(t, err)
	result, err := env.Step(findState(t, states, Position{X: 3, Y: 1}, Position{X: 2, Y: 1}))
	require.NoError(t, err)
	assert.False(t, result.Done)

	states, err = env.ReachableStates()
	require.NoError(t, err)
	result, err = env.Step(findState(t, states, Position{X: 3, Y: 3}, Position{X: 2, Y: 3}))
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 1, result.Reward)
	assert.True(t, result.Info.AllBoxesNotOnTarget)
}

func TestStepLimit(t *testing.T) {
	env := newTestEnv(t, Forward, 1, twoCorridors)
	states, err := env.ReachableStates()
	require.NoError(t, err)

	result, err := env.Step(findState(t, states, Position{X: 3, Y: 1}, Position{X: 2, Y: 1}))
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 0, result.Reward)
	require.NotNil(t, result.Info)
	assert.True(t, result.Info.MaxStepsUsed)
	assert.False(t, result.Info.AllBoxesOnTarget)
	assert.False(t, env.Won())
}

func TestCacheInvalidatedAfterStep(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)
	before, err := env.ReachableStates()
	require.NoError(t, err)
	stale := findState(t, before, Position{X: 3, Y: 1}, Position{X: 2, Y: 1})

	_, err = env.Step(findState(t, before, Position{X: 4, Y: 1}, Position{X: 3, Y: 1}))
	require.NoError(t, err)

	after, err := env.ReachableStates()
	require.NoError(t, err)
	assert.Len(t, after, 2)
	for _, s := range after {
		c, _ := s.CellAt(Position{X: 3, Y: 1})
		assert.False(t, c.IsBox())
	}

	_, err = env.Step(stale)
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestIllegalStepLeavesStateUnchanged(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)
	before := env.State()

	// current board is not one macro-move away from itself
	_, err := env.Step(env.Board())
	assert.ErrorIs(t, err, ErrIllegalMove)

	// different walls
	_, err = env.Step(mustParse(t,
		"######",
		"#@$ .#",
		"######",
		"# $ .#",
		"######",
		"######",
	))
	assert.ErrorIs(t, err, ErrInvariantViolation)

	// wrong dimensions
	_, err = env.Step(mustParse(t, openRoom...))
	assert.ErrorIs(t, err, ErrInvariantViolation)

	after := env.State()
	assert.True(t, before.Board.Equal(after.Board))
	assert.Equal(t, before.StepsTaken, after.StepsTaken)
	assert.Empty(t, after.MoveHistory)
}

func TestNoBoxesForwardIsImmediateWin(t *testing.T) {
	env := newTestEnv(t, Forward, 5, []string{"###", "#@#", "###"})
	assert.True(t, env.Won())
	assert.True(t, env.Done())

	env = newTestEnv(t, Backward, 5, []string{"###", "#@#", "###"})
	assert.False(t, env.Won())
	assert.False(t, env.Done())
	states, err := env.ReachableStates()
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestIsWon(t *testing.T) {
	start := mustParse(t, "#####", "#@$.#", "#####")
	solved := mustParse(t, "#####", "# @*#", "#####")
	empty := mustParse(t, "###", "#@#", "###")

	assert.False(t, IsWon(start, Forward))
	assert.True(t, IsWon(start, Backward))
	assert.True(t, IsWon(solved, Forward))
	assert.False(t, IsWon(solved, Backward))
	assert.True(t, IsWon(empty, Forward))
	assert.False(t, IsWon(empty, Backward))
}

func TestHistoryAcrossResets(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)
	states, err := env.ReachableStates()
	require.NoError(t, err)
	_, err = env.Step(findState(t, states, Position{X: 3, Y: 1}, Position{X: 2, Y: 1}))
	require.NoError(t, err)

	state := env.State()
	require.Len(t, state.MoveHistory, 1)
	entry := state.MoveHistory[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 1, entry.MoveNumber)
	assert.Equal(t, Position{X: 2, Y: 1}, entry.BoxFrom)
	assert.Equal(t, Position{X: 3, Y: 1}, entry.BoxTo)
	assert.Equal(t, Position{X: 1, Y: 1}, entry.PlayerFrom)
	assert.Equal(t, Position{X: 2, Y: 1}, entry.PlayerTo)

	_, err = env.Reset(t.Context())
	require.NoError(t, err)
	state = env.State()
	assert.Equal(t, 1, state.TotalMoves)
	assert.Equal(t, 0, state.CurrentMovesCount)
	assert.Equal(t, 0, state.StepsTaken)
}

func TestSnapshotRestore(t *testing.T) {
	env := newTestEnv(t, Forward, 10, twoCorridors)
	states, err := env.ReachableStates()
	require.NoError(t, err)
	_, err = env.Step(findState(t, states, Position{X: 4, Y: 1}, Position{X: 3, Y: 1}))
	require.NoError(t, err)
	snapshot := env.State()

	fresh := newTestEnv(t, Forward, 10, twoCorridors)
	require.NoError(t, fresh.Restore(snapshot))
	assert.True(t, fresh.Board().Equal(env.Board()))
	assert.Equal(t, 1, fresh.StepsTaken())
	assert.Equal(t, 1, fresh.BoxesOnTarget())
	assert.Len(t, fresh.GetMoveHistory(), 1)

	restored, err := fresh.ReachableStates()
	require.NoError(t, err)
	assert.Len(t, restored, 2)

	other := newTestEnv(t, Forward, 10, openRoom)
	assert.ErrorIs(t, other.Restore(snapshot), ErrInvariantViolation)

	backward := newTestEnv(t, Backward, 10, twoCorridors)
	assert.ErrorIs(t, backward.Restore(snapshot), ErrInvariantViolation)
}

func TestLoadSkipsBackwardRewrite(t *testing.T) {
	env, err := NewEnvironment(Options{Mode: Backward, MaxSteps: 10}, NewStaticSource(mustParse(t, openRoom...)))
	require.NoError(t, err)
	require.NoError(t, env.Load(mustParse(t, openRoom...)))
	assert.Equal(t, openRoom, env.Board().Rows())
}

func TestDisplacement(t *testing.T) {
	a := mustParse(t, twoCorridors...)
	_, _, err := Displacement(a, a)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}
