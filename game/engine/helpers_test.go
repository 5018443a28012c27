package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// twoCorridors has two boxes, each in its own corridor ending on a target.
var twoCorridors = []string{
	"######",
	"#@$ .#",
	"# ####",
	"# $ .#",
	"######",
	"######",
}

// openRoom is a 3x3 interior with a single box in the centre.
var openRoom = []string{
	"#####",
	"#@  #",
	"# $ #",
	"#  .#",
	"#####",
}

func mustParse(t *testing.T, layout ...string) Board {
	t.Helper()
	b, err := ParseBoard(layout)
	require.NoError(t, err)
	return b
}

func newTestEnv(t *testing.T, mode Mode, maxSteps int, layout []string) *MacroEnvironment {
	t.Helper()
	b := mustParse(t, layout...)
	width, height, numBoxes := ParamsFromBoard(b)
	env, err := NewEnvironment(Options{
		Mode:     mode,
		MaxSteps: maxSteps,
		Width:    width,
		Height:   height,
		NumBoxes: numBoxes,
	}, NewStaticSource(b))
	require.NoError(t, err)
	_, err = env.Reset(t.Context())
	require.NoError(t, err)
	return env
}

// findState returns the candidate whose moved box lies at box and whose
// player lies at player.
func findState(t *testing.T, states []Board, box, player Position) Board {
	t.Helper()
	for _, s := range states {
		c, err := s.CellAt(box)
		require.NoError(t, err)
		p, err := s.FindPlayer()
		require.NoError(t, err)
		if c.IsBox() && p == player {
			return s
		}
	}
	t.Fatalf("no state with box at %v and player at %v", box, player)
	return Board{}
}
