package engine

import (
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReachableStates unions MacroMoves over every box on the board. Per-box
// searches share only the read-only board and run concurrently, bounded by
// GOMAXPROCS. The result is sorted by Key.
func ReachableStates(b Board, mode Mode) ([]Board, error) {
	start := time.Now()
	boxes := b.BoxPositions()
	perBox := make([][]Board, len(boxes))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, box := range boxes {
		g.Go(func() error {
			moves, err := MacroMoves(b, box, mode)
			if err != nil {
				return err
			}
			perBox[i] = moves
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var states []Board
	for _, moves := range perBox {
		for _, m := range moves {
			key := m.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			states = append(states, m)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Key() < states[j].Key() })

	searchDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	searchResults.Observe(float64(len(states)))
	return states, nil
}
