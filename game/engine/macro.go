package engine

import (
	"fmt"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// searchState identifies a node of the macro-move graph. The direction of the
// last move is deliberately not part of it.
type searchState struct {
	box    Position
	player Position
}

// MacroMoves returns every board reachable from b by a chain of one or more
// pushes (Forward) or pulls (Backward) of the box at box, with the player
// walking freely between individual moves without touching any other box.
//
// A push along d needs the player at box-d and a free box+d; the player ends
// on the box's old cell. A pull along d needs the player at box+d and a free
// box+2d; the player steps back to box+2d and the box follows to box+d.
//
// Results are deduplicated by (box, player) and sorted by Key. Chains that
// end with the box back on its original cell are not results.
func MacroMoves(b Board, box Position, mode Mode) ([]Board, error) {
	player, err := b.FindPlayer()
	if err != nil {
		return nil, err
	}
	cell, err := b.CellAt(box)
	if err != nil {
		return nil, err
	}
	if !cell.IsBox() {
		return nil, fmt.Errorf("%w: no box at %v", ErrInvariantViolation, box)
	}

	fixed := b.Fixed()
	others := mapset.New[Position]()
	for _, p := range b.BoxPositions() {
		if p != box {
			others.Put(p)
		}
	}
	free := func(pos Position) bool {
		return b.InBounds(pos) && fixed.at(pos) != Wall && !others.Has(pos)
	}

	start := searchState{box: box, player: player}
	visited := mapset.New[searchState]()
	visited.Put(start)
	queue := []searchState{start}
	var results []Board

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		// Reachability is taken on the board as it stands after the previous
		// move: the moving box blocks its current cell, its origin is free.
		reach, err := ReachableFrom(fixed, current.player, boxSet{others: others, moving: current.box})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}

		for _, d := range Directions {
			var stand, boxTo, playerTo Position
			switch mode {
			case Forward:
				stand, boxTo, playerTo = current.box.Sub(d), current.box.Add(d), current.box
				if !free(boxTo) {
					continue
				}
			case Backward:
				stand, boxTo = current.box.Add(d), current.box.Add(d)
				playerTo = boxTo.Add(d)
				if !free(playerTo) {
					continue
				}
			default:
				return nil, fmt.Errorf("unknown mode %d", mode)
			}
			if !reach.Has(stand) {
				continue
			}

			next := searchState{box: boxTo, player: playerTo}
			if visited.Has(next) {
				continue
			}
			visited.Put(next)
			queue = append(queue, next)

			if next.box != box {
				results = append(results, relocate(b, fixed, box, next.box, player, next.player))
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key() < results[j].Key() })
	return results, nil
}

// relocate builds a full board from orig with one box and the player moved
func relocate(orig, fixed Board, boxFrom, boxTo, playerFrom, playerTo Position) Board {
	nb := orig.clone()
	nb.set(playerFrom, fixed.at(playerFrom))
	nb.set(boxFrom, fixed.at(boxFrom))
	if fixed.at(boxTo) == BoxTarget {
		nb.set(boxTo, BoxOnTarget)
	} else {
		nb.set(boxTo, BoxOffTarget)
	}
	if fixed.at(playerTo) == BoxTarget {
		nb.set(playerTo, PlayerOnTarget)
	} else {
		nb.set(playerTo, Player)
	}
	return nb
}
