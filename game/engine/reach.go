package engine

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"
)

// Blocker reports cells the player may not enter besides walls.
// mapset.Set[Position] satisfies it.
type Blocker interface {
	Has(pos Position) bool
}

// ReachableFrom returns the 4-connected set of cells the player can walk to
// from start. Walls and off-grid cells are always impassable; blocked adds
// further obstacles (normally boxes).
func ReachableFrom(b Board, start Position, blocked Blocker) (mapset.Set[Position], error) {
	if !b.InBounds(start) {
		return mapset.Set[Position]{}, fmt.Errorf("%w: %v outside %dx%d", ErrInvalidStart, start, b.width, b.height)
	}
	if !walkable(b, start, blocked) {
		return mapset.Set[Position]{}, fmt.Errorf("%w: %v is blocked", ErrInvalidStart, start)
	}

	seen := mapset.New[Position]()
	seen.Put(start)
	queue := []Position{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, d := range Directions {
			next := current.Add(d)
			if seen.Has(next) || !walkable(b, next, blocked) {
				continue
			}
			seen.Put(next)
			queue = append(queue, next)
		}
	}
	return seen, nil
}

func walkable(b Board, pos Position, blocked Blocker) bool {
	if !b.InBounds(pos) || b.at(pos) == Wall {
		return false
	}
	return blocked == nil || !blocked.Has(pos)
}

// boxSet blocks a fixed set of boxes plus the box being moved at its current cell
type boxSet struct {
	others mapset.Set[Position]
	moving Position
}

func (s boxSet) Has(pos Position) bool {
	return pos == s.moving || s.others.Has(pos)
}
