package engine

// StateCache memoizes the reachable states of the owning environment's
// current board. Every board replacement must call Invalidate; there is no
// equality check against the board on lookup.
type StateCache struct {
	version  uint64
	computed uint64
	valid    bool
	states   []Board
	index    map[string]int
}

// Invalidate drops the memoized set and bumps the version
func (c *StateCache) Invalidate() {
	c.version++
	c.valid = false
	c.states = nil
	c.index = nil
}

// Version increments on every Invalidate
func (c *StateCache) Version() uint64 {
	return c.version
}

// GetOrCompute returns the memoized set, computing it with compute on a miss.
// The returned slice is a copy; the boards themselves are immutable.
func (c *StateCache) GetOrCompute(b Board, compute func(Board) ([]Board, error)) ([]Board, error) {
	if c.valid && c.computed == c.version {
		cacheLookups.WithLabelValues("hit").Inc()
		return append([]Board(nil), c.states...), nil
	}
	cacheLookups.WithLabelValues("miss").Inc()

	states, err := compute(b)
	if err != nil {
		return nil, err
	}
	c.states = states
	c.index = make(map[string]int, len(states))
	for i, s := range states {
		c.index[s.Key()] = i
	}
	c.computed = c.version
	c.valid = true
	return append([]Board(nil), states...), nil
}

// Lookup returns the index of candidate in the memoized set. ok is false when
// the set is not computed or candidate is not a member.
func (c *StateCache) Lookup(candidate Board) (int, bool) {
	if !c.valid || c.computed != c.version {
		return 0, false
	}
	i, ok := c.index[candidate.Key()]
	return i, ok
}
