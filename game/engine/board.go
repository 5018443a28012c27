package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Board is an immutable snapshot of the grid. Every method that changes a
// cell returns a new Board; the receiver is never modified.
type Board struct {
	width  int
	height int
	cells  []CellType
}

// NewBoard builds a board from rows of cells. Rows must be non-empty and rectangular.
func NewBoard(rows [][]CellType) (Board, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Board{}, fmt.Errorf("%w: empty board", ErrInvariantViolation)
	}
	width := len(rows[0])
	cells := make([]CellType, 0, width*len(rows))
	for y, row := range rows {
		if len(row) != width {
			return Board{}, fmt.Errorf("%w: row %d has %d cells, expected %d", ErrInvariantViolation, y, len(row), width)
		}
		cells = append(cells, row...)
	}
	return Board{width: width, height: len(rows), cells: cells}, nil
}

// ParseBoard parses XSB rows. Short rows are padded with floor so ragged
// level files load; the widest row sets the width.
func ParseBoard(layout []string) (Board, error) {
	width := 0
	for _, row := range layout {
		if n := len([]rune(row)); n > width {
			width = n
		}
	}
	rows := make([][]CellType, len(layout))
	for y, row := range layout {
		rows[y] = make([]CellType, width)
		for x := range rows[y] {
			rows[y][x] = Floor
		}
		for x, ch := range []rune(row) {
			cell, err := ParseCell(ch)
			if err != nil {
				return Board{}, fmt.Errorf("row %d, col %d: %w", y+1, x+1, err)
			}
			rows[y][x] = cell
		}
	}
	return NewBoard(rows)
}

// Width returns the number of columns
func (b Board) Width() int { return b.width }

// Height returns the number of rows
func (b Board) Height() int { return b.height }

// Dimensions returns width and height
func (b Board) Dimensions() (int, int) { return b.width, b.height }

// IsZero reports whether the board was never initialized
func (b Board) IsZero() bool { return len(b.cells) == 0 }

// InBounds reports whether pos lies on the grid
func (b Board) InBounds(pos Position) bool {
	return pos.X >= 0 && pos.X < b.width && pos.Y >= 0 && pos.Y < b.height
}

// CellAt returns the cell at pos
func (b Board) CellAt(pos Position) (CellType, error) {
	if !b.InBounds(pos) {
		return Wall, fmt.Errorf("%w: %v outside %dx%d", ErrOutOfBounds, pos, b.width, b.height)
	}
	return b.at(pos), nil
}

func (b Board) at(pos Position) CellType {
	return b.cells[pos.Y*b.width+pos.X]
}

// FindPlayer returns the unique player position
func (b Board) FindPlayer() (Position, error) {
	found := 0
	var pos Position
	for i, c := range b.cells {
		if c.IsPlayer() {
			found++
			pos = Position{X: i % b.width, Y: i / b.width}
		}
	}
	if found != 1 {
		return Position{}, fmt.Errorf("%w: expected exactly one player, found %d", ErrInvariantViolation, found)
	}
	return pos, nil
}

// BoxPositions returns every box, in row-major order
func (b Board) BoxPositions() []Position {
	var boxes []Position
	for i, c := range b.cells {
		if c.IsBox() {
			boxes = append(boxes, Position{X: i % b.width, Y: i / b.width})
		}
	}
	return boxes
}

// Count returns how many cells hold the given type
func (b Board) Count(t CellType) int {
	n := 0
	for _, c := range b.cells {
		if c == t {
			n++
		}
	}
	return n
}

// NumBoxes counts boxes on and off targets
func (b Board) NumBoxes() int {
	return b.Count(BoxOnTarget) + b.Count(BoxOffTarget)
}

// NumTargets counts target cells, occupied or not
func (b Board) NumTargets() int {
	return b.Count(BoxTarget) + b.Count(BoxOnTarget) + b.Count(PlayerOnTarget)
}

// WithCellSet returns a copy of the board with one cell replaced
func (b Board) WithCellSet(pos Position, t CellType) (Board, error) {
	if !b.InBounds(pos) {
		return Board{}, fmt.Errorf("%w: %v outside %dx%d", ErrOutOfBounds, pos, b.width, b.height)
	}
	nb := b.clone()
	nb.cells[pos.Y*b.width+pos.X] = t
	return nb, nil
}

// Fixed returns the fixed layout: walls, targets and floor with every box and
// the player stripped.
func (b Board) Fixed() Board {
	nb := b.clone()
	for i, c := range nb.cells {
		nb.cells[i] = c.Fixed()
	}
	return nb
}

// Equal compares dimensions and every cell
func (b Board) Equal(other Board) bool {
	if b.width != other.width || b.height != other.height || len(b.cells) != len(other.cells) {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// Key is a compact identity usable as a map key. Boards of equal dimensions
// have equal keys iff they are Equal.
func (b Board) Key() string {
	var sb strings.Builder
	sb.Grow(len(b.cells) + 8)
	fmt.Fprintf(&sb, "%dx%d:", b.width, b.height)
	for _, c := range b.cells {
		sb.WriteByte(c.Char())
	}
	return sb.String()
}

// Rows renders the board as XSB rows
func (b Board) Rows() []string {
	rows := make([]string, b.height)
	line := make([]byte, b.width)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			line[x] = b.cells[y*b.width+x].Char()
		}
		rows[y] = string(line)
	}
	return rows
}

func (b Board) String() string {
	return strings.Join(b.Rows(), "\n")
}

// MarshalJSON encodes the board as its XSB rows
func (b Board) MarshalJSON() ([]byte, error) {
	if b.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(b.Rows())
}

// UnmarshalJSON decodes XSB rows
func (b *Board) UnmarshalJSON(data []byte) error {
	var rows []string
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if rows == nil {
		*b = Board{}
		return nil
	}
	parsed, err := ParseBoard(rows)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b Board) clone() Board {
	cells := make([]CellType, len(b.cells))
	copy(cells, b.cells)
	return Board{width: b.width, height: b.height, cells: cells}
}

// set mutates an owned scratch copy; callers must have cloned first
func (b Board) set(pos Position, t CellType) {
	b.cells[pos.Y*b.width+pos.X] = t
}

// ParamsFromBoard derives the environment parameters a board implies
func ParamsFromBoard(b Board) (width, height, numBoxes int) {
	return b.width, b.height, b.NumBoxes()
}
