package engine

import (
	"fmt"
	"strings"
)

// CellType represents the content of a single grid cell
type CellType uint8

const (
	Wall CellType = iota
	Floor
	BoxTarget
	BoxOnTarget
	BoxOffTarget
	Player
	PlayerOnTarget
)

const (
	// Validation constants
	MinGridSize   = 3
	MaxGridSize   = 50
	MaxStepsLimit = 10000
	MaxHistory    = 100
)

var cellNames = [...]string{
	Wall:           "wall",
	Floor:          "floor",
	BoxTarget:      "box_target",
	BoxOnTarget:    "box_on_target",
	BoxOffTarget:   "box_off_target",
	Player:         "player",
	PlayerOnTarget: "player_on_target",
}

// cellChars is the XSB level alphabet
var cellChars = [...]byte{
	Wall:           '#',
	Floor:          ' ',
	BoxTarget:      '.',
	BoxOnTarget:    '*',
	BoxOffTarget:   '$',
	Player:         '@',
	PlayerOnTarget: '+',
}

func (c CellType) String() string {
	if int(c) < len(cellNames) {
		return cellNames[c]
	}
	return fmt.Sprintf("cell(%d)", uint8(c))
}

// Char returns the XSB character for the cell
func (c CellType) Char() byte {
	if int(c) < len(cellChars) {
		return cellChars[c]
	}
	return '?'
}

// IsBox reports whether a box occupies the cell
func (c CellType) IsBox() bool {
	return c == BoxOnTarget || c == BoxOffTarget
}

// IsPlayer reports whether the player occupies the cell
func (c CellType) IsPlayer() bool {
	return c == Player || c == PlayerOnTarget
}

// IsTarget reports whether the cell is a target, occupied or not
func (c CellType) IsTarget() bool {
	return c == BoxTarget || c == BoxOnTarget || c == PlayerOnTarget
}

// Fixed strips box and player occupancy, leaving Wall, Floor or BoxTarget
func (c CellType) Fixed() CellType {
	switch c {
	case Wall:
		return Wall
	case BoxTarget, BoxOnTarget, PlayerOnTarget:
		return BoxTarget
	default:
		return Floor
	}
}

// ParseCell maps an XSB character to a CellType. '-' and '_' are accepted as floor.
func ParseCell(ch rune) (CellType, error) {
	switch ch {
	case '#':
		return Wall, nil
	case ' ', '-', '_':
		return Floor, nil
	case '.':
		return BoxTarget, nil
	case '*':
		return BoxOnTarget, nil
	case '$':
		return BoxOffTarget, nil
	case '@':
		return Player, nil
	case '+':
		return PlayerOnTarget, nil
	}
	return Wall, fmt.Errorf("invalid cell character %q", ch)
}

// Position represents x,y coordinates (x = column, y = row)
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p moved by d
func (p Position) Add(d Direction) Position {
	return Position{X: p.X + d.DX, Y: p.Y + d.DY}
}

// Sub returns p moved against d
func (p Position) Sub(d Direction) Position {
	return Position{X: p.X - d.DX, Y: p.Y - d.DY}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Direction is a unit step on the grid
type Direction struct {
	Name   string
	DX, DY int
}

var (
	Up    = Direction{Name: "up", DY: -1}
	Down  = Direction{Name: "down", DY: 1}
	Left  = Direction{Name: "left", DX: -1}
	Right = Direction{Name: "right", DX: 1}
)

// Directions lists the four moves in a fixed exploration order
var Directions = []Direction{Up, Down, Left, Right}

// Mode selects pushing (forward) or pulling (backward) play
type Mode uint8

const (
	Forward Mode = iota
	Backward
)

func (m Mode) String() string {
	if m == Backward {
		return "backward"
	}
	return "forward"
}

// ParseMode accepts "forward"/"backward" (case-insensitive); empty means forward
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward", "push":
		return Forward, nil
	case "backward", "pull", "reverse":
		return Backward, nil
	}
	return Forward, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Status is the environment lifecycle state
type Status string

const (
	StatusReady   Status = "ready"
	StatusPlaying Status = "playing"
	StatusDone    Status = "done"
)

// StepInfo reports why an episode ended. It is only populated on Done transitions.
type StepInfo struct {
	MaxStepsUsed        bool `json:"maxsteps_used"`
	AllBoxesOnTarget    bool `json:"all_boxes_on_target"`
	AllBoxesNotOnTarget bool `json:"all_boxes_not_on_target"`
}

// StepResult is the outcome of one macro-move
type StepResult struct {
	Observation Board     `json:"observation"`
	Reward      int       `json:"reward"`
	Done        bool      `json:"done"`
	Info        *StepInfo `json:"info,omitempty"`
}

// MoveHistoryEntry records one macro-move
type MoveHistoryEntry struct {
	ID         string   `json:"id"`
	MoveNumber int      `json:"move_number"`
	BoxFrom    Position `json:"box_from"`
	BoxTo      Position `json:"box_to"`
	PlayerFrom Position `json:"player_from"`
	PlayerTo   Position `json:"player_to"`
	Reward     int      `json:"reward"`
	Timestamp  int64    `json:"timestamp"`
}

// GameState represents the complete, serializable environment state
type GameState struct {
	Board         Board     `json:"board"`
	PlayerPos     Position  `json:"player_pos"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Mode          Mode      `json:"mode"`
	Status        Status    `json:"status"`
	StepsTaken    int       `json:"steps_taken"`
	StepsLimit    int       `json:"steps_limit"`
	NumBoxes      int       `json:"num_boxes"`
	BoxesOnTarget int       `json:"boxes_on_target"`
	LastReward    int       `json:"last_reward"`
	Done          bool      `json:"done"`
	Won           bool      `json:"won"`
	Info          *StepInfo `json:"info,omitempty"`
	Message       string    `json:"message"`
	ConfigName    string    `json:"config_name"`
	LevelID       int       `json:"level_id"`

	MoveHistory []MoveHistoryEntry `json:"move_history"`
	TotalMoves  int                `json:"total_moves"`

	// CurrentMoves tracks only the moves since the last reset. MoveHistory is cumulative.
	CurrentMoves      []MoveHistoryEntry `json:"current_moves"`
	CurrentMovesCount int                `json:"current_moves_count"`
}
