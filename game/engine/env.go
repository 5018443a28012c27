package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Environment is the contract the service layer plays against
type Environment interface {
	// Episode lifecycle
	Reset(ctx context.Context) (Board, error)
	Load(b Board) error
	Step(candidate Board) (StepResult, error)
	ReachableStates() ([]Board, error)

	// State
	Board() Board
	Mode() Mode
	Status() Status
	Done() bool
	Won() bool
	State() *GameState
	Restore(state *GameState) error

	// History
	GetMoveHistory() []MoveHistoryEntry
}

var _ Environment = (*MacroEnvironment)(nil)

// Options configures a MacroEnvironment. A zero Width/Height adopts the
// dimensions and box count of the first board the source delivers.
type Options struct {
	Mode     Mode
	MaxSteps int
	Width    int
	Height   int
	NumBoxes int
}

// MacroEnvironment is the macro-move game state machine. One step displaces
// exactly one box by a chain of pushes (Forward) or pulls (Backward).
//
// It is not safe for concurrent use; callers serialize access.
type MacroEnvironment struct {
	opts   Options
	source BoardSource

	board         Board
	fixed         Board
	player        Position
	numBoxes      int
	stepsTaken    int
	boxesOnTarget int
	lastReward    int
	done          bool
	won           bool
	info          *StepInfo
	message       string

	cache StateCache

	configName string
	levelID    int

	history []MoveHistoryEntry
	current []MoveHistoryEntry
}

// NewEnvironment creates an environment. Call Reset (or Load) before playing.
func NewEnvironment(opts Options, source BoardSource) (*MacroEnvironment, error) {
	if opts.MaxSteps < 1 || opts.MaxSteps > MaxStepsLimit {
		return nil, fmt.Errorf("max steps must be between 1 and %d, got %d", MaxStepsLimit, opts.MaxSteps)
	}
	if opts.Mode != Forward && opts.Mode != Backward {
		return nil, fmt.Errorf("unknown mode %d", opts.Mode)
	}
	if source == nil {
		return nil, fmt.Errorf("board source is required")
	}
	if opts.Width < 0 || opts.Height < 0 || opts.NumBoxes < 0 {
		return nil, fmt.Errorf("dimensions and box count must not be negative")
	}
	return &MacroEnvironment{
		opts:       opts,
		source:     source,
		numBoxes:   opts.NumBoxes,
		history:    []MoveHistoryEntry{},
		current:    []MoveHistoryEntry{},
		levelID:    -1,
		configName: "",
	}, nil
}

// SetLabels records which dataset and level the environment plays
func (e *MacroEnvironment) SetLabels(configName string, levelID int) {
	e.configName = configName
	e.levelID = levelID
}

// Reset draws a board from the source and restarts the episode. In backward
// mode every target is filled with a box and every off-target box removed.
// On error the environment is unchanged.
func (e *MacroEnvironment) Reset(ctx context.Context) (Board, error) {
	b, err := e.source.Board(ctx)
	if err != nil {
		return Board{}, err
	}
	if err := e.checkBoard(b); err != nil {
		return Board{}, err
	}
	if e.opts.Mode == Backward {
		if b, err = fillTargets(b); err != nil {
			return Board{}, err
		}
	}
	e.install(b)
	e.message = fmt.Sprintf("Level reset (%s mode)", e.opts.Mode)
	return e.board, nil
}

// Load installs b as the starting board without consulting the source and
// without the backward rewrite.
func (e *MacroEnvironment) Load(b Board) error {
	if err := e.checkBoard(b); err != nil {
		return err
	}
	e.install(b)
	e.message = "Board loaded"
	return nil
}

// fillTargets places a box on every target and clears off-target boxes
func fillTargets(b Board) (Board, error) {
	nb := b.clone()
	for i, c := range nb.cells {
		switch c {
		case BoxTarget:
			nb.cells[i] = BoxOnTarget
		case BoxOffTarget:
			nb.cells[i] = Floor
		case PlayerOnTarget:
			return Board{}, fmt.Errorf("%w: player stands on a target, cannot fill every target", ErrInvariantViolation)
		}
	}
	return nb, nil
}

// checkBoard validates a starting board against the configured parameters
func (e *MacroEnvironment) checkBoard(b Board) error {
	if b.IsZero() {
		return fmt.Errorf("%w: empty board", ErrInvariantViolation)
	}
	if e.opts.Width != 0 || e.opts.Height != 0 {
		if b.width != e.opts.Width || b.height != e.opts.Height {
			return fmt.Errorf("%w: board is %dx%d, environment expects %dx%d",
				ErrInvariantViolation, b.width, b.height, e.opts.Width, e.opts.Height)
		}
		if b.NumBoxes() != e.opts.NumBoxes {
			return fmt.Errorf("%w: board has %d boxes, environment expects %d",
				ErrInvariantViolation, b.NumBoxes(), e.opts.NumBoxes)
		}
	}
	if _, err := b.FindPlayer(); err != nil {
		return err
	}
	if b.NumBoxes() != b.NumTargets() {
		return fmt.Errorf("%w: %d boxes but %d targets", ErrInvariantViolation, b.NumBoxes(), b.NumTargets())
	}
	return nil
}

func (e *MacroEnvironment) install(b Board) {
	if e.opts.Width == 0 && e.opts.Height == 0 {
		// fixed from here on; checkBoard holds later boards to them
		e.opts.Width, e.opts.Height, e.opts.NumBoxes = ParamsFromBoard(b)
	}
	e.board = b
	e.fixed = b.Fixed()
	e.player, _ = b.FindPlayer()
	e.numBoxes = b.NumBoxes()
	e.boxesOnTarget = b.Count(BoxOnTarget)
	e.stepsTaken = 0
	e.lastReward = 0
	e.current = []MoveHistoryEntry{}
	e.cache.Invalidate()

	e.won = e.checkWon()
	e.done = e.won
	e.info = nil
	if e.done {
		e.info = e.doneInfo()
	}
}

// Step replaces the board with candidate, which must be one of the boards
// ReachableStates returns for the current board. On error nothing changes.
func (e *MacroEnvironment) Step(candidate Board) (StepResult, error) {
	if e.board.IsZero() {
		return StepResult{}, ErrNoBoard
	}
	if e.done {
		return StepResult{}, ErrEpisodeDone
	}
	if err := e.checkCandidate(candidate); err != nil {
		stepsTotal.WithLabelValues(e.opts.Mode.String(), "invalid").Inc()
		return StepResult{}, err
	}
	if _, err := e.ReachableStates(); err != nil {
		return StepResult{}, err
	}
	if _, ok := e.cache.Lookup(candidate); !ok {
		stepsTotal.WithLabelValues(e.opts.Mode.String(), "illegal").Inc()
		return StepResult{}, fmt.Errorf("%w: candidate is not reachable by one macro-move", ErrIllegalMove)
	}
	boxFrom, boxTo, err := Displacement(e.board, candidate)
	if err != nil {
		return StepResult{}, err
	}

	playerFrom := e.player
	e.stepsTaken++
	e.board = candidate
	e.player, _ = candidate.FindPlayer()
	e.cache.Invalidate()
	e.boxesOnTarget = candidate.Count(BoxOnTarget)

	e.won = e.checkWon()
	e.done = e.won || e.stepsTaken >= e.opts.MaxSteps
	e.info = nil
	if e.done {
		e.info = e.doneInfo()
	}
	e.lastReward = 0
	if e.won {
		e.lastReward = 1
	}

	switch {
	case e.won:
		e.message = fmt.Sprintf("Solved in %d macro-moves!", e.stepsTaken)
	case e.done:
		e.message = fmt.Sprintf("Step limit of %d reached", e.opts.MaxSteps)
	default:
		e.message = fmt.Sprintf("Box moved %v -> %v", boxFrom, boxTo)
	}

	e.record(boxFrom, boxTo, playerFrom, e.player)
	stepsTotal.WithLabelValues(e.opts.Mode.String(), "ok").Inc()

	return StepResult{
		Observation: e.board,
		Reward:      e.lastReward,
		Done:        e.done,
		Info:        e.info,
	}, nil
}

// checkCandidate rejects boards that could not come from this episode
func (e *MacroEnvironment) checkCandidate(candidate Board) error {
	if candidate.width != e.board.width || candidate.height != e.board.height {
		return fmt.Errorf("%w: candidate is %dx%d, board is %dx%d",
			ErrInvariantViolation, candidate.width, candidate.height, e.board.width, e.board.height)
	}
	if _, err := candidate.FindPlayer(); err != nil {
		return err
	}
	if candidate.NumBoxes() != e.numBoxes {
		return fmt.Errorf("%w: candidate has %d boxes, expected %d", ErrInvariantViolation, candidate.NumBoxes(), e.numBoxes)
	}
	if !candidate.Fixed().Equal(e.fixed) {
		return fmt.Errorf("%w: candidate walls or targets differ from the level", ErrInvariantViolation)
	}
	return nil
}

// ReachableStates returns every board one macro-move away, memoized until
// the board changes.
func (e *MacroEnvironment) ReachableStates() ([]Board, error) {
	if e.board.IsZero() {
		return nil, ErrNoBoard
	}
	return e.cache.GetOrCompute(e.board, func(b Board) ([]Board, error) {
		return ReachableStates(b, e.opts.Mode)
	})
}

// IsWon reports whether b is a winning board in mode. Forward wins once no
// box is off target; backward wins once every box has left the targets.
// A board without boxes is won forward and never won backward.
func IsWon(b Board, mode Mode) bool {
	if mode == Forward {
		return b.Count(BoxOffTarget) == 0
	}
	return b.NumBoxes() > 0 && b.Count(BoxOnTarget) == 0
}

func (e *MacroEnvironment) checkWon() bool {
	return IsWon(e.board, e.opts.Mode)
}

func (e *MacroEnvironment) doneInfo() *StepInfo {
	return &StepInfo{
		MaxStepsUsed:        e.stepsTaken >= e.opts.MaxSteps,
		AllBoxesOnTarget:    IsWon(e.board, Forward),
		AllBoxesNotOnTarget: e.board.Count(BoxOnTarget) == 0,
	}
}

func (e *MacroEnvironment) record(boxFrom, boxTo, playerFrom, playerTo Position) {
	entry := MoveHistoryEntry{
		ID:         uuid.NewString(),
		MoveNumber: len(e.history) + 1,
		BoxFrom:    boxFrom,
		BoxTo:      boxTo,
		PlayerFrom: playerFrom,
		PlayerTo:   playerTo,
		Reward:     e.lastReward,
		Timestamp:  time.Now().Unix(),
	}
	e.history = append(e.history, entry)
	e.current = append(e.current, entry)
}

// Displacement returns where the single moved box came from and went to
func Displacement(before, after Board) (Position, Position, error) {
	was := before.BoxPositions()
	now := after.BoxPositions()
	inNow := make(map[Position]bool, len(now))
	for _, p := range now {
		inNow[p] = true
	}
	inWas := make(map[Position]bool, len(was))
	for _, p := range was {
		inWas[p] = true
	}

	var from, to []Position
	for _, p := range was {
		if !inNow[p] {
			from = append(from, p)
		}
	}
	for _, p := range now {
		if !inWas[p] {
			to = append(to, p)
		}
	}
	if len(from) != 1 || len(to) != 1 {
		return Position{}, Position{}, fmt.Errorf("%w: expected exactly one displaced box, got %d -> %d",
			ErrInvariantViolation, len(from), len(to))
	}
	return from[0], to[0], nil
}

// Board returns the current board
func (e *MacroEnvironment) Board() Board { return e.board }

// Mode returns the play mode
func (e *MacroEnvironment) Mode() Mode { return e.opts.Mode }

// StepsTaken returns the macro-moves since the last reset
func (e *MacroEnvironment) StepsTaken() int { return e.stepsTaken }

// StepsLimit returns the episode length limit
func (e *MacroEnvironment) StepsLimit() int { return e.opts.MaxSteps }

// NumBoxes returns the box count of the level
func (e *MacroEnvironment) NumBoxes() int { return e.numBoxes }

// BoxesOnTarget returns the boxes currently on targets
func (e *MacroEnvironment) BoxesOnTarget() int { return e.boxesOnTarget }

// Done reports whether the episode has ended
func (e *MacroEnvironment) Done() bool { return e.done }

// Won reports whether the current board is a win for the mode
func (e *MacroEnvironment) Won() bool { return e.won }

// Status reports the lifecycle state
func (e *MacroEnvironment) Status() Status {
	switch {
	case e.done:
		return StatusDone
	case e.stepsTaken == 0:
		return StatusReady
	default:
		return StatusPlaying
	}
}

// GetMoveHistory returns the cumulative step history
func (e *MacroEnvironment) GetMoveHistory() []MoveHistoryEntry {
	return e.history
}

// State returns a serializable snapshot of the environment
func (e *MacroEnvironment) State() *GameState {
	width, height := e.board.Dimensions()
	return &GameState{
		Board:             e.board,
		PlayerPos:         e.player,
		Width:             width,
		Height:            height,
		Mode:              e.opts.Mode,
		Status:            e.Status(),
		StepsTaken:        e.stepsTaken,
		StepsLimit:        e.opts.MaxSteps,
		NumBoxes:          e.numBoxes,
		BoxesOnTarget:     e.boxesOnTarget,
		LastReward:        e.lastReward,
		Done:              e.done,
		Won:               e.won,
		Info:              e.info,
		Message:           e.message,
		ConfigName:        e.configName,
		LevelID:           e.levelID,
		MoveHistory:       append([]MoveHistoryEntry(nil), e.history...),
		TotalMoves:        len(e.history),
		CurrentMoves:      append([]MoveHistoryEntry(nil), e.current...),
		CurrentMovesCount: len(e.current),
	}
}

// Restore reinstates a snapshot taken with State. The snapshot's board must
// belong to the level currently loaded (same walls and targets).
func (e *MacroEnvironment) Restore(state *GameState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if e.board.IsZero() {
		return ErrNoBoard
	}
	if state.Mode != e.opts.Mode {
		return fmt.Errorf("%w: snapshot mode %s, environment mode %s", ErrInvariantViolation, state.Mode, e.opts.Mode)
	}
	if state.StepsTaken < 0 || state.StepsTaken > e.opts.MaxSteps {
		return fmt.Errorf("%w: snapshot has %d steps, limit is %d", ErrInvariantViolation, state.StepsTaken, e.opts.MaxSteps)
	}
	if err := e.checkCandidate(state.Board); err != nil {
		return err
	}

	e.board = state.Board
	e.player, _ = state.Board.FindPlayer()
	e.boxesOnTarget = state.Board.Count(BoxOnTarget)
	e.stepsTaken = state.StepsTaken
	e.cache.Invalidate()
	e.won = e.checkWon()
	e.done = e.won || e.stepsTaken >= e.opts.MaxSteps
	e.info = nil
	if e.done {
		e.info = e.doneInfo()
	}
	e.lastReward = 0
	if e.won && e.stepsTaken > 0 {
		e.lastReward = 1
	}
	e.message = state.Message
	e.history = append([]MoveHistoryEntry{}, state.MoveHistory...)
	e.current = append([]MoveHistoryEntry{}, state.CurrentMoves...)
	return nil
}
