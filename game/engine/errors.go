package engine

import "errors"

var (
	ErrOutOfBounds        = errors.New("position out of bounds")
	ErrInvariantViolation = errors.New("board invariant violated")
	ErrIllegalMove        = errors.New("illegal macro-move")
	ErrInvalidStart       = errors.New("invalid reachability start")
	ErrEpisodeDone        = errors.New("episode is done, reset required")
	ErrNoBoard            = errors.New("environment has no board, reset required")
	ErrLevelNotFound      = errors.New("level not found")
)
