package engine

import (
	"context"
	"fmt"
	"strings"
)

// BoardSource supplies the starting board on every reset
type BoardSource interface {
	Board(ctx context.Context) (Board, error)
}

// Generator produces a fresh random board. Generation itself lives outside
// this package; the environment only consumes the result.
type Generator interface {
	Generate(ctx context.Context, width, height, numBoxes, budget int) (Board, error)
}

// StaticSource always returns the same externally supplied board
type StaticSource struct {
	board Board
}

// NewStaticSource wraps a board
func NewStaticSource(b Board) *StaticSource {
	return &StaticSource{board: b}
}

func (s *StaticSource) Board(ctx context.Context) (Board, error) {
	if s.board.IsZero() {
		return Board{}, fmt.Errorf("%w: static source has no board", ErrNoBoard)
	}
	return s.board, nil
}

// GeneratedSource asks a Generator for a new board on each reset
type GeneratedSource struct {
	Generator Generator
	Width     int
	Height    int
	NumBoxes  int
	Budget    int
}

func (s *GeneratedSource) Board(ctx context.Context) (Board, error) {
	if s.Generator == nil {
		return Board{}, fmt.Errorf("generated source: no generator configured")
	}
	b, err := s.Generator.Generate(ctx, s.Width, s.Height, s.NumBoxes, s.Budget)
	if err != nil {
		return Board{}, fmt.Errorf("generate board: %w", err)
	}
	return b, nil
}

// LevelLoader resolves a (dataset, level) pair to a configuration.
// The config manager satisfies it.
type LevelLoader interface {
	LoadConfig(name string) (*GameConfig, error)
}

// LevelSource loads a stored level from a dataset
type LevelSource struct {
	Loader  LevelLoader
	Dataset string
	LevelID int
}

func (s *LevelSource) Board(ctx context.Context) (Board, error) {
	config, err := s.Loader.LoadConfig(strings.ToLower(s.Dataset))
	if err != nil {
		return Board{}, fmt.Errorf("load dataset %q: %w", s.Dataset, err)
	}
	level, err := config.Level(s.LevelID)
	if err != nil {
		return Board{}, err
	}
	return ParseBoard(level.Layout)
}

// EnvironmentFromLevel loads a level and returns an environment sized to it,
// already reset.
func EnvironmentFromLevel(ctx context.Context, loader LevelLoader, dataset string, levelID int, mode Mode, maxSteps int) (*MacroEnvironment, error) {
	source := &LevelSource{Loader: loader, Dataset: dataset, LevelID: levelID}
	b, err := source.Board(ctx)
	if err != nil {
		return nil, err
	}
	width, height, numBoxes := ParamsFromBoard(b)
	env, err := NewEnvironment(Options{
		Mode:     mode,
		MaxSteps: maxSteps,
		Width:    width,
		Height:   height,
		NumBoxes: numBoxes,
	}, NewStaticSource(b))
	if err != nil {
		return nil, err
	}
	if _, err := env.Reset(ctx); err != nil {
		return nil, err
	}
	return env, nil
}
