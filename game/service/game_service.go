package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wricardo/macro-sokoban/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	ReachableStates(ctx context.Context, sessionID string) (*MovesResponse, error)
	Step(ctx context.Context, sessionID string, req StepRequest) (*StepResult, error)
	Reset(ctx context.Context, sessionID string) (*engine.GameState, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error)
	GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error
}

// SessionManager defines session storage operations. View and Update run fn
// with exclusive use of one session; Update also persists it when fn
// succeeds.
type SessionManager interface {
	Create(id string, spec SessionSpec) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	View(id string, fn func(*Session) error) error
	Update(id string, fn func(*Session) error) error
}

// ConfigManager handles level collection loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.GameConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.GameConfig
	SaveConfig(name string, config *engine.GameConfig) error
}

// SessionSpec is everything needed to build (or rebuild) a session's environment
type SessionSpec struct {
	ConfigID string
	Config   *engine.GameConfig
	LevelID  int
	Mode     engine.Mode
	MaxSteps int
}

// Session represents an active game session
type Session struct {
	ID             string
	Env            *engine.MacroEnvironment
	ConfigID       string
	Config         *engine.GameConfig
	LevelID        int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// NewEnvironment builds the environment a spec describes, reset to its start
func NewEnvironment(ctx context.Context, spec SessionSpec) (*engine.MacroEnvironment, error) {
	if spec.Config == nil {
		return nil, fmt.Errorf("session spec has no config")
	}
	env, err := engine.EnvironmentFromLevel(ctx, loadedConfig{spec.Config}, spec.ConfigID, spec.LevelID, spec.Mode, spec.MaxSteps)
	if err != nil {
		return nil, err
	}
	env.SetLabels(spec.ConfigID, spec.LevelID)
	return env, nil
}

// loadedConfig serves an already loaded collection under any name
type loadedConfig struct {
	config *engine.GameConfig
}

func (l loadedConfig) LoadConfig(string) (*engine.GameConfig, error) {
	return l.config, nil
}
