package service

import (
	"time"

	"github.com/wricardo/macro-sokoban/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string             `json:"id"`
	ConfigName     string             `json:"config_name"`
	LevelID        int                `json:"level_id"`
	Mode           engine.Mode        `json:"mode"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	GameState      *engine.GameState  `json:"game_state"`
	GameConfig     *engine.GameConfig `json:"game_config,omitempty"`
}

// CreateSessionRequest selects the level and episode settings of a new session.
// Empty Mode and zero MaxSteps fall back to the collection's defaults.
type CreateSessionRequest struct {
	ConfigName string `json:"config_id"`
	LevelID    int    `json:"level_id"`
	Mode       string `json:"mode,omitempty"`
	MaxSteps   int    `json:"max_steps,omitempty"`
}

// Candidate is one legal next board, addressable by its index
type Candidate struct {
	Index    int             `json:"index"`
	Board    engine.Board    `json:"board"`
	BoxFrom  engine.Position `json:"box_from"`
	BoxTo    engine.Position `json:"box_to"`
	PlayerTo engine.Position `json:"player_to"`
	Solves   bool            `json:"solves"`
}

// MovesResponse lists every board one macro-move away from the current one
type MovesResponse struct {
	SessionID  string      `json:"session_id"`
	Mode       engine.Mode `json:"mode"`
	Done       bool        `json:"done"`
	StepsTaken int         `json:"steps_taken"`
	StepsLimit int         `json:"steps_limit"`
	Count      int         `json:"count"`
	Candidates []Candidate `json:"candidates"`
}

// StepRequest picks the next board either by candidate index or by value.
// Index takes precedence when both are set.
type StepRequest struct {
	Index *int         `json:"index,omitempty"`
	Board engine.Board `json:"board,omitempty"`
	Reset bool         `json:"reset,omitempty"`
}

// StepResult contains the result of a macro-move
type StepResult struct {
	Success   bool                     `json:"success"`
	GameState *engine.GameState        `json:"game_state"`
	Reward    int                      `json:"reward"`
	Done      bool                     `json:"done"`
	Info      *engine.StepInfo         `json:"info,omitempty"`
	Message   string                   `json:"message"`
	Move      *engine.MoveHistoryEntry `json:"move,omitempty"`
	Events    []GameEvent              `json:"events,omitempty"`
}

// GameEvent represents an event that occurred during gameplay
type GameEvent struct {
	Type      string          `json:"type"` // "reset", "step", "solved", "step_limit"
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Position  engine.Position `json:"position,omitempty"`
}

// HistoryOptions configures move history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated move history
type HistoryResponse struct {
	Moves       []engine.MoveHistoryEntry `json:"moves"`
	TotalMoves  int                       `json:"total_moves"`
	Page        int                       `json:"page"`
	PageSize    int                       `json:"page_size"`
	TotalPages  int                       `json:"total_pages"`
	HasNext     bool                      `json:"has_next"`
	HasPrevious bool                      `json:"has_previous"`
}

// ConfigInfo provides information about a level collection
type ConfigInfo struct {
	Filename    string      `json:"filename"`
	ConfigID    string      `json:"config_id"` // The identifier to use for session creation
	Name        string      `json:"name"`      // Display name
	Description string      `json:"description"`
	Mode        engine.Mode `json:"mode"`
	MaxSteps    int         `json:"max_steps"`
	LevelCount  int         `json:"level_count"`
	LevelIDs    []int       `json:"level_ids"`
}
