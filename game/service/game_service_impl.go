package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/wricardo/macro-sokoban/game/engine"
)

var ErrInvalidRequest = errors.New("invalid request")

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager) GameService {
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
	}
}

// getConfigID returns the config_id for a given config name, used for consistent API responses
func (s *gameServiceImpl) getConfigID(configName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

// CreateSession creates a new game session on one level of a collection
func (s *gameServiceImpl) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	var config *engine.GameConfig
	var err error
	configID := strings.ToLower(req.ConfigName)
	if configID != "" {
		config, err = s.configs.LoadConfig(configID)
		if err != nil {
			// Provide helpful error message with available options
			if strings.Contains(err.Error(), "configuration not found") {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("config '%s' not found. Available configs: %v: %w", req.ConfigName, configIDs, err)
				}
				return nil, fmt.Errorf("config '%s' not found. Use /api/configs to list available configurations: %w", req.ConfigName, err)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", req.ConfigName, err)
		}
	} else {
		config = s.configs.GetDefault()
		if config == nil {
			return nil, fmt.Errorf("%w: no config given and no default available", ErrInvalidRequest)
		}
		configID = s.getConfigID(config.Name)
	}

	mode := config.Mode
	if req.Mode != "" {
		if mode, err = engine.ParseMode(req.Mode); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	maxSteps := config.MaxSteps
	if req.MaxSteps != 0 {
		maxSteps = req.MaxSteps
	}
	levelID := req.LevelID
	if levelID == 0 && len(config.Levels) > 0 {
		if _, err := config.Level(0); err != nil {
			levelID = config.Levels[0].ID
		}
	}

	session, err := s.sessions.Create("", SessionSpec{
		ConfigID: configID,
		Config:   config,
		LevelID:  levelID,
		Mode:     mode,
		MaxSteps: maxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("[SESSION] created id=%s config=%s level=%d mode=%s max_steps=%d",
		session.ID, configID, levelID, mode, maxSteps)
	return s.GetSession(ctx, session.ID)
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ConfigName:     sess.ConfigID,
		LevelID:        sess.LevelID,
		Mode:           sess.Env.Mode(),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		GameState:      sess.Env.State(),
		GameConfig:     sess.Config,
	}
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	var info *SessionInfo
	err := s.sessions.View(sessionID, func(sess *Session) error {
		info = sessionInfo(sess)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return info, nil
}

// ListSessions returns all active sessions. A session deleted while the list
// is built is left out.
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, listed := range sessions {
		// gone since List; skipped
		_ = s.sessions.View(listed.ID, func(sess *Session) error {
			result = append(result, sessionInfo(sess))
			return nil
		})
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(sessionID)
}

// ReachableStates lists the candidates for the next step with stable indices
func (s *gameServiceImpl) ReachableStates(ctx context.Context, sessionID string) (*MovesResponse, error) {
	var resp *MovesResponse
	found := false
	err := s.sessions.View(sessionID, func(sess *Session) error {
		found = true
		candidates, err := s.candidates(sess)
		if err != nil {
			return err
		}
		resp = &MovesResponse{
			SessionID:  sess.ID,
			Mode:       sess.Env.Mode(),
			Done:       sess.Env.Done(),
			StepsTaken: sess.Env.StepsTaken(),
			StepsLimit: sess.Env.StepsLimit(),
			Count:      len(candidates),
			Candidates: candidates,
		}
		return nil
	})
	if err != nil {
		if !found {
			return nil, fmt.Errorf("session not found: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

func (s *gameServiceImpl) candidates(sess *Session) ([]Candidate, error) {
	states, err := sess.Env.ReachableStates()
	if err != nil {
		return nil, err
	}
	current := sess.Env.Board()
	candidates := make([]Candidate, 0, len(states))
	for i, b := range states {
		from, to, err := engine.Displacement(current, b)
		if err != nil {
			return nil, err
		}
		player, _ := b.FindPlayer()
		candidates = append(candidates, Candidate{
			Index:    i,
			Board:    b,
			BoxFrom:  from,
			BoxTo:    to,
			PlayerTo: player,
			Solves:   engine.IsWon(b, sess.Env.Mode()),
		})
	}
	return candidates, nil
}

// Step applies one macro-move chosen by index or by board. A reset asked
// for alongside a step that then fails is rolled back, so a rejected request
// leaves the episode as it was.
func (s *gameServiceImpl) Step(ctx context.Context, sessionID string, req StepRequest) (*StepResult, error) {
	if req.Index == nil && req.Board.IsZero() {
		return nil, fmt.Errorf("%w: step needs an index or a board", ErrInvalidRequest)
	}

	var result *StepResult
	found := false
	err := s.sessions.Update(sessionID, func(sess *Session) error {
		found = true
		var err error
		result, err = s.step(ctx, sess, req)
		return err
	})
	if err != nil {
		if !found {
			return nil, fmt.Errorf("session not found: %w", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *gameServiceImpl) step(ctx context.Context, sess *Session, req StepRequest) (_ *StepResult, err error) {
	events := []GameEvent{}
	if req.Reset {
		snapshot := sess.Env.State()
		if _, err := sess.Env.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset session: %w", err)
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := sess.Env.Restore(snapshot); rerr != nil {
				log.Printf("Warning: Failed to roll back reset of session %s: %v", sess.ID, rerr)
			}
		}()
		events = append(events, GameEvent{
			Type:      "reset",
			Message:   "Game reset to initial state",
			Timestamp: time.Now(),
		})
	}

	if sess.Env.Done() {
		return nil, engine.ErrEpisodeDone
	}

	candidate := req.Board
	if req.Index != nil {
		states, err := sess.Env.ReachableStates()
		if err != nil {
			return nil, err
		}
		if *req.Index < 0 || *req.Index >= len(states) {
			return nil, fmt.Errorf("%w: candidate index %d out of range [0, %d)", engine.ErrIllegalMove, *req.Index, len(states))
		}
		candidate = states[*req.Index]
	}

	res, err := sess.Env.Step(candidate)
	if err != nil {
		log.Printf("[STEP] session=%s rejected: %v", sess.ID, err)
		return nil, err
	}

	state := sess.Env.State()
	var move *engine.MoveHistoryEntry
	if n := len(state.CurrentMoves); n > 0 {
		move = &state.CurrentMoves[n-1]
		events = append(events, GameEvent{
			Type:      "step",
			Message:   fmt.Sprintf("Box moved %v -> %v", move.BoxFrom, move.BoxTo),
			Timestamp: time.Now(),
			Position:  move.BoxTo,
		})
	}
	switch {
	case sess.Env.Won():
		events = append(events, GameEvent{Type: "solved", Message: state.Message, Timestamp: time.Now()})
	case res.Done:
		events = append(events, GameEvent{Type: "step_limit", Message: state.Message, Timestamp: time.Now()})
	}

	if move != nil {
		log.Printf("[STEP] session=%s box %v->%v steps=%d/%d on_target=%d/%d reward=%d done=%t",
			sess.ID, move.BoxFrom, move.BoxTo, state.StepsTaken, state.StepsLimit,
			state.BoxesOnTarget, state.NumBoxes, res.Reward, res.Done)
	}

	return &StepResult{
		Success:   true,
		GameState: state,
		Reward:    res.Reward,
		Done:      res.Done,
		Info:      res.Info,
		Message:   state.Message,
		Move:      move,
		Events:    events,
	}, nil
}

// Reset resets a game session to its starting board
func (s *gameServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.GameState, error) {
	var state *engine.GameState
	found := false
	err := s.sessions.Update(sessionID, func(sess *Session) error {
		found = true
		if _, err := sess.Env.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
		log.Printf("[RESET] session=%s mode=%s", sess.ID, sess.Env.Mode())
		state = sess.Env.State()
		return nil
	})
	if err != nil {
		if !found {
			return nil, fmt.Errorf("session not found: %w", err)
		}
		return nil, err
	}
	return state, nil
}

// GetGameState retrieves the current game state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.GameState, error) {
	var state *engine.GameState
	err := s.sessions.View(sessionID, func(sess *Session) error {
		state = sess.Env.State()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	return state, nil
}

// GetMoveHistory returns paginated move history
func (s *gameServiceImpl) GetMoveHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	var history []engine.MoveHistoryEntry
	err := s.sessions.View(sessionID, func(sess *Session) error {
		history = append([]engine.MoveHistoryEntry(nil), sess.Env.GetMoveHistory()...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > engine.MaxHistory {
		opts.Limit = engine.MaxHistory
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var moves []engine.MoveHistoryEntry
	if opts.Order == "desc" {
		// Reverse order (most recent first)
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			moves = append(moves, history[i])
		}
	} else if start < total {
		moves = history[start:end]
	}

	if moves == nil {
		moves = []engine.MoveHistoryEntry{}
	}

	return &HistoryResponse{
		Moves:       moves,
		TotalMoves:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListConfigs returns available level collections
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific level collection
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.GameConfig, error) {
	return s.configs.LoadConfig(strings.ToLower(configName))
}

// SaveConfig saves a level collection to disk
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.GameConfig) error {
	return s.configs.SaveConfig(strings.ToLower(configName), config)
}
