package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wricardo/macro-sokoban/game/engine"
	"github.com/wricardo/macro-sokoban/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData is the stored form of a session. The level is
// reloaded from its collection and the snapshot replayed onto it.
type PersistedSessionData struct {
	ID             string            `json:"id"`
	ConfigName     string            `json:"config_name"`
	LevelID        int               `json:"level_id"`
	Mode           engine.Mode       `json:"mode"`
	MaxSteps       int               `json:"max_steps"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	GameState      *engine.GameState `json:"game_state"`
}

// encodeSession snapshots a session for storage
func encodeSession(session *service.Session) ([]byte, error) {
	if session == nil {
		return nil, fmt.Errorf("session cannot be nil")
	}
	data := PersistedSessionData{
		ID:             session.ID,
		ConfigName:     session.ConfigID,
		LevelID:        session.LevelID,
		Mode:           session.Env.Mode(),
		MaxSteps:       session.Env.StepsLimit(),
		CreatedAt:      session.CreatedAt,
		LastAccessedAt: session.LastAccessedAt,
		GameState:      session.Env.State(),
	}
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session data: %w", err)
	}
	return jsonData, nil
}

// decodeSession rebuilds a session from its stored form
func decodeSession(jsonData []byte, configs service.ConfigManager) (*service.Session, error) {
	var data PersistedSessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	gameConfig, err := configs.LoadConfig(data.ConfigName)
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s': %w", data.ConfigName, err)
	}

	env, err := service.NewEnvironment(context.Background(), service.SessionSpec{
		ConfigID: data.ConfigName,
		Config:   gameConfig,
		LevelID:  data.LevelID,
		Mode:     data.Mode,
		MaxSteps: data.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}

	if data.GameState != nil {
		if err := env.Restore(data.GameState); err != nil {
			return nil, fmt.Errorf("failed to restore game state: %w", err)
		}
	}

	return &service.Session{
		ID:             data.ID,
		Env:            env,
		ConfigID:       data.ConfigName,
		Config:         gameConfig,
		LevelID:        data.LevelID,
		CreatedAt:      data.CreatedAt,
		LastAccessedAt: data.LastAccessedAt,
	}, nil
}
