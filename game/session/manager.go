package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/macro-sokoban/game/service"
)

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

const maxIDAttempts = 16

// entry owns one session. mu serializes every use of the session's
// environment, which is not safe for concurrent use.
type entry struct {
	mu      sync.Mutex
	session *service.Session
}

// Manager keeps sessions by lowercased id. Its own lock guards the map and
// LastAccessedAt; an entry's lock guards the environment. An entry lock may
// be held while taking the manager lock, never the other way round.
type Manager struct {
	entries     map[string]*entry
	persistence SessionPersistence
	mu          sync.RWMutex
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]*entry),
	}
}

// NewManagerWithPersistence creates a new session manager with persistence
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	return &Manager{
		entries:     make(map[string]*entry),
		persistence: persistence,
	}
}

func key(id string) string {
	return strings.ToLower(id)
}

// Create builds the environment spec describes and registers it under id.
// An empty id gets a generated 4-hex id.
func (m *Manager) Create(id string, spec service.SessionSpec) (*service.Session, error) {
	if id != "" && (strings.TrimSpace(id) != id || strings.ContainsAny(id, `/\ `)) {
		return nil, ErrInvalidSessionID
	}

	env, err := service.NewEnvironment(context.Background(), spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}

	now := time.Now()
	e := &entry{session: &service.Session{
		Env:            env,
		ConfigID:       spec.ConfigID,
		Config:         spec.Config,
		LevelID:        spec.LevelID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}}
	e.mu.Lock()
	defer e.mu.Unlock()

	m.mu.Lock()
	if id == "" {
		// 4 hex chars collide quickly; retry a few times before giving up
		for attempt := 0; attempt < maxIDAttempts; attempt++ {
			id = generateSessionID()
			if _, taken := m.entries[key(id)]; !taken {
				break
			}
		}
	}
	if _, exists := m.entries[key(id)]; exists {
		m.mu.Unlock()
		return nil, ErrSessionAlreadyExists
	}
	e.session.ID = id
	m.entries[key(id)] = e
	m.mu.Unlock()

	m.persist(e.session, "creation")
	return e.session, nil
}

// lookup finds the entry in memory, falling back to the store
func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, exists := m.entries[key(id)]
	m.mu.RUnlock()
	if exists {
		return e, nil
	}

	if m.persistence == nil || !m.persistence.Exists(id) {
		return nil, ErrSessionNotFound
	}
	session, err := m.persistence.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted session: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// another caller may have loaded it meanwhile
	if e, exists := m.entries[key(id)]; exists {
		return e, nil
	}
	e = &entry{session: session}
	m.entries[key(id)] = e
	return e, nil
}

// Get returns the session with id (case-insensitive). Use View or Update to
// touch its environment.
func (m *Manager) Get(id string) (*service.Session, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// View runs fn with exclusive use of the session and marks it accessed
func (m *Manager) View(id string, fn func(*service.Session) error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	err = fn(e.session)
	m.touch(e)
	return err
}

// Update is View followed by persisting the session when fn succeeds. A
// failed save is logged and does not fail the call.
func (m *Manager) Update(id string, fn func(*service.Session) error) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	err = fn(e.session)
	m.touch(e)
	if err != nil {
		return err
	}
	m.persist(e.session, "update")
	return nil
}

// touch records an access. The caller holds e.mu.
func (m *Manager) touch(e *entry) {
	m.mu.Lock()
	e.session.LastAccessedAt = time.Now()
	m.mu.Unlock()
}

// persist saves a session whose entry lock the caller holds
func (m *Manager) persist(session *service.Session, after string) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(session); err != nil {
		log.Printf("Warning: Failed to persist session %s after %s: %v", session.ID, after, err)
	}
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id string, spec service.SessionSpec) (*service.Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, spec)
	}
	return nil, err
}

// List returns all sessions in memory
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e.session)
	}
	return result
}

// Delete removes a session from memory and from the store
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, inMemory := m.entries[key(id)]
	delete(m.entries, key(id))
	m.mu.Unlock()

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteFromMemory drops a session from memory and leaves the store alone
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key(id)]; !exists {
		return ErrSessionNotFound
	}
	delete(m.entries, key(id))
	return nil
}

// Save persists one in-memory session. Do not call it from inside View or
// Update for the same session; Update already saves.
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	e, exists := m.entries[key(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return m.persistence.Save(e.session)
}

// CleanupExpiredSessions drops sessions not accessed within maxAge from
// memory. Stored copies are kept.
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for k, e := range m.entries {
		if e.session.LastAccessedAt.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Count returns the number of sessions in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// generateSessionID returns 4 random hex characters
func generateSessionID() string {
	b := make([]byte, 2)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// LoadPersistedSessions loads every stored session not already in memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	loaded := 0
	for _, id := range ids {
		m.mu.RLock()
		_, exists := m.entries[key(id)]
		m.mu.RUnlock()
		if exists {
			continue
		}

		session, err := m.persistence.Load(id)
		if err != nil {
			log.Printf("Warning: Failed to load persisted session %s: %v", id, err)
			continue
		}

		m.mu.Lock()
		if _, exists := m.entries[key(id)]; !exists {
			m.entries[key(id)] = &entry{session: session}
			loaded++
		}
		m.mu.Unlock()
	}

	if loaded > 0 {
		log.Printf("Loaded %d persisted sessions from storage", loaded)
	}
	return nil
}

// SaveAllSessions persists every in-memory session, one entry lock at a time
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	failed := 0
	for _, e := range entries {
		e.mu.Lock()
		err := m.persistence.Save(e.session)
		e.mu.Unlock()
		if err != nil {
			log.Printf("Warning: Failed to save session %s: %v", e.session.ID, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to save %d sessions", failed)
	}
	return nil
}
