// Package session provides session management for the macro-move Sokoban
// environment.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Persistence to JSON files or an embedded Badger store
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager owns the in-memory sessions. Each session wraps one
// engine.MacroEnvironment built from a level collection.
//
// Session Identifiers:
//
// Generated IDs are 4 hex characters from crypto/rand. Lookups are
// case-insensitive.
//
// Persistence:
//
// A persisted session stores its collection id, level id, mode and step
// limit plus a GameState snapshot. Loading rebuilds the environment from the
// collection and restores the snapshot onto it, so a snapshot whose walls or
// targets no longer match the level is rejected.
//
// Usage:
//
//	store, _ := session.NewBadgerPersistence("sessions.db", configMgr)
//	manager := session.NewManagerWithPersistence(store)
//
//	sess, err := manager.Create("", service.SessionSpec{
//		ConfigID: "microsokoban",
//		Config:   cfg,
//		LevelID:  1,
//		Mode:     engine.Forward,
//		MaxSteps: 120,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
package session
