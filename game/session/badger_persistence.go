package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/wricardo/macro-sokoban/game/service"
)

const sessionKeyPrefix = "session/"

// BadgerPersistence implements SessionPersistence on an embedded badger
// key-value store. Each session is one key holding the same JSON document
// FilePersistence writes.
type BadgerPersistence struct {
	db            *badger.DB
	configManager service.ConfigManager
}

// NewBadgerPersistence opens (or creates) a store under dir. An empty dir
// opens an in-memory store.
func NewBadgerPersistence(dir string, configManager service.ConfigManager) (*BadgerPersistence, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create sessions directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerPersistence{db: db, configManager: configManager}, nil
}

// Close releases the underlying database
func (bp *BadgerPersistence) Close() error {
	return bp.db.Close()
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + strings.ToLower(id))
}

// Save persists a session
func (bp *BadgerPersistence) Save(session *service.Session) error {
	jsonData, err := encodeSession(session)
	if err != nil {
		return err
	}
	return bp.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), jsonData)
	})
}

// Load retrieves a session by ID
func (bp *BadgerPersistence) Load(id string) (*service.Session, error) {
	var jsonData []byte
	err := bp.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		jsonData, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return decodeSession(jsonData, bp.configManager)
}

// Delete removes a session
func (bp *BadgerPersistence) Delete(id string) error {
	if !bp.Exists(id) {
		return ErrSessionNotFound
	}
	return bp.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
}

// ListAll returns all persisted session IDs
func (bp *BadgerPersistence) ListAll() ([]string, error) {
	var ids []string
	prefix := []byte(sessionKeyPrefix)
	err := bp.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Exists checks if a session is stored
func (bp *BadgerPersistence) Exists(id string) bool {
	err := bp.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(sessionKey(id))
		return err
	})
	return err == nil
}
