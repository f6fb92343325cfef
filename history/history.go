// Package history persists finished sessions in a badger database.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"go.aimuz.me/holdtalk/internal/types"
)

// ErrNotFound is returned by Get for an unknown session ID.
var ErrNotFound = errors.New("session not found")

const (
	sessionPrefix = "session/"
	idPrefix      = "id/"
	keyTime       = "20060102T150405.000000000"
)

// Store is a session history.
type Store struct {
	db *badger.DB
}

// Open opens the store at dir. An empty dir opens an in-memory store.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Store{db: db}, nil
}

// Sessions sort by start time, so the newest is last.
func sessionKey(r types.SessionRecord) []byte {
	return []byte(sessionPrefix + r.StartedAt.UTC().Format(keyTime) + "/" + r.ID)
}

// Put stores r, replacing any record with the same ID.
func (s *Store) Put(r types.SessionRecord) error {
	if r.ID == "" {
		return errors.New("put session: empty id")
	}
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(r)

	err = s.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(idPrefix + r.ID)
		if item, err := txn.Get(idKey); err == nil {
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(old); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
	if err != nil {
		return fmt.Errorf("put session %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the session with the given ID.
func (s *Store) Get(id string) (types.SessionRecord, error) {
	var r types.SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return r, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("get session %s: %w", id, err)
	}
	return r, nil
}

// Recent returns up to n sessions, newest first.
func (s *Store) Recent(n int) ([]types.SessionRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	var out []types.SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek positions at the last key <= the seek key.
		for it.Seek([]byte(sessionPrefix + "\xff")); it.Valid() && len(out) < n; it.Next() {
			var r types.SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Prune deletes sessions that started before cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	limit := []byte(sessionPrefix + cutoff.UTC().Format(keyTime))

	var stale []types.SessionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(sessionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if string(it.Item().Key()) >= string(limit) {
				break
			}
			var r types.SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return err
			}
			stale = append(stale, r)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, r := range stale {
			if err := txn.Delete(sessionKey(r)); err != nil {
				return err
			}
			if err := txn.Delete([]byte(idPrefix + r.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return len(stale), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
