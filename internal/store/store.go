// Package store provides the persistent key-value substrate shared by
// the event audit log, rule/workflow history, alerts, and the vector
// index. It is a thin bucket-per-table wrapper around bbolt: each
// table is a bucket, each row is a (key, JSON value) pair, and every
// write is a single transaction.
package store

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Table names double as bbolt bucket names. New tables should be added
// here rather than created ad hoc so Open can provision them up front.
const (
	TableEventLog        = "event_log"
	TableRules           = "rules"
	TableRuleHistory     = "rule_history"
	TableWorkflowHistory = "workflow_history"
	TableAlerts          = "alerts"
	TableVectors         = "vectors"
	TableOnboarding      = "onboarding_drafts"
	TableSignatures      = "onboarding_signatures"
)

// The scheduler keeps its own SQLite-backed store (internal/scheduler)
// rather than a bucket here: task execution history is queried
// relationally (by task id, by time range) in ways a bucket-per-table
// KV substrate doesn't serve well, and splitting it out keeps this
// store's tables to the ones that are genuinely key-addressed.

var allTables = []string{
	TableEventLog,
	TableRules,
	TableRuleHistory,
	TableWorkflowHistory,
	TableAlerts,
	TableVectors,
	TableOnboarding,
	TableSignatures,
}

// ErrNotFound is returned when a key does not exist in its table.
var ErrNotFound = errors.New("store: key not found")

// Store is a bucket-per-table bbolt-backed key-value substrate.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and provisions
// every known table as a bucket. A single process must not open the
// same path twice concurrently; bbolt itself enforces this with an
// flock-based file lock, which Open surfaces as an error.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes value under key in table. One write, one transaction.
func (s *Store) Put(table, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		return b.Put([]byte(key), value)
	})
}

// Get reads the value for key in table. Returns ErrNotFound if absent.
func (s *Store) Get(table, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append(out, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes key from table. Deleting an absent key is a no-op.
func (s *Store) Delete(table, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		return b.Delete([]byte(key))
	})
}

// ForEach iterates every (key, value) pair in table in bbolt's native
// key order (lexicographic byte order), calling fn for each. Iteration
// runs inside a single read-only snapshot transaction. Returning a
// non-nil error from fn stops iteration and is propagated.
func (s *Store) ForEach(table string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// PrefixScan iterates every (key, value) pair in table whose key begins
// with prefix, in key order. Useful for range-style lookups such as
// "all rule_history rows for rule R" keyed "<rule_id>:<exec_id>".
func (s *Store) PrefixScan(table, prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			if err := fn(string(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Count returns the number of entries in table.
func (s *Store) Count(table string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return fmt.Errorf("store: unknown table %q", table)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
