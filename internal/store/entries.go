package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Timestamps keep sub-second precision so TTL checks survive a round trip.
const timeLayout = time.RFC3339Nano

// LoadEntry returns the persisted value for key. ok is false when the key is
// unknown.
func (s *Store) LoadEntry(key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var fetchedAt string
	err := s.db.QueryRow(`SELECT value, fetched_at FROM cache_entries WHERE key = ?`, key).Scan(&value, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("load cache entry %q: %w", key, err)
	}
	t, err := time.Parse(timeLayout, fetchedAt)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("parse fetched_at for %q: %w", key, err)
	}
	return value, t, true, nil
}

// SaveEntry inserts or replaces the value for key.
func (s *Store) SaveEntry(key string, value []byte, fetchedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO cache_entries (key, value, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, fetched_at = excluded.fetched_at`,
		key, value, fetchedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("save cache entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) DeleteEntry(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

func (s *Store) ClearEntries() error {
	_, err := s.db.Exec(`DELETE FROM cache_entries`)
	return err
}
