package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

func (s *Store) kvGet(q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) kvSet(q execer, key, value string) error {
	_, err := q.Exec(`INSERT INTO kv(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) kvDelete(q execer, key string) error {
	_, err := q.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// DeviceID returns this store's stable device id, generating and persisting
// one on first use.
func (s *Store) DeviceID() (string, error) {
	id, ok, err := s.kvGet(s.DB, KVDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.kvSet(s.DB, KVDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// querier/execer let kv helpers run against either *sql.DB or *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
