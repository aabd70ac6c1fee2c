package store

import "database/sql"

const (
	tombstoneConversation = "conversation"
	tombstoneMessage      = "message"
	tombstoneTodo         = "todo"
)

func (s *Store) isTombstonedTx(tx *sql.Tx, entity, id string) (bool, error) {
	var count int
	err := tx.QueryRow(`SELECT COUNT(*) FROM tombstones WHERE entity = ? AND id = ?`, entity, id).Scan(&count)
	return count > 0, err
}

func (s *Store) markTombstoneTx(tx *sql.Tx, entity, id string) error {
	_, err := tx.Exec(`INSERT INTO tombstones(entity, id, deleted_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(entity, id) DO NOTHING`, entity, id, nowMs())
	return err
}
