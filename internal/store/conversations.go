package store

import (
	"database/sql"
	"errors"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

type conversationOpPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// UpsertConversation writes the conversation row and appends a
// conversation.upsert.v1 op in one transaction.
func (s *Store) UpsertConversation(c Conversation) error {
	return s.WithTx(func(tx *sql.Tx) error {
		return s.upsertConversationTx(tx, c)
	})
}

func (s *Store) upsertConversationTx(tx *sql.Tx, c Conversation) error {
	tombstoned, err := s.isTombstonedTx(tx, tombstoneConversation, c.ID)
	if err != nil {
		return err
	}
	if tombstoned {
		return nil
	}
	titleBlob, err := crypto.Encrypt(s.Key, []byte(c.Title), crypto.ConversationTitleAAD(c.ID))
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO conversations(id, title, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at_ms = excluded.updated_at_ms`,
		c.ID, titleBlob, c.CreatedAtMs, c.UpdatedAtMs)
	if err != nil {
		return err
	}
	return s.appendOp(tx, OpConversationUpsert, conversationOpPayload{
		ID: c.ID, Title: c.Title, CreatedAtMs: c.CreatedAtMs, UpdatedAtMs: c.UpdatedAtMs,
	})
}

// EnsureWellKnownConversations idempotently creates chat_home and loop_home if
// absent (invariant 6). Safe to call on every open.
func (s *Store) EnsureWellKnownConversations() error {
	for _, id := range []string{ChatHomeConversationID, LoopHomeConversationID} {
		exists, err := s.conversationExists(id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		now := nowMs()
		title := "Chat"
		if id == LoopHomeConversationID {
			title = "Inbox"
		}
		if err := s.UpsertConversation(Conversation{ID: id, Title: title, CreatedAtMs: now, UpdatedAtMs: now}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) conversationExists(id string) (bool, error) {
	var count int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM conversations WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// GetConversation decrypts and returns a single conversation.
func (s *Store) GetConversation(id string) (*Conversation, error) {
	var titleBlob []byte
	var c Conversation
	c.ID = id
	err := s.DB.QueryRow(`SELECT title, created_at_ms, updated_at_ms FROM conversations WHERE id = ?`, id).
		Scan(&titleBlob, &c.CreatedAtMs, &c.UpdatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	title, err := crypto.Decrypt(s.Key, titleBlob, crypto.ConversationTitleAAD(id))
	if err != nil {
		return nil, err
	}
	c.Title = string(title)
	return &c, nil
}

// ListConversations returns every conversation, newest-updated first.
func (s *Store) ListConversations() ([]Conversation, error) {
	rows, err := s.DB.Query(`SELECT id, title, created_at_ms, updated_at_ms FROM conversations ORDER BY updated_at_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var titleBlob []byte
		if err := rows.Scan(&c.ID, &titleBlob, &c.CreatedAtMs, &c.UpdatedAtMs); err != nil {
			return nil, err
		}
		title, err := crypto.Decrypt(s.Key, titleBlob, crypto.ConversationTitleAAD(c.ID))
		if err != nil {
			return nil, err
		}
		c.Title = string(title)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteConversation removes the conversation and emits a tombstone op; per
// §4.4 a tombstone is authoritative and re-creating the same id is ignored by
// receivers that have observed it.
func (s *Store) DeleteConversation(id string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
			return err
		}
		if err := s.markTombstoneTx(tx, tombstoneConversation, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpConversationDelete, map[string]string{"id": id})
	})
}
