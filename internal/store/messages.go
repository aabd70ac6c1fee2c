package store

import (
	"database/sql"
	"errors"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

type messageOpPayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAtMs    int64  `json:"created_at_ms"`
	IsMemory       bool   `json:"is_memory"`
}

// AppendMessage inserts a new message and, for memory messages only, marks
// it pending embedding (invariant 5: non-memory messages must never carry
// needs_embedding=1), then appends the matching op.
func (s *Store) AppendMessage(m Message) error {
	return s.WithTx(func(tx *sql.Tx) error {
		tombstoned, err := s.isTombstonedTx(tx, tombstoneMessage, m.ID)
		if err != nil {
			return err
		}
		if tombstoned {
			return nil
		}
		contentBlob, err := crypto.Encrypt(s.Key, []byte(m.Content), crypto.MessageContentAAD(m.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO messages(id, conversation_id, role, content, created_at_ms, is_memory, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				is_memory = excluded.is_memory,
				needs_embedding = excluded.needs_embedding`,
			m.ID, m.ConversationID, m.Role, contentBlob, m.CreatedAtMs, boolToInt(m.IsMemory), boolToInt(m.IsMemory))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE conversations SET updated_at_ms = ? WHERE id = ?`, m.CreatedAtMs, m.ConversationID); err != nil {
			return err
		}
		return s.appendOp(tx, OpMessageSet, messageOpPayload{
			ID: m.ID, ConversationID: m.ConversationID, Role: m.Role,
			Content: m.Content, CreatedAtMs: m.CreatedAtMs, IsMemory: m.IsMemory,
		})
	})
}

// SetMessageIsMemory flips the is_memory flag used to exclude scratch
// messages from semantic recall (§5.3) without touching content or embedding
// state.
func (s *Store) SetMessageIsMemory(id string, isMemory bool) error {
	return s.WithTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE messages SET is_memory = ? WHERE id = ?`, boolToInt(isMemory), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return verr.NotFound("message %s not found", id)
		}
		return nil
	})
}

// GetMessage decrypts and returns a single message.
func (s *Store) GetMessage(id string) (*Message, error) {
	var m Message
	m.ID = id
	var contentBlob []byte
	var isMemory int
	var needsEmbedding int
	err := s.DB.QueryRow(`SELECT conversation_id, role, content, created_at_ms, is_memory, needs_embedding
		FROM messages WHERE id = ?`, id).
		Scan(&m.ConversationID, &m.Role, &contentBlob, &m.CreatedAtMs, &isMemory, &needsEmbedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("message %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	content, err := crypto.Decrypt(s.Key, contentBlob, crypto.MessageContentAAD(id))
	if err != nil {
		return nil, err
	}
	m.Content = string(content)
	m.IsMemory = isMemory != 0
	m.NeedsEmbedding = needsEmbedding != 0
	return &m, nil
}

// ListMessages returns every message in a conversation, oldest first.
func (s *Store) ListMessages(conversationID string) ([]Message, error) {
	rows, err := s.DB.Query(`SELECT id, conversation_id, role, content, created_at_ms, is_memory, needs_embedding
		FROM messages WHERE conversation_id = ? ORDER BY created_at_ms ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var contentBlob []byte
		var isMemory int
		var needsEmbedding int
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &contentBlob, &m.CreatedAtMs, &isMemory, &needsEmbedding); err != nil {
			return nil, err
		}
		content, err := crypto.Decrypt(s.Key, contentBlob, crypto.MessageContentAAD(m.ID))
		if err != nil {
			return nil, err
		}
		m.Content = string(content)
		m.IsMemory = isMemory != 0
		m.NeedsEmbedding = needsEmbedding != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMessage removes the message, its embedding sidecar row, and emits a
// tombstone so a later replay of the original insert op is a no-op.
func (s *Store) DeleteMessage(id string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM message_embedding_rows WHERE message_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
			return err
		}
		if err := s.markTombstoneTx(tx, tombstoneMessage, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpMessageDelete, map[string]string{"id": id})
	})
}

// PendingEmbeddingMessageIDs returns message ids flagged needs_embedding,
// oldest first, for internal/vectorindex's reindex loop.
func (s *Store) PendingEmbeddingMessageIDs(limit int) ([]string, error) {
	rows, err := s.DB.Query(`SELECT id FROM messages WHERE needs_embedding = 1 ORDER BY created_at_ms ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearNeedsEmbedding marks a message as embedded for the current model.
func (s *Store) ClearNeedsEmbedding(messageID string) error {
	_, err := s.DB.Exec(`UPDATE messages SET needs_embedding = 0 WHERE id = ?`, messageID)
	return err
}

// RequeueAllMessagesForEmbedding flags every memory message for
// re-embedding, used when the active embedding model changes and the vector
// table is rebuilt from scratch. Non-memory messages are never marked
// pending (invariant 5).
func (s *Store) RequeueAllMessagesForEmbedding() error {
	_, err := s.DB.Exec(`UPDATE messages SET needs_embedding = 1 WHERE is_memory = 1`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
