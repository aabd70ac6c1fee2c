package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

type topicThreadOpPayload struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Title          *string `json:"title,omitempty"`
	CreatedAtMs    int64   `json:"created_at_ms"`
}

// CreateTopicThread groups a run of messages within a conversation into a
// named sub-thread, used by semantic parsing to keep long-running topics
// addressable independently of the parent conversation.
func (s *Store) CreateTopicThread(conversationID string, title *string) (TopicThread, error) {
	var out TopicThread
	err := s.WithTx(func(tx *sql.Tx) error {
		id := uuid.NewString()
		now := nowMs()
		var titleBlob []byte
		if title != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*title), crypto.TopicThreadTitleAAD(id))
			if err != nil {
				return err
			}
			titleBlob = blob
		}
		if _, err := tx.Exec(`INSERT INTO topic_threads(id, conversation_id, title, created_at_ms)
			VALUES (?, ?, ?, ?)`, id, conversationID, titleBlob, now); err != nil {
			return err
		}
		out = TopicThread{ID: id, ConversationID: conversationID, Title: title, CreatedAtMs: now}
		return s.appendOp(tx, OpTopicThreadUpsert, topicThreadOpPayload{
			ID: id, ConversationID: conversationID, Title: title, CreatedAtMs: now,
		})
	})
	return out, err
}

// UpdateTopicThreadTitle rewrites a thread's title.
func (s *Store) UpdateTopicThreadTitle(id string, title *string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		var convID string
		var createdAtMs int64
		if err := tx.QueryRow(`SELECT conversation_id, created_at_ms FROM topic_threads WHERE id = ?`, id).
			Scan(&convID, &createdAtMs); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return verr.NotFound("topic thread %s not found", id)
			}
			return err
		}
		var titleBlob []byte
		if title != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*title), crypto.TopicThreadTitleAAD(id))
			if err != nil {
				return err
			}
			titleBlob = blob
		}
		if _, err := tx.Exec(`UPDATE topic_threads SET title = ? WHERE id = ?`, titleBlob, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpTopicThreadUpsert, topicThreadOpPayload{
			ID: id, ConversationID: convID, Title: title, CreatedAtMs: createdAtMs,
		})
	})
}

// ListTopicThreads returns every thread for a conversation, oldest first.
func (s *Store) ListTopicThreads(conversationID string) ([]TopicThread, error) {
	rows, err := s.DB.Query(`SELECT id, conversation_id, title, created_at_ms
		FROM topic_threads WHERE conversation_id = ? ORDER BY created_at_ms ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopicThread
	for rows.Next() {
		var t TopicThread
		var titleBlob []byte
		if err := rows.Scan(&t.ID, &t.ConversationID, &titleBlob, &t.CreatedAtMs); err != nil {
			return nil, err
		}
		if titleBlob != nil {
			title, err := crypto.Decrypt(s.Key, titleBlob, crypto.TopicThreadTitleAAD(t.ID))
			if err != nil {
				return nil, err
			}
			s := string(title)
			t.Title = &s
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetTopicThreadMessageIDs replaces the ordered message membership of a thread.
func (s *Store) SetTopicThreadMessageIDs(threadID string, messageIDs []string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM topic_thread_messages WHERE thread_id = ?`, threadID); err != nil {
			return err
		}
		for i, msgID := range messageIDs {
			if _, err := tx.Exec(`INSERT INTO topic_thread_messages(thread_id, position, message_id) VALUES (?, ?, ?)`,
				threadID, i, msgID); err != nil {
				return err
			}
		}
		return s.appendOp(tx, OpTopicThreadMessages, map[string]any{"thread_id": threadID, "message_ids": messageIDs})
	})
}

// ListTopicThreadMessageIDs returns a thread's message ids in position order.
func (s *Store) ListTopicThreadMessageIDs(threadID string) ([]string, error) {
	rows, err := s.DB.Query(`SELECT message_id FROM topic_thread_messages WHERE thread_id = ? ORDER BY position ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteTopicThread removes a thread and its membership rows.
func (s *Store) DeleteTopicThread(id string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM topic_thread_messages WHERE thread_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM topic_threads WHERE id = ?`, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpTopicThreadUpsert, map[string]any{"id": id, "deleted": true})
	})
}
