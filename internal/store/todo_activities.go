package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
)

type todoActivityOpPayload struct {
	ID              string  `json:"id"`
	TodoID          string  `json:"todo_id"`
	ActivityType    string  `json:"activity_type"`
	FromStatus      *string `json:"from_status,omitempty"`
	ToStatus        *string `json:"to_status,omitempty"`
	Content         *string `json:"content,omitempty"`
	SourceMessageID *string `json:"source_message_id,omitempty"`
	CreatedAtMs     int64   `json:"created_at_ms"`
}

// AppendTodoNote records a free-text note against a todo. If sourceMessageID
// is empty, a user message carrying the note text is synthesized in the
// todo's originating conversation (resolved via source_entry_id, falling
// back to loop_home) and the activity's created_at_ms is taken from that
// message's timestamp (§4.2).
func (s *Store) AppendTodoNote(todoID, content, sourceMessageID string) (TodoActivity, error) {
	var activity TodoActivity
	err := s.WithTx(func(tx *sql.Tx) error {
		createdAtMs := nowMs()
		msgID := sourceMessageID
		if msgID == "" {
			convID, err := s.todoOriginConversationTx(tx, todoID)
			if err != nil {
				return err
			}
			msgID = uuid.NewString()
			contentBlob, err := crypto.Encrypt(s.Key, []byte(content), crypto.MessageContentAAD(msgID))
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`INSERT INTO messages(id, conversation_id, role, content, created_at_ms, is_memory, needs_embedding)
				VALUES (?, ?, ?, ?, ?, 1, 1)`,
				msgID, convID, RoleUser, contentBlob, createdAtMs); err != nil {
				return err
			}
			if err := s.appendOp(tx, OpMessageSet, messageOpPayload{
				ID: msgID, ConversationID: convID, Role: RoleUser, Content: content,
				CreatedAtMs: createdAtMs, IsMemory: true,
			}); err != nil {
				return err
			}
		} else {
			if err := tx.QueryRow(`SELECT created_at_ms FROM messages WHERE id = ?`, msgID).Scan(&createdAtMs); err != nil {
				return err
			}
		}

		id := uuid.NewString()
		contentBlob, err := crypto.Encrypt(s.Key, []byte(content), crypto.TodoActivityContentAAD(id))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO todo_activities(id, todo_id, activity_type, content, source_message_id, created_at_ms, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			id, todoID, TodoActivityNote, contentBlob, msgID, createdAtMs)
		if err != nil {
			return err
		}
		activity = TodoActivity{
			ID: id, TodoID: todoID, ActivityType: TodoActivityNote, Content: &content,
			SourceMessageID: &msgID, CreatedAtMs: createdAtMs, NeedsEmbedding: true,
		}
		return s.appendOp(tx, OpTodoActivity, todoActivityOpPayload{
			ID: id, TodoID: todoID, ActivityType: TodoActivityNote, Content: &content,
			SourceMessageID: &msgID, CreatedAtMs: createdAtMs,
		})
	})
	return activity, err
}

func (s *Store) todoOriginConversationTx(tx *sql.Tx, todoID string) (string, error) {
	var sourceEntryID sql.NullString
	if err := tx.QueryRow(`SELECT source_entry_id FROM todos WHERE id = ?`, todoID).Scan(&sourceEntryID); err != nil {
		return "", err
	}
	if sourceEntryID.Valid {
		var convID string
		err := tx.QueryRow(`SELECT conversation_id FROM messages WHERE id = ?`, sourceEntryID.String).Scan(&convID)
		if err == nil {
			return convID, nil
		}
	}
	return LoopHomeConversationID, nil
}

// ListTodoActivities returns every activity for a todo, oldest first.
func (s *Store) ListTodoActivities(todoID string) ([]TodoActivity, error) {
	rows, err := s.DB.Query(`SELECT id, todo_id, activity_type, from_status, to_status, content, source_message_id, created_at_ms, needs_embedding
		FROM todo_activities WHERE todo_id = ? ORDER BY created_at_ms ASC`, todoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TodoActivity
	for rows.Next() {
		var a TodoActivity
		var contentBlob []byte
		var needsEmbedding int
		if err := rows.Scan(&a.ID, &a.TodoID, &a.ActivityType, &a.FromStatus, &a.ToStatus, &contentBlob, &a.SourceMessageID, &a.CreatedAtMs, &needsEmbedding); err != nil {
			return nil, err
		}
		if contentBlob != nil {
			content, err := crypto.Decrypt(s.Key, contentBlob, crypto.TodoActivityContentAAD(a.ID))
			if err != nil {
				return nil, err
			}
			s := string(content)
			a.Content = &s
		}
		a.NeedsEmbedding = needsEmbedding != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// PendingEmbeddingTodoActivityIDs returns todo_activities ids flagged
// needs_embedding, for internal/vectorindex's todo-thread reindex loop.
func (s *Store) PendingEmbeddingTodoActivityIDs(limit int) ([]string, error) {
	rows, err := s.DB.Query(`SELECT id FROM todo_activities WHERE needs_embedding = 1 ORDER BY created_at_ms ASC LIMIT ?`, limit)
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

// ClearTodoActivityNeedsEmbedding marks a todo_activities row as embedded.
func (s *Store) ClearTodoActivityNeedsEmbedding(id string) error {
	_, err := s.DB.Exec(`UPDATE todo_activities SET needs_embedding = 0 WHERE id = ?`, id)
	return err
}

// GetTodoActivity fetches a single activity by id, used by the vectorindex
// reindex loop to pull its decrypted content.
func (s *Store) GetTodoActivity(id string) (*TodoActivity, error) {
	var a TodoActivity
	a.ID = id
	var contentBlob []byte
	var needsEmbedding int
	err := s.DB.QueryRow(`SELECT todo_id, activity_type, from_status, to_status, content, source_message_id, created_at_ms, needs_embedding
		FROM todo_activities WHERE id = ?`, id).
		Scan(&a.TodoID, &a.ActivityType, &a.FromStatus, &a.ToStatus, &contentBlob, &a.SourceMessageID, &a.CreatedAtMs, &needsEmbedding)
	if err != nil {
		return nil, err
	}
	if contentBlob != nil {
		content, err := crypto.Decrypt(s.Key, contentBlob, crypto.TodoActivityContentAAD(id))
		if err != nil {
			return nil, err
		}
		s := string(content)
		a.Content = &s
	}
	a.NeedsEmbedding = needsEmbedding != 0
	return &a, nil
}
