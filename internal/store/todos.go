package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

// ReviewRelevantStatus is the only status value that keeps review_stage and
// next_review_at_ms; any other status clears them (§4.2).
const ReviewRelevantStatus = "reviewing"

type todoOpPayload struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	DueAtMs       *int64  `json:"due_at_ms,omitempty"`
	Status        string  `json:"status"`
	SourceEntryID *string `json:"source_entry_id,omitempty"`
	CreatedAtMs   int64   `json:"created_at_ms"`
	UpdatedAtMs   int64   `json:"updated_at_ms"`
}

type todoStatusOpPayload struct {
	ID         string  `json:"id"`
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	AtMs       int64   `json:"at_ms"`
	SeriesID   *string `json:"series_id,omitempty"`
}

type recurrenceRule struct {
	Unit     string `json:"unit"` // "daily" | "weekly" | "monthly"
	Interval int    `json:"interval"`
}

func (r recurrenceRule) deltaMs() int64 {
	const day = int64(86_400_000)
	interval := int64(r.Interval)
	if interval <= 0 {
		interval = 1
	}
	switch r.Unit {
	case "weekly":
		return 7 * day * interval
	case "monthly":
		return 30 * day * interval
	default:
		return day * interval
	}
}

// UpsertTodo writes the todo row and appends a todo.upsert.v1 op.
func (s *Store) UpsertTodo(t Todo) error {
	return s.WithTx(func(tx *sql.Tx) error {
		tombstoned, err := s.isTombstonedTx(tx, tombstoneTodo, t.ID)
		if err != nil {
			return err
		}
		if tombstoned {
			return nil
		}
		titleBlob, err := crypto.Encrypt(s.Key, []byte(t.Title), crypto.TodoTitleAAD(t.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO todos(id, title, due_at_ms, status, source_entry_id,
				review_stage, next_review_at_ms, last_review_at_ms, created_at_ms, updated_at_ms, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				due_at_ms = excluded.due_at_ms,
				status = excluded.status,
				source_entry_id = excluded.source_entry_id,
				review_stage = excluded.review_stage,
				next_review_at_ms = excluded.next_review_at_ms,
				last_review_at_ms = excluded.last_review_at_ms,
				updated_at_ms = excluded.updated_at_ms,
				needs_embedding = 1`,
			t.ID, titleBlob, t.DueAtMs, t.Status, t.SourceEntryID,
			t.ReviewStage, t.NextReviewAtMs, t.LastReviewAtMs, t.CreatedAtMs, t.UpdatedAtMs)
		if err != nil {
			return err
		}
		return s.appendOp(tx, OpTodoUpsert, todoOpPayload{
			ID: t.ID, Title: t.Title, DueAtMs: t.DueAtMs, Status: t.Status,
			SourceEntryID: t.SourceEntryID, CreatedAtMs: t.CreatedAtMs, UpdatedAtMs: t.UpdatedAtMs,
		})
	})
}

// SetTodoRecurrence attaches a recurrence rule to an existing todo.
func (s *Store) SetTodoRecurrence(r TodoRecurrence) error {
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO todo_recurrence(todo_id, series_id, rule_json)
			VALUES (?, ?, ?)
			ON CONFLICT(todo_id) DO UPDATE SET series_id = excluded.series_id, rule_json = excluded.rule_json`,
			r.TodoID, r.SeriesID, r.RuleJSON)
		if err != nil {
			return err
		}
		return s.appendOp(tx, OpTodoRecurrence, r)
	})
}

// SetTodoStatus transitions a todo's status, clears review bookkeeping when
// the new status isn't review-relevant, and — for a recurring todo
// transitioning into "done" for the first time — spawns exactly one
// successor todo carrying the same recurrence record (§4.4 invariant 10).
// A second transition to "done" on an already-done todo spawns nothing,
// since idempotency is judged from the todo's own prior status.
func (s *Store) SetTodoStatus(id, newStatus string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		var prevStatus, title string
		var dueAtMs *int64
		err := tx.QueryRow(`SELECT status, due_at_ms FROM todos WHERE id = ?`, id).Scan(&prevStatus, &dueAtMs)
		if errors.Is(err, sql.ErrNoRows) {
			return verr.NotFound("todo %s not found", id)
		}
		if err != nil {
			return err
		}

		now := nowMs()
		clearReview := newStatus != ReviewRelevantStatus
		if clearReview {
			_, err = tx.Exec(`UPDATE todos SET status = ?, updated_at_ms = ?,
				review_stage = NULL, next_review_at_ms = NULL, needs_embedding = 1 WHERE id = ?`,
				newStatus, now, id)
		} else {
			_, err = tx.Exec(`UPDATE todos SET status = ?, updated_at_ms = ?, needs_embedding = 1 WHERE id = ?`,
				newStatus, now, id)
		}
		if err != nil {
			return err
		}

		var seriesID *string
		if newStatus == TodoStatusDone && prevStatus != TodoStatusDone {
			var series, ruleJSON string
			err := tx.QueryRow(`SELECT series_id, rule_json FROM todo_recurrence WHERE todo_id = ?`, id).Scan(&series, &ruleJSON)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			if err == nil {
				seriesID = &series
				var rule recurrenceRule
				if err := json.Unmarshal([]byte(ruleJSON), &rule); err != nil {
					return verr.Input("invalid recurrence rule_json for todo %s: %v", id, err)
				}
				var newDue *int64
				if dueAtMs != nil {
					d := *dueAtMs + rule.deltaMs()
					newDue = &d
				}
				titleRow := tx.QueryRow(`SELECT title FROM todos WHERE id = ?`, id)
				var titleBlob []byte
				if err := titleRow.Scan(&titleBlob); err != nil {
					return err
				}
				decTitle, err := crypto.Decrypt(s.Key, titleBlob, crypto.TodoTitleAAD(id))
				if err != nil {
					return err
				}
				title = string(decTitle)
				nextID := uuid.NewString()
				nextTitleBlob, err := crypto.Encrypt(s.Key, []byte(title), crypto.TodoTitleAAD(nextID))
				if err != nil {
					return err
				}
				if _, err := tx.Exec(`INSERT INTO todos(id, title, due_at_ms, status, created_at_ms, updated_at_ms, needs_embedding)
					VALUES (?, ?, ?, 'open', ?, ?, 1)`,
					nextID, nextTitleBlob, newDue, now, now); err != nil {
					return err
				}
				if _, err := tx.Exec(`INSERT INTO todo_recurrence(todo_id, series_id, rule_json) VALUES (?, ?, ?)`,
					nextID, series, ruleJSON); err != nil {
					return err
				}
				if err := s.appendOp(tx, OpTodoUpsert, todoOpPayload{
					ID: nextID, Title: title, DueAtMs: newDue, Status: "open", CreatedAtMs: now, UpdatedAtMs: now,
				}); err != nil {
					return err
				}
				if err := s.appendOp(tx, OpTodoRecurrence, TodoRecurrence{TodoID: nextID, SeriesID: series, RuleJSON: ruleJSON}); err != nil {
					return err
				}
			}
		}

		activityID := uuid.NewString()
		if _, err := tx.Exec(`INSERT INTO todo_activities(id, todo_id, activity_type, from_status, to_status, created_at_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			activityID, id, TodoActivityStatusChange, prevStatus, newStatus, now); err != nil {
			return err
		}
		if err := s.appendOp(tx, OpTodoActivity, todoActivityOpPayload{
			ID: activityID, TodoID: id, ActivityType: TodoActivityStatusChange,
			FromStatus: &prevStatus, ToStatus: &newStatus, CreatedAtMs: now,
		}); err != nil {
			return err
		}

		return s.appendOp(tx, OpTodoStatus, todoStatusOpPayload{
			ID: id, FromStatus: prevStatus, ToStatus: newStatus, AtMs: now, SeriesID: seriesID,
		})
	})
}

// GetTodo decrypts and returns a single todo.
func (s *Store) GetTodo(id string) (*Todo, error) {
	var t Todo
	t.ID = id
	var titleBlob []byte
	var needsEmbedding int
	err := s.DB.QueryRow(`SELECT title, due_at_ms, status, source_entry_id, review_stage,
			next_review_at_ms, last_review_at_ms, created_at_ms, updated_at_ms, needs_embedding
		FROM todos WHERE id = ?`, id).
		Scan(&titleBlob, &t.DueAtMs, &t.Status, &t.SourceEntryID, &t.ReviewStage,
			&t.NextReviewAtMs, &t.LastReviewAtMs, &t.CreatedAtMs, &t.UpdatedAtMs, &needsEmbedding)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("todo %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	title, err := crypto.Decrypt(s.Key, titleBlob, crypto.TodoTitleAAD(id))
	if err != nil {
		return nil, err
	}
	t.Title = string(title)
	t.NeedsEmbedding = needsEmbedding != 0
	return &t, nil
}

// ListTodos returns every todo, newest-updated first.
func (s *Store) ListTodos() ([]Todo, error) {
	rows, err := s.DB.Query(`SELECT id, title, due_at_ms, status, source_entry_id, review_stage,
			next_review_at_ms, last_review_at_ms, created_at_ms, updated_at_ms, needs_embedding
		FROM todos ORDER BY updated_at_ms DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Todo
	for rows.Next() {
		var t Todo
		var titleBlob []byte
		var needsEmbedding int
		if err := rows.Scan(&t.ID, &titleBlob, &t.DueAtMs, &t.Status, &t.SourceEntryID, &t.ReviewStage,
			&t.NextReviewAtMs, &t.LastReviewAtMs, &t.CreatedAtMs, &t.UpdatedAtMs, &needsEmbedding); err != nil {
			return nil, err
		}
		title, err := crypto.Decrypt(s.Key, titleBlob, crypto.TodoTitleAAD(t.ID))
		if err != nil {
			return nil, err
		}
		t.Title = string(title)
		t.NeedsEmbedding = needsEmbedding != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTodo cascades to activities, recurrence, and emits a tombstone.
func (s *Store) DeleteTodo(id string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT source_message_id FROM todo_activities
			WHERE todo_id = ? AND activity_type = ? AND source_message_id IS NOT NULL`, id, TodoActivityNote)
		if err != nil {
			return err
		}
		var synthMessageIDs []string
		for rows.Next() {
			var msgID string
			if err := rows.Scan(&msgID); err != nil {
				rows.Close()
				return err
			}
			synthMessageIDs = append(synthMessageIDs, msgID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()
		for _, msgID := range synthMessageIDs {
			if _, err := tx.Exec(`DELETE FROM message_embedding_rows WHERE message_id = ?`, msgID); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, msgID); err != nil {
				return err
			}
			if err := s.markTombstoneTx(tx, tombstoneMessage, msgID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM todo_embedding_rows WHERE entity_kind = 'todo_activity'
			AND entity_id IN (SELECT id FROM todo_activities WHERE todo_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_activities WHERE todo_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_embedding_rows WHERE entity_id = ? AND entity_kind = 'todo'`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_recurrence WHERE todo_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todos WHERE id = ?`, id); err != nil {
			return err
		}
		if err := s.markTombstoneTx(tx, tombstoneTodo, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpTodoDelete, map[string]string{"id": id})
	})
}

// PendingEmbeddingTodoIDs returns todo ids flagged needs_embedding, for
// internal/vectorindex's todo-thread reindex loop. Reading a todo during
// search never sets this flag; only a title/status write does.
func (s *Store) PendingEmbeddingTodoIDs(limit int) ([]string, error) {
	rows, err := s.DB.Query(`SELECT id FROM todos WHERE needs_embedding = 1 ORDER BY updated_at_ms ASC LIMIT ?`, limit)
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

// ClearTodoNeedsEmbedding marks a todo as embedded for the current model.
func (s *Store) ClearTodoNeedsEmbedding(id string) error {
	_, err := s.DB.Exec(`UPDATE todos SET needs_embedding = 0 WHERE id = ?`, id)
	return err
}
