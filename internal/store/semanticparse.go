package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/dale0525/secondloop/internal/verr"
)

// EnqueueSemanticParseJob marks a message pending LLM-driven todo/event
// extraction. Re-enqueuing an already-pending job is a no-op.
func (s *Store) EnqueueSemanticParseJob(messageID string) error {
	_, err := s.DB.Exec(`INSERT INTO semantic_parse_jobs(message_id, status, attempts)
		VALUES (?, ?, 0)
		ON CONFLICT(message_id) DO NOTHING`, messageID, SemanticParseStatusPending)
	return err
}

// MarkSemanticParseRunning transitions a job to running.
func (s *Store) MarkSemanticParseRunning(messageID string) error {
	res, err := s.DB.Exec(`UPDATE semantic_parse_jobs SET status = ? WHERE message_id = ?`,
		SemanticParseStatusRunning, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return verr.NotFound("semantic parse job %s not found", messageID)
	}
	return nil
}

// MarkSemanticParseSucceeded records the todo/event ids the job created.
func (s *Store) MarkSemanticParseSucceeded(messageID string, todoIDs, eventIDs []string) error {
	todoJSON, err := json.Marshal(todoIDs)
	if err != nil {
		return err
	}
	eventJSON, err := json.Marshal(eventIDs)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`UPDATE semantic_parse_jobs SET status = ?, applied_todo_ids = ?, applied_event_ids = ?,
		next_retry_at_ms = NULL WHERE message_id = ?`,
		SemanticParseStatusSucceeded, string(todoJSON), string(eventJSON), messageID)
	return err
}

// MarkSemanticParseFailed bumps attempts and schedules a bounded exponential
// backoff retry.
func (s *Store) MarkSemanticParseFailed(messageID string) error {
	var attempts int
	if err := s.DB.QueryRow(`SELECT attempts FROM semantic_parse_jobs WHERE message_id = ?`, messageID).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return verr.NotFound("semantic parse job %s not found", messageID)
		}
		return err
	}
	attempts++
	now := nowMs()
	next := nextRetryAtMs(now, attempts)
	_, err := s.DB.Exec(`UPDATE semantic_parse_jobs SET status = ?, attempts = ?, next_retry_at_ms = ? WHERE message_id = ?`,
		SemanticParseStatusFailed, attempts, next, messageID)
	return err
}

// MarkSemanticParseCanceled cancels a pending/failed job outright.
func (s *Store) MarkSemanticParseCanceled(messageID string) error {
	_, err := s.DB.Exec(`UPDATE semantic_parse_jobs SET status = ? WHERE message_id = ?`, SemanticParseStatusCanceled, messageID)
	return err
}

// UndoSemanticParseJob deletes every todo/event the job applied and marks it
// undone; it does not resurrect the job to pending.
func (s *Store) UndoSemanticParseJob(messageID string) error {
	job, err := s.GetSemanticParseJob(messageID)
	if err != nil {
		return err
	}
	for _, todoID := range job.AppliedTodoIDs {
		if err := s.DeleteTodo(todoID); err != nil && !errors.As(err, new(*verr.NotFoundError)) {
			return err
		}
	}
	for _, eventID := range job.AppliedEventIDs {
		if err := s.DeleteEvent(eventID); err != nil && !errors.As(err, new(*verr.NotFoundError)) {
			return err
		}
	}
	now := nowMs()
	_, err = s.DB.Exec(`UPDATE semantic_parse_jobs SET undone_at_ms = ? WHERE message_id = ?`, now, messageID)
	return err
}

// GetSemanticParseJob returns a job's current state.
func (s *Store) GetSemanticParseJob(messageID string) (*SemanticParseJob, error) {
	var j SemanticParseJob
	j.MessageID = messageID
	var todoJSON, eventJSON sql.NullString
	err := s.DB.QueryRow(`SELECT status, attempts, next_retry_at_ms, applied_todo_ids, applied_event_ids, undone_at_ms
		FROM semantic_parse_jobs WHERE message_id = ?`, messageID).
		Scan(&j.Status, &j.Attempts, &j.NextRetryAtMs, &todoJSON, &eventJSON, &j.UndoneAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("semantic parse job %s not found", messageID)
	}
	if err != nil {
		return nil, err
	}
	if todoJSON.Valid {
		if err := json.Unmarshal([]byte(todoJSON.String), &j.AppliedTodoIDs); err != nil {
			return nil, err
		}
	}
	if eventJSON.Valid {
		if err := json.Unmarshal([]byte(eventJSON.String), &j.AppliedEventIDs); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

// PendingSemanticParseJobs returns message ids due for (re)processing.
func (s *Store) PendingSemanticParseJobs(nowMs int64, limit int) ([]string, error) {
	rows, err := s.DB.Query(`SELECT message_id FROM semantic_parse_jobs
		WHERE status IN (?, ?) AND (next_retry_at_ms IS NULL OR next_retry_at_ms <= ?)
		ORDER BY message_id ASC LIMIT ?`, SemanticParseStatusPending, SemanticParseStatusFailed, nowMs, limit)
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
