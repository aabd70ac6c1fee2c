package store

import (
	"database/sql"
	"errors"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

type eventOpPayload struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	StartAtMs     int64   `json:"start_at_ms"`
	EndAtMs       int64   `json:"end_at_ms"`
	TZ            string  `json:"tz"`
	SourceEntryID *string `json:"source_entry_id,omitempty"`
}

// UpsertEvent writes the event row and appends an event.upsert.v1 op.
func (s *Store) UpsertEvent(e Event) error {
	return s.WithTx(func(tx *sql.Tx) error {
		titleBlob, err := crypto.Encrypt(s.Key, []byte(e.Title), crypto.EventTitleAAD(e.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO events(id, title, start_at_ms, end_at_ms, tz, source_entry_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, start_at_ms = excluded.start_at_ms,
				end_at_ms = excluded.end_at_ms, tz = excluded.tz, source_entry_id = excluded.source_entry_id`,
			e.ID, titleBlob, e.StartAtMs, e.EndAtMs, e.TZ, e.SourceEntryID)
		if err != nil {
			return err
		}
		return s.appendOp(tx, OpEventUpsert, eventOpPayload{
			ID: e.ID, Title: e.Title, StartAtMs: e.StartAtMs, EndAtMs: e.EndAtMs, TZ: e.TZ, SourceEntryID: e.SourceEntryID,
		})
	})
}

// GetEvent decrypts and returns a single event.
func (s *Store) GetEvent(id string) (*Event, error) {
	var e Event
	e.ID = id
	var titleBlob []byte
	err := s.DB.QueryRow(`SELECT title, start_at_ms, end_at_ms, tz, source_entry_id FROM events WHERE id = ?`, id).
		Scan(&titleBlob, &e.StartAtMs, &e.EndAtMs, &e.TZ, &e.SourceEntryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("event %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	title, err := crypto.Decrypt(s.Key, titleBlob, crypto.EventTitleAAD(id))
	if err != nil {
		return nil, err
	}
	e.Title = string(title)
	return &e, nil
}

// ListEventsInRange returns events overlapping [fromMs, toMs), ordered by start time.
func (s *Store) ListEventsInRange(fromMs, toMs int64) ([]Event, error) {
	rows, err := s.DB.Query(`SELECT id, title, start_at_ms, end_at_ms, tz, source_entry_id
		FROM events WHERE start_at_ms < ? AND end_at_ms > ? ORDER BY start_at_ms ASC`, toMs, fromMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var titleBlob []byte
		if err := rows.Scan(&e.ID, &titleBlob, &e.StartAtMs, &e.EndAtMs, &e.TZ, &e.SourceEntryID); err != nil {
			return nil, err
		}
		title, err := crypto.Decrypt(s.Key, titleBlob, crypto.EventTitleAAD(e.ID))
		if err != nil {
			return nil, err
		}
		e.Title = string(title)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEvent removes the event row.
func (s *Store) DeleteEvent(id string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM events WHERE id = ?`, id); err != nil {
			return err
		}
		return s.appendOp(tx, OpEventUpsert, map[string]any{"id": id, "deleted": true})
	})
}
