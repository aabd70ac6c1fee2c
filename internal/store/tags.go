package store

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

type tagOpPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

type tagMergeFeedbackOpPayload struct {
	ID          string `json:"id"`
	SourceTagID string `json:"source_tag_id"`
	TargetTagID string `json:"target_tag_id"`
	Reason      string `json:"reason"`
	Action      string `json:"action"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// UpsertTag creates a tag by name if it doesn't already exist (case-sensitive
// match), otherwise returns the existing one unmodified.
func (s *Store) UpsertTag(name string) (Tag, error) {
	var out Tag
	err := s.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id, name, created_at_ms FROM tags`)
		if err != nil {
			return err
		}
		var existingID string
		var existingCreated int64
		found := false
		for rows.Next() {
			var id string
			var nameBlob []byte
			var created int64
			if err := rows.Scan(&id, &nameBlob, &created); err != nil {
				rows.Close()
				return err
			}
			decName, err := crypto.Decrypt(s.Key, nameBlob, crypto.TagNameAAD(id))
			if err != nil {
				rows.Close()
				return err
			}
			if string(decName) == name {
				existingID = id
				existingCreated = created
				found = true
				break
			}
		}
		rows.Close()
		if found {
			out = Tag{ID: existingID, Name: name, CreatedAtMs: existingCreated}
			return nil
		}

		id := uuid.NewString()
		now := nowMs()
		nameBlob, err := crypto.Encrypt(s.Key, []byte(name), crypto.TagNameAAD(id))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO tags(id, name, created_at_ms) VALUES (?, ?, ?)`, id, nameBlob, now); err != nil {
			return err
		}
		out = Tag{ID: id, Name: name, CreatedAtMs: now}
		return s.appendOp(tx, OpTagUpsert, tagOpPayload{ID: id, Name: name, CreatedAtMs: now})
	})
	return out, err
}

// ListTags returns every tag.
func (s *Store) ListTags() ([]Tag, error) {
	rows, err := s.DB.Query(`SELECT id, name, created_at_ms FROM tags ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		var nameBlob []byte
		if err := rows.Scan(&t.ID, &nameBlob, &t.CreatedAtMs); err != nil {
			return nil, err
		}
		name, err := crypto.Decrypt(s.Key, nameBlob, crypto.TagNameAAD(t.ID))
		if err != nil {
			return nil, err
		}
		t.Name = string(name)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListMessageTags returns the tags attached to a message.
func (s *Store) ListMessageTags(messageID string) ([]Tag, error) {
	rows, err := s.DB.Query(`SELECT t.id, t.name, t.created_at_ms FROM tags t
		JOIN message_tags mt ON mt.tag_id = t.id WHERE mt.message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		var nameBlob []byte
		if err := rows.Scan(&t.ID, &nameBlob, &t.CreatedAtMs); err != nil {
			return nil, err
		}
		name, err := crypto.Decrypt(s.Key, nameBlob, crypto.TagNameAAD(t.ID))
		if err != nil {
			return nil, err
		}
		t.Name = string(name)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetMessageTags replaces the full tag set for a message with tagIDs.
func (s *Store) SetMessageTags(messageID string, tagIDs []string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM message_tags WHERE message_id = ?`, messageID); err != nil {
			return err
		}
		for _, tagID := range tagIDs {
			if _, err := tx.Exec(`INSERT INTO message_tags(message_id, tag_id) VALUES (?, ?)`, messageID, tagID); err != nil {
				return err
			}
		}
		return s.appendOp(tx, OpMessageTagSet, map[string]any{"message_id": messageID, "tag_ids": tagIDs})
	})
}

// MessageIDsByTagIDs returns distinct message ids within a conversation that
// carry any of tagIDs.
func (s *Store) MessageIDsByTagIDs(conversationID string, tagIDs []string) ([]string, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT mt.message_id FROM message_tags mt
		JOIN messages m ON m.id = mt.message_id
		WHERE m.conversation_id = ? AND mt.tag_id IN (` + placeholders(len(tagIDs)) + `)`
	args := make([]any, 0, len(tagIDs)+1)
	args = append(args, conversationID)
	for _, id := range tagIDs {
		args = append(args, id)
	}
	rows, err := s.DB.Query(query, args...)
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

// ListMessageSuggestedTags returns tag names not yet applied to messageID,
// ranked by how often they co-occur with messageID's current tags elsewhere
// in the same conversation (§5 supplemental: a read-only derived view, never
// an oplog-visible mutation — nothing here is applied until a caller turns a
// suggestion into a SetMessageTags call).
func (s *Store) ListMessageSuggestedTags(messageID string, limit int) ([]string, error) {
	var conversationID string
	if err := s.DB.QueryRow(`SELECT conversation_id FROM messages WHERE id = ?`, messageID).Scan(&conversationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, verr.NotFound("message %s not found", messageID)
		}
		return nil, err
	}

	rows, err := s.DB.Query(`
		SELECT t.id, t.name, COUNT(*) AS freq
		FROM message_tags mt
		JOIN messages m ON m.id = mt.message_id
		JOIN tags t ON t.id = mt.tag_id
		WHERE m.conversation_id = ?
		  AND mt.message_id != ?
		  AND mt.tag_id NOT IN (SELECT tag_id FROM message_tags WHERE message_id = ?)
		GROUP BY t.id, t.name
		ORDER BY freq DESC, t.created_at_ms ASC
		LIMIT ?`, conversationID, messageID, messageID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		var nameBlob []byte
		var freq int
		if err := rows.Scan(&id, &nameBlob, &freq); err != nil {
			return nil, err
		}
		name, err := crypto.Decrypt(s.Key, nameBlob, crypto.TagNameAAD(id))
		if err != nil {
			return nil, err
		}
		out = append(out, string(name))
	}
	return out, rows.Err()
}

// RecordTagMergeSuggestion persists a candidate merge surfaced by the
// suggestion pipeline (not an oplog-visible operation: suggestions are local
// derived data, regenerated independently per device).
func (s *Store) RecordTagMergeSuggestion(sug TagMergeSuggestion) error {
	sampleJSON, err := json.Marshal(sug.SampleMessageIDs)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO tag_merge_suggestions(id, source_tag_id, target_tag_id, score, sample_message_ids, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sug.ID, sug.SourceTagID, sug.TargetTagID, sug.Score, string(sampleJSON), sug.CreatedAtMs)
	return err
}

// ListTagMergeSuggestions returns the most recent suggestions, newest first.
func (s *Store) ListTagMergeSuggestions(limit int) ([]TagMergeSuggestion, error) {
	rows, err := s.DB.Query(`SELECT id, source_tag_id, target_tag_id, score, sample_message_ids, created_at_ms
		FROM tag_merge_suggestions ORDER BY created_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TagMergeSuggestion
	for rows.Next() {
		var sug TagMergeSuggestion
		var sampleJSON sql.NullString
		if err := rows.Scan(&sug.ID, &sug.SourceTagID, &sug.TargetTagID, &sug.Score, &sampleJSON, &sug.CreatedAtMs); err != nil {
			return nil, err
		}
		if sampleJSON.Valid {
			if err := json.Unmarshal([]byte(sampleJSON.String), &sug.SampleMessageIDs); err != nil {
				return nil, err
			}
		}
		out = append(out, sug)
	}
	return out, rows.Err()
}

// MergeTags repoints every message_tags row from sourceTagID to
// targetTagID, deletes the source tag, and returns the number of
// message_tags rows rewritten. Both tags must already exist.
func (s *Store) MergeTags(sourceTagID, targetTagID string) (int, error) {
	var affected int
	err := s.WithTx(func(tx *sql.Tx) error {
		for _, id := range []string{sourceTagID, targetTagID} {
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM tags WHERE id = ?`, id).Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				return verr.NotFound("tag %s not found", id)
			}
		}

		rows, err := tx.Query(`SELECT message_id FROM message_tags WHERE tag_id = ?`, sourceTagID)
		if err != nil {
			return err
		}
		var messageIDs []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			messageIDs = append(messageIDs, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, messageID := range messageIDs {
			var alreadyTagged int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM message_tags WHERE message_id = ? AND tag_id = ?`,
				messageID, targetTagID).Scan(&alreadyTagged); err != nil {
				return err
			}
			if alreadyTagged == 0 {
				if _, err := tx.Exec(`INSERT INTO message_tags(message_id, tag_id) VALUES (?, ?)`, messageID, targetTagID); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(`DELETE FROM message_tags WHERE message_id = ? AND tag_id = ?`, messageID, sourceTagID); err != nil {
				return err
			}
			affected++
		}

		if _, err := tx.Exec(`DELETE FROM tags WHERE id = ?`, sourceTagID); err != nil {
			return err
		}

		return s.appendOp(tx, OpTagMerge, map[string]string{
			"source_tag_id": sourceTagID,
			"target_tag_id": targetTagID,
		})
	})
	return affected, err
}

// RecordTagMergeFeedback logs whether a suggested merge was accepted,
// rejected, or ignored, so the suggestion pipeline can avoid repeating it.
func (s *Store) RecordTagMergeFeedback(fb TagMergeFeedback) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO tag_merge_feedback(id, source_tag_id, target_tag_id, reason, action, created_at_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			fb.ID, fb.SourceTagID, fb.TargetTagID, fb.Reason, fb.Action, fb.CreatedAtMs); err != nil {
			return err
		}
		return s.appendOp(tx, OpTagMergeFeedback, tagMergeFeedbackOpPayload{
			ID: fb.ID, SourceTagID: fb.SourceTagID, TargetTagID: fb.TargetTagID,
			Reason: fb.Reason, Action: fb.Action, CreatedAtMs: fb.CreatedAtMs,
		})
	})
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

