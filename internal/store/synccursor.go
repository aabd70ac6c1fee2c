package store

import (
	"encoding/json"
	"fmt"
)

// Per-target cursors (§4.8): push_cursor[target_id] tracks the highest seq
// this device has uploaded to that target; pull_cursor[target_id] tracks,
// per remote device, the highest seq already applied from that target. Both
// live in kv as small JSON maps keyed by device_id.

func pushCursorKey(targetID string) string { return fmt.Sprintf("push_cursor:%s", targetID) }
func pullCursorKey(targetID string) string { return fmt.Sprintf("pull_cursor:%s", targetID) }

// GetPushCursor returns this device's last-pushed seq for targetID.
func (s *Store) GetPushCursor(targetID string) (int64, error) {
	val, ok, err := s.kvGet(s.DB, pushCursorKey(targetID))
	if err != nil || !ok {
		return 0, err
	}
	var seq int64
	if err := json.Unmarshal([]byte(val), &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// SetPushCursor persists this device's last-pushed seq for targetID.
func (s *Store) SetPushCursor(targetID string, seq int64) error {
	data, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	return s.kvSet(s.DB, pushCursorKey(targetID), string(data))
}

// ClearPushCursor resets targetID's push cursor to zero (remote reset
// detection, §4.8: "clear only that cursor and restart push from seq=1").
func (s *Store) ClearPushCursor(targetID string) error {
	return s.kvDelete(s.DB, pushCursorKey(targetID))
}

// GetPullCursor returns the last-consumed seq from deviceID via targetID.
func (s *Store) GetPullCursor(targetID, deviceID string) (int64, error) {
	cursors, err := s.getPullCursors(targetID)
	if err != nil {
		return 0, err
	}
	return cursors[deviceID], nil
}

// SetPullCursor advances the last-consumed seq from deviceID via targetID.
func (s *Store) SetPullCursor(targetID, deviceID string, seq int64) error {
	cursors, err := s.getPullCursors(targetID)
	if err != nil {
		return err
	}
	cursors[deviceID] = seq
	data, err := json.Marshal(cursors)
	if err != nil {
		return err
	}
	return s.kvSet(s.DB, pullCursorKey(targetID), string(data))
}

func (s *Store) getPullCursors(targetID string) (map[string]int64, error) {
	val, ok, err := s.kvGet(s.DB, pullCursorKey(targetID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]int64{}, nil
	}
	var cursors map[string]int64
	if err := json.Unmarshal([]byte(val), &cursors); err != nil {
		return nil, err
	}
	return cursors, nil
}

// IsAttachmentUploaded reports whether sha256Hex has already been pushed to
// targetID.
func (s *Store) IsAttachmentUploaded(targetID, sha256Hex string) (bool, error) {
	var count int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM sync_attachment_uploads WHERE target_id = ? AND sha256 = ?`,
		targetID, sha256Hex).Scan(&count)
	return count > 0, err
}

// MarkAttachmentUploaded records that sha256Hex has been pushed to targetID.
func (s *Store) MarkAttachmentUploaded(targetID, sha256Hex string) error {
	_, err := s.DB.Exec(`INSERT INTO sync_attachment_uploads(target_id, sha256, uploaded_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(target_id, sha256) DO NOTHING`, targetID, sha256Hex, nowMs())
	return err
}

// ListAttachmentSHA256s returns every attachment's content hash, for the
// push path's "any linked attachment not yet uploaded" scan.
func (s *Store) ListAttachmentSHA256s() ([]string, error) {
	rows, err := s.DB.Query(`SELECT sha256 FROM attachments ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sha256Hex string
		if err := rows.Scan(&sha256Hex); err != nil {
			return nil, err
		}
		out = append(out, sha256Hex)
	}
	return out, rows.Err()
}
