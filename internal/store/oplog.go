package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/oplog"
)

// OpType names re-exported for callers inside this package; the canonical
// definitions live in internal/oplog so the sync engine can share them.
const (
	OpConversationUpsert  = oplog.ConversationUpsert
	OpMessageSet          = oplog.MessageSet
	OpMessageDelete       = oplog.MessageDelete
	OpConversationDelete  = oplog.ConversationDelete
	OpTodoUpsert          = oplog.TodoUpsert
	OpTodoStatus          = oplog.TodoStatus
	OpTodoDelete          = oplog.TodoDelete
	OpTodoRecurrence      = oplog.TodoRecurrence
	OpTodoActivity        = oplog.TodoActivity
	OpEventUpsert         = oplog.EventUpsert
	OpAttachmentMeta      = oplog.AttachmentMeta
	OpAttachmentEXIF      = oplog.AttachmentEXIF
	OpAttachmentAnnot     = oplog.AttachmentAnnot
	OpAttachmentPlace     = oplog.AttachmentPlace
	OpTagUpsert           = oplog.TagUpsert
	OpMessageTagSet       = oplog.MessageTagSet
	OpTagMerge            = oplog.TagMerge
	OpTagMergeFeedback    = oplog.TagMergeFeedback
	OpTopicThreadUpsert   = oplog.TopicThreadUpsert
	OpTopicThreadMessages = oplog.TopicThreadMessages
)

// CanonicalJSON re-exports oplog.CanonicalJSON for this package's callers.
func CanonicalJSON(v any) ([]byte, error) { return oplog.CanonicalJSON(v) }

// appendOp inserts one outbound oplog row for the local device within tx,
// assigning the next monotonic seq for that device (invariant 3).
func (s *Store) appendOp(tx *sql.Tx, opType string, payload any) error {
	deviceID, err := s.deviceIDTx(tx)
	if err != nil {
		return err
	}
	canon, err := oplog.CanonicalJSON(payload)
	if err != nil {
		return err
	}
	var maxSeq sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM oplog WHERE device_id = ?`, deviceID).Scan(&maxSeq); err != nil {
		return err
	}
	seq := int64(1)
	if maxSeq.Valid {
		seq = maxSeq.Int64 + 1
	}
	_, err = tx.Exec(`INSERT INTO oplog(op_id, device_id, seq, ts_ms, type, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), deviceID, seq, nowMs(), opType, string(canon))
	return err
}

func (s *Store) deviceIDTx(tx *sql.Tx) (string, error) {
	id, ok, err := s.kvGet(tx, KVDeviceID)
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = uuid.NewString()
	if err := s.kvSet(tx, KVDeviceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// OplogRow is a typed read of one persisted oplog entry, used by the sync
// engine when enumerating local ops to push.
type OplogRow struct {
	OpID        string
	DeviceID    string
	Seq         int64
	TsMs        int64
	Type        string
	PayloadJSON string
}

// OpsSince returns this device's own ops with seq > afterSeq, ascending,
// for the push path.
func (s *Store) OpsSince(deviceID string, afterSeq int64, limit int) ([]OplogRow, error) {
	rows, err := s.DB.Query(`SELECT op_id, device_id, seq, ts_ms, type, payload_json
		FROM oplog WHERE device_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`, deviceID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OplogRow
	for rows.Next() {
		var r OplogRow
		if err := rows.Scan(&r.OpID, &r.DeviceID, &r.Seq, &r.TsMs, &r.Type, &r.PayloadJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
