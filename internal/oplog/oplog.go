// Package oplog defines the append-only operation catalogue shared by the
// local store and the sync engine, plus the canonical JSON encoding that
// keeps independently-produced payloads byte-identical across devices.
package oplog

import (
	"encoding/json"
	"sort"
)

// Type names match the operation catalogue exactly; both C4 (the local
// store, appending) and C9 (the sync engine, applying) key off these.
const (
	ConversationUpsert  = "conversation.upsert.v1"
	MessageSet          = "message.set.v2"
	MessageDelete       = "message.delete.v1"
	ConversationDelete  = "conversation.delete.v1"
	TodoUpsert          = "todo.upsert.v1"
	TodoStatus          = "todo.status.v1"
	TodoDelete          = "todo.delete.v1"
	TodoRecurrence      = "todo.recurrence.v1"
	TodoActivity        = "todo.activity.v1"
	EventUpsert         = "event.upsert.v1"
	AttachmentMeta      = "attachment.meta.v1"
	AttachmentEXIF      = "attachment.exif.v1"
	AttachmentAnnot     = "attachment.annotation.v1"
	AttachmentPlace     = "attachment.place.v1"
	TagUpsert           = "tag.upsert.v1"
	MessageTagSet       = "message_tag.set.v1"
	TagMerge            = "tag.merge.v1"
	TagMergeFeedback    = "tag.merge_feedback.v1"
	TopicThreadUpsert   = "topic_thread.upsert.v1"
	TopicThreadMessages = "topic_thread.messages.v1"
)

// Op is one row of the append-only log, as produced locally or received
// from a remote device during pull (§4.4/§4.6).
type Op struct {
	OpID        string `json:"op_id"`
	DeviceID    string `json:"device_id"`
	Seq         int64  `json:"seq"`
	TsMs        int64  `json:"ts_ms"`
	Type        string `json:"type"`
	PayloadJSON string `json:"payload_json"`
}

// CanonicalJSON marshals v with sorted object keys so that two producers of
// the same logical payload byte-match (stable key order is required for
// packed/byte-compared replication).
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonicalMarshal(generic)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			ib, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ib...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}
