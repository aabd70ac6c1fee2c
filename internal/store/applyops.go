package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dale0525/secondloop/internal/crypto"
)

// ApplyRemoteOp applies one op pulled from a remote device's oplog to local
// state. Every branch duplicates the write half of the matching local
// mutation method but never calls appendOp: re-emitting an op for state that
// arrived FROM a remote device would have every device echo every other
// device's ops back out forever. Conflict resolution is the caller's
// responsibility — the sync engine applies ops in global (ts_ms, device_id,
// seq) order, so the blind "ON CONFLICT DO UPDATE" writes below land in that
// order and implement last-writer-wins purely through apply order (§5).
func (s *Store) ApplyRemoteOp(opType, payloadJSON string) error {
	switch opType {
	case OpConversationUpsert:
		return s.applyConversationUpsert(payloadJSON)
	case OpMessageSet:
		return s.applyMessageSet(payloadJSON)
	case OpMessageDelete:
		return s.applyIDDelete(payloadJSON, func(tx *sql.Tx, id string) error {
			if _, err := tx.Exec(`DELETE FROM message_embedding_rows WHERE message_id = ?`, id); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, id); err != nil {
				return err
			}
			return s.markTombstoneTx(tx, tombstoneMessage, id)
		})
	case OpConversationDelete:
		return s.applyIDDelete(payloadJSON, func(tx *sql.Tx, id string) error {
			if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
				return err
			}
			return s.markTombstoneTx(tx, tombstoneConversation, id)
		})
	case OpTodoUpsert:
		return s.applyTodoUpsert(payloadJSON)
	case OpTodoStatus:
		return s.applyTodoStatus(payloadJSON)
	case OpTodoDelete:
		return s.applyTodoDelete(payloadJSON)
	case OpTodoRecurrence:
		return s.applyTodoRecurrence(payloadJSON)
	case OpTodoActivity:
		return s.applyTodoActivity(payloadJSON)
	case OpEventUpsert:
		return s.applyEventUpsert(payloadJSON)
	case OpAttachmentMeta:
		return s.applyAttachmentMeta(payloadJSON)
	case OpAttachmentEXIF:
		return s.applyAttachmentEXIF(payloadJSON)
	case OpAttachmentAnnot:
		return s.applyAttachmentAnnot(payloadJSON)
	case OpAttachmentPlace:
		return s.applyAttachmentPlace(payloadJSON)
	case OpTagUpsert:
		return s.applyTagUpsert(payloadJSON)
	case OpMessageTagSet:
		return s.applyMessageTagSet(payloadJSON)
	case OpTagMerge:
		return s.applyTagMerge(payloadJSON)
	case OpTagMergeFeedback:
		return s.applyTagMergeFeedback(payloadJSON)
	case OpTopicThreadUpsert:
		return s.applyTopicThreadUpsert(payloadJSON)
	case OpTopicThreadMessages:
		return s.applyTopicThreadMessages(payloadJSON)
	default:
		return fmt.Errorf("apply remote op: unknown op type %q", opType)
	}
}

// applyIDDelete handles the common {"id": "..."} delete payload shape shared
// by conversation.delete and message.delete.
func (s *Store) applyIDDelete(payloadJSON string, fn func(tx *sql.Tx, id string) error) error {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		return fn(tx, p.ID)
	})
}

func (s *Store) applyConversationUpsert(payloadJSON string) error {
	var p conversationOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		tombstoned, err := s.isTombstonedTx(tx, tombstoneConversation, p.ID)
		if err != nil {
			return err
		}
		if tombstoned {
			return nil
		}
		titleBlob, err := crypto.Encrypt(s.Key, []byte(p.Title), crypto.ConversationTitleAAD(p.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO conversations(id, title, created_at_ms, updated_at_ms)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at_ms = excluded.updated_at_ms`,
			p.ID, titleBlob, p.CreatedAtMs, p.UpdatedAtMs)
		return err
	})
}

func (s *Store) applyMessageSet(payloadJSON string) error {
	var p messageOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		tombstoned, err := s.isTombstonedTx(tx, tombstoneMessage, p.ID)
		if err != nil {
			return err
		}
		if tombstoned {
			return nil
		}
		contentBlob, err := crypto.Encrypt(s.Key, []byte(p.Content), crypto.MessageContentAAD(p.ID))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO messages(id, conversation_id, role, content, created_at_ms, is_memory, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				is_memory = excluded.is_memory,
				needs_embedding = excluded.needs_embedding`,
			p.ID, p.ConversationID, p.Role, contentBlob, p.CreatedAtMs, boolToInt(p.IsMemory), boolToInt(p.IsMemory)); err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE conversations SET updated_at_ms = ? WHERE id = ?`, p.CreatedAtMs, p.ConversationID)
		return err
	})
}

func (s *Store) applyTodoUpsert(payloadJSON string) error {
	var p todoOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		tombstoned, err := s.isTombstonedTx(tx, tombstoneTodo, p.ID)
		if err != nil {
			return err
		}
		if tombstoned {
			return nil
		}
		titleBlob, err := crypto.Encrypt(s.Key, []byte(p.Title), crypto.TodoTitleAAD(p.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO todos(id, title, due_at_ms, status, source_entry_id,
				created_at_ms, updated_at_ms, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				due_at_ms = excluded.due_at_ms,
				status = excluded.status,
				source_entry_id = excluded.source_entry_id,
				updated_at_ms = excluded.updated_at_ms,
				needs_embedding = 1`,
			p.ID, titleBlob, p.DueAtMs, p.Status, p.SourceEntryID, p.CreatedAtMs, p.UpdatedAtMs)
		return err
	})
}

func (s *Store) applyTodoStatus(payloadJSON string) error {
	var p todoStatusOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var err error
		if p.ToStatus != ReviewRelevantStatus {
			_, err = tx.Exec(`UPDATE todos SET status = ?, updated_at_ms = ?,
				review_stage = NULL, next_review_at_ms = NULL, needs_embedding = 1 WHERE id = ?`,
				p.ToStatus, p.AtMs, p.ID)
		} else {
			_, err = tx.Exec(`UPDATE todos SET status = ?, updated_at_ms = ?, needs_embedding = 1 WHERE id = ?`,
				p.ToStatus, p.AtMs, p.ID)
		}
		return err
	})
}

// applyTodoDelete mirrors DeleteTodo's full cascade, including the
// synthesized note messages it removes directly (those were never given
// their own message.delete op, so the cascade has to happen here too).
func (s *Store) applyTodoDelete(payloadJSON string) error {
	var p struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT source_message_id FROM todo_activities
			WHERE todo_id = ? AND activity_type = ? AND source_message_id IS NOT NULL`, p.ID, TodoActivityNote)
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
			AND entity_id IN (SELECT id FROM todo_activities WHERE todo_id = ?)`, p.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_activities WHERE todo_id = ?`, p.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_embedding_rows WHERE entity_id = ? AND entity_kind = 'todo'`, p.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todo_recurrence WHERE todo_id = ?`, p.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM todos WHERE id = ?`, p.ID); err != nil {
			return err
		}
		return s.markTombstoneTx(tx, tombstoneTodo, p.ID)
	})
}

func (s *Store) applyTodoRecurrence(payloadJSON string) error {
	var p TodoRecurrence
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO todo_recurrence(todo_id, series_id, rule_json)
			VALUES (?, ?, ?)
			ON CONFLICT(todo_id) DO UPDATE SET series_id = excluded.series_id, rule_json = excluded.rule_json`,
			p.TodoID, p.SeriesID, p.RuleJSON)
		return err
	})
}

func (s *Store) applyTodoActivity(payloadJSON string) error {
	var p todoActivityOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var contentBlob []byte
		needsEmbedding := 0
		if p.Content != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*p.Content), crypto.TodoActivityContentAAD(p.ID))
			if err != nil {
				return err
			}
			contentBlob = blob
			needsEmbedding = 1
		}
		_, err := tx.Exec(`INSERT INTO todo_activities(id, todo_id, activity_type, from_status, to_status,
				content, source_message_id, created_at_ms, needs_embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			p.ID, p.TodoID, p.ActivityType, p.FromStatus, p.ToStatus, contentBlob, p.SourceMessageID, p.CreatedAtMs, needsEmbedding)
		return err
	})
}

// applyEventUpsert also handles event deletes, which reuse this op type with
// a {"id":..., "deleted":true} payload (events carry no tombstone, matching
// DeleteEvent's own lack of one).
func (s *Store) applyEventUpsert(payloadJSON string) error {
	var probe struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &probe); err != nil {
		return err
	}
	if probe.Deleted {
		return s.WithTx(func(tx *sql.Tx) error {
			_, err := tx.Exec(`DELETE FROM events WHERE id = ?`, probe.ID)
			return err
		})
	}
	var p eventOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		titleBlob, err := crypto.Encrypt(s.Key, []byte(p.Title), crypto.EventTitleAAD(p.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO events(id, title, start_at_ms, end_at_ms, tz, source_entry_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, start_at_ms = excluded.start_at_ms,
				end_at_ms = excluded.end_at_ms, tz = excluded.tz, source_entry_id = excluded.source_entry_id`,
			p.ID, titleBlob, p.StartAtMs, p.EndAtMs, p.TZ, p.SourceEntryID)
		return err
	})
}

// applyAttachmentMeta replays a remote metadata op, unioning filenames and
// source_urls against whatever is already stored locally (§4.4). The
// incoming op only carries the writer's own additions, not a pre-merged
// snapshot, so two devices that both edited the same attachment from a
// common prior state converge instead of one clobbering the other's values
// (title stays last-writer-wins: the incoming value always replaces it).
func (s *Store) applyAttachmentMeta(payloadJSON string) error {
	var p attachmentMetaOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		existing, err := s.getAttachmentMetadataTx(tx, p.SHA256)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		merged := attachmentMetaOpPayload{SHA256: p.SHA256, Title: p.Title}
		if errors.Is(err, sql.ErrNoRows) {
			merged.Filenames = dedupeStrings(p.Filenames)
			merged.SourceURLs = dedupeStrings(p.SourceURLs)
		} else {
			merged.Filenames = unionStrings(existing.Filenames, p.Filenames)
			merged.SourceURLs = unionStrings(existing.SourceURLs, p.SourceURLs)
		}
		return s.setAttachmentMetadataTxNoOp(tx, merged)
	})
}

func (s *Store) setAttachmentMetadataTxNoOp(tx *sql.Tx, p attachmentMetaOpPayload) error {
	var titleBlob []byte
	if p.Title != nil {
		blob, err := crypto.Encrypt(s.Key, []byte(*p.Title), crypto.AttachmentTitleAAD(p.SHA256))
		if err != nil {
			return err
		}
		titleBlob = blob
	}
	filenamesBlob, err := s.encryptStringSet(p.SHA256, "filenames", p.Filenames)
	if err != nil {
		return err
	}
	sourceURLsBlob, err := s.encryptStringSet(p.SHA256, "source_urls", p.SourceURLs)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO attachment_metadata(sha256, title, filenames, source_urls)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sha256) DO UPDATE SET title = excluded.title, filenames = excluded.filenames, source_urls = excluded.source_urls`,
		p.SHA256, titleBlob, filenamesBlob, sourceURLsBlob)
	return err
}

func (s *Store) applyAttachmentEXIF(payloadJSON string) error {
	var p attachmentEXIFOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO attachment_exif(sha256, captured_at_ms, lat, lon)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(sha256) DO UPDATE SET captured_at_ms = excluded.captured_at_ms, lat = excluded.lat, lon = excluded.lon`,
			p.SHA256, p.CapturedAtMs, p.Lat, p.Lon)
		return err
	})
}

func (s *Store) applyAttachmentAnnot(payloadJSON string) error {
	var p attachmentAnnotationOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var payloadBlob []byte
		if p.Payload != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*p.Payload), fieldAAD(p.SHA256, "annotation"))
			if err != nil {
				return err
			}
			payloadBlob = blob
		}
		_, err := tx.Exec(`INSERT INTO attachment_annotations(sha256, status, lang, model, payload, attempts)
			VALUES (?, ?, ?, ?, ?, 0)
			ON CONFLICT(sha256) DO UPDATE SET status = excluded.status, lang = excluded.lang,
				model = excluded.model, payload = excluded.payload,
				last_error = NULL, last_error_at_ms = NULL, next_retry_at_ms = NULL`,
			p.SHA256, p.Status, p.Lang, p.Model, payloadBlob)
		return err
	})
}

func (s *Store) applyAttachmentPlace(payloadJSON string) error {
	var p attachmentPlaceOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var displayBlob []byte
		if p.DisplayName != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*p.DisplayName), fieldAAD(p.SHA256, "place"))
			if err != nil {
				return err
			}
			displayBlob = blob
		}
		_, err := tx.Exec(`INSERT INTO attachment_places(sha256, status, display_name, attempts)
			VALUES (?, ?, ?, 0)
			ON CONFLICT(sha256) DO UPDATE SET status = excluded.status, display_name = excluded.display_name,
				last_error = NULL, last_error_at_ms = NULL, next_retry_at_ms = NULL`,
			p.SHA256, p.Status, displayBlob)
		return err
	})
}

func (s *Store) applyTagUpsert(payloadJSON string) error {
	var p tagOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		nameBlob, err := crypto.Encrypt(s.Key, []byte(p.Name), crypto.TagNameAAD(p.ID))
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO tags(id, name, created_at_ms) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING`, p.ID, nameBlob, p.CreatedAtMs)
		return err
	})
}

func (s *Store) applyMessageTagSet(payloadJSON string) error {
	var p struct {
		MessageID string   `json:"message_id"`
		TagIDs    []string `json:"tag_ids"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM message_tags WHERE message_id = ?`, p.MessageID); err != nil {
			return err
		}
		for _, tagID := range p.TagIDs {
			if _, err := tx.Exec(`INSERT INTO message_tags(message_id, tag_id) VALUES (?, ?)
				ON CONFLICT(message_id, tag_id) DO NOTHING`, p.MessageID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

// applyTagMerge skips quietly rather than erroring when either tag id is
// still unknown locally (it can arrive out of the global ts order relative
// to the tag.upsert ops that created them); the sync engine will simply
// re-apply a later merge op for the same pair once both tags exist.
func (s *Store) applyTagMerge(payloadJSON string) error {
	var p struct {
		SourceTagID string `json:"source_tag_id"`
		TargetTagID string `json:"target_tag_id"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		for _, id := range []string{p.SourceTagID, p.TargetTagID} {
			var count int
			if err := tx.QueryRow(`SELECT COUNT(*) FROM tags WHERE id = ?`, id).Scan(&count); err != nil {
				return err
			}
			if count == 0 {
				return nil
			}
		}
		rows, err := tx.Query(`SELECT message_id FROM message_tags WHERE tag_id = ?`, p.SourceTagID)
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
			if _, err := tx.Exec(`INSERT INTO message_tags(message_id, tag_id) VALUES (?, ?)
				ON CONFLICT(message_id, tag_id) DO NOTHING`, messageID, p.TargetTagID); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM message_tags WHERE message_id = ? AND tag_id = ?`,
				messageID, p.SourceTagID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(`DELETE FROM tags WHERE id = ?`, p.SourceTagID)
		return err
	})
}

func (s *Store) applyTagMergeFeedback(payloadJSON string) error {
	var p tagMergeFeedbackOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO tag_merge_feedback(id, source_tag_id, target_tag_id, reason, action, created_at_ms)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			p.ID, p.SourceTagID, p.TargetTagID, p.Reason, p.Action, p.CreatedAtMs)
		return err
	})
}

// applyTopicThreadUpsert also handles thread deletes, which reuse this op
// type with a {"id":..., "deleted":true} payload (DeleteTopicThread has no
// dedicated delete op, same pattern as events).
func (s *Store) applyTopicThreadUpsert(payloadJSON string) error {
	var probe struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &probe); err != nil {
		return err
	}
	if probe.Deleted {
		return s.WithTx(func(tx *sql.Tx) error {
			if _, err := tx.Exec(`DELETE FROM topic_thread_messages WHERE thread_id = ?`, probe.ID); err != nil {
				return err
			}
			_, err := tx.Exec(`DELETE FROM topic_threads WHERE id = ?`, probe.ID)
			return err
		})
	}
	var p topicThreadOpPayload
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		var titleBlob []byte
		if p.Title != nil {
			blob, err := crypto.Encrypt(s.Key, []byte(*p.Title), crypto.TopicThreadTitleAAD(p.ID))
			if err != nil {
				return err
			}
			titleBlob = blob
		}
		_, err := tx.Exec(`INSERT INTO topic_threads(id, conversation_id, title, created_at_ms)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title`,
			p.ID, p.ConversationID, titleBlob, p.CreatedAtMs)
		return err
	})
}

func (s *Store) applyTopicThreadMessages(payloadJSON string) error {
	var p struct {
		ThreadID   string   `json:"thread_id"`
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &p); err != nil {
		return err
	}
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM topic_thread_messages WHERE thread_id = ?`, p.ThreadID); err != nil {
			return err
		}
		for i, msgID := range p.MessageIDs {
			if _, err := tx.Exec(`INSERT INTO topic_thread_messages(thread_id, position, message_id) VALUES (?, ?, ?)`,
				p.ThreadID, i, msgID); err != nil {
				return err
			}
		}
		return nil
	})
}
