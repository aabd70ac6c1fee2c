package store

import (
	"database/sql"
	"os"
	"path/filepath"
)

// resettableTables lists every user table truncated by a vault reset.
// llm_profiles, llm_usage_daily, and kv are deliberately excluded: profiles
// and usage counters survive, and kv's active_embedding_model_name must
// survive while device_id continues to identify this device post-reset.
var resettableTables = []string{
	"conversations",
	"messages",
	"message_embedding_rows",
	"todos",
	"todo_activities",
	"todo_recurrence",
	"events",
	"tags",
	"message_tags",
	"tag_merge_suggestions",
	"tag_merge_feedback",
	"topic_threads",
	"topic_thread_messages",
	"attachments",
	"attachment_metadata",
	"attachment_exif",
	"attachment_annotations",
	"attachment_places",
	"attachment_variants",
	"cloud_media_backup",
	"semantic_parse_jobs",
	"embedding_profiles",
	"oplog",
	"tombstones",
}

// ResetVaultDataPreservingLlmProfiles truncates every user table except
// llm_profiles, the kv active_embedding_model_name entry, and the auth file
// (untouched by this package), and removes the attachments blob directory.
// It does not emit oplog ops (the oplog itself is truncated).
func (s *Store) ResetVaultDataPreservingLlmProfiles() error {
	err := s.WithTx(func(tx *sql.Tx) error {
		for _, table := range resettableTables {
			if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.AppDir, attachmentsDirName))
}
