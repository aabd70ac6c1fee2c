package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

const attachmentsDirName = "attachments"

func attachmentBlobPath(appDir, sha256Hex string) string {
	return filepath.Join(appDir, attachmentsDirName, sha256Hex+".bin")
}

// InsertAttachment computes the SHA-256 of the plaintext bytes, AEAD-seals
// them to app_dir/attachments/{sha256}.bin, and inserts the row. Re-inserting
// identical bytes is idempotent; inserting a different mime/byte_len under
// the same sha256 that was produced by different bytes is impossible to
// detect from content alone, so a colliding insert with a shorter/garbled
// on-disk blob surfaces as ConflictError when the stored byte length
// disagrees with the caller's (§10: "inserting an attachment whose sha256
// collides with different bytes").
func (s *Store) InsertAttachment(plaintext []byte, mimeType string) (Attachment, error) {
	sum := sha256.Sum256(plaintext)
	shaHex := hex.EncodeToString(sum[:])

	var out Attachment
	err := s.WithTx(func(tx *sql.Tx) error {
		var existingLen int64
		err := tx.QueryRow(`SELECT byte_len FROM attachments WHERE sha256 = ?`, shaHex).Scan(&existingLen)
		if err == nil {
			if existingLen != int64(len(plaintext)) {
				return verr.Conflict("attachment %s already exists with a different byte length", shaHex)
			}
			out = Attachment{SHA256: shaHex, MimeType: mimeType, Path: attachmentBlobPath(s.AppDir, shaHex), ByteLen: existingLen}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		blob, err := crypto.Encrypt(s.Key, plaintext, crypto.AttachmentBytesAAD(shaHex))
		if err != nil {
			return err
		}
		dirPath := filepath.Join(s.AppDir, attachmentsDirName)
		if err := os.MkdirAll(dirPath, 0o700); err != nil {
			return err
		}
		path := attachmentBlobPath(s.AppDir, shaHex)
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			return err
		}

		now := nowMs()
		if _, err := tx.Exec(`INSERT INTO attachments(sha256, mime_type, path, byte_len, created_at_ms)
			VALUES (?, ?, ?, ?, ?)`, shaHex, mimeType, path, len(plaintext), now); err != nil {
			return err
		}
		out = Attachment{SHA256: shaHex, MimeType: mimeType, Path: path, ByteLen: int64(len(plaintext)), CreatedAtMs: now}
		return nil
	})
	return out, err
}

// ReadAttachmentBytes decrypts and returns an attachment's plaintext bytes.
// The caller may re-hash and compare against sha256 to detect corruption.
func (s *Store) ReadAttachmentBytes(sha256Hex string) ([]byte, error) {
	var path string
	err := s.DB.QueryRow(`SELECT path FROM attachments WHERE sha256 = ?`, sha256Hex).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("attachment %s not found", sha256Hex)
	}
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return crypto.Decrypt(s.Key, blob, crypto.AttachmentBytesAAD(sha256Hex))
}

// GetAttachment returns the attachment row without reading its bytes.
func (s *Store) GetAttachment(sha256Hex string) (*Attachment, error) {
	var a Attachment
	a.SHA256 = sha256Hex
	err := s.DB.QueryRow(`SELECT mime_type, path, byte_len, created_at_ms FROM attachments WHERE sha256 = ?`, sha256Hex).
		Scan(&a.MimeType, &a.Path, &a.ByteLen, &a.CreatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("attachment %s not found", sha256Hex)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

type attachmentMetaOpPayload struct {
	SHA256     string   `json:"sha256"`
	Title      *string  `json:"title,omitempty"`
	Filenames  []string `json:"filenames"`
	SourceURLs []string `json:"source_urls"`
}

// SetAttachmentMetadata writes metadata for an attachment, overwriting any
// prior row outright. Callers that want union-merge semantics (the default
// for local edits, per §4.4) should read-modify-write through
// UpsertAttachmentMetadataMerge instead; this method exists for sync-apply,
// which replays the already-merged payload verbatim.
func (s *Store) SetAttachmentMetadata(m AttachmentMetadata) error {
	return s.WithTx(func(tx *sql.Tx) error {
		return s.setAttachmentMetadataTx(tx, m)
	})
}

func (s *Store) setAttachmentMetadataTx(tx *sql.Tx, m AttachmentMetadata) error {
	var titleBlob []byte
	if m.Title != nil {
		blob, err := crypto.Encrypt(s.Key, []byte(*m.Title), crypto.AttachmentTitleAAD(m.SHA256))
		if err != nil {
			return err
		}
		titleBlob = blob
	}
	filenamesBlob, err := s.encryptStringSet(m.SHA256, "filenames", m.Filenames)
	if err != nil {
		return err
	}
	sourceURLsBlob, err := s.encryptStringSet(m.SHA256, "source_urls", m.SourceURLs)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO attachment_metadata(sha256, title, filenames, source_urls)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sha256) DO UPDATE SET title = excluded.title, filenames = excluded.filenames, source_urls = excluded.source_urls`,
		m.SHA256, titleBlob, filenamesBlob, sourceURLsBlob)
	if err != nil {
		return err
	}
	return s.appendOp(tx, OpAttachmentMeta, attachmentMetaOpPayload{
		SHA256: m.SHA256, Title: m.Title, Filenames: m.Filenames, SourceURLs: m.SourceURLs,
	})
}

// UpsertAttachmentMetadataLocal applies a local edit with the merge rules
// from §4.4: title is last-writer-wins (this write always wins locally),
// filenames/source_urls are unioned with whatever is already stored.
func (s *Store) UpsertAttachmentMetadataLocal(sha256Hex string, title *string, filenames, sourceURLs []string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		existing, err := s.getAttachmentMetadataTx(tx, sha256Hex)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		merged := AttachmentMetadata{SHA256: sha256Hex, Title: title}
		if errors.Is(err, sql.ErrNoRows) {
			merged.Filenames = dedupeStrings(filenames)
			merged.SourceURLs = dedupeStrings(sourceURLs)
		} else {
			merged.Filenames = unionStrings(existing.Filenames, filenames)
			merged.SourceURLs = unionStrings(existing.SourceURLs, sourceURLs)
		}
		return s.setAttachmentMetadataTx(tx, merged)
	})
}

func (s *Store) getAttachmentMetadataTx(tx *sql.Tx, sha256Hex string) (AttachmentMetadata, error) {
	var m AttachmentMetadata
	m.SHA256 = sha256Hex
	var titleBlob, filenamesBlob, sourceURLsBlob []byte
	err := tx.QueryRow(`SELECT title, filenames, source_urls FROM attachment_metadata WHERE sha256 = ?`, sha256Hex).
		Scan(&titleBlob, &filenamesBlob, &sourceURLsBlob)
	if err != nil {
		return m, err
	}
	if titleBlob != nil {
		title, err := crypto.Decrypt(s.Key, titleBlob, crypto.AttachmentTitleAAD(sha256Hex))
		if err != nil {
			return m, err
		}
		t := string(title)
		m.Title = &t
	}
	filenames, err := s.decryptStringSet(sha256Hex, "filenames", filenamesBlob)
	if err != nil {
		return m, err
	}
	m.Filenames = filenames
	sourceURLs, err := s.decryptStringSet(sha256Hex, "source_urls", sourceURLsBlob)
	if err != nil {
		return m, err
	}
	m.SourceURLs = sourceURLs
	return m, nil
}

// GetAttachmentMetadata decrypts and returns metadata for an attachment.
func (s *Store) GetAttachmentMetadata(sha256Hex string) (*AttachmentMetadata, error) {
	var titleBlob, filenamesBlob, sourceURLsBlob []byte
	err := s.DB.QueryRow(`SELECT title, filenames, source_urls FROM attachment_metadata WHERE sha256 = ?`, sha256Hex).
		Scan(&titleBlob, &filenamesBlob, &sourceURLsBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("attachment metadata %s not found", sha256Hex)
	}
	if err != nil {
		return nil, err
	}
	m := AttachmentMetadata{SHA256: sha256Hex}
	if titleBlob != nil {
		title, err := crypto.Decrypt(s.Key, titleBlob, crypto.AttachmentTitleAAD(sha256Hex))
		if err != nil {
			return nil, err
		}
		t := string(title)
		m.Title = &t
	}
	filenames, err := s.decryptStringSet(sha256Hex, "filenames", filenamesBlob)
	if err != nil {
		return nil, err
	}
	m.Filenames = filenames
	sourceURLs, err := s.decryptStringSet(sha256Hex, "source_urls", sourceURLsBlob)
	if err != nil {
		return nil, err
	}
	m.SourceURLs = sourceURLs
	return &m, nil
}

func (s *Store) encryptStringSet(sha256Hex, field string, values []string) ([]byte, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return crypto.Encrypt(s.Key, raw, fieldAAD(sha256Hex, field))
}

func (s *Store) decryptStringSet(sha256Hex, field string, blob []byte) ([]string, error) {
	if blob == nil {
		return nil, nil
	}
	raw, err := crypto.Decrypt(s.Key, blob, fieldAAD(sha256Hex, field))
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fieldAAD(sha256Hex, field string) []byte {
	return []byte(fmt.Sprintf("attachment.%s:%s", field, sha256Hex))
}

func dedupeStrings(values []string) []string {
	return unionStrings(nil, values)
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

type attachmentEXIFOpPayload struct {
	SHA256       string   `json:"sha256"`
	CapturedAtMs *int64   `json:"captured_at_ms,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
}

// SetAttachmentEXIF writes EXIF metadata for an attachment.
func (s *Store) SetAttachmentEXIF(e AttachmentEXIF) error {
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO attachment_exif(sha256, captured_at_ms, lat, lon)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(sha256) DO UPDATE SET captured_at_ms = excluded.captured_at_ms, lat = excluded.lat, lon = excluded.lon`,
			e.SHA256, e.CapturedAtMs, e.Lat, e.Lon)
		if err != nil {
			return err
		}
		return s.appendOp(tx, OpAttachmentEXIF, attachmentEXIFOpPayload{
			SHA256: e.SHA256, CapturedAtMs: e.CapturedAtMs, Lat: e.Lat, Lon: e.Lon,
		})
	})
}

// GetAttachmentEXIF returns EXIF metadata for an attachment.
func (s *Store) GetAttachmentEXIF(sha256Hex string) (*AttachmentEXIF, error) {
	var e AttachmentEXIF
	e.SHA256 = sha256Hex
	err := s.DB.QueryRow(`SELECT captured_at_ms, lat, lon FROM attachment_exif WHERE sha256 = ?`, sha256Hex).
		Scan(&e.CapturedAtMs, &e.Lat, &e.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("attachment exif %s not found", sha256Hex)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type attachmentAnnotationOpPayload struct {
	SHA256  string  `json:"sha256"`
	Status  string  `json:"status"`
	Lang    *string `json:"lang,omitempty"`
	Model   *string `json:"model,omitempty"`
	Payload *string `json:"payload,omitempty"`
}

// EnqueueAttachmentAnnotation marks an attachment pending media annotation.
func (s *Store) EnqueueAttachmentAnnotation(sha256Hex string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO attachment_annotations(sha256, status, attempts)
			VALUES (?, ?, 0)
			ON CONFLICT(sha256) DO NOTHING`, sha256Hex, AnnotationStatusPending)
		return err
	})
}

// RecordAttachmentAnnotationSuccess stores the annotation payload and marks
// the job done.
func (s *Store) RecordAttachmentAnnotationSuccess(sha256Hex, lang, model, payload string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		payloadBlob, err := crypto.Encrypt(s.Key, []byte(payload), fieldAAD(sha256Hex, "annotation"))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE attachment_annotations SET status = ?, lang = ?, model = ?, payload = ?,
			last_error = NULL, last_error_at_ms = NULL, next_retry_at_ms = NULL WHERE sha256 = ?`,
			AnnotationStatusDone, lang, model, payloadBlob, sha256Hex); err != nil {
			return err
		}
		return s.appendOp(tx, OpAttachmentAnnot, attachmentAnnotationOpPayload{
			SHA256: sha256Hex, Status: AnnotationStatusDone, Lang: &lang, Model: &model, Payload: &payload,
		})
	})
}

// RecordAttachmentAnnotationFailure bumps attempts and schedules a bounded
// exponential backoff retry.
func (s *Store) RecordAttachmentAnnotationFailure(sha256Hex, errMsg string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		var attempts int
		if err := tx.QueryRow(`SELECT attempts FROM attachment_annotations WHERE sha256 = ?`, sha256Hex).Scan(&attempts); err != nil {
			return err
		}
		attempts++
		now := nowMs()
		next := nextRetryAtMs(now, attempts)
		_, err := tx.Exec(`UPDATE attachment_annotations SET status = ?, attempts = ?, next_retry_at_ms = ?,
			last_error = ?, last_error_at_ms = ? WHERE sha256 = ?`,
			AnnotationStatusFailed, attempts, next, errMsg, now, sha256Hex)
		return err
	})
}

// PendingAttachmentAnnotations returns sha256 hashes whose annotation job is
// due for (re)processing.
func (s *Store) PendingAttachmentAnnotations(nowMs int64, limit int) ([]string, error) {
	rows, err := s.DB.Query(`SELECT sha256 FROM attachment_annotations
		WHERE status IN (?, ?) AND (next_retry_at_ms IS NULL OR next_retry_at_ms <= ?)
		ORDER BY sha256 ASC LIMIT ?`, AnnotationStatusPending, AnnotationStatusFailed, nowMs, limit)
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

type attachmentPlaceOpPayload struct {
	SHA256      string  `json:"sha256"`
	Status      string  `json:"status"`
	DisplayName *string `json:"display_name,omitempty"`
}

// EnqueueAttachmentPlace marks an attachment pending reverse-geocoding.
func (s *Store) EnqueueAttachmentPlace(sha256Hex string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO attachment_places(sha256, status, attempts)
			VALUES (?, ?, 0)
			ON CONFLICT(sha256) DO NOTHING`, sha256Hex, AnnotationStatusPending)
		return err
	})
}

// RecordAttachmentPlaceSuccess stores the resolved display name.
func (s *Store) RecordAttachmentPlaceSuccess(sha256Hex, displayName string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		blob, err := crypto.Encrypt(s.Key, []byte(displayName), fieldAAD(sha256Hex, "place"))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE attachment_places SET status = ?, display_name = ?,
			last_error = NULL, last_error_at_ms = NULL, next_retry_at_ms = NULL WHERE sha256 = ?`,
			AnnotationStatusDone, blob, sha256Hex); err != nil {
			return err
		}
		return s.appendOp(tx, OpAttachmentPlace, attachmentPlaceOpPayload{
			SHA256: sha256Hex, Status: AnnotationStatusDone, DisplayName: &displayName,
		})
	})
}

// RecordAttachmentPlaceFailure bumps attempts and schedules a retry.
func (s *Store) RecordAttachmentPlaceFailure(sha256Hex, errMsg string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		var attempts int
		if err := tx.QueryRow(`SELECT attempts FROM attachment_places WHERE sha256 = ?`, sha256Hex).Scan(&attempts); err != nil {
			return err
		}
		attempts++
		now := nowMs()
		next := nextRetryAtMs(now, attempts)
		_, err := tx.Exec(`UPDATE attachment_places SET status = ?, attempts = ?, next_retry_at_ms = ?,
			last_error = ?, last_error_at_ms = ? WHERE sha256 = ?`,
			AnnotationStatusFailed, attempts, next, errMsg, now, sha256Hex)
		return err
	})
}

// InsertAttachmentVariant records a derived artifact (e.g. a compressed
// image) as its own content-addressed, AEAD-sealed blob.
func (s *Store) InsertAttachmentVariant(attachmentSHA256, variant, mimeType string, plaintext []byte) (AttachmentVariant, error) {
	var out AttachmentVariant
	err := s.WithTx(func(tx *sql.Tx) error {
		aad := fieldAAD(attachmentSHA256, "variant:"+variant)
		blob, err := crypto.Encrypt(s.Key, plaintext, aad)
		if err != nil {
			return err
		}
		dirPath := filepath.Join(s.AppDir, attachmentsDirName, "variants")
		if err := os.MkdirAll(dirPath, 0o700); err != nil {
			return err
		}
		path := filepath.Join(dirPath, fmt.Sprintf("%s.%s.bin", attachmentSHA256, variant))
		if err := os.WriteFile(path, blob, 0o600); err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO attachment_variants(attachment_sha256, variant, mime_type, byte_len, path)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(attachment_sha256, variant) DO UPDATE SET mime_type = excluded.mime_type,
				byte_len = excluded.byte_len, path = excluded.path`,
			attachmentSHA256, variant, mimeType, len(plaintext), path)
		if err != nil {
			return err
		}
		out = AttachmentVariant{AttachmentSHA256: attachmentSHA256, Variant: variant, MimeType: mimeType, ByteLen: int64(len(plaintext)), Path: path}
		return nil
	})
	return out, err
}

// EnqueueCloudMediaBackup marks a variant pending upload to the cloud
// backup target.
func (s *Store) EnqueueCloudMediaBackup(attachmentSHA256, variant string) error {
	_, err := s.DB.Exec(`INSERT INTO cloud_media_backup(attachment_sha256, variant, status, attempts)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(attachment_sha256, variant) DO NOTHING`, attachmentSHA256, variant, CloudBackupPending)
	return err
}

// RecordCloudMediaBackupSuccess marks a variant uploaded.
func (s *Store) RecordCloudMediaBackupSuccess(attachmentSHA256, variant string) error {
	now := nowMs()
	_, err := s.DB.Exec(`UPDATE cloud_media_backup SET status = ?, uploaded_at_ms = ?,
		last_error = NULL, last_error_at_ms = NULL, next_retry_at_ms = NULL
		WHERE attachment_sha256 = ? AND variant = ?`, CloudBackupUploaded, now, attachmentSHA256, variant)
	return err
}

// RecordCloudMediaBackupFailure bumps attempts and schedules a retry.
func (s *Store) RecordCloudMediaBackupFailure(attachmentSHA256, variant, errMsg string) error {
	var attempts int
	if err := s.DB.QueryRow(`SELECT attempts FROM cloud_media_backup WHERE attachment_sha256 = ? AND variant = ?`,
		attachmentSHA256, variant).Scan(&attempts); err != nil {
		return err
	}
	attempts++
	now := nowMs()
	next := nextRetryAtMs(now, attempts)
	_, err := s.DB.Exec(`UPDATE cloud_media_backup SET status = ?, attempts = ?, next_retry_at_ms = ?,
		last_error = ?, last_error_at_ms = ? WHERE attachment_sha256 = ? AND variant = ?`,
		CloudBackupFailed, attempts, next, errMsg, now, attachmentSHA256, variant)
	return err
}

// PendingCloudMediaBackups returns (attachment_sha256, variant) pairs due
// for (re)upload.
func (s *Store) PendingCloudMediaBackups(nowMs int64, limit int) ([][2]string, error) {
	rows, err := s.DB.Query(`SELECT attachment_sha256, variant FROM cloud_media_backup
		WHERE status IN (?, ?) AND (next_retry_at_ms IS NULL OR next_retry_at_ms <= ?)
		ORDER BY attachment_sha256 ASC LIMIT ?`, CloudBackupPending, CloudBackupFailed, nowMs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][2]string
	for rows.Next() {
		var sha, variant string
		if err := rows.Scan(&sha, &variant); err != nil {
			return nil, err
		}
		out = append(out, [2]string{sha, variant})
	}
	return out, rows.Err()
}
