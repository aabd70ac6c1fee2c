package vaultapi

import (
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/pkg/shared/media"
)

// InsertAttachment content-addresses plaintext by its sha256 and writes an
// AEAD-sealed blob file under appDir/attachments (§4.3); a second insert of
// the same bytes is idempotent.
func InsertAttachment(appDir string, key []byte, plaintext []byte, mimeType string) (store.Attachment, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.Attachment{}, err
	}
	return s.InsertAttachment(plaintext, mimeType)
}

// InsertAttachmentFromDataURIOrBase64 decodes a raw/base64 payload or a
// data: URI (the form attachments typically arrive in from a chat
// transport) and inserts it the same way InsertAttachment does, inferring
// the mime type from the payload when the caller doesn't supply one.
func InsertAttachmentFromDataURIOrBase64(appDir string, key []byte, b64OrDataURI string) (store.Attachment, error) {
	plaintext, mimeType, err := media.DecodeBase64(b64OrDataURI)
	if err != nil {
		return store.Attachment{}, err
	}
	return InsertAttachment(appDir, key, plaintext, mimeType)
}

func ReadAttachmentBytes(appDir string, key []byte, sha256Hex string) ([]byte, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ReadAttachmentBytes(sha256Hex)
}

func GetAttachment(appDir string, key []byte, sha256Hex string) (*store.Attachment, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetAttachment(sha256Hex)
}

// SetAttachmentMetadata writes title (LWW) and unions filenames/source_urls
// into whatever is already recorded (§4.4 tie-break rules).
func SetAttachmentMetadata(appDir string, key []byte, m store.AttachmentMetadata) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetAttachmentMetadata(m)
}

func GetAttachmentMetadata(appDir string, key []byte, sha256Hex string) (*store.AttachmentMetadata, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetAttachmentMetadata(sha256Hex)
}

func SetAttachmentEXIF(appDir string, key []byte, e store.AttachmentEXIF) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.SetAttachmentEXIF(e)
}

func GetAttachmentEXIF(appDir string, key []byte, sha256Hex string) (*store.AttachmentEXIF, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetAttachmentEXIF(sha256Hex)
}

func EnqueueAttachmentAnnotation(appDir string, key []byte, sha256Hex string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.EnqueueAttachmentAnnotation(sha256Hex)
}

func RecordAttachmentAnnotationSuccess(appDir string, key []byte, sha256Hex, lang, model, payload string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordAttachmentAnnotationSuccess(sha256Hex, lang, model, payload)
}

func RecordAttachmentAnnotationFailure(appDir string, key []byte, sha256Hex, errMsg string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordAttachmentAnnotationFailure(sha256Hex, errMsg)
}

func PendingAttachmentAnnotations(appDir string, key []byte, nowMs int64, limit int) ([]string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.PendingAttachmentAnnotations(nowMs, limit)
}

func EnqueueAttachmentPlace(appDir string, key []byte, sha256Hex string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.EnqueueAttachmentPlace(sha256Hex)
}

func RecordAttachmentPlaceSuccess(appDir string, key []byte, sha256Hex, displayName string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordAttachmentPlaceSuccess(sha256Hex, displayName)
}

func RecordAttachmentPlaceFailure(appDir string, key []byte, sha256Hex, errMsg string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordAttachmentPlaceFailure(sha256Hex, errMsg)
}

// InsertAttachmentVariant stores a derived artifact (e.g. a thumbnail) of an
// existing attachment as its own AEAD blob (§GLOSSARY "Variant").
func InsertAttachmentVariant(appDir string, key []byte, attachmentSHA256, variant, mimeType string, plaintext []byte) (store.AttachmentVariant, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.AttachmentVariant{}, err
	}
	return s.InsertAttachmentVariant(attachmentSHA256, variant, mimeType, plaintext)
}

func EnqueueCloudMediaBackup(appDir string, key []byte, attachmentSHA256, variant string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.EnqueueCloudMediaBackup(attachmentSHA256, variant)
}

func RecordCloudMediaBackupSuccess(appDir string, key []byte, attachmentSHA256, variant string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordCloudMediaBackupSuccess(attachmentSHA256, variant)
}

func RecordCloudMediaBackupFailure(appDir string, key []byte, attachmentSHA256, variant, errMsg string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.RecordCloudMediaBackupFailure(attachmentSHA256, variant, errMsg)
}

func PendingCloudMediaBackups(appDir string, key []byte, nowMs int64, limit int) ([][2]string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.PendingCloudMediaBackups(nowMs, limit)
}
