package vaultapi

import (
	"context"

	"github.com/dale0525/secondloop/internal/blobstore"
	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/syncengine"
	"github.com/dale0525/secondloop/internal/verr"
)

// DeriveSyncKey turns a shared sync passphrase into the 32-byte key every
// push/pull/download call below needs; hosts derive it once after the user
// enters the passphrase and hold it alongside the root key.
func DeriveSyncKey(passphrase string) []byte {
	return crypto.DeriveSyncKey(passphrase, crypto.DefaultKDFParams())
}

func openRemote(remoteKind, remoteRoot, webdavUser, webdavPassword string) (blobstore.Store, error) {
	switch remoteKind {
	case "local":
		return blobstore.NewLocal(remoteRoot)
	case "webdav":
		return blobstore.NewWebDAV(remoteRoot, webdavUser, webdavPassword)
	default:
		return nil, verr.Input("unknown remote kind %q", remoteKind)
	}
}

func openSyncEngine(appDir string, key, syncKey []byte, remoteKind, remoteRoot, webdavUser, webdavPassword string) (*syncengine.Engine, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	remote, err := openRemote(remoteKind, remoteRoot, webdavUser, webdavPassword)
	if err != nil {
		return nil, err
	}
	return syncengine.New(s, remote, syncKey), nil
}

// SyncPush uploads every local op and attachment byte outstanding against
// remoteRoot (§4.8 push algorithm). remoteKind selects the blob backend
// ("local" or "webdav"); webdavUser/webdavPassword are ignored for "local".
func SyncPush(appDir string, key, syncKey []byte, remoteKind, remoteRoot, webdavUser, webdavPassword string) (int, error) {
	e, err := openSyncEngine(appDir, key, syncKey, remoteKind, remoteRoot, webdavUser, webdavPassword)
	if err != nil {
		return 0, err
	}
	return e.Push(context.Background())
}

// SyncPull applies every op discovered in other devices' directories under
// remoteRoot beyond this target's per-device pull cursor (§4.8 pull
// algorithm), returning the number of ops applied.
func SyncPull(appDir string, key, syncKey []byte, remoteKind, remoteRoot, webdavUser, webdavPassword string) (int, error) {
	e, err := openSyncEngine(appDir, key, syncKey, remoteKind, remoteRoot, webdavUser, webdavPassword)
	if err != nil {
		return 0, err
	}
	return e.Pull(context.Background())
}

// DownloadAttachmentBytes fetches, decrypts, and content-hash-verifies one
// attachment from remoteRoot on demand, writing it into local storage.
func DownloadAttachmentBytes(appDir string, key, syncKey []byte, remoteKind, remoteRoot, webdavUser, webdavPassword, sha256Hex string) error {
	e, err := openSyncEngine(appDir, key, syncKey, remoteKind, remoteRoot, webdavUser, webdavPassword)
	if err != nil {
		return err
	}
	return e.DownloadAttachmentBytes(context.Background(), sha256Hex)
}

// TestRemoteConnection verifies remoteRoot is reachable and writable before
// a host commits it as a sync target (§4.7 "test_connection").
func TestRemoteConnection(remoteKind, remoteRoot, webdavUser, webdavPassword string) error {
	remote, err := openRemote(remoteKind, remoteRoot, webdavUser, webdavPassword)
	if err != nil {
		return err
	}
	return blobstore.TestConnection(context.Background(), remote)
}

// ResetVaultDataPreservingLlmProfiles truncates every user table except
// llm_profiles, the active embedding model name, and the auth file, and
// removes the attachments directory (§3 Lifecycles "Reset").
func ResetVaultDataPreservingLlmProfiles(appDir string, key []byte) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.ResetVaultDataPreservingLlmProfiles()
}

// DeviceID returns this vault's stable per-device identifier (§4.6), created
// lazily on first open.
func DeviceID(appDir string, key []byte) (string, error) {
	s, err := open(appDir, key)
	if err != nil {
		return "", err
	}
	return s.DeviceID()
}
