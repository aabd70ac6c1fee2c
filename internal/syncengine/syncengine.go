// Package syncengine drives push/pull replication of the local oplog and
// attachment bytes against one remote blob target (C9).
package syncengine

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/dale0525/secondloop/internal/blobstore"
	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/verr"
)

const (
	attachmentsDirName = "attachments"
	packBatchCap       = 200
)

// wireOp is the decrypted JSON object carried by every op file (§6 "Oplog
// wire format"): {op_id, device_id, seq, ts_ms, type, payload}.
type wireOp struct {
	OpID     string          `json:"op_id"`
	DeviceID string          `json:"device_id"`
	Seq      int64           `json:"seq"`
	TsMs     int64           `json:"ts_ms"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
}

type packEntry struct {
	Seq           int64  `json:"seq"`
	CiphertextB64 string `json:"ciphertext_b64"`
}

type packFile struct {
	Entries []packEntry `json:"entries"`
}

// Engine replicates one local store against one remote blob target. syncKey
// is the shared 32-byte sync secret (§3) used to seal every op and
// attachment byte written to the remote — distinct from the store's own
// root key, since two devices syncing with each other may each hold a
// different master password.
type Engine struct {
	store   *store.Store
	remote  blobstore.Store
	syncKey []byte
}

// New returns an Engine driving s against remote, sealing wire data with
// syncKey (32 bytes, see crypto.DeriveSyncKey).
func New(s *store.Store, remote blobstore.Store, syncKey []byte) *Engine {
	return &Engine{store: s, remote: remote, syncKey: syncKey}
}

func (e *Engine) targetID() string { return e.remote.TargetID() }

// Push uploads every local op beyond this target's push cursor, coalesces
// the most recently uploaded ops into a pack file, then uploads any linked
// attachment bytes not yet pushed to this target (§4.8 push algorithm).
// Returns the number of ops uploaded.
func (e *Engine) Push(ctx context.Context) (int, error) {
	deviceID, err := e.store.DeviceID()
	if err != nil {
		return 0, err
	}
	targetID := e.targetID()

	cursor, err := e.store.GetPushCursor(targetID)
	if err != nil {
		return 0, err
	}
	if cursor > 0 {
		empty, err := e.remoteDeviceDirEmpty(ctx, deviceID)
		if err != nil {
			return 0, err
		}
		if empty {
			if err := e.store.ClearPushCursor(targetID); err != nil {
				return 0, err
			}
			cursor = 0
		}
	}

	ops, err := e.store.OpsSince(deviceID, cursor, 100000)
	if err != nil {
		return 0, err
	}
	pendingAttachments, err := e.pendingAttachmentUploads(targetID)
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 && len(pendingAttachments) == 0 {
		return 0, nil
	}

	if err := e.remote.MkdirAll(ctx, "."); err != nil {
		return 0, verr.Remote("push: mkdir root", err)
	}
	opsDir := path.Join(deviceID, "ops")
	if err := e.remote.MkdirAll(ctx, opsDir); err != nil {
		return 0, verr.Remote("push: mkdir device ops dir", err)
	}

	ciphertexts := make(map[int64][]byte, len(ops))
	uploaded := 0
	for _, op := range ops {
		wire := wireOp{
			OpID: op.OpID, DeviceID: op.DeviceID, Seq: op.Seq, TsMs: op.TsMs,
			Type: op.Type, Payload: json.RawMessage(op.PayloadJSON),
		}
		raw, err := json.Marshal(wire)
		if err != nil {
			return uploaded, err
		}
		blob, err := crypto.Encrypt(e.syncKey, raw, crypto.SyncOpAAD(deviceID, uint64(op.Seq)))
		if err != nil {
			return uploaded, err
		}
		opPath := path.Join(opsDir, fmt.Sprintf("op_%d.json", op.Seq))
		if err := e.remote.Put(ctx, opPath, blob); err != nil {
			return uploaded, verr.Remote("push: put op", err)
		}
		if err := e.store.SetPushCursor(targetID, op.Seq); err != nil {
			return uploaded, err
		}
		ciphertexts[op.Seq] = blob
		uploaded++
	}

	if err := e.writePack(ctx, deviceID, ops, ciphertexts); err != nil {
		return uploaded, err
	}
	if err := e.uploadPendingAttachments(ctx, targetID, pendingAttachments); err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// writePack coalesces the most recent ops uploaded this push into a single
// bulk pack file so a pull against a remote that prunes per-op files can
// still recover (§4.8 step 4, "optionally coalesce").
func (e *Engine) writePack(ctx context.Context, deviceID string, ops []store.OplogRow, ciphertexts map[int64][]byte) error {
	if len(ops) == 0 {
		return nil
	}
	start := 0
	if len(ops) > packBatchCap {
		start = len(ops) - packBatchCap
	}
	recent := ops[start:]
	pf := packFile{Entries: make([]packEntry, 0, len(recent))}
	for _, op := range recent {
		pf.Entries = append(pf.Entries, packEntry{
			Seq:           op.Seq,
			CiphertextB64: base64.StdEncoding.EncodeToString(ciphertexts[op.Seq]),
		})
	}
	raw, err := json.Marshal(pf)
	if err != nil {
		return err
	}
	packsDir := path.Join(deviceID, "packs")
	if err := e.remote.MkdirAll(ctx, packsDir); err != nil {
		return verr.Remote("push: mkdir packs dir", err)
	}
	if err := e.remote.Put(ctx, path.Join(packsDir, "latest.json"), raw); err != nil {
		return verr.Remote("push: put pack", err)
	}
	return nil
}

func (e *Engine) remoteDeviceDirEmpty(ctx context.Context, deviceID string) (bool, error) {
	opNames, err := e.remote.List(ctx, path.Join(deviceID, "ops"))
	if err != nil {
		return false, verr.Remote("push: list ops", err)
	}
	packNames, err := e.remote.List(ctx, path.Join(deviceID, "packs"))
	if err != nil {
		return false, verr.Remote("push: list packs", err)
	}
	return len(opNames) == 0 && len(packNames) == 0, nil
}

func (e *Engine) pendingAttachmentUploads(targetID string) ([]string, error) {
	all, err := e.store.ListAttachmentSHA256s()
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, sha := range all {
		uploaded, err := e.store.IsAttachmentUploaded(targetID, sha)
		if err != nil {
			return nil, err
		}
		if !uploaded {
			pending = append(pending, sha)
		}
	}
	return pending, nil
}

func (e *Engine) uploadPendingAttachments(ctx context.Context, targetID string, shas []string) error {
	if len(shas) == 0 {
		return nil
	}
	if err := e.remote.MkdirAll(ctx, attachmentsDirName); err != nil {
		return verr.Remote("push: mkdir attachments dir", err)
	}
	for _, sha := range shas {
		plaintext, err := e.store.ReadAttachmentBytes(sha)
		if err != nil {
			return err
		}
		blob, err := crypto.Encrypt(e.syncKey, plaintext, crypto.SyncAttachmentAAD(sha))
		if err != nil {
			return err
		}
		if err := e.remote.Put(ctx, path.Join(attachmentsDirName, sha+".bin"), blob); err != nil {
			return verr.Remote("push: put attachment", err)
		}
		if err := e.store.MarkAttachmentUploaded(targetID, sha); err != nil {
			return err
		}
	}
	return nil
}

// Pull enumerates every remote device directory other than self, fetches
// ops beyond this target's per-device pull cursor, applies them in global
// (ts_ms, device_id, seq) order, and advances the cursors (§4.8 pull
// algorithm, §5 ordering guarantee). Returns the number of ops applied;
// re-pulling with no new remote state returns 0.
func (e *Engine) Pull(ctx context.Context) (int, error) {
	selfID, err := e.store.DeviceID()
	if err != nil {
		return 0, err
	}
	targetID := e.targetID()

	entries, err := e.remote.List(ctx, ".")
	if err != nil {
		return 0, verr.Remote("pull: list root", err)
	}

	var all []wireOp
	startCursors := make(map[string]int64)
	for _, entry := range entries {
		if !strings.HasSuffix(entry, "/") {
			continue
		}
		deviceID := strings.TrimSuffix(entry, "/")
		if deviceID == selfID || deviceID == attachmentsDirName {
			continue
		}
		cursor, err := e.store.GetPullCursor(targetID, deviceID)
		if err != nil {
			return 0, err
		}
		startCursors[deviceID] = cursor

		ops, err := e.fetchOpsForDevice(ctx, deviceID, cursor)
		if err != nil {
			return 0, err
		}
		all = append(all, ops...)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].TsMs != all[j].TsMs {
			return all[i].TsMs < all[j].TsMs
		}
		if all[i].DeviceID != all[j].DeviceID {
			return all[i].DeviceID < all[j].DeviceID
		}
		return all[i].Seq < all[j].Seq
	})

	applied := 0
	maxApplied := make(map[string]int64)
	for _, op := range all {
		if err := e.store.ApplyRemoteOp(op.Type, string(op.Payload)); err != nil {
			return applied, fmt.Errorf("apply %s op %s/%d: %w", op.Type, op.DeviceID, op.Seq, err)
		}
		applied++
		if op.Seq > maxApplied[op.DeviceID] {
			maxApplied[op.DeviceID] = op.Seq
		}
	}

	for deviceID, seq := range maxApplied {
		if seq <= startCursors[deviceID] {
			continue
		}
		if err := e.store.SetPullCursor(targetID, deviceID, seq); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// fetchOpsForDevice returns deviceID's ops with seq > cursor, decrypted. It
// prefers ops/ (one file per op) and falls back to packs/ when ops/ is
// empty — the remote may have pruned early ops or only preserved packs
// (§4.8 step 1/2, "do not stall — accept the gap").
func (e *Engine) fetchOpsForDevice(ctx context.Context, deviceID string, cursor int64) ([]wireOp, error) {
	opNames, err := e.remote.List(ctx, path.Join(deviceID, "ops"))
	if err != nil {
		return nil, verr.Remote("pull: list ops", err)
	}
	if len(opNames) > 0 {
		return e.fetchOpsFromOpsDir(ctx, deviceID, opNames, cursor)
	}
	return e.fetchOpsFromPacksDir(ctx, deviceID, cursor)
}

func (e *Engine) fetchOpsFromOpsDir(ctx context.Context, deviceID string, opNames []string, cursor int64) ([]wireOp, error) {
	var out []wireOp
	for _, name := range opNames {
		if strings.HasSuffix(name, "/") {
			continue
		}
		seq, ok := parseOpSeq(name)
		if !ok || seq <= cursor {
			continue
		}
		blob, err := e.remote.Get(ctx, path.Join(deviceID, "ops", name))
		if err != nil {
			return nil, verr.Remote("pull: get op", err)
		}
		raw, err := crypto.Decrypt(e.syncKey, blob, crypto.SyncOpAAD(deviceID, uint64(seq)))
		if err != nil {
			return nil, err
		}
		var w wireOp
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (e *Engine) fetchOpsFromPacksDir(ctx context.Context, deviceID string, cursor int64) ([]wireOp, error) {
	packNames, err := e.remote.List(ctx, path.Join(deviceID, "packs"))
	if err != nil {
		return nil, verr.Remote("pull: list packs", err)
	}
	var out []wireOp
	for _, name := range packNames {
		if strings.HasSuffix(name, "/") {
			continue
		}
		raw, err := e.remote.Get(ctx, path.Join(deviceID, "packs", name))
		if err != nil {
			return nil, verr.Remote("pull: get pack", err)
		}
		var pf packFile
		if err := json.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("pull: parse pack %s: %w", name, err)
		}
		for _, entry := range pf.Entries {
			if entry.Seq <= cursor {
				continue
			}
			ciphertext, err := base64.StdEncoding.DecodeString(entry.CiphertextB64)
			if err != nil {
				return nil, err
			}
			plain, err := crypto.Decrypt(e.syncKey, ciphertext, crypto.SyncOpAAD(deviceID, uint64(entry.Seq)))
			if err != nil {
				return nil, err
			}
			var w wireOp
			if err := json.Unmarshal(plain, &w); err != nil {
				return nil, err
			}
			out = append(out, w)
		}
	}
	return out, nil
}

func parseOpSeq(name string) (int64, bool) {
	const prefix, suffix = "op_", ".json"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// DownloadAttachmentBytes fetches, decrypts, and content-hash-verifies a
// remote attachment blob, then writes it into local storage through the
// normal insertion path (§4.8 "on-demand attachment download").
func (e *Engine) DownloadAttachmentBytes(ctx context.Context, sha256Hex string) error {
	blob, err := e.remote.Get(ctx, path.Join(attachmentsDirName, sha256Hex+".bin"))
	if err != nil {
		return verr.Remote("download attachment", err)
	}
	plaintext, err := crypto.Decrypt(e.syncKey, blob, crypto.SyncAttachmentAAD(sha256Hex))
	if err != nil {
		return err
	}
	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != sha256Hex {
		return verr.Decrypt("downloaded attachment %s failed content hash verification", sha256Hex)
	}
	mimeType := http.DetectContentType(plaintext)
	_, err = e.store.InsertAttachment(plaintext, mimeType)
	return err
}
