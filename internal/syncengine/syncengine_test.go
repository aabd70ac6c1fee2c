package syncengine

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dale0525/secondloop/internal/blobstore"
	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	s, err := store.Open(t.TempDir(), key, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// testSyncKey is the shared sync secret both devices in these tests derive
// from the same passphrase (§3) — distinct from either device's own root
// key, since openTestStore above gives every store a different one.
func testSyncKey(t *testing.T) []byte {
	t.Helper()
	return crypto.DeriveSyncKey("shared-test-passphrase", crypto.TestKDFParams())
}

func TestPushPullConverges(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t)
	b := openTestStore(t)

	remoteDir := t.TempDir()
	remoteA, err := blobstore.NewLocal(remoteDir)
	require.NoError(t, err)
	remoteB, err := blobstore.NewLocal(remoteDir)
	require.NoError(t, err)

	syncKey := testSyncKey(t)
	engineA := New(a, remoteA, syncKey)
	engineB := New(b, remoteB, syncKey)

	require.NoError(t, a.UpsertConversation(store.Conversation{ID: "conv-1", Title: "From A", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, a.AppendMessage(store.Message{ID: "msg-1", ConversationID: "conv-1", Role: store.RoleUser, Content: "hello from A", CreatedAtMs: 2}))

	uploaded, err := engineA.Push(ctx)
	require.NoError(t, err)
	require.Greater(t, uploaded, 0)

	applied, err := engineB.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, uploaded, applied)

	gotConv, err := b.GetConversation("conv-1")
	require.NoError(t, err)
	require.Equal(t, "From A", gotConv.Title)

	gotMsg, err := b.GetMessage("msg-1")
	require.NoError(t, err)
	require.Equal(t, "hello from A", gotMsg.Content)

	// Re-pulling with no new remote state applies nothing.
	applied, err = engineB.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, applied)

	// B's own edit syncs back to A.
	require.NoError(t, b.UpsertConversation(store.Conversation{ID: "conv-2", Title: "From B", CreatedAtMs: 3, UpdatedAtMs: 3}))
	uploadedB, err := engineB.Push(ctx)
	require.NoError(t, err)
	require.Greater(t, uploadedB, 0)

	appliedA, err := engineA.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, uploadedB, appliedA)

	gotOnA, err := a.GetConversation("conv-2")
	require.NoError(t, err)
	require.Equal(t, "From B", gotOnA.Title)
}

func TestApplyRemoteOpDoesNotReemit(t *testing.T) {
	a := openTestStore(t)
	deviceID, err := a.DeviceID()
	require.NoError(t, err)

	require.NoError(t, a.ApplyRemoteOp("conversation.upsert", `{"id":"conv-x","title":"remote title","created_at_ms":1,"updated_at_ms":1}`))

	rows, err := a.OpsSince(deviceID, 0, 100)
	require.NoError(t, err)
	require.Empty(t, rows, "applying a remote op must not append a new outbound op")

	got, err := a.GetConversation("conv-x")
	require.NoError(t, err)
	require.Equal(t, "remote title", got.Title)
}

func TestAttachmentRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t)
	b := openTestStore(t)

	remoteDir := t.TempDir()
	remoteA, err := blobstore.NewLocal(remoteDir)
	require.NoError(t, err)
	remoteB, err := blobstore.NewLocal(remoteDir)
	require.NoError(t, err)

	att, err := a.InsertAttachment([]byte("plain bytes"), "text/plain")
	require.NoError(t, err)

	syncKey := testSyncKey(t)
	engineA := New(a, remoteA, syncKey)
	_, err = engineA.Push(ctx)
	require.NoError(t, err)

	engineB := New(b, remoteB, syncKey)
	require.NoError(t, engineB.DownloadAttachmentBytes(ctx, att.SHA256))

	gotBytes, err := b.ReadAttachmentBytes(att.SHA256)
	require.NoError(t, err)
	require.Equal(t, "plain bytes", string(gotBytes))
}
