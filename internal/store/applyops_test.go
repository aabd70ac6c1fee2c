package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestApplyAttachmentMetaUnionsConcurrentEdits covers §4.4: two devices that
// both call UpsertAttachmentMetadataLocal from the same prior-synced state,
// then exchange ops, must converge on the union of filenames/source_urls —
// neither op may clobber the other's values just because it applies last.
func TestApplyAttachmentMetaUnionsConcurrentEdits(t *testing.T) {
	s := openTestStore(t)
	att, err := s.InsertAttachment([]byte("shared file"), "application/pdf")
	require.NoError(t, err)

	// Device A's local edit, captured as the op it would push.
	require.NoError(t, s.UpsertAttachmentMetadataLocal(att.SHA256, ptr("From A"), []string{"a.pdf"}, []string{"https://a.example.com"}))
	opA := attachmentMetaOpPayload{SHA256: att.SHA256, Title: ptr("From A"), Filenames: []string{"a.pdf"}, SourceURLs: []string{"https://a.example.com"}}

	// Reset local state to simulate this device never having seen A's edit,
	// then apply B's own concurrent edit made from the same prior state.
	require.NoError(t, s.SetAttachmentMetadata(AttachmentMetadata{SHA256: att.SHA256}))
	require.NoError(t, s.UpsertAttachmentMetadataLocal(att.SHA256, ptr("From B"), []string{"b.pdf"}, []string{"https://b.example.com"}))

	// Now replay A's op as if pulled from the remote oplog.
	payload, err := CanonicalJSON(opA)
	require.NoError(t, err)
	require.NoError(t, s.ApplyRemoteOp(OpAttachmentMeta, string(payload)))

	got, err := s.GetAttachmentMetadata(att.SHA256)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, got.Filenames, "applying a remote op must union with what's already stored, not overwrite it")
	require.ElementsMatch(t, []string{"https://a.example.com", "https://b.example.com"}, got.SourceURLs)
}
