package store

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	s, err := Open(t.TempDir(), key, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversationRoundTripAndWrongKeyOpacity(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", Title: "Inbox", CreatedAtMs: 1, UpdatedAtMs: 1}))

	got, err := s.GetConversation("conv-1")
	require.NoError(t, err)
	require.Equal(t, "Inbox", got.Title)

	var titleBlob []byte
	require.NoError(t, s.DB.QueryRow(`SELECT title FROM conversations WHERE id = 'conv-1'`).Scan(&titleBlob))
	require.NotContains(t, string(titleBlob), "Inbox", "ciphertext column must never hold plaintext")

	wrongKey := make([]byte, 32)
	for i := range wrongKey {
		wrongKey[i] = byte(255 - i)
	}
	wrong := &Store{DB: s.DB, Key: wrongKey, AppDir: s.AppDir, Log: s.Log}
	_, err = wrong.GetConversation("conv-1")
	require.Error(t, err, "reading with the wrong key must fail rather than return plaintext")
}

func TestEnsureWellKnownConversationsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.EnsureWellKnownConversations())
	first, err := s.GetConversation(ChatHomeConversationID)
	require.NoError(t, err)

	require.NoError(t, s.EnsureWellKnownConversations())
	second, err := s.GetConversation(ChatHomeConversationID)
	require.NoError(t, err)
	require.Equal(t, first.CreatedAtMs, second.CreatedAtMs, "a second call must not recreate the row")

	loop, err := s.GetConversation(LoopHomeConversationID)
	require.NoError(t, err)
	require.NotEmpty(t, loop.Title)
}

// TestAppendMessageSetsPendingAndIsMemory covers invariant 8 (pending flag
// on insert) and the non-memory carve-out for ask-AI turns (§8 S6).
func TestAppendMessageSetsPendingAndIsMemory(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))

	require.NoError(t, s.AppendMessage(Message{ID: "m1", ConversationID: "conv-1", Role: RoleUser, Content: "hello", CreatedAtMs: 2, IsMemory: true}))
	got, err := s.GetMessage("m1")
	require.NoError(t, err)
	require.True(t, got.NeedsEmbedding)
	require.True(t, got.IsMemory)

	require.NoError(t, s.AppendMessage(Message{ID: "m2", ConversationID: "conv-1", Role: RoleAssistant, Content: "OK", CreatedAtMs: 3, IsMemory: false}))
	got2, err := s.GetMessage("m2")
	require.NoError(t, err)
	require.False(t, got2.IsMemory)
	require.False(t, got2.NeedsEmbedding, "a non-memory message must never be marked pending (invariant 5)")
}

// TestOplogMonotonicity covers §8 property 9: seq values for one device form
// 1..N without gaps across several different domain mutations.
func TestOplogMonotonicity(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "m1", ConversationID: "conv-1", Role: RoleUser, Content: "a", CreatedAtMs: 2}))
	require.NoError(t, s.UpsertTodo(Todo{ID: "t1", Title: "buy milk", Status: "open", CreatedAtMs: 3, UpdatedAtMs: 3}))
	require.NoError(t, s.SetTodoStatus("t1", "done"))

	deviceID, err := s.DeviceID()
	require.NoError(t, err)
	rows, err := s.OpsSince(deviceID, 0, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for i, r := range rows {
		require.Equal(t, int64(i+1), r.Seq, "seq must be gapless starting at 1")
	}
}

// TestRecurringTodoSingleSpawn covers §8 S4: completing a recurring todo
// "done" twice produces exactly one successor with the rule's due delta.
func TestRecurringTodoSingleSpawn(t *testing.T) {
	s := openTestStore(t)
	const sourceDue = int64(1730455200000) // 2024-11-01T10:00:00Z
	require.NoError(t, s.UpsertTodo(Todo{ID: "t1", Title: "take vitamins", Status: "open", DueAtMs: ptr(sourceDue), CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.SetTodoRecurrence(TodoRecurrence{TodoID: "t1", SeriesID: "series-1", RuleJSON: `{"unit":"daily","interval":1}`}))

	require.NoError(t, s.SetTodoStatus("t1", TodoStatusDone))
	require.NoError(t, s.SetTodoStatus("t1", TodoStatusDone))

	all, err := s.ListTodos()
	require.NoError(t, err)
	require.Len(t, all, 2, "a second done transition must not spawn a duplicate")

	var spawned *Todo
	for i := range all {
		if all[i].ID != "t1" {
			spawned = &all[i]
		}
	}
	require.NotNil(t, spawned)
	require.Equal(t, "open", spawned.Status)
	require.NotNil(t, spawned.DueAtMs)
	require.Equal(t, sourceDue+86_400_000, *spawned.DueAtMs)
	require.Equal(t, "take vitamins", spawned.Title)
}

func TestTodoDeleteCascades(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.UpsertTodo(Todo{ID: "t1", Title: "task", Status: "open", SourceEntryID: ptr("conv-1"), CreatedAtMs: 1, UpdatedAtMs: 1}))
	act, err := s.AppendTodoNote("t1", "a note", "")
	require.NoError(t, err)
	require.NotNil(t, act.SourceMessageID)

	require.NoError(t, s.DeleteTodo("t1"))

	_, err = s.GetTodo("t1")
	require.Error(t, err)
	activities, err := s.ListTodoActivities("t1")
	require.NoError(t, err)
	require.Empty(t, activities)
	_, err = s.GetMessage(*act.SourceMessageID)
	require.Error(t, err, "synthetic note message must be deleted alongside its todo")

	// Re-applying the original upsert must be ignored post-tombstone.
	require.NoError(t, s.UpsertTodo(Todo{ID: "t1", Title: "task", Status: "open", CreatedAtMs: 1, UpdatedAtMs: 1}))
	_, err = s.GetTodo("t1")
	require.Error(t, err, "a tombstoned id must not be resurrected by a later upsert")
}

// TestAttachmentMetadataMerge covers §8 S3: filenames/source_urls union,
// title LWW via the caller supplying the most-recent value.
// TestAttachmentMetadataMerge covers §4.4/§8 S3: filenames and source_urls
// union across edits while title stays last-writer-wins. The union-merge
// entry point is UpsertAttachmentMetadataLocal, not SetAttachmentMetadata
// (which overwrites verbatim and exists only for sync-apply replay).
func TestAttachmentMetadataMerge(t *testing.T) {
	s := openTestStore(t)
	att, err := s.InsertAttachment([]byte("file bytes"), "application/pdf")
	require.NoError(t, err)

	require.NoError(t, s.UpsertAttachmentMetadataLocal(att.SHA256, ptr("Title A"), []string{"a.pdf"}, []string{"https://example.com"}))
	require.NoError(t, s.UpsertAttachmentMetadataLocal(att.SHA256, ptr("Title B"), []string{"b.pdf"}, nil))

	got, err := s.GetAttachmentMetadata(att.SHA256)
	require.NoError(t, err)
	require.Equal(t, "Title B", *got.Title)
	require.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, got.Filenames)
	require.ElementsMatch(t, []string{"https://example.com"}, got.SourceURLs)
}

// TestSetAttachmentMetadataOverwritesVerbatim documents that
// SetAttachmentMetadata (the sync-apply replay path) is a raw overwrite,
// not a merge — the merge already happened once on the originating device.
func TestSetAttachmentMetadataOverwritesVerbatim(t *testing.T) {
	s := openTestStore(t)
	att, err := s.InsertAttachment([]byte("file bytes"), "application/pdf")
	require.NoError(t, err)

	require.NoError(t, s.SetAttachmentMetadata(AttachmentMetadata{
		SHA256: att.SHA256, Title: ptr("Title A"), Filenames: []string{"a.pdf"}, SourceURLs: []string{"https://example.com"},
	}))
	require.NoError(t, s.SetAttachmentMetadata(AttachmentMetadata{
		SHA256: att.SHA256, Title: ptr("Title B"), Filenames: []string{"b.pdf"},
	}))

	got, err := s.GetAttachmentMetadata(att.SHA256)
	require.NoError(t, err)
	require.Equal(t, "Title B", *got.Title)
	require.Equal(t, []string{"b.pdf"}, got.Filenames, "this entry point overwrites, it does not union")
	require.Empty(t, got.SourceURLs)
}

func TestAttachmentBytesRoundTripAndContentAddressing(t *testing.T) {
	s := openTestStore(t)
	plaintext := []byte("some file content")
	att, err := s.InsertAttachment(plaintext, "text/plain")
	require.NoError(t, err)

	// Duplicate insert of identical bytes is idempotent (§4.3).
	att2, err := s.InsertAttachment(plaintext, "text/plain")
	require.NoError(t, err)
	require.Equal(t, att.SHA256, att2.SHA256)

	got, err := s.ReadAttachmentBytes(att.SHA256)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestTagMergeFoldsTaggings(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "m1", ConversationID: "conv-1", Role: RoleUser, Content: "hi", CreatedAtMs: 1}))

	source, err := s.UpsertTag("recipies")
	require.NoError(t, err)
	target, err := s.UpsertTag("recipes")
	require.NoError(t, err)
	require.NoError(t, s.SetMessageTags("m1", []string{source.ID}))

	n, err := s.MergeTags(source.ID, target.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tags, err := s.ListMessageTags("m1")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Equal(t, target.ID, tags[0].ID)

	all, err := s.ListTags()
	require.NoError(t, err)
	for _, tg := range all {
		require.NotEqual(t, source.ID, tg.ID, "source tag must be removed after merge")
	}
}

// TestRequeueAllMessagesForEmbeddingOnlyMarksMemoryMessages covers invariant
// 5 and §8 S6: changing the active embedding model must mark every memory
// message needs_embedding=1 and must never mark a non-memory message
// pending, even when it was pending before (e.g. briefly, before the first
// embed pass clears it).
func TestRequeueAllMessagesForEmbeddingOnlyMarksMemoryMessages(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "mem", ConversationID: "conv-1", Role: RoleUser, Content: "apple pie", CreatedAtMs: 1, IsMemory: true}))
	require.NoError(t, s.AppendMessage(Message{ID: "nonmem", ConversationID: "conv-1", Role: RoleAssistant, Content: "OK", CreatedAtMs: 2, IsMemory: false}))
	require.NoError(t, s.ClearNeedsEmbedding("mem"))
	require.NoError(t, s.ClearNeedsEmbedding("nonmem"))

	require.NoError(t, s.RequeueAllMessagesForEmbedding())

	mem, err := s.GetMessage("mem")
	require.NoError(t, err)
	require.True(t, mem.NeedsEmbedding)

	nonmem, err := s.GetMessage("nonmem")
	require.NoError(t, err)
	require.False(t, nonmem.NeedsEmbedding, "a non-memory message must never be marked pending, even by the rebuild path")
}

// TestSetActiveEmbeddingModelNameRequeuesOnlyOnChange covers the wiring
// between the active-model kv setter and the rebuild requeue: a genuine
// model change requeues memory messages, but setting the same name again
// (e.g. a redundant call) must not re-mark already-processed messages.
func TestSetActiveEmbeddingModelNameRequeuesOnlyOnChange(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "mem", ConversationID: "conv-1", Role: RoleUser, Content: "apple pie", CreatedAtMs: 1, IsMemory: true}))
	require.NoError(t, s.AppendMessage(Message{ID: "nonmem", ConversationID: "conv-1", Role: RoleAssistant, Content: "OK", CreatedAtMs: 2, IsMemory: false}))

	require.NoError(t, s.SetActiveEmbeddingModelName("model-a"))
	mem, err := s.GetMessage("mem")
	require.NoError(t, err)
	require.True(t, mem.NeedsEmbedding, "a first-time model name must still requeue memory messages")
	nonmem, err := s.GetMessage("nonmem")
	require.NoError(t, err)
	require.False(t, nonmem.NeedsEmbedding)

	require.NoError(t, s.ClearNeedsEmbedding("mem"))
	require.NoError(t, s.SetActiveEmbeddingModelName("model-a"))
	mem, err = s.GetMessage("mem")
	require.NoError(t, err)
	require.False(t, mem.NeedsEmbedding, "setting the same model name again must not requeue")

	require.NoError(t, s.SetActiveEmbeddingModelName("model-b"))
	mem, err = s.GetMessage("mem")
	require.NoError(t, err)
	require.True(t, mem.NeedsEmbedding, "an actual model change must requeue memory messages")
}

func TestListMessageSuggestedTagsExcludesAlreadyApplied(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "m1", ConversationID: "conv-1", Role: RoleUser, Content: "recipe for pie", CreatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(Message{ID: "m2", ConversationID: "conv-1", Role: RoleUser, Content: "another recipe", CreatedAtMs: 2}))

	cooking, err := s.UpsertTag("cooking")
	require.NoError(t, err)
	dessert, err := s.UpsertTag("dessert")
	require.NoError(t, err)

	require.NoError(t, s.SetMessageTags("m1", []string{cooking.ID, dessert.ID}))

	suggestions, err := s.ListMessageSuggestedTags("m2", 5)
	require.NoError(t, err)
	require.Len(t, suggestions, 2, "both co-occurring tags from the conversation should be suggested")

	require.NoError(t, s.SetMessageTags("m2", []string{cooking.ID}))
	suggestions, err = s.ListMessageSuggestedTags("m2", 5)
	require.NoError(t, err)
	require.Equal(t, []string{"dessert"}, suggestions, "an already-applied tag must not be suggested again")
}

func TestResetPreservesLlmProfilesAndActiveModel(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	_, err := s.UpsertLlmProfile(LlmProfile{Name: "my-profile", Kind: "openai", BaseURL: "https://api.openai.com/v1", APIKey: "sk-test", Model: "gpt-4o", CreatedAtMs: 1})
	require.NoError(t, err)
	require.NoError(t, s.SetActiveEmbeddingModelName("text-embedding-3-small"))

	require.NoError(t, s.ResetVaultDataPreservingLlmProfiles())

	_, err = s.GetConversation("conv-1")
	require.Error(t, err, "reset must drop conversations")

	profiles, err := s.ListLlmProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1, "reset must preserve llm_profiles")

	modelName, err := s.GetActiveEmbeddingModelName()
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-small", modelName)
}

func ptr[T any](v T) *T { return &v }
