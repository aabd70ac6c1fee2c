package vectorindex

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dale0525/secondloop/internal/embedding"
	"github.com/dale0525/secondloop/internal/store"
)

// fakeBackend is an in-memory stand-in for sqliteVecBackend, letting these
// tests exercise Index's dedup/filter/idempotence logic without a compiled
// sqlite-vec extension. Index drives message embedding concurrently
// (workerpool.DefaultConcurrency), so every method is mutex-guarded just
// like the real sqlite-vec backend's own connection serialization.
type fakeBackend struct {
	mu    sync.Mutex
	dims  int
	byMsg map[string][]float32 // message_id -> vector, one row per invariant 2
}

func newFakeBackend() *fakeBackend { return &fakeBackend{byMsg: map[string][]float32{}} }

func (b *fakeBackend) EnsureTable(_ context.Context, dims int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dims = dims
	return nil
}

func (b *fakeBackend) Upsert(_ context.Context, messageID, _ string, vec []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byMsg[messageID] = vec
	return nil
}

func (b *fakeBackend) Search(_ context.Context, query []float32, _ string, limit int) ([]searchHit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var hits []searchHit
	for id, vec := range b.byMsg {
		hits = append(hits, searchHit{messageID: id, distance: l2(query, vec)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *fakeBackend) Reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byMsg = map[string][]float32{}
	return nil
}

func l2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

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

func newIndexWithFakeBackend(s *store.Store) (*Index, *fakeBackend) {
	b := newFakeBackend()
	return &Index{store: s, backend: b}, b
}

// TestNonMemoryExclusion covers §8 property 6 and scenario S5: a non-memory
// message must never surface in semantic search results.
func TestNonMemoryExclusion(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "apple pie", CreatedAtMs: 1, IsMemory: true}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m2", ConversationID: "conv-1", Role: store.RoleUser, Content: "apple", CreatedAtMs: 2, IsMemory: false}))

	idx, _ := newIndexWithFakeBackend(s)
	embedder := embedding.NewDefault()
	ctx := context.Background()

	n, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)
	require.Equal(t, 2, n, "both memory and non-memory messages still get embedded once inserted")

	results, err := idx.SearchSimilarMessages(ctx, embedder, "apple", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "m1", results[0].MessageID)
}

// TestVectorDedupKeepsLowestDistance covers §8 property 5: identical-content
// messages collapse to a single search result.
func TestVectorDedupKeepsLowestDistance(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "duplicate text", CreatedAtMs: 1, IsMemory: true}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m2", ConversationID: "conv-1", Role: store.RoleUser, Content: "duplicate text", CreatedAtMs: 2, IsMemory: true}))

	idx, _ := newIndexWithFakeBackend(s)
	embedder := embedding.NewDefault()
	ctx := context.Background()

	_, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)

	results, err := idx.SearchSimilarMessages(ctx, embedder, "duplicate text", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1, "identical-content messages must collapse to one result")
}

// TestReindexIdempotence covers §8 property 7: running the pending queue
// twice does no additional work and leaves the vector row count unchanged.
func TestReindexIdempotence(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "hello", CreatedAtMs: 1, IsMemory: true}))

	idx, backend := newIndexWithFakeBackend(s)
	ctx := context.Background()
	embedder := embedding.NewDefault()

	n1, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n1)
	require.Len(t, backend.byMsg, 1)

	n2, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)
	require.Equal(t, 0, n2, "a second pass over a clean pending queue does no work")
	require.Len(t, backend.byMsg, 1, "the vector row count must not grow")
}

// TestConversationScopedSearch covers §4.5 step 6.
func TestConversationScopedSearch(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-2", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "budget meeting notes", CreatedAtMs: 1, IsMemory: true}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m2", ConversationID: "conv-2", Role: store.RoleUser, Content: "budget meeting notes variant", CreatedAtMs: 2, IsMemory: true}))

	idx, _ := newIndexWithFakeBackend(s)
	ctx := context.Background()
	embedder := embedding.NewDefault()
	_, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)

	results, err := idx.SearchSimilarMessages(ctx, embedder, "budget meeting notes", 5, strPtr("conv-1"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "m1", results[0].MessageID)
}

// TestRebuildResetsAndRequeues covers the rebuild path used on embedder switch.
func TestRebuildResetsAndRequeues(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertConversation(store.Conversation{ID: "conv-1", CreatedAtMs: 1, UpdatedAtMs: 1}))
	require.NoError(t, s.AppendMessage(store.Message{ID: "m1", ConversationID: "conv-1", Role: store.RoleUser, Content: "hi", CreatedAtMs: 1, IsMemory: true}))

	idx, backend := newIndexWithFakeBackend(s)
	ctx := context.Background()
	embedder := embedding.NewDefault()
	_, err := idx.ProcessPendingMessageEmbeddings(ctx, embedder, 10)
	require.NoError(t, err)
	require.Len(t, backend.byMsg, 1)

	require.NoError(t, idx.RebuildMessageEmbeddings(ctx, embedder))
	require.Empty(t, backend.byMsg, "rebuild must drop every existing vector row")

	msg, err := s.GetMessage("m1")
	require.NoError(t, err)
	require.True(t, msg.NeedsEmbedding, "rebuild must re-queue every message")
}

func strPtr(s string) *string { return &s }
