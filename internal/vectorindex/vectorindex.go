// Package vectorindex maintains the nearest-neighbor index that backs
// semantic recall (C5). The default backend is sqlite-vec, living inside
// the vault's own encrypted sqlite file; Qdrant is available as an alternate
// backend (see backend.go) for hosts where the sqlite-vec extension cannot
// be loaded.
package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/dale0525/secondloop/internal/embedding"
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/verr"
	"github.com/dale0525/secondloop/internal/workerpool"
	"github.com/dale0525/secondloop/pkg/shared/stringutil"
)

// Index drives embedding and similarity search over a vault's messages.
type Index struct {
	store   *store.Store
	backend backend
}

// New returns an Index backed by the vault's own sqlite-vec virtual table.
// extensionPath is the path to the compiled sqlite-vec shared library; an
// empty path assumes vec0 is already statically linked into the sqlite3
// build in use.
func New(s *store.Store, extensionPath string) *Index {
	return &Index{store: s, backend: newSQLiteVecBackend(s, extensionPath)}
}

// QdrantConfig selects the alternate Qdrant ANN backend in place of
// sqlite-vec.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// NewWithQdrant returns an Index backed by a Qdrant collection instead of
// the in-process sqlite-vec extension.
func NewWithQdrant(s *store.Store, cfg QdrantConfig) (*Index, error) {
	b, err := newQdrantBackend(cfg.Host, cfg.Port, cfg.APIKey, cfg.UseTLS, cfg.Collection)
	if err != nil {
		return nil, err
	}
	return &Index{store: s, backend: b}, nil
}

// ProcessPendingMessageEmbeddings embeds every message with needs_embedding
// set, replacing (never duplicating, per invariant 2) any prior vector row
// for that message under the active model. A failed embed call leaves the
// flag untouched and the active model name untouched (§10's
// no-silent-downgrade rule) rather than falling back to a weaker embedder.
// Messages are embedded concurrently, bounded by workerpool.DefaultConcurrency
// (§8: background batch jobs capped at a small constant), since each
// message's embed/upsert/clear-flag sequence commits independently.
func (idx *Index) ProcessPendingMessageEmbeddings(ctx context.Context, embedder embedding.Embedder, batchSize int) (int, error) {
	if err := idx.backend.EnsureTable(ctx, embedder.Dims()); err != nil {
		return 0, err
	}
	ids, err := idx.store.PendingEmbeddingMessageIDs(batchSize)
	if err != nil {
		return 0, err
	}

	var processed int64
	err = workerpool.Run(ctx, workerpool.DefaultConcurrency(), ids, func(ctx context.Context, id string) error {
		msg, err := idx.store.GetMessage(id)
		if err != nil {
			return err
		}
		vectors, err := embedder.Embed(ctx, []string{stringutil.StripMarkup(msg.Content)})
		if err != nil {
			return fmt.Errorf("embed message %s: %w", id, err)
		}
		if len(vectors) != 1 {
			return fmt.Errorf("embed message %s: expected 1 vector, got %d", id, len(vectors))
		}
		if err := idx.backend.Upsert(ctx, id, embedder.ModelName(), vectors[0]); err != nil {
			return err
		}
		if err := idx.store.ClearNeedsEmbedding(id); err != nil {
			return err
		}
		atomic.AddInt64(&processed, 1)
		return nil
	})
	return int(atomic.LoadInt64(&processed)), err
}

// RebuildMessageEmbeddings resets the backend for a newly-activated embedder
// (different model name and/or dimension), then re-queues every memory
// message. Recording the active model name is what actually triggers the
// requeue (store.SetActiveEmbeddingModelName is a no-op when the name is
// unchanged), so switching back to an already-active model does no work.
func (idx *Index) RebuildMessageEmbeddings(ctx context.Context, embedder embedding.Embedder) error {
	if err := idx.backend.Reset(ctx); err != nil {
		return err
	}
	if err := idx.backend.EnsureTable(ctx, embedder.Dims()); err != nil {
		return err
	}
	return idx.store.SetActiveEmbeddingModelName(embedder.ModelName())
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	MessageID string
	Score     float64
}

// SearchSimilarMessages embeds queryText with embedder and returns the
// nearest is_memory messages, optionally scoped to a conversation, deduped
// by message id. A todo-thread search path mirrors this but reads from
// todos ∪ todo_activities and never sets needs_embedding on what it reads
// (§4.5: "semantic search over todos does not trigger embedding the todo").
func (idx *Index) SearchSimilarMessages(ctx context.Context, embedder embedding.Embedder, queryText string, limit int, conversationID *string) ([]SearchResult, error) {
	vectors, err := embedder.Embed(ctx, []string{stringutil.StripMarkup(queryText)})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, verr.Input("embed query: expected 1 vector, got %d", len(vectors))
	}

	fetchLimit := limit * 4
	if fetchLimit < limit {
		fetchLimit = limit
	}
	hits, err := idx.backend.Search(ctx, vectors[0], embedder.ModelName(), fetchLimit)
	if err != nil {
		return nil, err
	}

	// hits arrive ascending by distance, so the first occurrence of a given
	// content string is already its lowest-distance representative (§4.5
	// step 4: dedup by exact content, keep the lowest distance per string).
	seenContent := make(map[string]bool, len(hits))
	var out []SearchResult
	for _, h := range hits {
		msg, err := idx.store.GetMessage(h.messageID)
		if err != nil {
			continue // message was deleted since indexing; skip rather than fail the whole search
		}
		if !msg.IsMemory {
			continue
		}
		if conversationID != nil && msg.ConversationID != *conversationID {
			continue
		}
		if seenContent[msg.Content] {
			continue
		}
		seenContent[msg.Content] = true
		out = append(out, SearchResult{MessageID: h.messageID, Score: -h.distance})
		if len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
