package vaultapi

import (
	"context"
	"sync"

	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/vectorindex"
)

// vectorBackendCfg is the process-wide vector backend selection (§9
// "dynamic provider dispatch"), set once at host startup from
// config.VectorSyncConfig and reused by every resolveIndex call below —
// mirroring the embedding cache's process-global config in embedder.go.
var (
	vectorBackendMu  sync.Mutex
	vectorBackendCfg vectorindex.QdrantConfig
	vectorUseQdrant  bool
	vectorExtPath    string
)

// SetVectorBackend selects sqlite-vec (extensionPath, possibly empty when
// vec0 is statically linked) or, when useQdrant is true, the Qdrant backend
// described by qdrantCfg.
func SetVectorBackend(useQdrant bool, extensionPath string, qdrantCfg vectorindex.QdrantConfig) {
	vectorBackendMu.Lock()
	defer vectorBackendMu.Unlock()
	vectorUseQdrant = useQdrant
	vectorExtPath = extensionPath
	vectorBackendCfg = qdrantCfg
}

func resolveIndex(s *store.Store) (*vectorindex.Index, error) {
	vectorBackendMu.Lock()
	useQdrant, extPath, qdrantCfg := vectorUseQdrant, vectorExtPath, vectorBackendCfg
	vectorBackendMu.Unlock()
	if useQdrant {
		return vectorindex.NewWithQdrant(s, qdrantCfg)
	}
	return vectorindex.New(s, extPath), nil
}

// ProcessPendingMessageEmbeddings drives the pending-flag queue (§4.5) for
// up to batchSize messages using the embedder named by embeddingProfileID
// (empty for the offline default), returning the number embedded.
func ProcessPendingMessageEmbeddings(appDir string, key []byte, embeddingProfileID string, batchSize int) (int, error) {
	s, err := open(appDir, key)
	if err != nil {
		return 0, err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return 0, err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return 0, err
	}
	return idx.ProcessPendingMessageEmbeddings(context.Background(), embedder, batchSize)
}

// RebuildMessageEmbeddings drops every vector row for the embedder's model
// and re-marks every memory message pending before draining the queue.
func RebuildMessageEmbeddings(appDir string, key []byte, embeddingProfileID string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return err
	}
	return idx.RebuildMessageEmbeddings(context.Background(), embedder)
}

// SearchSimilarMessages returns the k nearest memory messages to queryText,
// deduplicated by exact content (§4.5 step 4).
func SearchSimilarMessages(appDir string, key []byte, embeddingProfileID, queryText string, k int) ([]vectorindex.SearchResult, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return nil, err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return nil, err
	}
	return idx.SearchSimilarMessages(context.Background(), embedder, queryText, k, nil)
}

// SearchSimilarMessagesInConversation is the conversation-scoped variant of
// SearchSimilarMessages (§4.5 step 6).
func SearchSimilarMessagesInConversation(appDir string, key []byte, embeddingProfileID, conversationID, queryText string, k int) ([]vectorindex.SearchResult, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return nil, err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return nil, err
	}
	return idx.SearchSimilarMessages(context.Background(), embedder, queryText, k, &conversationID)
}

// ProcessPendingTodoThreadEmbeddings drives the todo/todo-activity analogue
// of the message embedding queue.
func ProcessPendingTodoThreadEmbeddings(appDir string, key []byte, embeddingProfileID string, batchSize int) (int, error) {
	s, err := open(appDir, key)
	if err != nil {
		return 0, err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return 0, err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return 0, err
	}
	return idx.ProcessPendingTodoThreadEmbeddings(context.Background(), embedder, batchSize)
}

// SearchSimilarTodoThread searches across todos and todo activities (§4.5:
// "does not trigger embedding the todo"), returning the k nearest entries.
func SearchSimilarTodoThread(appDir string, key []byte, embeddingProfileID, queryText string, k int) ([]vectorindex.TodoThreadResult, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	embedder, err := resolveEmbedder(s, embeddingProfileID)
	if err != nil {
		return nil, err
	}
	idx, err := resolveIndex(s)
	if err != nil {
		return nil, err
	}
	return idx.SearchSimilarTodoThread(context.Background(), embedder, queryText, k)
}
