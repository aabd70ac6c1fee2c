package vectorindex

import "context"

// searchHit is one raw nearest-neighbor result before is_memory/conversation
// filtering is applied by the caller.
type searchHit struct {
	messageID string
	distance  float64
}

// backend is the pluggable ANN store behind Index. The default is
// sqlite-vec, loaded straight into the encrypted vault file; qdrantBackend
// is the alternate path named in §9's "dynamic provider dispatch" for vaults
// where the sqlite-vec extension cannot be loaded (e.g. a restricted host
// build of sqlite3).
type backend interface {
	EnsureTable(ctx context.Context, dims int) error
	Upsert(ctx context.Context, messageID, modelName string, vec []float32) error
	Search(ctx context.Context, queryVec []float32, modelName string, limit int) ([]searchHit, error)
	Reset(ctx context.Context) error
}
