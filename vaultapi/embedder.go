package vaultapi

import (
	"sync"

	"github.com/dale0525/secondloop/internal/embedding"
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/verr"
)

// embeddingCache holds the optional Redis cache config wrapped around every
// resolved Embedder. Like the vector extension registration (§9), it's
// process-wide: a host sets it once at startup, not per call.
var (
	embeddingCacheMu  sync.Mutex
	embeddingCacheCfg embedding.CacheConfig
)

// SetEmbeddingCache configures (or, with an empty addr, disables) the
// Redis-backed embedding cache that every subsequent embed/search call below
// wraps its resolved Embedder with.
func SetEmbeddingCache(addr, password string, db int) {
	embeddingCacheMu.Lock()
	defer embeddingCacheMu.Unlock()
	embeddingCacheCfg = embedding.CacheConfig{Addr: addr, Password: password, DB: db}
}

// resolveEmbedder builds the Embedder named by profileID. An empty profileID
// resolves to the deterministic offline fallback (§4.5) rather than
// whichever provider happens to be configured, so callers opt into a real
// provider explicitly on every call instead of relying on hidden state.
func resolveEmbedder(s *store.Store, profileID string) (embedding.Embedder, error) {
	var (
		inner embedding.Embedder
		err   error
	)
	if profileID == "" {
		inner = embedding.NewDefault()
	} else {
		profile, getErr := s.GetEmbeddingProfile(profileID)
		if getErr != nil {
			return nil, getErr
		}
		switch profile.Provider {
		case "openai":
			inner, err = embedding.NewOpenAI(profile.APIKey, profile.BaseURL, profile.Model, nil)
		case "gemini":
			inner, err = embedding.NewGemini(profile.APIKey, profile.BaseURL, profile.Model, nil)
		case "local":
			inner, err = embedding.NewLocal(profile.BaseURL, profile.APIKey, profile.Model, nil)
		default:
			return nil, verr.Input("embedding profile %s: unknown provider %q", profileID, profile.Provider)
		}
		if err != nil {
			return nil, err
		}
	}

	embeddingCacheMu.Lock()
	cfg := embeddingCacheCfg
	embeddingCacheMu.Unlock()
	return embedding.NewCached(inner, cfg)
}
