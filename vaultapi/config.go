package vaultapi

import (
	"github.com/dale0525/secondloop/internal/config"
	"github.com/dale0525/secondloop/internal/vectorindex"
)

// ApplyConfig wires a loaded secondloopd.yaml into the package-global
// embedding cache and vector backend selectors (§9). A host calls this once
// at startup, before any other vaultapi function.
func ApplyConfig(cfg *config.Config) {
	SetEmbeddingCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	SetVectorBackend(cfg.VectorSync.Backend == "qdrant", cfg.VectorSync.ExtensionPath, vectorindex.QdrantConfig{
		Host:       cfg.VectorSync.Qdrant.Host,
		Port:       cfg.VectorSync.Qdrant.Port,
		APIKey:     cfg.VectorSync.Qdrant.APIKey,
		UseTLS:     cfg.VectorSync.Qdrant.UseTLS,
		Collection: cfg.VectorSync.Qdrant.Collection,
	})
}
