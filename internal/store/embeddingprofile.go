package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

// UpsertEmbeddingProfile writes a configured embedder back-end. Like LLM
// profiles, these are local-only state: never replicated over the oplog,
// since each device may point at a different local embedding server.
func (s *Store) UpsertEmbeddingProfile(p EmbeddingProfile) (EmbeddingProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAtMs == 0 {
		p.CreatedAtMs = nowMs()
	}
	var baseURLBlob, apiKeyBlob []byte
	if p.BaseURL != "" {
		blob, err := crypto.Encrypt(s.Key, []byte(p.BaseURL), crypto.EmbeddingProfileFieldAAD(p.ID, "base_url"))
		if err != nil {
			return EmbeddingProfile{}, err
		}
		baseURLBlob = blob
	}
	if p.APIKey != "" {
		blob, err := crypto.Encrypt(s.Key, []byte(p.APIKey), crypto.EmbeddingProfileFieldAAD(p.ID, "api_key"))
		if err != nil {
			return EmbeddingProfile{}, err
		}
		apiKeyBlob = blob
	}
	_, err := s.DB.Exec(`INSERT INTO embedding_profiles(id, provider, base_url, api_key, model, dims, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET provider = excluded.provider, base_url = excluded.base_url,
			api_key = excluded.api_key, model = excluded.model, dims = excluded.dims`,
		p.ID, p.Provider, baseURLBlob, apiKeyBlob, p.Model, p.Dims, p.CreatedAtMs)
	if err != nil {
		return EmbeddingProfile{}, err
	}
	return p, nil
}

// GetEmbeddingProfile decrypts and returns a single profile.
func (s *Store) GetEmbeddingProfile(id string) (*EmbeddingProfile, error) {
	var p EmbeddingProfile
	p.ID = id
	var baseURLBlob, apiKeyBlob []byte
	err := s.DB.QueryRow(`SELECT provider, base_url, api_key, model, dims, created_at_ms FROM embedding_profiles WHERE id = ?`, id).
		Scan(&p.Provider, &baseURLBlob, &apiKeyBlob, &p.Model, &p.Dims, &p.CreatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("embedding profile %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.decryptEmbeddingProfileFields(&p, baseURLBlob, apiKeyBlob); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListEmbeddingProfiles returns every configured embedder back-end.
func (s *Store) ListEmbeddingProfiles() ([]EmbeddingProfile, error) {
	rows, err := s.DB.Query(`SELECT id, provider, base_url, api_key, model, dims, created_at_ms
		FROM embedding_profiles ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EmbeddingProfile
	for rows.Next() {
		var p EmbeddingProfile
		var baseURLBlob, apiKeyBlob []byte
		if err := rows.Scan(&p.ID, &p.Provider, &baseURLBlob, &apiKeyBlob, &p.Model, &p.Dims, &p.CreatedAtMs); err != nil {
			return nil, err
		}
		if err := s.decryptEmbeddingProfileFields(&p, baseURLBlob, apiKeyBlob); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) decryptEmbeddingProfileFields(p *EmbeddingProfile, baseURLBlob, apiKeyBlob []byte) error {
	if len(baseURLBlob) > 0 {
		baseURL, err := crypto.Decrypt(s.Key, baseURLBlob, crypto.EmbeddingProfileFieldAAD(p.ID, "base_url"))
		if err != nil {
			return err
		}
		p.BaseURL = string(baseURL)
	}
	if len(apiKeyBlob) > 0 {
		apiKey, err := crypto.Decrypt(s.Key, apiKeyBlob, crypto.EmbeddingProfileFieldAAD(p.ID, "api_key"))
		if err != nil {
			return err
		}
		p.APIKey = string(apiKey)
	}
	return nil
}

// DeleteEmbeddingProfile removes a profile.
func (s *Store) DeleteEmbeddingProfile(id string) error {
	_, err := s.DB.Exec(`DELETE FROM embedding_profiles WHERE id = ?`, id)
	return err
}

// GetActiveEmbeddingModelName reads the kv-cached model name of whichever
// embedder is currently active, so the embedding-queue worker can tell
// whether a message's existing vector needs recomputing without a join.
func (s *Store) GetActiveEmbeddingModelName() (string, error) {
	val, ok, err := s.kvGet(s.DB, KVActiveEmbeddingModelName)
	if err != nil || !ok {
		return "", err
	}
	return val, nil
}

// SetActiveEmbeddingModelName records the active embedder's model name and,
// when it actually changes, requeues every memory message for re-embedding
// (the vector table itself is reset and rebuilt by internal/vectorindex,
// which drives the requeued ids back through the embedder).
func (s *Store) SetActiveEmbeddingModelName(modelName string) error {
	return s.WithTx(func(tx *sql.Tx) error {
		prev, ok, err := s.kvGet(tx, KVActiveEmbeddingModelName)
		if err != nil {
			return err
		}
		if err := s.kvSet(tx, KVActiveEmbeddingModelName, modelName); err != nil {
			return err
		}
		if ok && prev == modelName {
			return nil
		}
		_, err = tx.Exec(`UPDATE messages SET needs_embedding = CASE WHEN is_memory = 1 THEN 1 ELSE 0 END`)
		return err
	})
}
