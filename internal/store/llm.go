package store

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

// UpsertLlmProfile writes an LLM connection profile. Profiles are local-only
// state: they are never replicated over the oplog, since each device may
// reasonably hold distinct provider credentials.
func (s *Store) UpsertLlmProfile(p LlmProfile) (LlmProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAtMs == 0 {
		p.CreatedAtMs = nowMs()
	}
	if p.Kind == "" {
		p.Kind = "openai"
	}
	baseURLBlob, err := crypto.Encrypt(s.Key, []byte(p.BaseURL), crypto.LlmProfileFieldAAD(p.ID, "base_url"))
	if err != nil {
		return LlmProfile{}, err
	}
	apiKeyBlob, err := crypto.Encrypt(s.Key, []byte(p.APIKey), crypto.LlmProfileFieldAAD(p.ID, "api_key"))
	if err != nil {
		return LlmProfile{}, err
	}
	modelBlob, err := crypto.Encrypt(s.Key, []byte(p.Model), crypto.LlmProfileFieldAAD(p.ID, "model"))
	if err != nil {
		return LlmProfile{}, err
	}
	_, err = s.DB.Exec(`INSERT INTO llm_profiles(id, name, kind, base_url, api_key, model, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, kind = excluded.kind, base_url = excluded.base_url,
			api_key = excluded.api_key, model = excluded.model`,
		p.ID, p.Name, p.Kind, baseURLBlob, apiKeyBlob, modelBlob, p.CreatedAtMs)
	if err != nil {
		return LlmProfile{}, err
	}
	return p, nil
}

// GetLlmProfile decrypts and returns a single profile.
func (s *Store) GetLlmProfile(id string) (*LlmProfile, error) {
	var p LlmProfile
	p.ID = id
	var baseURLBlob, apiKeyBlob, modelBlob []byte
	err := s.DB.QueryRow(`SELECT name, kind, base_url, api_key, model, created_at_ms FROM llm_profiles WHERE id = ?`, id).
		Scan(&p.Name, &p.Kind, &baseURLBlob, &apiKeyBlob, &modelBlob, &p.CreatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("llm profile %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if err := s.decryptLlmProfileFields(&p, baseURLBlob, apiKeyBlob, modelBlob); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListLlmProfiles returns every configured profile.
func (s *Store) ListLlmProfiles() ([]LlmProfile, error) {
	rows, err := s.DB.Query(`SELECT id, name, kind, base_url, api_key, model, created_at_ms FROM llm_profiles ORDER BY created_at_ms ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LlmProfile
	for rows.Next() {
		var p LlmProfile
		var baseURLBlob, apiKeyBlob, modelBlob []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &baseURLBlob, &apiKeyBlob, &modelBlob, &p.CreatedAtMs); err != nil {
			return nil, err
		}
		if err := s.decryptLlmProfileFields(&p, baseURLBlob, apiKeyBlob, modelBlob); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) decryptLlmProfileFields(p *LlmProfile, baseURLBlob, apiKeyBlob, modelBlob []byte) error {
	baseURL, err := crypto.Decrypt(s.Key, baseURLBlob, crypto.LlmProfileFieldAAD(p.ID, "base_url"))
	if err != nil {
		return err
	}
	apiKey, err := crypto.Decrypt(s.Key, apiKeyBlob, crypto.LlmProfileFieldAAD(p.ID, "api_key"))
	if err != nil {
		return err
	}
	model, err := crypto.Decrypt(s.Key, modelBlob, crypto.LlmProfileFieldAAD(p.ID, "model"))
	if err != nil {
		return err
	}
	p.BaseURL = string(baseURL)
	p.APIKey = string(apiKey)
	p.Model = string(model)
	return nil
}

// DeleteLlmProfile removes a profile.
func (s *Store) DeleteLlmProfile(id string) error {
	_, err := s.DB.Exec(`DELETE FROM llm_profiles WHERE id = ?`, id)
	return err
}

// RecordLlmUsage upserts the (day, profile_id, purpose) usage-daily bucket.
// hasUsage reflects whether the provider response carried a usage block;
// calls without one still count toward requests but not requests_with_usage.
func (s *Store) RecordLlmUsage(day, profileID, purpose string, hasUsage bool, inputTokens, outputTokens int64) error {
	requestsWithUsage := 0
	if hasUsage {
		requestsWithUsage = 1
	}
	_, err := s.DB.Exec(`INSERT INTO llm_usage_daily(day, profile_id, purpose, requests, requests_with_usage,
			input_tokens, output_tokens, total_tokens)
		VALUES (?, ?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(day, profile_id, purpose) DO UPDATE SET
			requests = requests + 1,
			requests_with_usage = requests_with_usage + excluded.requests_with_usage,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_tokens = total_tokens + excluded.total_tokens`,
		day, profileID, purpose, requestsWithUsage, inputTokens, outputTokens, inputTokens+outputTokens)
	return err
}

// GetLlmUsageDaily returns the usage bucket for a specific day/profile/purpose.
func (s *Store) GetLlmUsageDaily(day, profileID, purpose string) (*LlmUsageDaily, error) {
	var u LlmUsageDaily
	u.Day, u.ProfileID, u.Purpose = day, profileID, purpose
	err := s.DB.QueryRow(`SELECT requests, requests_with_usage, input_tokens, output_tokens, total_tokens
		FROM llm_usage_daily WHERE day = ? AND profile_id = ? AND purpose = ?`, day, profileID, purpose).
		Scan(&u.Requests, &u.RequestsWithUsage, &u.InputTokens, &u.OutputTokens, &u.TotalTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, verr.NotFound("no llm usage for %s/%s/%s", day, profileID, purpose)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
