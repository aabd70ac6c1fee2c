package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dale0525/secondloop/pkg/shared/httputil"
)

const DefaultLocalEmbeddingModel = "text-embedding-3-small"

func normalizeOpenAIEndpoint(baseURL string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/embeddings") {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/v1") || strings.HasSuffix(trimmed, "/openai/v1") {
		return trimmed + "/embeddings"
	}
	return trimmed + "/v1/embeddings"
}

// NewLocal builds an Embedder against a self-hosted OpenAI-compatible
// embeddings endpoint (llama.cpp server, Ollama's OpenAI shim, etc).
func NewLocal(baseURL, apiKey, model string, headers map[string]string) (Embedder, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("local embeddings require base_url")
	}
	normalizedModel := strings.TrimSpace(model)
	if normalizedModel == "" {
		normalizedModel = DefaultLocalEmbeddingModel
	}
	endpoint := normalizeOpenAIEndpoint(baseURL)

	reqHeaders := httputil.MergeHeaders(map[string]string{}, headers)
	if strings.TrimSpace(apiKey) != "" {
		if reqHeaders == nil {
			reqHeaders = map[string]string{}
		}
		reqHeaders["Authorization"] = "Bearer " + strings.TrimSpace(apiKey)
	}

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		payloadReq := map[string]any{"model": normalizedModel, "input": texts}
		data, _, err := httputil.PostJSON(ctx, endpoint, reqHeaders, payloadReq, 60)
		if err != nil {
			return nil, fmt.Errorf("local embeddings failed: %w", err)
		}
		var payload struct {
			Data []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		out := make([][]float32, len(payload.Data))
		for i, entry := range payload.Data {
			out[i] = normalize(entry.Embedding)
		}
		return out, nil
	}

	return &funcEmbedder{modelName: "local:" + normalizedModel, dims: DefaultDims, embed: embed}, nil
}
