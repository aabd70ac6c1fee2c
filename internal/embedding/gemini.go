package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dale0525/secondloop/pkg/shared/httputil"
)

const (
	DefaultGeminiBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiEmbeddingModel = "gemini-embedding-001"
)

type geminiClient struct {
	baseURL   string
	headers   map[string]string
	modelPath string
}

// NormalizeGeminiModel strips "models/", "gemini/", and "google/" routing
// prefixes down to the bare model id the REST API expects.
func NormalizeGeminiModel(model string) string {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" {
		return DefaultGeminiEmbeddingModel
	}
	withoutPrefix := strings.TrimPrefix(trimmed, "models/")
	if after, ok := strings.CutPrefix(withoutPrefix, "gemini/"); ok {
		return after
	}
	if after, ok := strings.CutPrefix(withoutPrefix, "google/"); ok {
		return after
	}
	return withoutPrefix
}

func normalizeGeminiBaseURL(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	if idx := strings.Index(trimmed, "/openai"); idx > -1 {
		return trimmed[:idx]
	}
	return trimmed
}

// NewGemini builds an Embedder backed by Google's generativelanguage REST
// API (the google.golang.org/genai SDK targets chat generation, not the
// embedding endpoints, so this adapter speaks the REST surface directly).
func NewGemini(apiKey, baseURL, model string, headers map[string]string) (Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini embeddings require api_key")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultGeminiBaseURL
	}
	normalized := NormalizeGeminiModel(model)
	client := &geminiClient{
		baseURL:   normalizeGeminiBaseURL(baseURL),
		headers:   httputil.MergeHeaders(map[string]string{"x-goog-api-key": apiKey}, headers),
		modelPath: "models/" + normalized,
	}

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		requests := make([]map[string]any, 0, len(texts))
		for _, text := range texts {
			requests = append(requests, map[string]any{
				"model": client.modelPath,
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
				},
				"taskType": "RETRIEVAL_DOCUMENT",
			})
		}
		resp, err := client.post(ctx, client.batchURL(), map[string]any{"requests": requests})
		if err != nil {
			return nil, err
		}
		var payload struct {
			Embeddings []struct {
				Values []float64 `json:"values"`
			} `json:"embeddings"`
		}
		if err := json.Unmarshal(resp, &payload); err != nil {
			return nil, err
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			if i < len(payload.Embeddings) {
				out[i] = normalize(payload.Embeddings[i].Values)
			}
		}
		return out, nil
	}

	return &funcEmbedder{modelName: "gemini:" + normalized, dims: DefaultDims, embed: embed}, nil
}

func (c *geminiClient) batchURL() string {
	return strings.TrimRight(c.baseURL, "/") + "/" + c.modelPath + ":batchEmbedContents"
}

func (c *geminiClient) post(ctx context.Context, url string, payload map[string]any) ([]byte, error) {
	data, _, err := httputil.PostJSON(ctx, url, c.headers, payload, 60)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings failed: %w", err)
	}
	return data, nil
}
