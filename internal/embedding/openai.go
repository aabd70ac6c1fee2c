package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dale0525/secondloop/pkg/shared/httputil"
)

const (
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// NormalizeOpenAIModel strips a "openai/" routing prefix some profiles
// carry over from multi-provider model pickers.
func NormalizeOpenAIModel(model string) string {
	trimmed := strings.TrimSpace(model)
	if trimmed == "" {
		return DefaultOpenAIEmbeddingModel
	}
	if after, ok := strings.CutPrefix(trimmed, "openai/"); ok {
		return after
	}
	return trimmed
}

// NewOpenAI builds an Embedder backed by the OpenAI embeddings endpoint. The
// caller is responsible for picking a model whose native output matches the
// vec0 virtual table's fixed dimension for this vault.
func NewOpenAI(apiKey, baseURL, model string, headers map[string]string) (Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai embeddings require api_key")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	opts = httputil.AppendHeaderOptions(opts, headers)
	opts = append(opts, option.WithBaseURL(baseURL))
	client := openai.NewClient(opts...)
	normalized := NormalizeOpenAIModel(model)

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		params := openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(normalized),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		}
		resp, err := client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		out := make([][]float32, 0, len(resp.Data))
		for _, entry := range resp.Data {
			out = append(out, normalize(entry.Embedding))
		}
		return out, nil
	}

	return &funcEmbedder{modelName: "openai:" + normalized, dims: DefaultDims, embed: embed}, nil
}
