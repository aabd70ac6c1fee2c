package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAI builds a Provider backed by the OpenAI chat completions
// streaming endpoint (`data: {choices[].delta.content}` + `[DONE]`, §4.9).
func NewOpenAI(apiKey, baseURL, model string) Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	}
	return &openAIProvider{client: openai.NewClient(opts...), model: model}
}

func (o *openAIProvider) Name() string { return "openai" }

func (o *openAIProvider) StreamAnswer(ctx context.Context, prompt string, onDelta func(Event) error) (Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var usage Usage
	roleSent := false
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Role != "" && !roleSent {
				if err := onDelta(Event{Role: choice.Delta.Role}); err != nil {
					return usage, err
				}
				roleSent = true
			}
			if choice.Delta.Content != "" {
				if err := onDelta(Event{TextDelta: choice.Delta.Content}); err != nil {
					return usage, err
				}
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			usage = Usage{
				HasUsage:     true,
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
	}
	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("openai stream: %w", err)
	}
	if err := onDelta(Event{Done: true}); err != nil {
		return usage, err
	}
	return usage, nil
}

