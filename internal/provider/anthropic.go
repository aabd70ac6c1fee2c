package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicMaxTokens = 4096

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropic builds a Provider backed by Anthropic's Messages streaming
// endpoint (`content_block_delta.text_delta` + `message_stop`, §4.9).
func NewAnthropic(apiKey, baseURL, model string) Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...), model: model}
}

func (a *anthropicProvider) Name() string { return "anthropic" }

func (a *anthropicProvider) StreamAnswer(ctx context.Context, prompt string, onDelta func(Event) error) (Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: DefaultAnthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	stream := a.client.Messages.NewStreaming(ctx, params)

	var usage Usage
	roleSent := false
	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			if !roleSent {
				if err := onDelta(Event{Role: string(evt.Message.Role)}); err != nil {
					return usage, err
				}
				roleSent = true
			}
			if evt.Message.Usage.InputTokens > 0 {
				usage.HasUsage = true
				usage.InputTokens = evt.Message.Usage.InputTokens
			}
		case anthropic.ContentBlockDeltaEvent:
			if textDelta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := onDelta(Event{TextDelta: textDelta.Text}); err != nil {
					return usage, err
				}
			}
		case anthropic.MessageDeltaEvent:
			if evt.Usage.OutputTokens > 0 {
				usage.HasUsage = true
				usage.OutputTokens = evt.Usage.OutputTokens
			}
		}
	}
	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("anthropic stream: %w", err)
	}
	if err := onDelta(Event{Done: true}); err != nil {
		return usage, err
	}
	return usage, nil
}
