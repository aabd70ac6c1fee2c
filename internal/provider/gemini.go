package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

type geminiProvider struct {
	client  *genai.Client
	initErr error
	model   string
}

// NewGemini builds a Provider backed by Gemini's generateContent streaming
// RPC (`candidates[].content.parts[].text` + `finishReason`, §4.9). Client
// construction only fails on malformed static config; any such error is
// deferred and surfaced on the first StreamAnswer call instead of here, to
// match the other adapters' fallible-at-construction-time-never contract.
func NewGemini(apiKey, baseURL, model string) Provider {
	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: trimmed}
	}
	client, err := genai.NewClient(context.Background(), config)
	return &geminiProvider{client: client, initErr: err, model: model}
}

func (g *geminiProvider) Name() string { return "gemini" }

func (g *geminiProvider) StreamAnswer(ctx context.Context, prompt string, onDelta func(Event) error) (Usage, error) {
	if g.initErr != nil {
		return Usage{}, fmt.Errorf("gemini: client not initialized: %w", g.initErr)
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	var usage Usage
	roleSent := false
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, nil) {
		if err != nil {
			return usage, fmt.Errorf("gemini stream: %w", err)
		}
		if resp == nil {
			continue
		}
		if !roleSent {
			if err := onDelta(Event{Role: "model"}); err != nil {
				return usage, err
			}
			roleSent = true
		}
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				if err := onDelta(Event{TextDelta: part.Text}); err != nil {
					return usage, err
				}
			}
		}
		if resp.UsageMetadata != nil {
			usage = Usage{
				HasUsage:     true,
				InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
	}
	if err := onDelta(Event{Done: true}); err != nil {
		return usage, err
	}
	return usage, nil
}
