// Package provider implements the pluggable external LLM capability the ask-AI
// path drives: stream_answer(prompt, on_delta). Every adapter parses its own
// provider's SSE or JSON wire format down to the same {role?, text_delta,
// done} event sequence, so the caller never branches on provider identity.
package provider

import (
	"context"
	"fmt"

	"github.com/dale0525/secondloop/internal/store"
)

// Event is one step of a streamed answer. Role is set only on the first
// event of a turn; Done marks the final event, which carries no text.
type Event struct {
	Role      string
	TextDelta string
	Done      bool
}

// Usage is the provider-reported token accounting for a single call. A
// provider that never reports usage (or a call that errors before any
// usage block arrives) returns the zero value with HasUsage false: the
// caller still records the request, just not its token counts.
type Usage struct {
	HasUsage     bool
	InputTokens  int64
	OutputTokens int64
}

// Provider is the capability contract every external LLM backend implements.
type Provider interface {
	Name() string
	StreamAnswer(ctx context.Context, prompt string, onDelta func(Event) error) (Usage, error)
}

// New builds the adapter named by profile.Kind ("openai", "anthropic", or
// "gemini"). Unknown kinds are a configuration error, not a silent
// downgrade to a different provider.
func New(profile store.LlmProfile) (Provider, error) {
	switch profile.Kind {
	case "", "openai":
		return NewOpenAI(profile.APIKey, profile.BaseURL, profile.Model), nil
	case "anthropic":
		return NewAnthropic(profile.APIKey, profile.BaseURL, profile.Model), nil
	case "gemini":
		return NewGemini(profile.APIKey, profile.BaseURL, profile.Model), nil
	default:
		return nil, fmt.Errorf("provider: unknown llm profile kind %q", profile.Kind)
	}
}

// RecordUsage writes a StreamAnswer call's token accounting into the daily
// usage ledger (§4.9: "every call that receives a provider-reported usage
// block records a row ... bucketed by (day, profile_id, purpose)").
func RecordUsage(s *store.Store, day, profileID, purpose string, usage Usage) error {
	return s.RecordLlmUsage(day, profileID, purpose, usage.HasUsage, usage.InputTokens, usage.OutputTokens)
}
