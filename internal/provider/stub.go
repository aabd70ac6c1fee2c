package provider

import "context"

// Stub is a deterministic, offline Provider used by tests and by the
// RAG entry point when no profile is configured. It never touches the
// network and reports no usage.
type Stub struct {
	Role string
	Text string
}

// NewStub returns a Provider that streams a single fixed reply.
func NewStub(role, text string) *Stub {
	return &Stub{Role: role, Text: text}
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) StreamAnswer(_ context.Context, _ string, onDelta func(Event) error) (Usage, error) {
	role := s.Role
	if role == "" {
		role = "assistant"
	}
	if err := onDelta(Event{Role: role}); err != nil {
		return Usage{}, err
	}
	if s.Text != "" {
		if err := onDelta(Event{TextDelta: s.Text}); err != nil {
			return Usage{}, err
		}
	}
	if err := onDelta(Event{Done: true}); err != nil {
		return Usage{}, err
	}
	return Usage{}, nil
}
