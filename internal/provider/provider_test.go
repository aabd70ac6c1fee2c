package provider

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dale0525/secondloop/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	s, err := store.Open(t.TempDir(), key, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStubStreamAnswerRecordedAsMemorylessTurn(t *testing.T) {
	stub := NewStub("assistant", "OK")

	var events []Event
	usage, err := stub.StreamAnswer(context.Background(), "hello", func(e Event) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.False(t, usage.HasUsage)
	require.Len(t, events, 3)
	require.Equal(t, "assistant", events[0].Role)
	require.Equal(t, "OK", events[1].TextDelta)
	require.True(t, events[2].Done)
}

func TestRecordUsageBucketsByDayProfilePurpose(t *testing.T) {
	s := openTestStore(t)
	profile, err := s.UpsertLlmProfile(store.LlmProfile{Name: "test", Kind: "openai", Model: "gpt-x"})
	require.NoError(t, err)

	require.NoError(t, RecordUsage(s, "2026-07-31", profile.ID, "ask", Usage{HasUsage: true, InputTokens: 10, OutputTokens: 5}))
	require.NoError(t, RecordUsage(s, "2026-07-31", profile.ID, "ask", Usage{}))

	got, err := s.GetLlmUsageDaily("2026-07-31", profile.ID, "ask")
	require.NoError(t, err)
	require.Equal(t, int64(2), got.Requests)
	require.Equal(t, int64(1), got.RequestsWithUsage)
	require.Equal(t, int64(10), got.InputTokens)
	require.Equal(t, int64(5), got.OutputTokens)
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(store.LlmProfile{Kind: "carrier-pigeon"})
	require.Error(t, err)
}
