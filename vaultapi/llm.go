package vaultapi

import (
	"context"
	"time"

	"github.com/dale0525/secondloop/internal/provider"
	"github.com/dale0525/secondloop/internal/store"
)

func UpsertLlmProfile(appDir string, key []byte, p store.LlmProfile) (store.LlmProfile, error) {
	s, err := open(appDir, key)
	if err != nil {
		return store.LlmProfile{}, err
	}
	return s.UpsertLlmProfile(p)
}

func GetLlmProfile(appDir string, key []byte, id string) (*store.LlmProfile, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetLlmProfile(id)
}

func ListLlmProfiles(appDir string, key []byte) ([]store.LlmProfile, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListLlmProfiles()
}

func DeleteLlmProfile(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteLlmProfile(id)
}

func GetLlmUsageDaily(appDir string, key []byte, day, profileID, purpose string) (*store.LlmUsageDaily, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetLlmUsageDaily(day, profileID, purpose)
}

// StreamAnswer drives profileID's adapter against prompt, forwarding every
// parsed delta to onDelta as it arrives (§4.9, §9 "coroutine-like
// streaming") and recording the call's usage bucketed by (day, profileID,
// purpose) once the stream ends — with null token counts if the provider
// never reported usage.
func StreamAnswer(appDir string, key []byte, profileID, purpose, prompt string, onDelta func(role, textDelta string, done bool) error) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	profile, err := s.GetLlmProfile(profileID)
	if err != nil {
		return err
	}
	p, err := provider.New(*profile)
	if err != nil {
		return err
	}
	usage, streamErr := p.StreamAnswer(context.Background(), prompt, func(ev provider.Event) error {
		return onDelta(ev.Role, ev.TextDelta, ev.Done)
	})
	day := time.Now().UTC().Format("2006-01-02")
	if recErr := provider.RecordUsage(s, day, profileID, purpose, usage); recErr != nil && streamErr == nil {
		return recErr
	}
	return streamErr
}
