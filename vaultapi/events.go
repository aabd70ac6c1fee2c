package vaultapi

import "github.com/dale0525/secondloop/internal/store"

func UpsertEvent(appDir string, key []byte, e store.Event) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.UpsertEvent(e)
}

func GetEvent(appDir string, key []byte, id string) (*store.Event, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.GetEvent(id)
}

func ListEventsInRange(appDir string, key []byte, fromMs, toMs int64) ([]store.Event, error) {
	s, err := open(appDir, key)
	if err != nil {
		return nil, err
	}
	return s.ListEventsInRange(fromMs, toMs)
}

func DeleteEvent(appDir string, key []byte, id string) error {
	s, err := open(appDir, key)
	if err != nil {
		return err
	}
	return s.DeleteEvent(id)
}
