// Package vaultapi is the flat, language-boundary-facing surface over the
// vault (§6): every exported function takes (app_dir, key_bytes[32], ...)
// and returns a plain result or error, so a host embedding secondloop across
// an FFI boundary never has to marshal a Go object graph. The only
// precondition this layer checks itself is the key's length; everything
// else is delegated to the packages underneath.
package vaultapi

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/store"
	"github.com/dale0525/secondloop/internal/verr"
)

// handles caches one open *store.Store per app_dir so repeated boundary
// calls don't re-run migrations and re-open the sqlite file on every call;
// Store itself already serializes writes via its own mutex and
// SetMaxOpenConns(1).
var (
	handlesMu sync.Mutex
	handles   = map[string]*store.Store{}
)

func open(appDir string, key []byte) (*store.Store, error) {
	if len(key) != crypto.KeySize {
		return nil, verr.Input("key must be %d bytes, got %d", crypto.KeySize, len(key))
	}

	handlesMu.Lock()
	defer handlesMu.Unlock()

	if s, ok := handles[appDir]; ok {
		return s, nil
	}
	s, err := store.Open(appDir, key, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	handles[appDir] = s
	return s, nil
}

// CloseAll closes and evicts every cached handle. Hosts call this on
// lock/shutdown; a subsequent boundary call reopens and re-validates the key.
func CloseAll() error {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	var firstErr error
	for appDir, s := range handles {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(handles, appDir)
	}
	return firstErr
}

// DBOpen validates the key and establishes (or reuses) the cached handle for
// appDir, running the vault's migration ladder if needed. Hosts call this
// once after unlock before any other family of calls.
func DBOpen(appDir string, key []byte) error {
	_, err := open(appDir, key)
	return err
}
