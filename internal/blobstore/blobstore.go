// Package blobstore implements the remote blob store abstraction (C8) that
// the sync engine replicates ops and attachment bytes through. The store
// itself is "dumb" — it only moves bytes under paths the caller names; all
// encryption, idempotency, and conflict resolution live in internal/syncengine.
package blobstore

import "context"

// Store is the five-verb remote blob interface. Implementations: a local
// directory (local.go) and WebDAV (webdav.go).
type Store interface {
	// TargetID returns a stable identifier for this (endpoint, base-path)
	// combination. Sync cursors are partitioned by it; switching target
	// requires rediscovering a pushed cursor, and the same id pointed at
	// empty storage must behave like a reset (push re-uploads everything).
	TargetID() string

	MkdirAll(ctx context.Context, dir string) error

	// List returns entry names directly under dir, with a trailing "/" on
	// directory entries.
	List(ctx context.Context, dir string) ([]string, error)

	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error

	// Delete removes path; on a directory this is recursive.
	Delete(ctx context.Context, path string) error
}

// TestConnection verifies a store is reachable and writable by creating and
// then listing a probe directory (§4.7: "MKCOL then PROPFIND and fail if the
// root is still not present").
func TestConnection(ctx context.Context, s Store) error {
	const probeDir = ".secondloop-probe"
	if err := s.MkdirAll(ctx, probeDir); err != nil {
		return err
	}
	entries, err := s.List(ctx, ".")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e == probeDir || e == probeDir+"/" {
			return nil
		}
	}
	return errRootNotPresent
}

var errRootNotPresent = &ConnectionError{Msg: "probe directory not present after mkdir"}

// ConnectionError reports a failed TestConnection.
type ConnectionError struct{ Msg string }

func (e *ConnectionError) Error() string { return e.Msg }
