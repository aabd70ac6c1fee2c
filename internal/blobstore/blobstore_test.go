package blobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGetRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "ops/device-a/000001.json", []byte(`{"op":1}`)))
	data, err := s.Get(ctx, "ops/device-a/000001.json")
	require.NoError(t, err)
	require.Equal(t, `{"op":1}`, string(data))
}

func TestLocalStoreListSortedWithTrailingSlashOnDirs(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.MkdirAll(ctx, "device-b"))
	require.NoError(t, s.Put(ctx, "device-a.json", []byte("x")))

	entries, err := s.List(ctx, ".")
	require.NoError(t, err)
	require.Equal(t, []string{"device-a.json", "device-b/"}, entries)
}

func TestLocalStoreListMissingDirReturnsEmptyNotError(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	entries, err := s.List(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalStoreDeleteRecursive(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "attachments/ab/abcd1234", []byte("blob")))
	require.NoError(t, s.Delete(ctx, "attachments"))

	entries, err := s.List(ctx, "attachments")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalStoreTargetIDStableForSamePath(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewLocal(dir)
	require.NoError(t, err)
	s2, err := NewLocal(dir)
	require.NoError(t, err)

	require.Equal(t, s1.TargetID(), s2.TargetID())

	other, err := NewLocal(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.NotEqual(t, s1.TargetID(), other.TargetID())
}

func TestConnectionSucceedsAgainstFreshLocalStore(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, TestConnection(context.Background(), s))
}
