package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "sqlite-vec", cfg.VectorSync.Backend)
	require.Equal(t, "local", cfg.Remote.Kind)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secondloopd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_dir: /vault
log:
  level: debug
vector:
  backend: qdrant
  qdrant:
    host: localhost
    port: 6334
    collection: secondloop
remote:
  kind: webdav
  webdav:
    url: https://example.com/dav
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/vault", cfg.AppDir)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "qdrant", cfg.VectorSync.Backend)
	require.Equal(t, "localhost", cfg.VectorSync.Qdrant.Host)
	require.Equal(t, 6334, cfg.VectorSync.Qdrant.Port)
	require.Equal(t, "webdav", cfg.Remote.Kind)
	require.Equal(t, "https://example.com/dav", cfg.Remote.WebDAV.URL)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secondloopd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_dir: /from-yaml\n"), 0o600))

	t.Setenv("SECONDLOOP_APP_DIR", "/from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from-env", cfg.AppDir)
}
