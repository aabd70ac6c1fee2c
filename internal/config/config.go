// Package config loads secondloopd.yaml, the host-level configuration for a
// vault daemon: where the vault lives, which embedding/vector backend and
// sync remote it uses by default, and the optional Redis cache. Every field
// can also be set or overridden from the environment, the way the teacher's
// pkg/matrixai/search.ConfigFromEnv layers env vars over a parsed struct.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dale0525/secondloop/pkg/shared/stringutil"
)

// Config is the top-level secondloopd.yaml document.
type Config struct {
	AppDir     string           `yaml:"app_dir"`
	Log        LogConfig        `yaml:"log"`
	VectorSync VectorSyncConfig `yaml:"vector"`
	Remote     RemoteConfig     `yaml:"remote"`
	Cache      CacheConfig      `yaml:"cache"`
}

// LogConfig configures the zerolog writer and level (§ ambient stack).
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default info
	Pretty bool   `yaml:"pretty"` // console-writer instead of JSON, for local runs
}

// VectorSyncConfig selects the nearest-neighbor backend.
type VectorSyncConfig struct {
	Backend       string `yaml:"backend"` // "sqlite-vec" (default) or "qdrant"
	ExtensionPath string `yaml:"extension_path"`
	Qdrant        struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		APIKey     string `yaml:"api_key"`
		UseTLS     bool   `yaml:"use_tls"`
		Collection string `yaml:"collection"`
	} `yaml:"qdrant"`
}

// RemoteConfig selects the default oplog/attachment sync remote.
type RemoteConfig struct {
	Kind string `yaml:"kind"` // "local" or "webdav"
	Dir  string `yaml:"dir"`
	WebDAV struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"webdav"`
}

// CacheConfig is the optional Redis embedding cache.
type CacheConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads path (if it exists) as YAML, then applies environment overrides
// on top — env always wins, matching the teacher's ConfigFromEnv/ApplyEnvDefaults
// layering. A missing file is not an error: a host can run on env vars alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	return ApplyEnvOverrides(cfg), nil
}

// ApplyEnvOverrides fills/overrides cfg fields from SECONDLOOP_* environment
// variables, trimming and ignoring anything empty.
func ApplyEnvOverrides(cfg *Config) *Config {
	cfg.AppDir = stringutil.EnvOr(cfg.AppDir, os.Getenv("SECONDLOOP_APP_DIR"))
	cfg.Log.Level = stringutil.FirstNonEmpty(os.Getenv("SECONDLOOP_LOG_LEVEL"), cfg.Log.Level, "info")

	cfg.VectorSync.Backend = stringutil.FirstNonEmpty(os.Getenv("SECONDLOOP_VECTOR_BACKEND"), cfg.VectorSync.Backend, "sqlite-vec")
	cfg.VectorSync.ExtensionPath = stringutil.EnvOr(cfg.VectorSync.ExtensionPath, os.Getenv("SECONDLOOP_VECTOR_EXTENSION_PATH"))
	cfg.VectorSync.Qdrant.Host = stringutil.EnvOr(cfg.VectorSync.Qdrant.Host, os.Getenv("SECONDLOOP_QDRANT_HOST"))
	cfg.VectorSync.Qdrant.APIKey = stringutil.EnvOr(cfg.VectorSync.Qdrant.APIKey, os.Getenv("SECONDLOOP_QDRANT_API_KEY"))
	cfg.VectorSync.Qdrant.Collection = stringutil.EnvOr(cfg.VectorSync.Qdrant.Collection, os.Getenv("SECONDLOOP_QDRANT_COLLECTION"))
	if port := os.Getenv("SECONDLOOP_QDRANT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.VectorSync.Qdrant.Port = n
		}
	}

	cfg.Remote.Kind = stringutil.FirstNonEmpty(os.Getenv("SECONDLOOP_REMOTE_KIND"), cfg.Remote.Kind, "local")
	cfg.Remote.Dir = stringutil.EnvOr(cfg.Remote.Dir, os.Getenv("SECONDLOOP_REMOTE_DIR"))
	cfg.Remote.WebDAV.URL = stringutil.EnvOr(cfg.Remote.WebDAV.URL, os.Getenv("SECONDLOOP_WEBDAV_URL"))
	cfg.Remote.WebDAV.Username = stringutil.EnvOr(cfg.Remote.WebDAV.Username, os.Getenv("SECONDLOOP_WEBDAV_USERNAME"))
	cfg.Remote.WebDAV.Password = stringutil.EnvOr(cfg.Remote.WebDAV.Password, os.Getenv("SECONDLOOP_WEBDAV_PASSWORD"))

	cfg.Cache.Addr = stringutil.EnvOr(cfg.Cache.Addr, os.Getenv("SECONDLOOP_REDIS_ADDR"))
	cfg.Cache.Password = stringutil.EnvOr(cfg.Cache.Password, os.Getenv("SECONDLOOP_REDIS_PASSWORD"))
	if db := os.Getenv("SECONDLOOP_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Cache.DB = n
		}
	}
	return cfg
}
