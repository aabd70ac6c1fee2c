// Command secondloopd is a thin host process around the vaultapi boundary:
// it loads secondloopd.yaml, wires the embedding cache and vector backend,
// unlocks (or initializes) a vault, and drains the background queues
// (embedding, sync push/pull) on demand. It is deliberately not a daemon
// with its own scheduler (§5: the engine has none; callers drive it).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dale0525/secondloop/internal/config"
	"github.com/dale0525/secondloop/vaultapi"
)

func main() {
	var (
		configPath     = flag.String("config", "secondloopd.yaml", "path to the host config file")
		appDir         = flag.String("app-dir", "", "vault directory (overrides config app_dir)")
		password       = flag.String("password", "", "master password; if the vault is uninitialized, this initializes it")
		syncPassphrase = flag.String("sync-passphrase", "", "shared sync passphrase (required for sync-push/sync-pull)")
		action         = flag.String("action", "unlock", "unlock | embed | sync-push | sync-pull")
		batchSize      = flag.Int("batch-size", 50, "batch size for the embed action")
	)
	flag.Parse()

	log := newLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if *appDir != "" {
		cfg.AppDir = *appDir
	}
	if cfg.AppDir == "" {
		log.Fatal().Msg("app_dir is required (set in config or --app-dir)")
	}
	if err := os.MkdirAll(cfg.AppDir, 0o700); err != nil {
		log.Fatal().Err(err).Str("app_dir", cfg.AppDir).Msg("creating app dir")
	}
	vaultapi.ApplyConfig(cfg)

	key, err := resolveKey(cfg.AppDir, *password)
	if err != nil {
		log.Fatal().Err(err).Msg("resolving vault key")
	}

	switch *action {
	case "unlock":
		log.Info().Str("app_dir", cfg.AppDir).Msg("vault unlocked")
	case "embed":
		n, err := vaultapi.ProcessPendingMessageEmbeddings(cfg.AppDir, key, "", *batchSize)
		if err != nil {
			log.Fatal().Err(err).Msg("processing pending embeddings")
		}
		log.Info().Int("embedded", n).Msg("embedding pass complete")
	case "sync-push":
		runSync(log, cfg, key, *syncPassphrase, true)
	case "sync-pull":
		runSync(log, cfg, key, *syncPassphrase, false)
	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}

	if err := vaultapi.CloseAll(); err != nil {
		log.Fatal().Err(err).Msg("closing vault handles")
	}
}

func resolveKey(appDir, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("--password is required")
	}
	if !vaultapi.IsInitialized(appDir) {
		return vaultapi.InitMasterPassword(appDir, password)
	}
	return vaultapi.UnlockWithPassword(appDir, password)
}

func runSync(log zerolog.Logger, cfg *config.Config, key []byte, syncPassphrase string, push bool) {
	if syncPassphrase == "" {
		log.Fatal().Msg("--sync-passphrase is required for sync actions")
	}
	syncKey := vaultapi.DeriveSyncKey(syncPassphrase)

	var n int
	var err error
	if push {
		n, err = vaultapi.SyncPush(cfg.AppDir, key, syncKey, cfg.Remote.Kind, remoteRoot(cfg), cfg.Remote.WebDAV.Username, cfg.Remote.WebDAV.Password)
	} else {
		n, err = vaultapi.SyncPull(cfg.AppDir, key, syncKey, cfg.Remote.Kind, remoteRoot(cfg), cfg.Remote.WebDAV.Username, cfg.Remote.WebDAV.Password)
	}
	if err != nil {
		log.Fatal().Err(err).Bool("push", push).Msg("sync failed")
	}
	log.Info().Bool("push", push).Int("ops", n).Msg("sync complete")
}

func remoteRoot(cfg *config.Config) string {
	if cfg.Remote.Kind == "webdav" {
		return cfg.Remote.WebDAV.URL
	}
	return cfg.Remote.Dir
}

func newLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).With().Timestamp().Logger()
}
