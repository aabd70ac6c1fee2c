// Package authfile manages auth.json, the plaintext-metadata gate that lets
// unlock_with_password recompute and verify the vault's root key without ever
// storing it.
package authfile

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dale0525/secondloop/internal/crypto"
	"github.com/dale0525/secondloop/internal/verr"
)

const fileName = "auth.json"

// file is the on-disk JSON shape described in spec §6.
type file struct {
	Version         int              `json:"version"`
	SaltB64         string           `json:"salt_b64"`
	PasswordHashB64 string           `json:"password_hash_b64"`
	KDFParams       crypto.KDFParams `json:"kdf_params"`
}

func path(appDir string) string {
	return filepath.Join(appDir, fileName)
}

// IsInitialized reports whether auth.json already exists under appDir.
func IsInitialized(appDir string) bool {
	_, err := os.Stat(path(appDir))
	return err == nil
}

// InitMasterPassword creates auth.json from a fresh random salt and the given
// password, deriving the root key with params. It refuses to overwrite an
// existing file.
func InitMasterPassword(appDir, password string, params crypto.KDFParams) ([]byte, error) {
	if IsInitialized(appDir) {
		return nil, verr.Auth("master password already initialized")
	}
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		return nil, err
	}

	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveRootKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	return key, writeFile(appDir, salt, key, params)
}

// InitWithExistingKey stores the hash of a caller-supplied key (device
// adoption: the key was obtained out-of-band, e.g. from another device during
// sync bootstrap) instead of deriving one from a password.
func InitWithExistingKey(appDir string, key []byte, params crypto.KDFParams) error {
	if len(key) != crypto.KeySize {
		return verr.Input("key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	if IsInitialized(appDir) {
		return verr.Auth("master password already initialized")
	}
	if err := os.MkdirAll(appDir, 0o700); err != nil {
		return err
	}
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	return writeFile(appDir, salt, key, params)
}

// UnlockWithPassword reads auth.json, rederives the key from password, and
// returns it only if it constant-time-matches the stored hash.
func UnlockWithPassword(appDir, password string) ([]byte, error) {
	f, err := readFile(appDir)
	if err != nil {
		return nil, err
	}
	salt, err := decodeFixed(f.SaltB64, crypto.SaltSize, "salt")
	if err != nil {
		return nil, err
	}
	expected, err := decodeFixed(f.PasswordHashB64, crypto.KeySize, "hash")
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveRootKey(password, salt, f.KDFParams)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return nil, verr.Auth("invalid password")
	}
	return key, nil
}

// ValidateKey checks a raw key against the stored hash without a password,
// used when a caller already holds the key (e.g. the UI layer caching it in
// memory across calls).
func ValidateKey(appDir string, key []byte) error {
	f, err := readFile(appDir)
	if err != nil {
		return err
	}
	expected, err := decodeFixed(f.PasswordHashB64, crypto.KeySize, "hash")
	if err != nil {
		return err
	}
	if len(key) != crypto.KeySize {
		return verr.Input("key must be %d bytes, got %d", crypto.KeySize, len(key))
	}
	if subtle.ConstantTimeCompare(key, expected) != 1 {
		return verr.Auth("invalid key")
	}
	return nil
}

func writeFile(appDir string, salt, key []byte, params crypto.KDFParams) error {
	f := file{
		Version:         1,
		SaltB64:         base64.StdEncoding.EncodeToString(salt),
		PasswordHashB64: base64.StdEncoding.EncodeToString(key),
		KDFParams:       params,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path(appDir), data, 0o600)
}

func readFile(appDir string) (*file, error) {
	data, err := os.ReadFile(path(appDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, verr.Auth("vault not initialized")
		}
		return nil, err
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, verr.Auth("corrupt auth file: %v", err)
	}
	return &f, nil
}

func decodeFixed(b64 string, size int, what string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, verr.Auth("invalid auth file %s: %v", what, err)
	}
	if len(raw) != size {
		return nil, verr.Auth("invalid auth file %s length", what)
	}
	return raw, nil
}
