package vaultapi

import (
	"github.com/dale0525/secondloop/internal/authfile"
	"github.com/dale0525/secondloop/internal/crypto"
)

// InitMasterPassword creates auth.json under appDir from a fresh password
// and returns the derived root key, which the caller must hold in memory
// for subsequent calls.
func InitMasterPassword(appDir, password string) ([]byte, error) {
	return authfile.InitMasterPassword(appDir, password, crypto.DefaultKDFParams())
}

// InitWithExistingKey bootstraps auth.json from a key obtained out-of-band
// (a second device adopting a key handed to it during sync setup).
func InitWithExistingKey(appDir string, key []byte) error {
	return authfile.InitWithExistingKey(appDir, key, crypto.DefaultKDFParams())
}

// UnlockWithPassword recovers the root key from appDir's auth.json and the
// caller-supplied password.
func UnlockWithPassword(appDir, password string) ([]byte, error) {
	return authfile.UnlockWithPassword(appDir, password)
}

// ValidateKey checks a caller-held key against appDir's auth.json without
// requiring the password again.
func ValidateKey(appDir string, key []byte) error {
	return authfile.ValidateKey(appDir, key)
}

// IsInitialized reports whether appDir already holds an auth.json.
func IsInitialized(appDir string) bool {
	return authfile.IsInitialized(appDir)
}
