// Package crypto implements the vault's key derivation and AEAD sealing: Argon2id
// for password -> root key, XChaCha20-Poly1305 for per-field/per-blob encryption.
package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dale0525/secondloop/internal/verr"
)

const (
	KeySize   = 32
	SaltSize  = 16
	NonceSize = chacha20poly1305.NonceSizeX
)

// KDFParams are the Argon2id cost parameters stored alongside the salt in auth.json.
type KDFParams struct {
	MCostKiB uint32 `json:"m_cost_kib"`
	TCost    uint32 `json:"t_cost"`
	PCost    uint32 `json:"p_cost"`
}

// DefaultKDFParams are conservative interactive-unlock costs.
func DefaultKDFParams() KDFParams {
	return KDFParams{MCostKiB: 64 * 1024, TCost: 3, PCost: 4}
}

// TestKDFParams are cheap parameters for unit tests, matching the reference
// implementation's KdfParams::for_test().
func TestKDFParams() KDFParams {
	return KDFParams{MCostKiB: 1024, TCost: 1, PCost: 1}
}

// DeriveRootKey runs Argon2id over password+salt, producing a 32-byte key.
func DeriveRootKey(password string, salt []byte, params KDFParams) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, verr.Input("salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	key := argon2.IDKey([]byte(password), salt, params.TCost, params.MCostKiB, uint8(params.PCost), KeySize)
	return key, nil
}

// syncKeySalt is fixed rather than random (§3): every device deriving a
// sync key from the same shared passphrase must land on the same 32 bytes
// without any prior coordination, so there is no per-install salt to
// exchange out of band.
var syncKeySalt = [SaltSize]byte{'s', 'e', 'c', 'o', 'n', 'd', 'l', 'o', 'o', 'p', '.', 's', 'y', 'n', 'c', 0}

// DeriveSyncKey runs Argon2id over a shared sync passphrase with the fixed
// salt above, producing the 32-byte sync key (§3). Unlike the root key, this
// key is never stored — every device re-derives it from the same passphrase
// and uses it only to seal/open oplog and attachment bytes in transit.
func DeriveSyncKey(passphrase string, params KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), syncKeySalt[:], params.TCost, params.MCostKiB, uint8(params.PCost), KeySize)
}

// Encrypt seals plaintext under key with a fresh random nonce, returning
// nonce || ciphertext‖tag. aad is bound into the seal but never stored.
func Encrypt(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, verr.Input("key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, verr.Input("invalid key: %v", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. It fails if the blob is too short,
// the tag doesn't verify, or aad/key don't match what sealed it.
func Decrypt(key, blob, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, verr.Input("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(blob) < NonceSize {
		return nil, verr.Decrypt("ciphertext too short: %d bytes", len(blob))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, verr.Input("invalid key: %v", err)
	}
	nonce, ciphertext := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, verr.Decrypt("decrypt failed: %v", err)
	}
	return plaintext, nil
}
