package authfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dale0525/secondloop/internal/crypto"
)

func TestInitAndUnlock(t *testing.T) {
	dir := t.TempDir()
	key, err := InitMasterPassword(dir, "pw", crypto.TestKDFParams())
	require.NoError(t, err)

	unlocked, err := UnlockWithPassword(dir, "pw")
	require.NoError(t, err)
	require.Equal(t, key, unlocked)

	_, err = UnlockWithPassword(dir, "wrong")
	require.Error(t, err)
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	_, err := InitMasterPassword(dir, "pw", crypto.TestKDFParams())
	require.NoError(t, err)

	_, err = InitMasterPassword(dir, "pw2", crypto.TestKDFParams())
	require.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	dir := t.TempDir()
	key, err := InitMasterPassword(dir, "pw", crypto.TestKDFParams())
	require.NoError(t, err)

	require.NoError(t, ValidateKey(dir, key))
	require.Error(t, ValidateKey(dir, make([]byte, crypto.KeySize)))
}

func TestInitWithExistingKey(t *testing.T) {
	dir := t.TempDir()
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	require.NoError(t, InitWithExistingKey(dir, key, crypto.TestKDFParams()))
	require.NoError(t, ValidateKey(dir, key))
}
