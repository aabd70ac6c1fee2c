package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundtrip(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	key, err := DeriveRootKey("pw", salt, TestKDFParams())
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("hello secondloop"), []byte("unit-test"))
	require.NoError(t, err)

	plaintext, err := Decrypt(key, blob, []byte("unit-test"))
	require.NoError(t, err)
	require.Equal(t, "hello secondloop", string(plaintext))
}

func TestRoundtripWrongKeyFails(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	key, err := DeriveRootKey("pw", salt, TestKDFParams())
	require.NoError(t, err)
	other, err := DeriveRootKey("pw2", salt, TestKDFParams())
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("hello secondloop"), []byte("unit-test"))
	require.NoError(t, err)

	_, err = Decrypt(other, blob, []byte("unit-test"))
	require.Error(t, err)
}

func TestDecryptWrongAADFails(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, SaltSize)
	key, err := DeriveRootKey("pw", salt, TestKDFParams())
	require.NoError(t, err)

	blob, err := Encrypt(key, []byte("hello secondloop"), []byte("aad-a"))
	require.NoError(t, err)

	_, err = Decrypt(key, blob, []byte("aad-b"))
	require.Error(t, err)
}

func TestDecryptShortBlobFails(t *testing.T) {
	key := make([]byte, KeySize)
	_, err := Decrypt(key, []byte("short"), []byte("aad"))
	require.Error(t, err)
}

func TestEncryptRejectsBadKeyLength(t *testing.T) {
	_, err := Encrypt([]byte("too-short"), []byte("x"), nil)
	require.Error(t, err)
}
