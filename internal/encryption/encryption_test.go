package encryption

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	enc, key, err := NewEncryptor("")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	sealed, err := enc.Encrypt("secret-api-key", "credential.lastfm")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "secret-api-key")

	again, _, err := NewEncryptor(key)
	require.NoError(t, err)
	plain, err := again.Decrypt(sealed, "credential.lastfm")
	require.NoError(t, err)
	assert.Equal(t, "secret-api-key", plain)
}

func TestDecrypt_WrongAssociatedData(t *testing.T) {
	enc, _, err := NewEncryptor("")
	require.NoError(t, err)
	sealed, err := enc.Encrypt("k", "credential.lastfm")
	require.NoError(t, err)

	_, err = enc.Decrypt(sealed, "credential.spotify")
	assert.Error(t, err)
}

func TestDecrypt_Rejects(t *testing.T) {
	enc, _, err := NewEncryptor("")
	require.NoError(t, err)

	_, err = enc.Decrypt("plaintext", "")
	assert.ErrorIs(t, err, ErrNotSealed)
	_, err = enc.Decrypt(sealedPrefix+"AAAA", "")
	assert.Error(t, err)
	_, err = enc.Decrypt(sealedPrefix+"!!!", "")
	assert.Error(t, err)
}

func TestNewEncryptor_BadKeys(t *testing.T) {
	_, _, err := NewEncryptor("not base64 at all!")
	assert.Error(t, err)
	_, _, err = NewEncryptor(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	enc, _, err := NewEncryptor("")
	require.NoError(t, err)
	a, err := enc.Encrypt("same", "")
	require.NoError(t, err)
	b, err := enc.Encrypt("same", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
