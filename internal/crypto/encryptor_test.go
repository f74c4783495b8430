package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_SealOpenRoundTrip(t *testing.T) {
	enc := NewEncryptor("correct horse battery staple", "test-salt")

	sealed, err := enc.Seal([]byte("sk-super-secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sk-super-secret")

	opened, err := enc.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-super-secret", string(opened))
}

func TestEncryptor_WrongPassphraseFails(t *testing.T) {
	sealed, err := NewEncryptor("passphrase-a", "salt").Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = NewEncryptor("passphrase-b", "salt").Open(sealed)
	assert.Error(t, err)
}

func TestEncryptor_TruncatedCiphertextErrors(t *testing.T) {
	enc := NewEncryptor("p", "s")
	_, err := enc.Open([]byte{1, 2, 3})
	assert.Error(t, err)
}
