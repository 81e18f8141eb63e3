package keystore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestEncryptDecryptMnemonic(t *testing.T) {
	v, err := EncryptMnemonic(testMnemonic, "secure-password", LightParams)
	require.NoError(t, err)
	assert.Equal(t, "aes-256-gcm", v.Crypto.Cipher)
	assert.Len(t, v.Id, 36)

	plaintext, err := DecryptMnemonic(v, "secure-password")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, plaintext)

	_, err = DecryptMnemonic(v, "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestFileSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "keyring.json")

	v, err := EncryptMnemonic(testMnemonic, "123456", LightParams)
	require.NoError(t, err)
	require.NoError(t, v.SaveToFile(filename))

	loaded, err := LoadFromFile(filename)
	require.NoError(t, err)
	assert.Equal(t, v.Id, loaded.Id)

	plaintext, err := DecryptMnemonic(loaded, "123456")
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, plaintext)
}
