package aesprim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBCRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	iv := make([]byte, 16)
	for i := range iv {
		iv[i] = byte(255 - i)
	}
	plaintext := make([]byte, 512)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	ciphertext, err := CBCEncryptSector(key, iv, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := CBCDecryptSector(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestCBCWrongIVLength(t *testing.T) {
	key := make([]byte, 16)
	_, err := CBCDecryptSector(key, make([]byte, 8), make([]byte, 16))
	assert.Error(t, err)
}

func TestCBCUnalignedCiphertext(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	_, err := CBCDecryptSector(key, iv, make([]byte, 17))
	assert.Error(t, err)
}
