package aesprim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECBEncryptBlockDeterministic(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = byte(i)
	}
	block := make([]byte, 16)
	for i := range block {
		block[i] = byte(i * 3)
	}

	out1, err := ECBEncryptBlock(key, block)
	require.NoError(t, err)
	out2, err := ECBEncryptBlock(key, block)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.NotEqual(t, block, out1)
}

func TestECBEncryptBlockWrongLength(t *testing.T) {
	key := make([]byte, 16)
	_, err := ECBEncryptBlock(key, make([]byte, 8))
	assert.Error(t, err)
}

func TestNewBlockCipherBadKeyLength(t *testing.T) {
	_, err := NewBlockCipher(make([]byte, 5))
	assert.Error(t, err)
}
